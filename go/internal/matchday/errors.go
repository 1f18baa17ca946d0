package matchday

import (
	"errors"
	"fmt"
)

var (
	// ErrActionInFlight is returned when a mutating action starts while
	// another one from the same client is still submitting.
	ErrActionInFlight = errors.New("another action is already in progress")

	// ErrNotLoaded is returned by actions issued before any week was loaded.
	ErrNotLoaded = errors.New("no week loaded yet")

	ErrInsufficientPlayers = fmt.Errorf("at least %d present players are required for a draw", minDrawPlayers)
	ErrUnknownCandidate    = errors.New("candidate is not a present player")
	ErrVotingClosed        = errors.New("MVP voting is not open")

	// ErrConcurrencyAnomaly marks an optimistic snapshot that the store
	// contradicted on the next reload. It is logged, never returned.
	ErrConcurrencyAnomaly = errors.New("optimistic state diverged from store")
)

// ValidationError rejects an action before anything is written. Retrying
// without changing the inputs will fail the same way.
type ValidationError struct {
	Action string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransportError reports a failed remote write. The local snapshot has
// already been reloaded (or is stale-but-consistent if that failed too),
// so the user can simply try again.
type TransportError struct {
	Action string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed, try again: %v", e.Action, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) || errors.Is(err, ErrActionInFlight)
}
