package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to poll for missed changes
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int // Max changes to fetch per fallback pass
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "matchday_changes",
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Relay moves rows of the change log onto the bus and marks them sent.
type Relay struct {
	repo      Repository
	publisher Publisher
	cfg       ListenerConfig

	mu        sync.Mutex
	running   bool
	published uint64
	lastEvent time.Time
}

func NewRelay(repo Repository, publisher Publisher, cfg ListenerConfig) *Relay {
	return &Relay{repo: repo, publisher: publisher, cfg: cfg}
}

// Listener drives a Relay from Postgres notifications, with a fallback
// poll for anything a dropped connection missed.
type Listener struct {
	*Relay
	listener *pq.Listener
}

func NewListener(repo Repository, publisher Publisher, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &Listener{
		Relay:    NewRelay(repo, publisher, cfg),
		listener: l,
	}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	l.setRunning(true)
	defer l.setRunning(false)

	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	// drain whatever piled up while we were down
	if err := l.ProcessUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process unsent changes")
	}

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// connection was re-established; notifications may have been lost
				if err := l.ProcessUnsent(ctx); err != nil {
					log.Error().Err(err).Msg("failed to process unsent changes")
				}
				continue
			}
			if err := l.HandleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.C:
			if err := l.ProcessUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent changes")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}

// HandleNotification handles a pg notification whose payload is a change id.
// It fetches the change row, publishes it and marks it sent.
func (r *Relay) HandleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid change ID in notification: %w", err)
	}

	row, err := r.repo.FetchChange(ctx, id)
	if err != nil {
		return err
	}
	if row.SentAt != nil {
		// already shipped by a fallback pass
		return nil
	}
	if err := r.publishWithRetry(ctx, row); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}

	log.Debug().Str("event_id", id.String()).Str("table", row.TableName).Msg("published and marked change as sent")
	return nil
}

// ProcessUnsent republishes every change the notifications missed.
func (r *Relay) ProcessUnsent(ctx context.Context) error {
	unsent, err := r.repo.FetchUnsent(ctx, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, row := range unsent {
		if err := r.publishWithRetry(ctx, row); err != nil {
			log.Error().Err(err).Str("event_id", row.ID.String()).Msg("failed to publish change")
			continue
		}
	}
	if len(unsent) > 0 {
		log.Info().Int("count", len(unsent)).Msg("processed unsent changes")
	}
	return nil
}

// publishWithRetry publishes with a linear backoff, then marks the row sent.
func (r *Relay) publishWithRetry(ctx context.Context, row ChangeRow) error {
	env, err := row.Envelope()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := r.publisher.Publish(ctx, env); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", env.EventID).
				Msg("failed to publish, retrying")
			continue
		}

		if err := r.repo.MarkSent(ctx, row.ID); err != nil {
			return err
		}
		r.recordPublished()

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", env.EventID).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

func (r *Relay) setRunning(running bool) {
	r.mu.Lock()
	r.running = running
	r.mu.Unlock()
}

func (r *Relay) recordPublished() {
	r.mu.Lock()
	r.published++
	r.lastEvent = time.Now()
	r.mu.Unlock()
}

// Stats returns how many changes were published and when the last one was.
func (r *Relay) Stats() (published uint64, lastEvent time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published, r.lastEvent
}

// Running reports whether a listener loop is driving the relay.
func (r *Relay) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
