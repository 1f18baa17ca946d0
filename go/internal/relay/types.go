package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/matchday/go/internal/events"
	"github.com/mcdev12/matchday/go/internal/store"
)

// ChangeRow is one row of the matchday_changes log.
type ChangeRow struct {
	ID        uuid.UUID
	TableName string
	Event     string
	WeekDate  string
	NewRow    pqtype.NullRawMessage
	OldRow    pqtype.NullRawMessage
	CreatedAt time.Time
	SentAt    *time.Time
}

// Envelope converts the row into the wire envelope.
func (r ChangeRow) Envelope() (events.ChangeEnvelope, error) {
	table := store.Table(r.TableName)
	if !table.Valid() {
		return events.ChangeEnvelope{}, fmt.Errorf("change %s: %w", r.ID, store.ErrUnknownTable)
	}
	env := events.ChangeEnvelope{
		EventID:   r.ID.String(),
		Table:     table,
		Event:     store.Event(r.Event),
		Week:      r.WeekDate,
		Timestamp: r.CreatedAt.UTC(),
	}
	if r.NewRow.Valid {
		env.New = json.RawMessage(r.NewRow.RawMessage)
	}
	if r.OldRow.Valid {
		env.Old = json.RawMessage(r.OldRow.RawMessage)
	}
	return env, nil
}

// Publisher ships an envelope to the message bus.
type Publisher interface {
	Publish(ctx context.Context, env events.ChangeEnvelope) error
}

// Repository reads and acknowledges rows of the change log.
type Repository interface {
	FetchChange(ctx context.Context, id uuid.UUID) (ChangeRow, error)
	FetchUnsent(ctx context.Context, limit int) ([]ChangeRow, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	CountUnsent(ctx context.Context) (int, error)
}
