package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/matchday/go/internal/store"
)

// Envelope types that are shared between relay, gateway and the change feeds

// DefaultSubjectPrefix roots every change subject: <prefix>.<table>.<week>.
const DefaultSubjectPrefix = "matchday.changes"

// ChangeEnvelope is one row change as it travels over NATS and the gateway websocket.
type ChangeEnvelope struct {
	EventID   string          `json:"eventId"`
	Table     store.Table     `json:"table"`
	Event     store.Event     `json:"event"`
	Week      string          `json:"week"`
	Timestamp time.Time       `json:"timestamp"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
}

// Subject returns the NATS subject the envelope is published on.
func (e ChangeEnvelope) Subject(prefix string) string {
	return Subject(prefix, e.Table, e.Week)
}

// Change decodes the envelope rows into a store.Change.
func (e ChangeEnvelope) Change() (store.Change, error) {
	c := store.Change{Table: e.Table, Event: e.Event, CommitTime: e.Timestamp}
	var err error
	if c.New, err = decodeRow(e.New); err != nil {
		return store.Change{}, fmt.Errorf("decode new row of %s change %s: %w", e.Table, e.EventID, err)
	}
	if c.Old, err = decodeRow(e.Old); err != nil {
		return store.Change{}, fmt.Errorf("decode old row of %s change %s: %w", e.Table, e.EventID, err)
	}
	return c, nil
}

// FromChange builds an envelope for c. week is taken from whichever row
// carries a week_date.
func FromChange(id string, c store.Change) (ChangeEnvelope, error) {
	env := ChangeEnvelope{
		EventID:   id,
		Table:     c.Table,
		Event:     c.Event,
		Timestamp: c.CommitTime.UTC(),
	}
	if wk, ok := c.Row()["week_date"].(string); ok {
		env.Week = wk
	}
	var err error
	if env.New, err = encodeRow(c.New); err != nil {
		return ChangeEnvelope{}, err
	}
	if env.Old, err = encodeRow(c.Old); err != nil {
		return ChangeEnvelope{}, err
	}
	return env, nil
}

// Subject builds <prefix>.<table>.<week>. An empty week subscribes to
// every week of the table.
func Subject(prefix string, table store.Table, week string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if week == "" {
		return fmt.Sprintf("%s.%s.>", prefix, table)
	}
	// subject tokens cannot contain dots or spaces
	week = strings.NewReplacer(".", "-", " ", "-").Replace(week)
	return fmt.Sprintf("%s.%s.%s", prefix, table, week)
}

// WeekOf returns the week_date a filter pins, or "" when it does not pin one.
func WeekOf(filter store.Filter) string {
	wk, _ := filter["week_date"].(string)
	return wk
}

func decodeRow(raw json.RawMessage) (store.Record, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var rec store.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func encodeRow(rec store.Record) (json.RawMessage, error) {
	if rec == nil {
		return nil, nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return data, nil
}
