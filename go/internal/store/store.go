package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Table names a persisted collection.
type Table string

const (
	TableParticipation Table = "match_participation"
	TableTeamDraws     Table = "team_draws"
	TableMVPVotes      Table = "mvp_votes"
)

// Tables lists every table the match-day engine reads and writes.
var Tables = []Table{TableParticipation, TableTeamDraws, TableMVPVotes}

// Valid reports whether t is one of the known tables.
func (t Table) Valid() bool {
	for _, known := range Tables {
		if t == known {
			return true
		}
	}
	return false
}

// Record is a single row, keyed by column name.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Columns returns the record's column names in sorted order.
func (r Record) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Filter is a conjunction of column equality constraints.
type Filter map[string]any

// Columns returns the filter's column names in sorted order.
func (f Filter) Columns() []string {
	return Record(f).Columns()
}

// Matches reports whether every constraint in f holds for r.
func (f Filter) Matches(r Record) bool {
	for col, want := range f {
		got, ok := r[col]
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

// equalValues compares values loosely so that records decoded from JSON
// (float64 numbers, []any arrays) still match filters built from Go values.
func equalValues(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Event is the kind of row-level change a subscription listens for.
type Event string

const (
	EventInsert Event = "INSERT"
	EventUpdate Event = "UPDATE"
	EventDelete Event = "DELETE"
	EventAny    Event = "*"
)

// Accepts reports whether a subscription for e should receive a change of kind got.
func (e Event) Accepts(got Event) bool {
	return e == EventAny || e == got
}

// Change is a committed row-level change delivered by a Feed.
type Change struct {
	Table      Table     `json:"table"`
	Event      Event     `json:"event"`
	New        Record    `json:"new,omitempty"`
	Old        Record    `json:"old,omitempty"`
	CommitTime time.Time `json:"commit_time"`
}

// Row returns the record a filter should be evaluated against: the new
// row for inserts and updates, the old row for deletes.
func (c Change) Row() Record {
	if c.Event == EventDelete || c.New == nil {
		return c.Old
	}
	return c.New
}

// Records is the CRUD half of the remote store.
type Records interface {
	Select(ctx context.Context, table Table, filter Filter) ([]Record, error)
	Insert(ctx context.Context, table Table, record Record) error
	Delete(ctx context.Context, table Table, filter Filter) error
	Upsert(ctx context.Context, table Table, record Record, conflictKey string) error
}

// Subscription is a standing watch returned by SubscribeChanges.
type Subscription interface {
	Unsubscribe() error
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Unsubscribe() error { return f() }

// Feed delivers committed changes at least once, in approximate commit
// order, with no ordering guarantee across tables.
type Feed interface {
	SubscribeChanges(ctx context.Context, table Table, filter Filter, event Event, cb func(Change)) (Subscription, error)
}

// Store is a record store with a change feed.
type Store interface {
	Records
	Feed
}

type composed struct {
	Records
	Feed
}

// Compose joins a Records implementation and a Feed into a Store, e.g.
// Postgres for reads and writes with NATS for notifications.
func Compose(records Records, feed Feed) Store {
	return composed{Records: records, Feed: feed}
}
