// Package memstore is an in-process store.Store with a synchronous change feed.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/matchday/go/internal/store"
)

// Hook runs before every operation; a non-nil error fails the operation
// without touching any data. Tests use it to inject faults or to block.
type Hook func(ctx context.Context, op store.Op, table store.Table) error

type subscription struct {
	table  store.Table
	filter store.Filter
	event  store.Event
	cb     func(store.Change)
}

// Store keeps rows per table in insertion order. Change callbacks run on
// the writer's goroutine after the store lock is released, so a callback
// may read the store again.
type Store struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	tables map[store.Table][]store.Record
	nextID int64
	hook   Hook

	subsMu  sync.RWMutex
	subs    map[int64]*subscription
	nextSub int64
}

// New creates an empty store. A nil clock means the real clock.
func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock:  clock,
		tables: make(map[store.Table][]store.Record),
		subs:   make(map[int64]*subscription),
	}
}

// SetHook installs h; nil removes it.
func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

func (s *Store) before(ctx context.Context, op store.Op, table store.Table) error {
	if !table.Valid() {
		return store.Wrap(op, table, store.ErrUnknownTable)
	}
	if err := ctx.Err(); err != nil {
		return store.Wrap(op, table, err)
	}
	s.mu.Lock()
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, op, table); err != nil {
			return store.Wrap(op, table, err)
		}
	}
	return nil
}

// Select returns copies of every row in table matching filter, oldest first.
func (s *Store) Select(ctx context.Context, table store.Table, filter store.Filter) ([]store.Record, error) {
	if err := s.before(ctx, store.OpSelect, table); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Record
	for _, row := range s.tables[table] {
		if filter.Matches(row) {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

// Insert appends a row, stamping id and created_at.
func (s *Store) Insert(ctx context.Context, table store.Table, record store.Record) error {
	if err := s.before(ctx, store.OpInsert, table); err != nil {
		return err
	}

	s.mu.Lock()
	row := s.stamp(record)
	s.tables[table] = append(s.tables[table], row)
	s.mu.Unlock()

	s.dispatch(store.Change{Table: table, Event: store.EventInsert, New: row.Clone(), CommitTime: s.clock.Now()})
	return nil
}

// Delete removes every row in table matching filter.
func (s *Store) Delete(ctx context.Context, table store.Table, filter store.Filter) error {
	if err := s.before(ctx, store.OpDelete, table); err != nil {
		return err
	}

	s.mu.Lock()
	var kept, removed []store.Record
	for _, row := range s.tables[table] {
		if filter.Matches(row) {
			removed = append(removed, row)
		} else {
			kept = append(kept, row)
		}
	}
	s.tables[table] = kept
	s.mu.Unlock()

	now := s.clock.Now()
	for _, row := range removed {
		s.dispatch(store.Change{Table: table, Event: store.EventDelete, Old: row, CommitTime: now})
	}
	return nil
}

// Upsert replaces the row whose conflictKey column equals the record's,
// or inserts it when none exists.
func (s *Store) Upsert(ctx context.Context, table store.Table, record store.Record, conflictKey string) error {
	if err := s.before(ctx, store.OpUpsert, table); err != nil {
		return err
	}
	key, ok := record[conflictKey]
	if !ok {
		return store.Wrap(store.OpUpsert, table, fmt.Errorf("record has no conflict column %q", conflictKey))
	}

	s.mu.Lock()
	change := store.Change{Table: table, Event: store.EventInsert}
	match := store.Filter{conflictKey: key}
	rows := s.tables[table]
	replaced := false
	for i, row := range rows {
		if !match.Matches(row) {
			continue
		}
		next := record.Clone()
		next["id"] = row["id"]
		next["created_at"] = row["created_at"]
		rows[i] = next
		change.Event = store.EventUpdate
		change.Old = row
		change.New = next.Clone()
		replaced = true
		break
	}
	if !replaced {
		row := s.stamp(record)
		s.tables[table] = append(rows, row)
		change.New = row.Clone()
	}
	s.mu.Unlock()

	change.CommitTime = s.clock.Now()
	s.dispatch(change)
	return nil
}

// stamp must be called with s.mu held.
func (s *Store) stamp(record store.Record) store.Record {
	s.nextID++
	row := record.Clone()
	row["id"] = s.nextID
	row["created_at"] = s.clock.Now()
	return row
}

// SubscribeChanges registers cb for changes to table matching filter and event.
func (s *Store) SubscribeChanges(ctx context.Context, table store.Table, filter store.Filter, event store.Event, cb func(store.Change)) (store.Subscription, error) {
	if err := s.before(ctx, store.OpSubscribe, table); err != nil {
		return nil, err
	}

	s.subsMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = &subscription{table: table, filter: filter, event: event, cb: cb}
	s.subsMu.Unlock()

	return store.SubscriptionFunc(func() error {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
		return nil
	}), nil
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return len(s.subs)
}

// Rows returns a copy of every row in table, for assertions.
func (s *Store) Rows(table store.Table) []store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Record, 0, len(s.tables[table]))
	for _, row := range s.tables[table] {
		out = append(out, row.Clone())
	}
	return out
}

func (s *Store) dispatch(change store.Change) {
	s.subsMu.RLock()
	var targets []*subscription
	for _, sub := range s.subs {
		if sub.table == change.Table && sub.event.Accepts(change.Event) && sub.filter.Matches(change.Row()) {
			targets = append(targets, sub)
		}
	}
	s.subsMu.RUnlock()

	for _, sub := range targets {
		sub.cb(change)
	}
}
