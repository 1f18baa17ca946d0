package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/matchday/go/internal/store"
)

func newStore() *Store {
	return New(clockwork.NewFakeClockAt(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)))
}

func TestStore_InsertSelectDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	require.NoError(t, s.Insert(ctx, store.TableParticipation, store.Record{"user_id": "u1", "week_date": "2026-10-22"}))
	require.NoError(t, s.Insert(ctx, store.TableParticipation, store.Record{"user_id": "u2", "week_date": "2026-10-22"}))
	require.NoError(t, s.Insert(ctx, store.TableParticipation, store.Record{"user_id": "u1", "week_date": "2026-10-29"}))

	rows, err := s.Select(ctx, store.TableParticipation, store.Filter{"week_date": "2026-10-22"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "u1", rows[0]["user_id"])
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.NotNil(t, rows[0]["created_at"])

	require.NoError(t, s.Delete(ctx, store.TableParticipation, store.Filter{"user_id": "u1", "week_date": "2026-10-22"}))
	rows, err = s.Select(ctx, store.TableParticipation, store.Filter{"week_date": "2026-10-22"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "u2", rows[0]["user_id"])
}

func TestStore_SelectReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.Insert(ctx, store.TableMVPVotes, store.Record{"voter_id": "u1"}))

	rows, err := s.Select(ctx, store.TableMVPVotes, nil)
	require.NoError(t, err)
	rows[0]["voter_id"] = "mutated"

	assert.Equal(t, "u1", s.Rows(store.TableMVPVotes)[0]["voter_id"])
}

func TestStore_UpsertReplacesOnConflictKey(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	var changes []store.Change
	_, err := s.SubscribeChanges(ctx, store.TableTeamDraws, store.Filter{"week_date": "2026-10-22"}, store.EventAny, func(c store.Change) {
		changes = append(changes, c)
	})
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, store.TableTeamDraws, store.Record{"week_date": "2026-10-22", "created_by": "a"}, "week_date"))
	require.NoError(t, s.Upsert(ctx, store.TableTeamDraws, store.Record{"week_date": "2026-10-22", "created_by": "b"}, "week_date"))

	rows := s.Rows(store.TableTeamDraws)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0]["created_by"])
	assert.Equal(t, int64(1), rows[0]["id"], "upsert keeps the surrogate id")

	require.Len(t, changes, 2)
	assert.Equal(t, store.EventInsert, changes[0].Event)
	assert.Equal(t, store.EventUpdate, changes[1].Event)
	assert.Equal(t, "a", changes[1].Old["created_by"])
	assert.Equal(t, "b", changes[1].New["created_by"])
}

func TestStore_UpsertMissingConflictColumn(t *testing.T) {
	s := newStore()
	err := s.Upsert(context.Background(), store.TableTeamDraws, store.Record{"created_by": "a"}, "week_date")

	var se *store.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, store.OpUpsert, se.Op)
}

func TestStore_SubscriptionFiltersByEventAndRow(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	var deletes []store.Change
	sub, err := s.SubscribeChanges(ctx, store.TableMVPVotes, store.Filter{"week_date": "2026-10-22"}, store.EventDelete, func(c store.Change) {
		deletes = append(deletes, c)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Subscribers())

	require.NoError(t, s.Insert(ctx, store.TableMVPVotes, store.Record{"voter_id": "u1", "week_date": "2026-10-22"}))
	require.NoError(t, s.Insert(ctx, store.TableMVPVotes, store.Record{"voter_id": "u1", "week_date": "2026-10-29"}))
	require.NoError(t, s.Delete(ctx, store.TableMVPVotes, store.Filter{"voter_id": "u1"}))

	require.Len(t, deletes, 1, "only the delete in the watched week is delivered")
	assert.Equal(t, "2026-10-22", deletes[0].Old["week_date"])

	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, 0, s.Subscribers())
}

func TestStore_CallbackMayReadStore(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	var seen int
	_, err := s.SubscribeChanges(ctx, store.TableParticipation, nil, store.EventAny, func(store.Change) {
		rows, err := s.Select(ctx, store.TableParticipation, nil)
		require.NoError(t, err)
		seen = len(rows)
	})
	require.NoError(t, err)

	require.NoError(t, s.Insert(ctx, store.TableParticipation, store.Record{"user_id": "u1"}))
	assert.Equal(t, 1, seen)
}

func TestStore_HookFailsOperation(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	boom := errors.New("network down")
	s.SetHook(func(_ context.Context, op store.Op, _ store.Table) error {
		if op == store.OpInsert {
			return boom
		}
		return nil
	})

	err := s.Insert(ctx, store.TableParticipation, store.Record{"user_id": "u1"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Rows(store.TableParticipation))

	s.SetHook(nil)
	assert.NoError(t, s.Insert(ctx, store.TableParticipation, store.Record{"user_id": "u1"}))
}

func TestStore_UnknownTable(t *testing.T) {
	_, err := newStore().Select(context.Background(), store.Table("users"), nil)
	assert.ErrorIs(t, err, store.ErrUnknownTable)
}
