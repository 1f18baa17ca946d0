package sqlutil

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed, rolledBack bool
	commitErr             error
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeDB struct {
	tx       *fakeTx
	beginErr error
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	return d.tx, nil
}

func TestRun_Commits(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{}}
	var got pgx.Tx
	require.NoError(t, Run(context.Background(), db, func(tx pgx.Tx) error {
		got = tx
		return nil
	}))
	assert.Same(t, db.tx, got)
	assert.True(t, db.tx.committed)
	assert.False(t, db.tx.rolledBack)
}

func TestRun_RollsBackOnError(t *testing.T) {
	db := &fakeDB{tx: &fakeTx{}}
	boom := errors.New("boom")
	err := Run(context.Background(), db, func(pgx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, db.tx.rolledBack)
	assert.False(t, db.tx.committed)
}

func TestRun_BeginAndCommitErrors(t *testing.T) {
	boom := errors.New("boom")
	err := Run(context.Background(), &fakeDB{beginErr: boom}, func(pgx.Tx) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, boom)

	db := &fakeDB{tx: &fakeTx{commitErr: boom}}
	err = Run(context.Background(), db, func(pgx.Tx) error { return nil })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "commit")
}
