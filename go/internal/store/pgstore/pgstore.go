// Package pgstore implements store.Records on Postgres with pgx.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchday/go/internal/sqlutil"
	"github.com/mcdev12/matchday/go/internal/store"
)

//go:embed schema.sql
var schema string

// ErrUnfilteredDelete guards against wiping a whole table by accident.
var ErrUnfilteredDelete = errors.New("delete requires at least one filter column")

// Store is a store.Records backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for dsn and checks it is reachable.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	cfg := pool.Config().ConnConfig
	log.Info().
		Str("host", cfg.Host).
		Uint16("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")
	return New(pool), nil
}

// Pool exposes the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases every pooled connection.
func (s *Store) Close() { s.pool.Close() }

// Migrate creates the tables, change log and triggers. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	return sqlutil.Run(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schema); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		log.Info().Msg("schema migrated")
		return nil
	})
}

func (s *Store) Select(ctx context.Context, table store.Table, filter store.Filter) ([]store.Record, error) {
	if !table.Valid() {
		return nil, store.Wrap(store.OpSelect, table, store.ErrUnknownTable)
	}
	sql, args := buildSelect(table, filter)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, store.Wrap(store.OpSelect, table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, store.Wrap(store.OpSelect, table, err)
	}
	out := make([]store.Record, len(maps))
	for i, m := range maps {
		out[i] = store.Record(m)
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, table store.Table, record store.Record) error {
	if !table.Valid() {
		return store.Wrap(store.OpInsert, table, store.ErrUnknownTable)
	}
	sql, args := buildInsert(table, record)
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return store.Wrap(store.OpInsert, table, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table store.Table, filter store.Filter) error {
	if !table.Valid() {
		return store.Wrap(store.OpDelete, table, store.ErrUnknownTable)
	}
	if len(filter) == 0 {
		return store.Wrap(store.OpDelete, table, ErrUnfilteredDelete)
	}
	sql, args := buildDelete(table, filter)
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return store.Wrap(store.OpDelete, table, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, table store.Table, record store.Record, conflictKey string) error {
	if !table.Valid() {
		return store.Wrap(store.OpUpsert, table, store.ErrUnknownTable)
	}
	if _, ok := record[conflictKey]; !ok {
		return store.Wrap(store.OpUpsert, table, fmt.Errorf("record has no conflict column %q", conflictKey))
	}
	sql, args := buildUpsert(table, record, conflictKey)
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return store.Wrap(store.OpUpsert, table, err)
	}
	return nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// where renders "WHERE a = $n AND b = $n+1" starting at placeholder next.
func where(filter store.Filter, next int) (string, []any) {
	cols := filter.Columns()
	if len(cols) == 0 {
		return "", nil
	}
	conds := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		conds[i] = fmt.Sprintf("%s = $%d", ident(col), next+i)
		args[i] = filter[col]
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func buildSelect(table store.Table, filter store.Filter) (string, []any) {
	cond, args := where(filter, 1)
	return fmt.Sprintf("SELECT * FROM %s%s ORDER BY id", ident(string(table)), cond), args
}

func buildInsert(table store.Table, record store.Record) (string, []any) {
	cols := record.Columns()
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		names[i] = ident(col)
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = record[col]
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ident(string(table)), strings.Join(names, ", "), strings.Join(marks, ", ")), args
}

func buildDelete(table store.Table, filter store.Filter) (string, []any) {
	cond, args := where(filter, 1)
	return fmt.Sprintf("DELETE FROM %s%s", ident(string(table)), cond), args
}

func buildUpsert(table store.Table, record store.Record, conflictKey string) (string, []any) {
	sql, args := buildInsert(table, record)
	var sets []string
	for _, col := range record.Columns() {
		if col == conflictKey {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ident(col), ident(col)))
	}
	if len(sets) == 0 {
		return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", sql, ident(conflictKey)), args
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s",
		sql, ident(conflictKey), strings.Join(sets, ", ")), args
}
