package relay

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const changeColumns = `id, table_name, event, week_date, new_row, old_row, created_at, sent_at`

// SQLRepository reads the change log over database/sql with the lib/pq driver,
// the same connection family the notification listener uses.
type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChange(s scanner) (ChangeRow, error) {
	var r ChangeRow
	var sentAt sql.NullTime
	if err := s.Scan(&r.ID, &r.TableName, &r.Event, &r.WeekDate, &r.NewRow, &r.OldRow, &r.CreatedAt, &sentAt); err != nil {
		return ChangeRow{}, err
	}
	if sentAt.Valid {
		r.SentAt = &sentAt.Time
	}
	return r, nil
}

func (r *SQLRepository) FetchChange(ctx context.Context, id uuid.UUID) (ChangeRow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+changeColumns+` FROM matchday_changes WHERE id = $1`, id)
	c, err := scanChange(row)
	if err != nil {
		return ChangeRow{}, fmt.Errorf("fetch change %s: %w", id, err)
	}
	return c, nil
}

func (r *SQLRepository) FetchUnsent(ctx context.Context, limit int) ([]ChangeRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+changeColumns+` FROM matchday_changes WHERE sent_at IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unsent changes: %w", err)
	}
	defer rows.Close()

	var out []ChangeRow
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE matchday_changes SET sent_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark change %s sent: %w", id, err)
	}
	return nil
}

func (r *SQLRepository) CountUnsent(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matchday_changes WHERE sent_at IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unsent changes: %w", err)
	}
	return count, nil
}
