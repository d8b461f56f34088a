package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS flush_records (
	id          TEXT PRIMARY KEY,
	session_id  TEXT    NOT NULL,
	category    TEXT    NOT NULL,
	mode        TEXT    NOT NULL,
	first_load  INTEGER NOT NULL,
	count       INTEGER NOT NULL,
	bytes       INTEGER NOT NULL,
	reason      TEXT    NOT NULL,
	opened_at   INTEGER,
	flushed_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS flush_records_session_idx ON flush_records (session_id, flushed_at);
`

// SQLiteStore writes records to a local SQLite file. Timestamps are unix
// microseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database. Close closes it.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// EnsureSchema creates the flush_records table if missing.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create flush_records: %w", err)
	}
	return nil
}

// Insert writes rows in one transaction with a prepared statement.
func (s *SQLiteStore) Insert(ctx context.Context, records []FlushRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO flush_records (id, session_id, category, mode, first_load, count, bytes, reason, opened_at, flushed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		var opened sql.NullInt64
		if !r.OpenedAt.IsZero() {
			opened = sql.NullInt64{Int64: r.OpenedAt.UnixMicro(), Valid: true}
		}
		res, err := stmt.ExecContext(ctx,
			r.ID.String(), r.SessionID, r.Category, r.Mode, r.FirstLoad,
			r.Count, r.Bytes, r.Reason, opened, r.FlushedAt.UnixMicro(),
		)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", r.ID, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Recent returns the newest records of a session, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, limit int) ([]FlushRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, category, mode, first_load, count, bytes, reason, opened_at, flushed_at
		FROM flush_records
		WHERE session_id = ?
		ORDER BY flushed_at DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FlushRecord
	for rows.Next() {
		var (
			r       FlushRecord
			id      string
			opened  sql.NullInt64
			flushed int64
		)
		if err := rows.Scan(&id, &r.SessionID, &r.Category, &r.Mode, &r.FirstLoad,
			&r.Count, &r.Bytes, &r.Reason, &opened, &flushed); err != nil {
			return nil, err
		}
		if err := r.ID.UnmarshalText([]byte(id)); err != nil {
			return nil, fmt.Errorf("parse id %q: %w", id, err)
		}
		if opened.Valid {
			r.OpenedAt = time.UnixMicro(opened.Int64)
		}
		r.FlushedAt = time.UnixMicro(flushed)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
