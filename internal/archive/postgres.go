package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS flush_records (
	id          UUID PRIMARY KEY,
	session_id  TEXT        NOT NULL,
	category    TEXT        NOT NULL,
	mode        TEXT        NOT NULL,
	first_load  BOOLEAN     NOT NULL,
	count       INTEGER     NOT NULL,
	bytes       INTEGER     NOT NULL,
	reason      TEXT        NOT NULL,
	opened_at   TIMESTAMPTZ,
	flushed_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS flush_records_session_idx ON flush_records (session_id, flushed_at);
`

// PostgresStore writes records to PostgreSQL with pgx batches.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps an open pool. Close closes the pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the flush_records table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create flush_records: %w", err)
	}
	return nil
}

// Insert writes rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *PostgresStore) Insert(ctx context.Context, records []FlushRecord) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO flush_records (id, session_id, category, mode, first_load, count, bytes, reason, opened_at, flushed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.SessionID, r.Category, r.Mode, r.FirstLoad, r.Count, r.Bytes, r.Reason, nullTime(r), r.FlushedAt)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range records {
		ct, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// nullTime maps a zero OpenedAt (first loads) to NULL.
func nullTime(r FlushRecord) any {
	if r.OpenedAt.IsZero() {
		return nil
	}
	return r.OpenedAt
}
