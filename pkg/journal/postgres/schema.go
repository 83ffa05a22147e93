// Package postgres provides a PostgreSQL-backed [journal.Store].
//
// All entries live in a single transcripts table keyed by (session_id, seq).
// Word timings are stored as JSONB.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Record(ctx, entry)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id               BIGSERIAL    PRIMARY KEY,
    session_id       TEXT         NOT NULL,
    seq              INTEGER      NOT NULL,
    text             TEXT         NOT NULL,
    language         TEXT         NOT NULL DEFAULT '',
    latency_ms       BIGINT       NOT NULL DEFAULT 0,
    buffer_ns        BIGINT       NOT NULL DEFAULT 0,
    words            JSONB        NOT NULL DEFAULT '[]'::jsonb,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_transcripts_created_at
    ON transcripts (created_at);
`

// Migrate creates the journal schema if it does not exist. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscripts); err != nil {
		return fmt.Errorf("migrate: transcripts: %w", err)
	}
	return nil
}
