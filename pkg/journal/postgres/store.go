package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/livescribe/pkg/journal"
)

var _ journal.Store = (*Store)(nil)

// Store is a [journal.Store] backed by a pgx connection pool. Safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres journal: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres journal: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Record implements [journal.Recorder]. Re-recording the same (session, seq)
// pair overwrites the earlier row.
func (s *Store) Record(ctx context.Context, e journal.Entry) error {
	words := e.Words
	if words == nil {
		words = []journal.Word{}
	}
	wordsJSON, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("postgres journal: encode words: %w", err)
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	const q = `
		INSERT INTO transcripts
		    (session_id, seq, text, language, latency_ms, buffer_ns, words, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, seq) DO UPDATE SET
		    text       = EXCLUDED.text,
		    language   = EXCLUDED.language,
		    latency_ms = EXCLUDED.latency_ms,
		    buffer_ns  = EXCLUDED.buffer_ns,
		    words      = EXCLUDED.words,
		    created_at = EXCLUDED.created_at`

	_, err = s.pool.Exec(ctx, q,
		e.SessionID,
		e.Seq,
		e.Text,
		e.Language,
		e.LatencyMS,
		e.BufferDuration.Nanoseconds(),
		wordsJSON,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres journal: record: %w", err)
	}
	return nil
}

// List implements [journal.Store].
func (s *Store) List(ctx context.Context, sessionID string) ([]journal.Entry, error) {
	const q = `
		SELECT session_id, seq, text, language, latency_ms, buffer_ns, words, created_at
		FROM   transcripts
		WHERE  session_id = $1
		ORDER  BY seq`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: list: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (journal.Entry, error) {
		var (
			e         journal.Entry
			bufferNS  int64
			wordsJSON []byte
		)
		if err := row.Scan(
			&e.SessionID,
			&e.Seq,
			&e.Text,
			&e.Language,
			&e.LatencyMS,
			&bufferNS,
			&wordsJSON,
			&e.CreatedAt,
		); err != nil {
			return journal.Entry{}, err
		}
		e.BufferDuration = time.Duration(bufferNS)
		if err := json.Unmarshal(wordsJSON, &e.Words); err != nil {
			return journal.Entry{}, fmt.Errorf("decode words: %w", err)
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres journal: list: %w", err)
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return entries, nil
}
