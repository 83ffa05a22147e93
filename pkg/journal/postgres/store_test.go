package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/livescribe/pkg/journal"
	"github.com/MrWong99/livescribe/pkg/journal/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if LIVESCRIBE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("LIVESCRIBE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LIVESCRIBE_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore returns a Store on a freshly dropped schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS transcripts CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	pool.Close()

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestNewStore_InvalidDSN(t *testing.T) {
	if _, err := postgres.NewStore(context.Background(), "://not-a-dsn"); err == nil {
		t.Fatal("expected error for invalid DSN")
	}
}

func TestStore_RecordAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []journal.Entry{
		{SessionID: "s1", Seq: 2, Text: "dünya", Language: "tr", LatencyMS: 80, BufferDuration: 900 * time.Millisecond, CreatedAt: created},
		{
			SessionID: "s1", Seq: 1, Text: "merhaba", Language: "tr", LatencyMS: 120,
			BufferDuration: 1500 * time.Millisecond, CreatedAt: created,
			Words: []journal.Word{{Text: "merhaba", Start: 0.1, End: 0.52, Probability: 0.91}},
		},
		{SessionID: "s2", Seq: 1, Text: "hello", Language: "en", CreatedAt: created},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record(%d): %v", e.Seq, err)
		}
	}

	got, err := store.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Seq != 1 || got[0].Text != "merhaba" {
		t.Errorf("first = %+v", got[0])
	}
	if got[0].BufferDuration != 1500*time.Millisecond {
		t.Errorf("BufferDuration = %v, want 1.5s", got[0].BufferDuration)
	}
	if len(got[0].Words) != 1 || got[0].Words[0].End != 0.52 {
		t.Errorf("Words = %+v", got[0].Words)
	}
	if len(got[1].Words) != 0 {
		t.Errorf("second entry words = %+v, want none", got[1].Words)
	}
	if !got[0].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got[0].CreatedAt, created)
	}
}

func TestStore_RecordOverwritesSameSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_ = store.Record(ctx, journal.Entry{SessionID: "s1", Seq: 1, Text: "old"})
	if err := store.Record(ctx, journal.Entry{SessionID: "s1", Seq: 1, Text: "new"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, _ := store.List(ctx, "s1")
	if len(got) != 1 || got[0].Text != "new" {
		t.Errorf("got %+v, want single entry with text new", got)
	}
}

func TestStore_ListUnknownSession(t *testing.T) {
	store := newTestStore(t)
	got, err := store.List(context.Background(), "missing")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("List = %#v, want empty slice", got)
	}
}
