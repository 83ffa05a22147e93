package journal

import (
	"context"
	"slices"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps entries in process memory. It is used when no database is
// configured and in tests. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
	limit    int
}

// NewMemoryStore returns an empty store. When limit > 0 only the most recent
// limit entries of each session are retained.
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Entry), limit: limit}
}

// Record implements Recorder.
func (m *MemoryStore) Record(_ context.Context, e Entry) error {
	e.Words = slices.Clone(e.Words)

	m.mu.Lock()
	defer m.mu.Unlock()
	entries := append(m.sessions[e.SessionID], e)
	if m.limit > 0 && len(entries) > m.limit {
		entries = slices.Clone(entries[len(entries)-m.limit:])
	}
	m.sessions[e.SessionID] = entries
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, sessionID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.sessions[sessionID])
	if out == nil {
		out = []Entry{}
	}
	slices.SortStableFunc(out, func(a, b Entry) int { return a.Seq - b.Seq })
	return out, nil
}
