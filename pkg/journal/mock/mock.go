// Package mock provides a configurable test double for [journal.Store].
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/livescribe/pkg/journal"
)

var _ journal.Store = (*Store)(nil)

// Store records every Record call and returns canned results from List.
type Store struct {
	mu sync.Mutex

	// RecordErr is returned by Record when non-nil. The entry is still
	// captured in Entries.
	RecordErr error

	// ListResult is returned by List. When nil, List returns the recorded
	// entries of the requested session.
	ListResult []journal.Entry

	// ListErr is returned by List when non-nil.
	ListErr error

	entries   []journal.Entry
	listCalls []string
}

// Record implements journal.Recorder.
func (s *Store) Record(_ context.Context, e journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.RecordErr
}

// List implements journal.Store.
func (s *Store) List(_ context.Context, sessionID string) ([]journal.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls = append(s.listCalls, sessionID)
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	if s.ListResult != nil {
		return slices.Clone(s.ListResult), nil
	}
	var out []journal.Entry
	for _, e := range s.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns a copy of every entry passed to Record.
func (s *Store) Entries() []journal.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// ListCalls returns the session ids List was called with.
func (s *Store) ListCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.listCalls)
}
