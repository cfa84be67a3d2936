package submission

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Store errors.
var (
	ErrDuplicateID = errors.New("submission: duplicate id")
	ErrNotFound    = errors.New("submission: not found")
)

// Store holds submissions. Insert is append-only: an existing id is never
// overwritten. Implementations must be safe for concurrent use.
type Store interface {
	Insert(ctx context.Context, s Submission) error
	Get(ctx context.Context, id string) (Submission, error)
	// List returns every submission ordered by creation time, then id.
	List(ctx context.Context) ([]Submission, error)
}

// MemStore is an in-memory Store. It keeps its own copy of every submission
// and hands out copies, so callers can never mutate a stored record.
type MemStore struct {
	mu   sync.RWMutex
	subs map[string]Submission
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{subs: make(map[string]Submission)}
}

// Insert adds s. It fails with ErrDuplicateID if the id is taken.
func (m *MemStore) Insert(_ context.Context, s Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[s.ID]; ok {
		return ErrDuplicateID
	}
	m.subs[s.ID] = s.Clone()
	return nil
}

// Get returns the submission with id or ErrNotFound.
func (m *MemStore) Get(_ context.Context, id string) (Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subs[id]
	if !ok {
		return Submission{}, ErrNotFound
	}
	return s.Clone(), nil
}

// List returns all submissions.
func (m *MemStore) List(_ context.Context) ([]Submission, error) {
	m.mu.RLock()
	out := make([]Submission, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()
	SortSubmissions(out)
	return out, nil
}

// SortSubmissions orders subs by creation time, then id.
func SortSubmissions(subs []Submission) {
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].ID < subs[j].ID
	})
}
