package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memEntry struct {
	fact        Fact
	publishedAt *time.Time
	attempts    int
	lastError   string
}

// MemoryStore keeps the journal in process. It is the default store for
// engines built without persistence and for tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []memEntry
	byID    map[uuid.UUID]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[uuid.UUID]int)}
}

func (m *MemoryStore) Append(ctx context.Context, fact Fact) (Fact, error) {
	if err := ctx.Err(); err != nil {
		return Fact{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	fact.Seq = uint64(len(m.entries)) + 1
	m.byID[fact.ID] = len(m.entries)
	m.entries = append(m.entries, memEntry{fact: fact})
	return fact, nil
}

func (m *MemoryStore) List(ctx context.Context, afterSeq uint64, limit int) ([]Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Fact, 0, 8)
	for _, e := range m.entries {
		if e.fact.Seq <= afterSeq {
			continue
		}
		out = append(out, e.fact)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) FetchUnpublished(ctx context.Context, limit int) ([]Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Fact, 0, 8)
	for _, e := range m.entries {
		if e.publishedAt != nil {
			continue
		}
		out = append(out, e.fact)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byID[id]
	if !ok {
		return ErrFactNotFound
	}
	at = at.UTC()
	m.entries[idx].publishedAt = &at
	return nil
}

func (m *MemoryStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byID[id]
	if !ok {
		return ErrFactNotFound
	}
	m.entries[idx].attempts++
	m.entries[idx].lastError = reason
	return nil
}

// Len returns the number of appended facts.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
