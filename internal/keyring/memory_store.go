package keyring

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. Rings built on the same MemoryStore
// behave like separate processes sharing one persisted location.
type MemoryStore struct {
	mu    sync.Mutex
	rings map[string]map[int64]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rings: make(map[string]map[int64]Entry)}
}

func (s *MemoryStore) Load(_ context.Context, ring string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.rings[ring]))
	for _, e := range s.rings[ring] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })

	return out, nil
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, ring string, e Entry) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gens, ok := s.rings[ring]
	if !ok {
		gens = make(map[int64]Entry)
		s.rings[ring] = gens
	}
	if existing, ok := gens[e.Generation]; ok {
		return existing, false, nil
	}
	gens[e.Generation] = e

	return e, true, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, ring string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for gen, e := range s.rings[ring] {
		if e.Expired(now) {
			delete(s.rings[ring], gen)
			n++
		}
	}

	return n, nil
}

var _ Store = (*MemoryStore)(nil)
