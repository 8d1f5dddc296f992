package store

import (
	"context"
	"sync"

	"github.com/atmx/bet-processor/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used when no database
// is configured and in tests. Contents are lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	reviews     []model.ReviewEntry
	settlements []model.Settlement
	summary     *model.Summary
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertReview(_ context.Context, entry *model.ReviewEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reviews = append(s.reviews, *entry)
	return nil
}

func (s *MemoryStore) ListReviews(_ context.Context, limit int) ([]model.ReviewEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.reviews)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]model.ReviewEntry, n)
	copy(result, s.reviews[:n])
	return result, nil
}

func (s *MemoryStore) InsertSettlement(_ context.Context, st *model.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settlements = append(s.settlements, *st)
	return nil
}

func (s *MemoryStore) ListSettlementsByClient(_ context.Context, client string) ([]model.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Settlement
	for _, st := range s.settlements {
		if st.Client == client {
			result = append(result, st)
		}
	}
	return result, nil
}

func (s *MemoryStore) SaveSummary(_ context.Context, sum *model.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	copy := *sum
	s.summary = &copy
	return nil
}

func (s *MemoryStore) LatestSummary(_ context.Context) (*model.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.summary == nil {
		return nil, ErrNotFound
	}
	copy := *s.summary
	return &copy, nil
}
