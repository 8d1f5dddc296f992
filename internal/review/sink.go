// Package review collects bet updates that failed the transition check so an
// operator can inspect them. Entries are append-only.
package review

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/bet-processor/internal/model"
)

// Sink is an append-only, concurrency-safe list of review entries.
type Sink struct {
	mu      sync.RWMutex
	entries []model.ReviewEntry
	now     func() time.Time
}

// NewSink returns an empty sink stamped with UTC wall-clock time.
func NewSink() *Sink {
	return &Sink{now: func() time.Time { return time.Now().UTC() }}
}

// Append records a rejected update and returns the stored entry.
func (s *Sink) Append(betID int, received model.Status, reason string) model.ReviewEntry {
	entry := model.ReviewEntry{
		ID:             uuid.New().String(),
		BetID:          betID,
		ReceivedStatus: received,
		Reason:         reason,
		Timestamp:      s.now(),
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return entry
}

// Len returns the number of entries.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a copy of all entries in append order.
func (s *Sink) Entries() []model.ReviewEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ReviewEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
