// Package store defines the archive interface for the bet processor.
// The archive is write-mostly and operator facing: review entries,
// settlements and summary snapshots are recorded here, but nothing is read
// back into the live pipeline. Implementations include PostgreSQL, a Redis
// read-through cache, and in-memory (default and tests).
package store

import (
	"context"
	"errors"

	"github.com/atmx/bet-processor/internal/model"
)

// ErrNotFound is returned when a lookup has no result.
var ErrNotFound = errors.New("store: not found")

// Store is the archive interface.
type Store interface {
	// --- Review queue ---

	// InsertReview appends a review entry.
	InsertReview(ctx context.Context, entry *model.ReviewEntry) error

	// ListReviews returns up to limit entries, oldest first. limit <= 0
	// returns all of them.
	ListReviews(ctx context.Context, limit int) ([]model.ReviewEntry, error)

	// --- Settlements ---

	// InsertSettlement appends an immutable settlement record.
	InsertSettlement(ctx context.Context, s *model.Settlement) error

	// ListSettlementsByClient returns all settlements for a client.
	ListSettlementsByClient(ctx context.Context, client string) ([]model.Settlement, error)

	// --- Summary snapshots ---

	// SaveSummary records a summary snapshot.
	SaveSummary(ctx context.Context, s *model.Summary) error

	// LatestSummary returns the most recent snapshot or ErrNotFound.
	LatestSummary(ctx context.Context) (*model.Summary, error)
}
