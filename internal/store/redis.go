package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/bet-processor/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh or invalidate the cache;
// reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) SaveSummary(ctx context.Context, sum *model.Summary) error {
	if err := s.primary.SaveSummary(ctx, sum); err != nil {
		return err
	}
	s.cacheSummary(ctx, sum)
	return nil
}

func (s *CachedStore) InsertSettlement(ctx context.Context, st *model.Settlement) error {
	if err := s.primary.InsertSettlement(ctx, st); err != nil {
		return err
	}
	// Invalidate this client's settlement list; next read re-populates.
	s.rdb.Del(ctx, settlementsKey(st.Client))
	return nil
}

// --- Read-through ---

func (s *CachedStore) LatestSummary(ctx context.Context) (*model.Summary, error) {
	data, err := s.rdb.Get(ctx, summaryKey).Bytes()
	if err == nil {
		var sum model.Summary
		if json.Unmarshal(data, &sum) == nil {
			return &sum, nil
		}
	}

	sum, err := s.primary.LatestSummary(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheSummary(ctx, sum)
	return sum, nil
}

func (s *CachedStore) ListSettlementsByClient(ctx context.Context, client string) ([]model.Settlement, error) {
	data, err := s.rdb.Get(ctx, settlementsKey(client)).Bytes()
	if err == nil {
		var out []model.Settlement
		if json.Unmarshal(data, &out) == nil {
			return out, nil
		}
	}

	out, err := s.primary.ListSettlementsByClient(ctx, client)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(out); err == nil {
		s.rdb.Set(ctx, settlementsKey(client), data, s.ttl)
	}
	return out, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) InsertReview(ctx context.Context, e *model.ReviewEntry) error {
	return s.primary.InsertReview(ctx, e)
}

func (s *CachedStore) ListReviews(ctx context.Context, limit int) ([]model.ReviewEntry, error) {
	return s.primary.ListReviews(ctx, limit)
}

// --- Cache helpers ---

const summaryKey = "betproc:summary:latest"

func (s *CachedStore) cacheSummary(ctx context.Context, sum *model.Summary) {
	if data, err := json.Marshal(sum); err == nil {
		s.rdb.Set(ctx, summaryKey, data, s.ttl)
	}
}

func settlementsKey(client string) string { return fmt.Sprintf("betproc:settlements:%s", client) }
