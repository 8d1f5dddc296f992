package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/bet-processor/internal/model"
)

func TestMemoryStore_Reviews(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.InsertReview(ctx, &model.ReviewEntry{ID: "r", BetID: i}))
	}

	all, err := s.ListReviews(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	two, err := s.ListReviews(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, 1, two[0].BetID)
}

func TestMemoryStore_SettlementsByClient(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.InsertSettlement(ctx, &model.Settlement{BetID: 1, Client: "a", PnL: 10}))
	require.NoError(t, s.InsertSettlement(ctx, &model.Settlement{BetID: 2, Client: "b", PnL: -5}))
	require.NoError(t, s.InsertSettlement(ctx, &model.Settlement{BetID: 3, Client: "a", PnL: 0}))

	got, err := s.ListSettlementsByClient(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[1].BetID)
}

func TestMemoryStore_LatestSummary(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.LatestSummary(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	sum := &model.Summary{TotalProcessed: 2, TotalAmount: "100.00"}
	require.NoError(t, s.SaveSummary(ctx, sum))
	sum.TotalProcessed = 99

	got, err := s.LatestSummary(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.TotalProcessed, "store keeps its own copy")
}

func TestArchiver_ForwardsNotifications(t *testing.T) {
	s := NewMemoryStore()
	a := NewArchiver(s, 16, nil)

	a.Settled(model.Bet{ID: 1, Client: "c", Amount: 100, Odds: 2, Status: model.StatusWinner}, 100)
	a.Reviewed(model.ReviewEntry{ID: "x", BetID: 2, ReceivedStatus: model.StatusVoid})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Close(ctx))

	settled, _ := s.ListSettlementsByClient(context.Background(), "c")
	require.Len(t, settled, 1)
	assert.Equal(t, 100.0, settled[0].PnL)

	reviews, _ := s.ListReviews(context.Background(), 0)
	require.Len(t, reviews, 1)
	assert.Equal(t, 2, reviews[0].BetID)
}

func TestArchiver_AfterCloseDrops(t *testing.T) {
	s := NewMemoryStore()
	a := NewArchiver(s, 1, nil)
	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()), "close is idempotent")

	assert.NotPanics(t, func() { a.Reviewed(model.ReviewEntry{BetID: 1}) })
	reviews, _ := s.ListReviews(context.Background(), 0)
	assert.Empty(t, reviews)
}

// blockingStore stalls InsertReview until released, to fill the buffer.
type blockingStore struct {
	*MemoryStore
	release chan struct{}
}

func (b *blockingStore) InsertReview(ctx context.Context, e *model.ReviewEntry) error {
	<-b.release
	return b.MemoryStore.InsertReview(ctx, e)
}

func TestArchiver_DropsWhenFull(t *testing.T) {
	bs := &blockingStore{MemoryStore: NewMemoryStore(), release: make(chan struct{})}
	a := NewArchiver(bs, 1, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			a.Reviewed(model.ReviewEntry{BetID: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notifications must not block when the buffer is full")
	}

	close(bs.release)
	require.NoError(t, a.Close(context.Background()))

	reviews, _ := bs.ListReviews(context.Background(), 0)
	assert.Less(t, len(reviews), 10)
}

type failingStore struct{ *MemoryStore }

func (failingStore) InsertSettlement(context.Context, *model.Settlement) error {
	return errors.New("db down")
}

func TestArchiver_WriteErrorIsLoggedNotFatal(t *testing.T) {
	a := NewArchiver(failingStore{NewMemoryStore()}, 4, nil)
	a.Settled(model.Bet{ID: 1, Client: "c", Status: model.StatusLoser}, -1)
	assert.NoError(t, a.Close(context.Background()))
}

// fakeRows feeds scanSettlements without a database.
type fakeRows struct {
	rows [][]any
	i    int
}

func (f *fakeRows) Next() bool { f.i++; return f.i <= len(f.rows) }
func (f *fakeRows) Err() error { return nil }
func (f *fakeRows) Scan(dest ...interface{}) error {
	row := f.rows[f.i-1]
	*dest[0].(*int) = row[0].(int)
	*dest[1].(*string) = row[1].(string)
	*dest[2].(*string) = row[2].(string)
	*dest[3].(*string) = row[3].(string)
	*dest[4].(*string) = row[4].(string)
	*dest[5].(*string) = row[5].(string)
	*dest[6].(*time.Time) = row[6].(time.Time)
	return nil
}

func TestScanSettlements_ParsesNumeric(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := &fakeRows{rows: [][]any{
		{7, "client-1", "WINNER", "100.50", "2.25", "125.625", ts},
	}}

	got, err := scanSettlements(rows)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusWinner, got[0].Status)
	assert.Equal(t, 100.5, got[0].Amount)
	assert.Equal(t, 2.25, got[0].Odds)
	assert.True(t, decimal.NewFromFloat(got[0].PnL).Equal(decimal.RequireFromString("125.625")))
	assert.Equal(t, ts, got[0].Timestamp)
}
