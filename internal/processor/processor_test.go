package processor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/bet-processor/internal/idle"
	"github.com/atmx/bet-processor/internal/model"
	"github.com/atmx/bet-processor/internal/processor"
	"github.com/atmx/bet-processor/internal/review"
	"github.com/atmx/bet-processor/internal/stats"
)

// noSleep skips the simulated delay but still honours cancellation.
func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type env struct {
	p       *processor.Processor
	agg     *stats.Aggregator
	sink    *review.Sink
	tracker *idle.Tracker
	obs     *recorder
}

func newEnv(t *testing.T, opts ...processor.Option) *env {
	t.Helper()
	e := &env{
		agg:     stats.NewAggregator(),
		sink:    review.NewSink(),
		tracker: idle.NewTracker(),
		obs:     &recorder{},
	}
	opts = append([]processor.Option{
		processor.WithDelay(50 * time.Millisecond),
		processor.WithSleeper(noSleep),
		processor.WithObserver(e.obs),
	}, opts...)
	e.p = processor.New(e.agg, e.sink, e.tracker, opts...)
	return e
}

func (e *env) process(t *testing.T, b model.Bet) {
	t.Helper()
	require.NoError(t, e.p.Process(context.Background(), b))
}

type recorder struct {
	mu       sync.Mutex
	settled  []float64
	reviewed []model.ReviewEntry
}

func (r *recorder) Settled(_ model.Bet, pnl float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, pnl)
}

func (r *recorder) Reviewed(e model.ReviewEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviewed = append(r.reviewed, e)
}

func newBet(id int, status model.Status) model.Bet {
	return model.Bet{
		ID:        id,
		Amount:    100,
		Odds:      2.0,
		Client:    "client-1",
		Event:     "event-1",
		Market:    "market-1",
		Selection: "HOME",
		Status:    status,
	}
}

// --- State machine ---

func TestProcess_FirstStatusMustBeOpen(t *testing.T) {
	for _, s := range []model.Status{model.StatusWinner, model.StatusLoser, model.StatusVoid} {
		t.Run(string(s), func(t *testing.T) {
			e := newEnv(t)
			e.process(t, newBet(1, s))

			sum := e.p.Summary()
			assert.EqualValues(t, 1, sum.TotalProcessed)
			assert.Equal(t, 1, sum.ReviewQueueSize)
			assert.Equal(t, "0.00", sum.TotalAmount)
			assert.Equal(t, "0.00", sum.TotalProfitOrLoss)

			reviews := e.p.Reviews()
			require.Len(t, reviews, 1)
			assert.Equal(t, processor.ReasonFirstNotOpen, reviews[0].Reason)
			assert.Equal(t, s, reviews[0].ReceivedStatus)
		})
	}
}

func TestProcess_OpenThenWinner(t *testing.T) {
	e := newEnv(t)
	e.process(t, newBet(1, model.StatusOpen))
	e.process(t, newBet(1, model.StatusWinner))

	sum := e.p.Summary()
	assert.EqualValues(t, 2, sum.TotalProcessed)
	assert.Equal(t, "100.00", sum.TotalAmount)
	assert.Equal(t, "100.00", sum.TotalProfitOrLoss)
	assert.Equal(t, 0, sum.ReviewQueueSize)

	cs, ok := e.agg.Client("client-1")
	require.True(t, ok)
	assert.Equal(t, 100.0, cs.Profit())
	assert.Equal(t, []float64{100}, e.obs.settled)
}

func TestProcess_OpenThenLoser(t *testing.T) {
	e := newEnv(t)
	e.process(t, newBet(1, model.StatusOpen))
	e.process(t, newBet(1, model.StatusLoser))

	sum := e.p.Summary()
	assert.Equal(t, "-100.00", sum.TotalProfitOrLoss)
	require.Len(t, sum.TopClientsByLoss, 1)
	assert.Equal(t, "client-1", sum.TopClientsByLoss[0].Client)
	assert.Equal(t, "100", sum.TopClientsByLoss[0].Amount.String())
}

func TestProcess_OpenThenVoid(t *testing.T) {
	e := newEnv(t)
	e.process(t, newBet(1, model.StatusOpen))
	e.process(t, newBet(1, model.StatusVoid))

	sum := e.p.Summary()
	assert.EqualValues(t, 2, sum.TotalProcessed)
	assert.Equal(t, "100.00", sum.TotalAmount)
	assert.Equal(t, "0.00", sum.TotalProfitOrLoss)
	assert.Equal(t, 0, sum.ReviewQueueSize)
}

func TestProcess_OpenTwiceGoesToReview(t *testing.T) {
	e := newEnv(t)
	e.process(t, newBet(1, model.StatusOpen))
	e.process(t, newBet(1, model.StatusOpen))

	sum := e.p.Summary()
	assert.EqualValues(t, 2, sum.TotalProcessed)
	assert.Equal(t, 1, sum.ReviewQueueSize)
	assert.Equal(t, "invalid transition from OPEN to OPEN", e.p.Reviews()[0].Reason)

	// Ledger still Open: a settlement is accepted.
	e.process(t, newBet(1, model.StatusWinner))
	assert.Equal(t, 1, e.p.Summary().ReviewQueueSize)
	assert.Equal(t, "100.00", e.p.Summary().TotalProfitOrLoss)
}

func TestProcess_SettledRejectsEverything(t *testing.T) {
	e := newEnv(t)
	e.process(t, newBet(1, model.StatusOpen))
	e.process(t, newBet(1, model.StatusWinner))

	for i, s := range []model.Status{model.StatusOpen, model.StatusWinner, model.StatusLoser, model.StatusVoid} {
		e.process(t, newBet(1, s))
		assert.Equal(t, i+1, e.p.Summary().ReviewQueueSize)
	}

	sum := e.p.Summary()
	assert.EqualValues(t, 6, sum.TotalProcessed)
	assert.Equal(t, "100.00", sum.TotalProfitOrLoss, "settled bet must not be re-settled")
	assert.Equal(t, "invalid transition from WINNER to LOSER", e.p.Reviews()[2].Reason)
	assert.Len(t, e.obs.reviewed, 4)
}

func TestProcess_OpenAfterRejectedFirstIsAccepted(t *testing.T) {
	e := newEnv(t)
	e.process(t, newBet(5, model.StatusWinner))
	e.process(t, newBet(5, model.StatusOpen))
	e.process(t, newBet(5, model.StatusLoser))

	sum := e.p.Summary()
	assert.Equal(t, 1, sum.ReviewQueueSize)
	assert.Equal(t, "-100.00", sum.TotalProfitOrLoss)
}

func TestPnL(t *testing.T) {
	b := model.Bet{Amount: 50, Odds: 3.5}

	b.Status = model.StatusWinner
	assert.Equal(t, 125.0, processor.PnL(b))
	b.Status = model.StatusLoser
	assert.Equal(t, -50.0, processor.PnL(b))
	b.Status = model.StatusVoid
	assert.Equal(t, 0.0, processor.PnL(b))
}

// --- Idle tracker bookkeeping ---

func TestProcess_TrackerEndsAfterEachBet(t *testing.T) {
	e := newEnv(t)
	e.process(t, newBet(1, model.StatusOpen))

	assert.Equal(t, 0, e.tracker.InFlight())
	select {
	case <-e.tracker.Done():
	default:
		t.Fatal("tracker should be idle after processing")
	}
}

func TestProcess_DelayCancellation(t *testing.T) {
	e := newEnv(t, processor.WithSleeper(processor.SleepContext))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.p.Process(ctx, newBet(1, model.StatusOpen))
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, e.p.Summary().TotalProcessed)
	assert.Equal(t, 0, e.tracker.InFlight())
}

type panicObserver struct{}

func (panicObserver) Settled(model.Bet, float64)  { panic("observer exploded") }
func (panicObserver) Reviewed(model.ReviewEntry) {}

func TestProcess_PanicStillEndsTracker(t *testing.T) {
	e := newEnv(t, processor.WithObserver(panicObserver{}))
	e.process(t, newBet(1, model.StatusOpen))

	assert.Panics(t, func() {
		_ = e.p.Process(context.Background(), newBet(1, model.StatusWinner))
	})
	assert.Equal(t, 0, e.tracker.InFlight())
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, processor.SleepContext(context.Background(), 0))
	assert.NoError(t, processor.SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, processor.SleepContext(ctx, time.Minute), context.DeadlineExceeded)
}

// --- Concurrency ---

func TestProcess_ConcurrentDistinctBets(t *testing.T) {
	e := newEnv(t)
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			b := newBet(id, model.StatusOpen)
			b.Client = "client-" + string(rune('a'+id%5))
			_ = e.p.Process(context.Background(), b)
			b.Status = model.StatusWinner
			_ = e.p.Process(context.Background(), b)
		}(i)
	}
	wg.Wait()

	sum := e.p.Summary()
	assert.EqualValues(t, 2*n, sum.TotalProcessed)
	assert.Equal(t, "20000.00", sum.TotalAmount)
	assert.Equal(t, "20000.00", sum.TotalProfitOrLoss)
	assert.Len(t, sum.TopClientsByProfit, 5)
	assert.Equal(t, 0, e.tracker.InFlight())
}
