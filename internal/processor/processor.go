// Package processor applies bet updates to the per-bet state machine and
// feeds the aggregates and review sink.
//
// Each bet id moves Unknown -> Open -> Settled. The first accepted update
// must be OPEN; an OPEN bet may settle once as WINNER, LOSER or VOID. Every
// other update is recorded for review and leaves the ledger untouched.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atmx/bet-processor/internal/idle"
	"github.com/atmx/bet-processor/internal/metrics"
	"github.com/atmx/bet-processor/internal/model"
	"github.com/atmx/bet-processor/internal/review"
	"github.com/atmx/bet-processor/internal/stats"
)

// ReasonFirstNotOpen is recorded when a bet's first update is not OPEN.
const ReasonFirstNotOpen = "first status must be OPEN"

// Sleeper waits for d or until ctx ends, returning ctx.Err() in that case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer is notified of accepted settlements and review entries.
// Implementations must not block.
type Observer interface {
	Settled(bet model.Bet, pnl float64)
	Reviewed(entry model.ReviewEntry)
}

// Processor owns the ledger and drives one bet at a time through it.
// It is safe for concurrent use by many workers.
type Processor struct {
	ledger    ledger
	stats     *stats.Aggregator
	review    *review.Sink
	tracker   *idle.Tracker
	delay     time.Duration
	sleep     Sleeper
	observers []Observer
	logger    *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithDelay injects a simulated per-bet delay before the state check.
func WithDelay(d time.Duration) Option {
	return func(p *Processor) { p.delay = d }
}

// WithSleeper replaces the timer-based sleeper, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(p *Processor) { p.sleep = s }
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(p *Processor) { p.observers = append(p.observers, o) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// New creates a processor over the given aggregator, review sink and tracker.
func New(agg *stats.Aggregator, sink *review.Sink, tracker *idle.Tracker, opts ...Option) *Processor {
	p := &Processor{
		stats:   agg,
		review:  sink,
		tracker: tracker,
		sleep:   SleepContext,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process applies one bet. The tracker sees exactly one Begin and one End
// per call, including when the delay is cancelled or the evaluation panics.
// A cancelled delay returns the context error and records nothing.
func (p *Processor) Process(ctx context.Context, bet model.Bet) error {
	p.tracker.Begin()
	metrics.InFlight.Inc()
	start := time.Now()
	defer func() {
		metrics.InFlight.Dec()
		metrics.ProcessingLatency.Observe(time.Since(start).Seconds())
		p.tracker.End()
	}()

	if err := p.sleep(ctx, p.delay); err != nil {
		return fmt.Errorf("process bet %d: %w", bet.ID, err)
	}

	p.apply(bet)
	return nil
}

func (p *Processor) apply(bet model.Bet) {
	defer p.stats.RecordProcessed()

	prev, known := p.ledger.get(bet.ID)
	switch {
	case !known && bet.Status == model.StatusOpen:
		p.ledger.set(bet.ID, bet.Status)
		metrics.ProcessedTotal.WithLabelValues(string(bet.Status), "accepted").Inc()

	case !known:
		p.reject(bet, ReasonFirstNotOpen)

	case prev == model.StatusOpen && bet.Status.Terminal():
		p.ledger.set(bet.ID, bet.Status)
		pnl := PnL(bet)
		p.stats.RecordSettlement(bet.Client, bet.Amount, pnl)
		metrics.ProcessedTotal.WithLabelValues(string(bet.Status), "accepted").Inc()
		for _, o := range p.observers {
			o.Settled(bet, pnl)
		}

	default:
		p.reject(bet, fmt.Sprintf("invalid transition from %s to %s", prev, bet.Status))
	}
}

func (p *Processor) reject(bet model.Bet, reason string) {
	entry := p.review.Append(bet.ID, bet.Status, reason)
	metrics.ProcessedTotal.WithLabelValues(string(bet.Status), "review").Inc()
	p.logger.Debug("bet sent to review", "bet_id", bet.ID, "status", bet.Status, "reason", reason)
	for _, o := range p.observers {
		o.Reviewed(entry)
	}
}

// PnL returns the client's realised profit or loss for a settling bet:
// amount*(odds-1) for WINNER, -amount for LOSER, zero otherwise.
func PnL(bet model.Bet) float64 {
	switch bet.Status {
	case model.StatusWinner:
		return bet.Amount * (bet.Odds - 1)
	case model.StatusLoser:
		return -bet.Amount
	default:
		return 0
	}
}

// Summary returns the current aggregate view.
func (p *Processor) Summary() model.Summary {
	return p.stats.Summary(p.review.Len())
}

// Reviews returns every review entry recorded so far.
func (p *Processor) Reviews() []model.ReviewEntry {
	return p.review.Entries()
}

// SleepContext waits for d, failing fast with ctx.Err() if ctx ends first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
