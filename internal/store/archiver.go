package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/atmx/bet-processor/internal/metrics"
	"github.com/atmx/bet-processor/internal/model"
)

const archiveWriteTimeout = 5 * time.Second

type archiveOp struct {
	name string
	fn   func(ctx context.Context) error
}

// Archiver forwards processor notifications to a Store from a single
// background goroutine. Notifications never block the caller: when the
// buffer is full they are dropped and counted.
type Archiver struct {
	store  Store
	ops    chan archiveOp
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewArchiver starts an archiver with the given buffer size. logger may be nil.
func NewArchiver(st Store, buffer int, logger *slog.Logger) *Archiver {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Archiver{
		store:  st,
		ops:    make(chan archiveOp, buffer),
		logger: logger,
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Settled archives an accepted settlement.
func (a *Archiver) Settled(bet model.Bet, pnl float64) {
	st := &model.Settlement{
		BetID:     bet.ID,
		Client:    bet.Client,
		Status:    bet.Status,
		Amount:    bet.Amount,
		Odds:      bet.Odds,
		PnL:       pnl,
		Timestamp: time.Now().UTC(),
	}
	a.submit(archiveOp{name: "insert_settlement", fn: func(ctx context.Context) error {
		return a.store.InsertSettlement(ctx, st)
	}})
}

// Reviewed archives a review entry.
func (a *Archiver) Reviewed(entry model.ReviewEntry) {
	a.submit(archiveOp{name: "insert_review", fn: func(ctx context.Context) error {
		return a.store.InsertReview(ctx, &entry)
	}})
}

func (a *Archiver) submit(op archiveOp) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		metrics.ArchiveDropped.Inc()
		return
	}
	select {
	case a.ops <- op:
	default:
		metrics.ArchiveDropped.Inc()
	}
}

func (a *Archiver) run() {
	defer close(a.done)
	for op := range a.ops {
		ctx, cancel := context.WithTimeout(context.Background(), archiveWriteTimeout)
		if err := op.fn(ctx); err != nil {
			metrics.ArchiveErrors.WithLabelValues(op.name).Inc()
			a.logger.Error("archive write failed", "op", op.name, "err", err)
		}
		cancel()
	}
}

// Close stops accepting notifications and waits for buffered writes to
// finish or ctx to end.
func (a *Archiver) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ops)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
