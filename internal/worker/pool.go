// Package worker runs the loops that drain the bet queue into the processor.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/atmx/bet-processor/internal/metrics"
	"github.com/atmx/bet-processor/internal/model"
	"github.com/atmx/bet-processor/internal/queue"
)

// Handler processes one bet.
type Handler interface {
	Process(ctx context.Context, bet model.Bet) error
}

// Idler is told when a loop exits so a drain waiter is never left hanging
// on a signal that no in-flight work will resolve.
type Idler interface {
	ForceIdleIfZero()
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	BetID int
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker: panic processing bet %d: %v", e.BetID, e.Value)
}

// Pool runs a fixed number of independent loops over a shared queue.
type Pool struct {
	queue   *queue.Queue
	handler Handler
	idler   Idler
	size    int
	logger  *slog.Logger

	wg      sync.WaitGroup
	started sync.Once
	done    chan struct{}
}

// NewPool creates a pool of size loops. size < 1 is treated as 1.
// logger may be nil.
func NewPool(q *queue.Queue, h Handler, idler Idler, size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:   q,
		handler: h,
		idler:   idler,
		size:    size,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start launches the loops. They run until the queue is closed and drained
// or ctx ends. Calling Start again has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.started.Do(func() {
		for i := 0; i < p.size; i++ {
			p.wg.Add(1)
			go p.run(ctx, i)
		}
		go func() {
			p.wg.Wait()
			close(p.done)
		}()
	})
}

// Done is closed once every loop has exited.
func (p *Pool) Done() <-chan struct{} { return p.done }

// Wait blocks until every loop exits or ctx ends.
func (p *Pool) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Size returns the number of loops.
func (p *Pool) Size() int { return p.size }

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	// Each bet's End has already happened by the time the loop returns, so
	// this only fires the signal when nothing is left in flight.
	defer p.idler.ForceIdleIfZero()

	log := p.logger.With("worker", id)
	for {
		bet, ok, err := p.queue.Dequeue(ctx)
		if err != nil {
			log.Info("worker canceled", "err", err)
			return
		}
		if !ok {
			log.Info("worker stopped, queue drained")
			return
		}
		metrics.QueueDepth.Set(float64(p.queue.Len()))

		if err := p.processOne(ctx, bet); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				log.Info("worker canceled mid-bet", "bet_id", bet.ID, "err", err)
				return
			}
			metrics.WorkerFaults.Inc()
			log.Error("bet processing failed", "bet_id", bet.ID, "err", err)
		}
	}
}

// processOne confines a handler panic to the current bet.
func (p *Pool) processOne(ctx context.Context, bet model.Bet) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{BetID: bet.ID, Value: r}
		}
	}()
	return p.handler.Process(ctx, bet)
}
