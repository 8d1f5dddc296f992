// Package pipeline wires the queue, worker pool, processor and idle tracker
// into the ingestion service and implements the graceful drain.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atmx/bet-processor/internal/idle"
	"github.com/atmx/bet-processor/internal/metrics"
	"github.com/atmx/bet-processor/internal/model"
	"github.com/atmx/bet-processor/internal/processor"
	"github.com/atmx/bet-processor/internal/queue"
	"github.com/atmx/bet-processor/internal/review"
	"github.com/atmx/bet-processor/internal/stats"
	"github.com/atmx/bet-processor/internal/store"
	"github.com/atmx/bet-processor/internal/worker"
)

const storeWriteTimeout = 5 * time.Second

// Config sizes the pipeline.
type Config struct {
	Workers         int
	QueueCapacity   int
	ProcessingDelay time.Duration
	// SnapshotInterval saves a summary to the store periodically; zero disables.
	SnapshotInterval time.Duration
}

// Pipeline is the in-process bet ingestion service.
type Pipeline struct {
	queue   *queue.Queue
	pool    *worker.Pool
	proc    *processor.Processor
	tracker *idle.Tracker
	store   store.Store
	logger  *slog.Logger
	cfg     Config

	procOpts []processor.Option
	started  atomic.Bool

	shutdownOnce sync.Once
	drained      chan struct{}
	final        model.Summary
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore records summary snapshots and the final summary in st.
func WithStore(st store.Store) Option {
	return func(p *Pipeline) { p.store = st }
}

// WithObserver forwards processor notifications to o.
func WithObserver(o processor.Observer) Option {
	return func(p *Pipeline) { p.procOpts = append(p.procOpts, processor.WithObserver(o)) }
}

// WithSleeper replaces the processing-delay sleeper.
func WithSleeper(s processor.Sleeper) Option {
	return func(p *Pipeline) { p.procOpts = append(p.procOpts, processor.WithSleeper(s)) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New builds a pipeline. Call Start before submitting work.
func New(cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		queue:   queue.New(cfg.QueueCapacity),
		tracker: idle.NewTracker(),
		logger:  slog.Default(),
		cfg:     cfg,
		drained: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	procOpts := append([]processor.Option{
		processor.WithDelay(cfg.ProcessingDelay),
		processor.WithLogger(p.logger),
	}, p.procOpts...)
	p.proc = processor.New(stats.NewAggregator(), review.NewSink(), p.tracker, procOpts...)
	p.pool = worker.NewPool(p.queue, p.proc, p.tracker, cfg.Workers, p.logger)
	return p
}

// Start launches the worker pool. Cancelling ctx stops the workers without
// draining the queue.
func (p *Pipeline) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.pool.Start(ctx)
	p.logger.Info("pipeline started",
		"workers", p.pool.Size(),
		"queue_capacity", p.queue.Cap(),
		"processing_delay", p.cfg.ProcessingDelay.String(),
	)

	if p.store != nil && p.cfg.SnapshotInterval > 0 {
		go p.snapshotLoop(ctx)
	}
}

// Submit enqueues bet, waiting for space while the queue is full.
// It returns false if the pipeline is shutting down, and ctx.Err() if ctx
// ends before space frees up.
func (p *Pipeline) Submit(ctx context.Context, bet model.Bet) (bool, error) {
	ok, err := p.queue.Enqueue(ctx, bet)
	switch {
	case err != nil:
		metrics.EnqueueTotal.WithLabelValues(metrics.EnqueueTimeout).Inc()
	case !ok:
		metrics.EnqueueTotal.WithLabelValues(metrics.EnqueueClosed).Inc()
	default:
		metrics.EnqueueTotal.WithLabelValues(metrics.EnqueueAccepted).Inc()
		metrics.QueueDepth.Set(float64(p.queue.Len()))
	}
	return ok, err
}

// Summary returns the current aggregates. Safe to call at any time.
func (p *Pipeline) Summary() model.Summary {
	return p.proc.Summary()
}

// Reviews returns the review entries recorded so far.
func (p *Pipeline) Reviews() []model.ReviewEntry {
	return p.proc.Reviews()
}

// Shutdown stops admission, waits for buffered and in-flight bets to finish,
// and returns the final summary. Only the first call starts the drain; every
// call waits for it and returns the same summary. If ctx ends first the
// drain carries on in the background and ctx.Err() is returned.
func (p *Pipeline) Shutdown(ctx context.Context) (model.Summary, error) {
	p.shutdownOnce.Do(func() {
		p.logger.Info("pipeline shutdown requested", "buffered", p.queue.Len())
		go p.drain()
	})

	select {
	case <-p.drained:
		return p.final, nil
	case <-ctx.Done():
		return model.Summary{}, ctx.Err()
	}
}

// drain runs the shutdown ordering: close the queue, let the workers empty
// it, wait for the idle signal, then read the summary.
func (p *Pipeline) drain() {
	p.queue.Close()
	if p.started.Load() {
		<-p.pool.Done()
	}
	p.tracker.ForceIdleIfZero()
	<-p.tracker.Done()

	p.final = p.proc.Summary()
	p.saveSnapshot(p.final)
	p.logger.Info("pipeline drained",
		"total_processed", p.final.TotalProcessed,
		"review_queue_size", p.final.ReviewQueueSize,
	)
	close(p.drained)
}

func (p *Pipeline) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.drained:
			return
		case <-ticker.C:
			p.saveSnapshot(p.proc.Summary())
		}
	}
}

func (p *Pipeline) saveSnapshot(sum model.Summary) {
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()
	if err := p.store.SaveSummary(ctx, &sum); err != nil {
		metrics.ArchiveErrors.WithLabelValues("save_summary").Inc()
		p.logger.Error("summary snapshot failed", "err", err)
	}
}
