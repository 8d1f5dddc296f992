package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/bet-processor/internal/api"
	"github.com/atmx/bet-processor/internal/config"
	"github.com/atmx/bet-processor/internal/metrics"
	"github.com/atmx/bet-processor/internal/pipeline"
	"github.com/atmx/bet-processor/internal/seed"
	"github.com/atmx/bet-processor/internal/store"
)

const (
	archiveBuffer = 4096
	drainTimeout  = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// --- Initialize archive store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.SummaryTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory archive (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// --- Notifications ---
	archiver := store.NewArchiver(st, archiveBuffer, logger)
	wsHub := api.NewWSHub()
	go wsHub.Run(rootCtx)

	// --- Pipeline ---
	pipe := pipeline.New(pipeline.Config{
		Workers:          cfg.WorkerCount,
		QueueCapacity:    cfg.QueueCapacity,
		ProcessingDelay:  cfg.ProcessingDelay(),
		SnapshotInterval: cfg.SnapshotInterval,
	},
		pipeline.WithStore(st),
		pipeline.WithObserver(archiver),
		pipeline.WithObserver(wsHub),
		pipeline.WithLogger(logger),
	)
	pipe.Start(rootCtx)

	if cfg.SeedData {
		go func() {
			if _, err := seed.Run(rootCtx, pipe, logger); err != nil {
				slog.Error("seeding failed", "err", err)
			}
		}()
	}

	// Either a signal or POST /shutdown stops the process.
	stop := make(chan struct{})
	var stopOnce sync.Once
	requestStop := func() { stopOnce.Do(func() { close(stop) }) }

	svc := api.NewService(pipe, st, requestStop)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(drainTimeout))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"bet-processor"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket feed of settlements and review entries.
		r.Get("/ws", wsHub.HandleWS)

		r.Post("/bets", svc.SubmitBet)
		r.Get("/summary", svc.GetSummary)
		r.Get("/summary/latest", svc.GetLatestSummary)
		r.Post("/shutdown", svc.Shutdown)
		r.Get("/reviews", svc.ListReviews)
		r.Get("/clients/{client}/settlements", svc.ListClientSettlements)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: drainTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("bet-processor listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-stop:
	}

	slog.Info("shutting down bet-processor...")
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if sum, err := pipe.Shutdown(ctx); err != nil {
		slog.Error("pipeline drain timed out", "err", err)
	} else {
		slog.Info("final summary",
			"total_processed", sum.TotalProcessed,
			"total_amount", sum.TotalAmount,
			"total_profit_or_loss", sum.TotalProfitOrLoss,
			"review_queue_size", sum.ReviewQueueSize,
		)
	}
	cancelRoot()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if err := archiver.Close(ctx); err != nil {
		slog.Error("archive flush incomplete", "err", err)
	}
	fmt.Println("bet-processor stopped")
}
