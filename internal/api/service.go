// Package api provides the HTTP handlers for submitting bets, reading the
// running summary and review archive, and triggering a graceful drain.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/bet-processor/internal/model"
	"github.com/atmx/bet-processor/internal/store"
)

// DefaultEnqueueTimeout bounds how long a submission waits for queue space.
const DefaultEnqueueTimeout = 2 * time.Second

// Pipeline is the subset of the ingestion pipeline the handlers drive.
type Pipeline interface {
	Submit(ctx context.Context, bet model.Bet) (bool, error)
	Summary() model.Summary
	Shutdown(ctx context.Context) (model.Summary, error)
}

// Service serves the bet ingestion API.
type Service struct {
	pipeline       Pipeline
	store          store.Store
	enqueueTimeout time.Duration
	onShutdown     func()
}

// NewService creates the API service. onShutdown, if non-nil, runs once the
// shutdown endpoint has drained the pipeline and written its response.
func NewService(p Pipeline, st store.Store, onShutdown func()) *Service {
	return &Service{
		pipeline:       p,
		store:          st,
		enqueueTimeout: DefaultEnqueueTimeout,
		onShutdown:     onShutdown,
	}
}

// SetEnqueueTimeout overrides DefaultEnqueueTimeout.
func (s *Service) SetEnqueueTimeout(d time.Duration) { s.enqueueTimeout = d }

// SubmitResponse is the JSON body returned from POST /bets.
type SubmitResponse struct {
	BetID  int          `json:"bet_id"`
	Status model.Status `json:"status"`
}

// SubmitBet handles POST /api/v1/bets
// Accepted bets are queued for asynchronous processing.
func (s *Service) SubmitBet(w http.ResponseWriter, r *http.Request) {
	var bet model.Bet
	if err := json.NewDecoder(r.Body).Decode(&bet); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := bet.Validate(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.enqueueTimeout)
	defer cancel()

	ok, err := s.pipeline.Submit(ctx, bet)
	switch {
	case err != nil:
		slog.Warn("bet rejected, queue full", "bet_id", bet.ID, "err", err)
		writeError(w, "queue full, retry later", http.StatusTooManyRequests)
		return
	case !ok:
		writeError(w, "service is shutting down", http.StatusTooManyRequests)
		return
	}

	w.Header().Set("Location", "/api/v1/bets/"+strconv.Itoa(bet.ID))
	writeJSON(w, http.StatusAccepted, SubmitResponse{BetID: bet.ID, Status: bet.Status})
}

// GetSummary handles GET /api/v1/summary
// Returns the live aggregates.
func (s *Service) GetSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Summary())
}

// GetLatestSummary handles GET /api/v1/summary/latest
// Returns the last snapshot written to the archive.
func (s *Service) GetLatestSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.store.LatestSummary(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "no summary snapshot yet", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load summary", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Shutdown handles POST /api/v1/shutdown
// Drains the pipeline and returns the final summary.
func (s *Service) Shutdown(w http.ResponseWriter, r *http.Request) {
	sum, err := s.pipeline.Shutdown(r.Context())
	if err != nil {
		slog.Error("shutdown did not finish", "err", err)
		writeError(w, "shutdown still draining", http.StatusServiceUnavailable)
		return
	}

	slog.Info("shutdown complete",
		"total_processed", sum.TotalProcessed,
		"total_amount", sum.TotalAmount,
		"total_profit_or_loss", sum.TotalProfitOrLoss,
	)
	writeJSON(w, http.StatusOK, sum)

	if s.onShutdown != nil {
		s.onShutdown()
	}
}

// ListReviews handles GET /api/v1/reviews
// Returns archived review entries, optionally capped by ?limit=N.
func (s *Service) ListReviews(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.store.ListReviews(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to list reviews", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.ReviewEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListClientSettlements handles GET /api/v1/clients/{client}/settlements
func (s *Service) ListClientSettlements(w http.ResponseWriter, r *http.Request) {
	client := chi.URLParam(r, "client")

	out, err := s.store.ListSettlementsByClient(r.Context(), client)
	if err != nil {
		writeError(w, "failed to list settlements", http.StatusInternalServerError)
		return
	}
	if out == nil {
		out = []model.Settlement{}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
