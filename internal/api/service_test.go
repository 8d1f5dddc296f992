package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/bet-processor/internal/api"
	"github.com/atmx/bet-processor/internal/model"
	"github.com/atmx/bet-processor/internal/pipeline"
	"github.com/atmx/bet-processor/internal/store"
)

// newTestEnv wires a live pipeline with no processing delay, an in-memory
// archive and a chi router.
func newTestEnv(t *testing.T) (*pipeline.Pipeline, *store.MemoryStore, chi.Router, *bool) {
	t.Helper()
	ms := store.NewMemoryStore()
	archiver := store.NewArchiver(ms, 64, nil)
	p := pipeline.New(pipeline.Config{Workers: 2, QueueCapacity: 16},
		pipeline.WithStore(ms), pipeline.WithObserver(archiver))
	p.Start(context.Background())

	stopped := false
	svc := api.NewService(p, ms, func() {
		stopped = true
		archiver.Close(context.Background())
	})
	t.Cleanup(func() {
		p.Shutdown(context.Background())
		archiver.Close(context.Background())
	})
	return p, ms, routes(svc), &stopped
}

func routes(svc *api.Service) chi.Router {
	r := chi.NewRouter()
	r.Post("/api/v1/bets", svc.SubmitBet)
	r.Get("/api/v1/summary", svc.GetSummary)
	r.Get("/api/v1/summary/latest", svc.GetLatestSummary)
	r.Post("/api/v1/shutdown", svc.Shutdown)
	r.Get("/api/v1/reviews", svc.ListReviews)
	r.Get("/api/v1/clients/{client}/settlements", svc.ListClientSettlements)
	return r
}

func do(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

// --- Submission ---

func TestSubmitBet_Accepted(t *testing.T) {
	_, _, router, _ := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/bets", model.Bet{
		ID: 7, Amount: 100, Odds: 2, Client: "c1", Status: model.StatusOpen,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "/api/v1/bets/7", w.Header().Get("Location"))

	resp := decode[api.SubmitResponse](t, w)
	assert.Equal(t, 7, resp.BetID)
	assert.Equal(t, model.StatusOpen, resp.Status)
}

func TestSubmitBet_InvalidBody(t *testing.T) {
	_, _, router, _ := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/bets", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitBet_Validation(t *testing.T) {
	_, _, router, _ := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown status", `{"id":1,"amount":10,"odds":2,"status":"PENDING"}`},
		{"missing status", `{"id":1,"amount":10,"odds":2}`},
		{"negative amount", `{"id":1,"amount":-1,"odds":2,"status":"OPEN"}`},
		{"odds below one", `{"id":1,"amount":10,"odds":0.5,"status":"OPEN"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/bets", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

type stubPipeline struct {
	ok  bool
	err error
}

func (s stubPipeline) Submit(context.Context, model.Bet) (bool, error) { return s.ok, s.err }
func (stubPipeline) Summary() model.Summary                            { return model.Summary{} }
func (s stubPipeline) Shutdown(ctx context.Context) (model.Summary, error) {
	if s.err != nil {
		return model.Summary{}, s.err
	}
	return model.Summary{}, nil
}

func TestSubmitBet_QueueFull(t *testing.T) {
	svc := api.NewService(stubPipeline{err: context.DeadlineExceeded}, store.NewMemoryStore(), nil)
	svc.SetEnqueueTimeout(10 * time.Millisecond)

	w := do(t, routes(svc), "POST", "/api/v1/bets", model.Bet{ID: 1, Status: model.StatusOpen})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSubmitBet_ShuttingDown(t *testing.T) {
	svc := api.NewService(stubPipeline{ok: false}, store.NewMemoryStore(), nil)

	w := do(t, routes(svc), "POST", "/api/v1/bets", model.Bet{ID: 1, Status: model.StatusOpen})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "shutting down")
}

// --- Shutdown and summary ---

func TestShutdown_ReturnsFinalSummary(t *testing.T) {
	_, ms, router, stopped := newTestEnv(t)

	require.Equal(t, http.StatusAccepted, do(t, router, "POST", "/api/v1/bets",
		model.Bet{ID: 1, Amount: 100, Odds: 2, Client: "c1", Status: model.StatusOpen}).Code)
	require.Equal(t, http.StatusAccepted, do(t, router, "POST", "/api/v1/bets",
		model.Bet{ID: 1, Amount: 100, Odds: 2, Client: "c1", Status: model.StatusWinner}).Code)
	require.Equal(t, http.StatusAccepted, do(t, router, "POST", "/api/v1/bets",
		model.Bet{ID: 2, Amount: 50, Odds: 3, Client: "c2", Status: model.StatusLoser}).Code)

	w := do(t, router, "POST", "/api/v1/shutdown", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, *stopped)

	sum := decode[model.Summary](t, w)
	assert.EqualValues(t, 3, sum.TotalProcessed)
	assert.Equal(t, "100.00", sum.TotalAmount)
	assert.Equal(t, "100.00", sum.TotalProfitOrLoss)
	assert.EqualValues(t, 1, sum.ReviewQueueSize)

	// The live summary is frozen after the drain.
	live := decode[model.Summary](t, do(t, router, "GET", "/api/v1/summary", nil))
	assert.Equal(t, sum, live)

	// Later submissions are refused.
	w = do(t, router, "POST", "/api/v1/bets", model.Bet{ID: 3, Status: model.StatusOpen})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	reviews := decode[[]model.ReviewEntry](t, do(t, router, "GET", "/api/v1/reviews", nil))
	require.Len(t, reviews, 1)
	assert.Equal(t, 2, reviews[0].BetID)
	assert.Equal(t, "first status must be OPEN", reviews[0].Reason)

	settled := decode[[]model.Settlement](t, do(t, router, "GET", "/api/v1/clients/c1/settlements", nil))
	require.Len(t, settled, 1)
	assert.Equal(t, 100.0, settled[0].PnL)

	latest := decode[model.Summary](t, do(t, router, "GET", "/api/v1/summary/latest", nil))
	assert.Equal(t, sum.TotalProcessed, latest.TotalProcessed)

	_, err := ms.LatestSummary(context.Background())
	assert.NoError(t, err)
}

func TestShutdown_ContextExpired(t *testing.T) {
	svc := api.NewService(stubPipeline{err: context.DeadlineExceeded}, store.NewMemoryStore(), nil)

	w := do(t, routes(svc), "POST", "/api/v1/shutdown", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetSummary_Empty(t *testing.T) {
	_, _, router, _ := newTestEnv(t)

	w := do(t, router, "GET", "/api/v1/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"total_processed": 0,
		"total_amount": "0.00",
		"total_profit_or_loss": "0.00",
		"top5_clients_by_profit": [],
		"top5_clients_by_loss": [],
		"review_queue_size": 0
	}`, w.Body.String())
}

func TestGetLatestSummary_NotFound(t *testing.T) {
	_, _, router, _ := newTestEnv(t)

	w := do(t, router, "GET", "/api/v1/summary/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListReviews_Limit(t *testing.T) {
	ms := store.NewMemoryStore()
	for i := 1; i <= 5; i++ {
		require.NoError(t, ms.InsertReview(context.Background(), &model.ReviewEntry{BetID: i}))
	}
	router := routes(api.NewService(stubPipeline{}, ms, nil))

	got := decode[[]model.ReviewEntry](t, do(t, router, "GET", "/api/v1/reviews?limit=2", nil))
	assert.Len(t, got, 2)

	w := do(t, router, "GET", "/api/v1/reviews?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListClientSettlements_Empty(t *testing.T) {
	router := routes(api.NewService(stubPipeline{}, store.NewMemoryStore(), nil))

	w := do(t, router, "GET", "/api/v1/clients/nobody/settlements", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestSubmitBet_Concurrent(t *testing.T) {
	p, _, router, _ := newTestEnv(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w := do(t, router, "POST", "/api/v1/bets", model.Bet{ID: id, Amount: 1, Odds: 2, Client: "c", Status: model.StatusOpen})
			assert.Equal(t, http.StatusAccepted, w.Code)
		}(i)
	}
	wg.Wait()

	sum, err := p.Shutdown(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 50, sum.TotalProcessed)
}
