// Package seed generates the deterministic demo data set enqueued at startup.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/atmx/bet-processor/internal/model"
)

const (
	// Seed fixes the generator so every run produces the same bets.
	Seed = 42

	// Malformed is the number of settlements for ids that never opened.
	// Kept even so the data set totals TotalBets.
	Malformed = 2

	// TotalBets is the size of the generated data set.
	TotalBets = 100

	// BadClient owns the malformed settlements.
	BadClient = "client-bad"
)

var selections = []string{"HOME", "AWAY", "DRAW"}

var settling = []model.Status{model.StatusWinner, model.StatusLoser, model.StatusVoid}

// Submitter accepts bets for processing.
type Submitter interface {
	Submit(ctx context.Context, bet model.Bet) (bool, error)
}

// Bets returns the demo data set: an OPEN update for each of
// (TotalBets-Malformed)/2 ids, a settlement for each of those ids in the
// same order, then Malformed settlements for ids 1000-1999 that were never
// opened and therefore land in review.
func Bets() []model.Bet {
	rnd := rand.New(rand.NewSource(Seed))
	pairs := (TotalBets - Malformed) / 2

	out := make([]model.Bet, 0, TotalBets)
	for id := 1; id <= pairs; id++ {
		out = append(out, model.Bet{
			ID:        id,
			Amount:    round2(float64(5+rnd.Intn(195)) + rnd.Float64()),
			Odds:      round2(1.1 + rnd.Float64()*5.0),
			Client:    fmt.Sprintf("client-%d", 1+rnd.Intn(14)),
			Event:     fmt.Sprintf("event-%d", 1+rnd.Intn(9)),
			Market:    fmt.Sprintf("market-%d", 1+rnd.Intn(9)),
			Selection: selections[rnd.Intn(len(selections))],
			Status:    model.StatusOpen,
		})
	}

	for i := 0; i < pairs; i++ {
		closing := out[i]
		closing.Status = settling[rnd.Intn(len(settling))]
		out = append(out, closing)
	}

	for i := 0; i < Malformed; i++ {
		out = append(out, model.Bet{
			ID:        1000 + rnd.Intn(1000),
			Amount:    50,
			Odds:      2.0,
			Client:    BadClient,
			Event:     fmt.Sprintf("event-%d", 1+rnd.Intn(9)),
			Market:    fmt.Sprintf("market-%d", 1+rnd.Intn(9)),
			Selection: selections[rnd.Intn(len(selections))],
			Status:    settling[rnd.Intn(len(settling))],
		})
	}
	return out
}

// Run submits the demo data set in order and returns how many bets were
// accepted. It stops early if the submitter is closed or ctx ends.
func Run(ctx context.Context, s Submitter, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	accepted := 0
	for _, bet := range Bets() {
		ok, err := s.Submit(ctx, bet)
		if err != nil {
			return accepted, fmt.Errorf("seed bet %d: %w", bet.ID, err)
		}
		if !ok {
			logger.Warn("seeding stopped, pipeline closed", "accepted", accepted)
			return accepted, nil
		}
		accepted++
	}

	logger.Info("seed data enqueued", "bets", accepted)
	return accepted, nil
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
