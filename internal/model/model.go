// Package model defines the core domain types shared across the bet processor.
// Amounts and odds travel as float64; summaries render money with
// shopspring/decimal at two decimal places.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle status carried by a bet update.
type Status string

// Supported bet statuses.
const (
	StatusOpen   Status = "OPEN"
	StatusWinner Status = "WINNER"
	StatusLoser  Status = "LOSER"
	StatusVoid   Status = "VOID"
)

var validStatuses = map[Status]bool{
	StatusOpen:   true,
	StatusWinner: true,
	StatusLoser:  true,
	StatusVoid:   true,
}

var (
	ErrInvalidStatus = errors.New("model: unsupported bet status")
	ErrInvalidAmount = errors.New("model: amount must be non-negative")
	ErrInvalidOdds   = errors.New("model: odds must be at least 1.0")
)

// Valid reports whether s is one of the supported statuses.
func (s Status) Valid() bool { return validStatuses[s] }

// Terminal reports whether s settles a bet.
func (s Status) Terminal() bool {
	return s == StatusWinner || s == StatusLoser || s == StatusVoid
}

// Bet is an immutable update event for one wagering ticket.
// The event/market/selection descriptors are opaque to processing.
type Bet struct {
	ID        int     `json:"id"`
	Amount    float64 `json:"amount"`
	Odds      float64 `json:"odds"`
	Client    string  `json:"client"`
	Event     string  `json:"event"`
	Market    string  `json:"market"`
	Selection string  `json:"selection"`
	Status    Status  `json:"status"`
}

// Validate checks the fields a transport layer can reject up front.
// Odds of zero are tolerated for OPEN updates that carry no price yet.
func (b Bet) Validate() error {
	if !b.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, b.Status)
	}
	if b.Amount < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, b.Amount)
	}
	if b.Odds != 0 && b.Odds < 1 {
		return fmt.Errorf("%w: %v", ErrInvalidOdds, b.Odds)
	}
	return nil
}

// ReviewEntry records an update that failed the transition check.
// Entries are append-only and never mutated after creation.
type ReviewEntry struct {
	ID             string    `json:"id"`
	BetID          int       `json:"bet_id"`
	ReceivedStatus Status    `json:"received_status"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}

// ClientAmount is one row of a top-N client ranking.
type ClientAmount struct {
	Client string          `json:"client"`
	Amount decimal.Decimal `json:"amount"`
}

// Summary is a point-in-time view of the aggregates. Each field is read
// atomically on its own; the struct as a whole is not a global snapshot.
type Summary struct {
	TotalProcessed     int64          `json:"total_processed"`
	TotalAmount        string         `json:"total_amount"`
	TotalProfitOrLoss  string         `json:"total_profit_or_loss"`
	TopClientsByProfit []ClientAmount `json:"top5_clients_by_profit"`
	TopClientsByLoss   []ClientAmount `json:"top5_clients_by_loss"`
	ReviewQueueSize    int            `json:"review_queue_size"`
}

// Settlement is an immutable record of an accepted settling update.
type Settlement struct {
	BetID     int       `json:"bet_id"`
	Client    string    `json:"client"`
	Status    Status    `json:"status"`
	Amount    float64   `json:"amount"`
	Odds      float64   `json:"odds"`
	PnL       float64   `json:"pnl"`
	Timestamp time.Time `json:"timestamp"`
}
