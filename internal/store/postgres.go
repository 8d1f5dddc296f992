package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/bet-processor/internal/model"
)

// Schema creates the archive tables. Monetary columns are NUMERIC.
const Schema = `
CREATE TABLE IF NOT EXISTS review_entries (
	id              TEXT PRIMARY KEY,
	bet_id          INTEGER NOT NULL,
	received_status TEXT NOT NULL,
	reason          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS settlements (
	bet_id     INTEGER NOT NULL,
	client     TEXT NOT NULL,
	status     TEXT NOT NULL,
	amount     NUMERIC NOT NULL,
	odds       NUMERIC NOT NULL,
	pnl        NUMERIC NOT NULL,
	settled_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS settlements_client_idx ON settlements (client);
CREATE TABLE IF NOT EXISTS summary_snapshots (
	id       BIGSERIAL PRIMARY KEY,
	taken_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	body     JSONB NOT NULL
);`

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the archive tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertReview(ctx context.Context, e *model.ReviewEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO review_entries (id, bet_id, received_status, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.BetID, string(e.ReceivedStatus), e.Reason, e.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListReviews(ctx context.Context, limit int) ([]model.ReviewEntry, error) {
	query := `SELECT id, bet_id, received_status, reason, created_at
		 FROM review_entries ORDER BY created_at`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.ReviewEntry
	for rows.Next() {
		var e model.ReviewEntry
		var status string
		if err := rows.Scan(&e.ID, &e.BetID, &status, &e.Reason, &e.Timestamp); err != nil {
			return nil, err
		}
		e.ReceivedStatus = model.Status(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) InsertSettlement(ctx context.Context, st *model.Settlement) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settlements (bet_id, client, status, amount, odds, pnl, settled_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7)`,
		st.BetID, st.Client, string(st.Status),
		decimal.NewFromFloat(st.Amount).String(),
		decimal.NewFromFloat(st.Odds).String(),
		decimal.NewFromFloat(st.PnL).String(),
		st.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListSettlementsByClient(ctx context.Context, client string) ([]model.Settlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT bet_id, client, status, amount::TEXT, odds::TEXT, pnl::TEXT, settled_at
		 FROM settlements WHERE client = $1 ORDER BY settled_at`, client)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSettlements(rows)
}

func (s *PostgresStore) SaveSummary(ctx context.Context, sum *model.Summary) error {
	body, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO summary_snapshots (body) VALUES ($1::JSONB)`, string(body))
	return err
}

func (s *PostgresStore) LatestSummary(ctx context.Context) (*model.Summary, error) {
	var body string
	err := s.pool.QueryRow(ctx,
		`SELECT body::TEXT FROM summary_snapshots ORDER BY id DESC LIMIT 1`).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest summary: %w", err)
	}

	var sum model.Summary
	if err := json.Unmarshal([]byte(body), &sum); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &sum, nil
}

// scanSettlements reads pgx rows into Settlement slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanSettlements(rows pgxRows) ([]model.Settlement, error) {
	var out []model.Settlement
	for rows.Next() {
		var st model.Settlement
		var status, amountS, oddsS, pnlS string

		if err := rows.Scan(&st.BetID, &st.Client, &status,
			&amountS, &oddsS, &pnlS, &st.Timestamp); err != nil {
			return nil, err
		}

		st.Status = model.Status(status)
		st.Amount = parseNumeric(amountS)
		st.Odds = parseNumeric(oddsS)
		st.PnL = parseNumeric(pnlS)

		out = append(out, st)
	}
	return out, rows.Err()
}

func parseNumeric(s string) float64 {
	d, _ := decimal.NewFromString(s)
	return d.InexactFloat64()
}
