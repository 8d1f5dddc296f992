// Package stats holds the global and per-client accumulators updated by the
// processor. All updates are lock-free; unrelated clients never contend.
package stats

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/atmx/bet-processor/internal/model"
)

// TopN is the length of the client rankings in a summary.
const TopN = 5

// ClientStats accumulates realised profit and loss for one client.
// Both totals are non-negative running sums.
type ClientStats struct {
	seq    int64
	profit Float64
	loss   Float64
}

// AddProfit adds a non-negative profit.
func (c *ClientStats) AddProfit(v float64) { c.profit.Add(v) }

// AddLoss adds a non-negative loss.
func (c *ClientStats) AddLoss(v float64) { c.loss.Add(v) }

// Profit returns the total profit.
func (c *ClientStats) Profit() float64 { return c.profit.Load() }

// Loss returns the total loss.
func (c *ClientStats) Loss() float64 { return c.loss.Load() }

// Aggregator tracks process-lifetime totals.
type Aggregator struct {
	processed atomic.Int64
	amount    Float64
	pnl       Float64

	clients   sync.Map // string -> *ClientStats
	clientSeq atomic.Int64
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// RecordProcessed counts one processed bet, accepted or rejected.
func (a *Aggregator) RecordProcessed() {
	a.processed.Add(1)
}

// RecordSettlement adds an accepted settlement's amount and pnl to the
// global totals and to the client's accumulator. A non-negative pnl counts as
// profit, a negative one as loss.
func (a *Aggregator) RecordSettlement(client string, amount, pnl float64) {
	a.amount.Add(amount)
	a.pnl.Add(pnl)

	cs := a.client(client)
	if pnl >= 0 {
		cs.AddProfit(pnl)
	} else {
		cs.AddLoss(-pnl)
	}
}

// client returns the accumulator for id, creating it on first use.
func (a *Aggregator) client(id string) *ClientStats {
	if v, ok := a.clients.Load(id); ok {
		return v.(*ClientStats)
	}
	fresh := &ClientStats{seq: a.clientSeq.Add(1)}
	v, _ := a.clients.LoadOrStore(id, fresh)
	return v.(*ClientStats)
}

// Client returns the accumulator for id, if any settlement has been recorded.
func (a *Aggregator) Client(id string) (*ClientStats, bool) {
	v, ok := a.clients.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*ClientStats), true
}

// Processed returns the processed count.
func (a *Aggregator) Processed() int64 { return a.processed.Load() }

// TotalAmount returns the total settled amount.
func (a *Aggregator) TotalAmount() float64 { return a.amount.Load() }

// TotalPnL returns the signed total profit or loss.
func (a *Aggregator) TotalPnL() float64 { return a.pnl.Load() }

type ranked struct {
	client string
	seq    int64
	value  float64
}

// TopByProfit returns up to n clients ordered by profit, highest first.
// Ties keep the order in which clients first settled.
func (a *Aggregator) TopByProfit(n int) []model.ClientAmount {
	return a.top(n, (*ClientStats).Profit)
}

// TopByLoss returns up to n clients ordered by loss, highest first.
// Ties keep the order in which clients first settled.
func (a *Aggregator) TopByLoss(n int) []model.ClientAmount {
	return a.top(n, (*ClientStats).Loss)
}

func (a *Aggregator) top(n int, value func(*ClientStats) float64) []model.ClientAmount {
	var rows []ranked
	a.clients.Range(func(k, v any) bool {
		cs := v.(*ClientStats)
		rows = append(rows, ranked{client: k.(string), seq: cs.seq, value: value(cs)})
		return true
	})

	slices.SortFunc(rows, func(x, y ranked) int {
		if c := cmp.Compare(y.value, x.value); c != 0 {
			return c
		}
		return cmp.Compare(x.seq, y.seq)
	})

	if len(rows) > n {
		rows = rows[:n]
	}
	out := make([]model.ClientAmount, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ClientAmount{Client: r.client, Amount: money(r.value)})
	}
	return out
}

// Summary renders the current totals. reviewSize is supplied by the caller
// since review entries live outside the aggregator.
func (a *Aggregator) Summary(reviewSize int) model.Summary {
	return model.Summary{
		TotalProcessed:     a.Processed(),
		TotalAmount:        money(a.TotalAmount()).StringFixed(2),
		TotalProfitOrLoss:  money(a.TotalPnL()).StringFixed(2),
		TopClientsByProfit: a.TopByProfit(TopN),
		TopClientsByLoss:   a.TopByLoss(TopN),
		ReviewQueueSize:    reviewSize,
	}
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
