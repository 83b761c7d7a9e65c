package trader

import (
	"context"
	"time"

	"binance-signal-trader/internal/models"
)

// StatsDetail summarises realised results over one period.
type StatsDetail struct {
	TotalTrades      int64   `json:"total_trades"`
	ProfitableTrades int64   `json:"profitable_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalProfit      float64 `json:"total_profit"`
}

func (d *StatsDetail) add(pnl float64) {
	d.TotalTrades++
	if pnl > 0 {
		d.ProfitableTrades++
	}
	d.TotalProfit += pnl
}

func (d *StatsDetail) finish() {
	if d.TotalTrades > 0 {
		d.WinRate = float64(d.ProfitableTrades) / float64(d.TotalTrades)
	}
}

// Statistics is an owner's realised profit and loss.
type Statistics struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
	Open     int         `json:"open"`
}

// Statistics counts every trade with realised profit or loss. Recurring
// trades count once with their accumulated result.
func (s *Service) Statistics(ctx context.Context, owner string) (*Statistics, error) {
	trades, err := s.trades.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	since := s.engine.now().Add(-24 * time.Hour)
	stats := &Statistics{}
	for _, t := range trades {
		if !t.Status.Terminal() {
			stats.Open++
		}
		if t.ProfitLoss == nil {
			continue
		}
		stats.AllTime.add(*t.ProfitLoss)
		if lastClose(t).After(since) {
			stats.Since24h.add(*t.ProfitLoss)
		}
	}
	stats.AllTime.finish()
	stats.Since24h.finish()
	return stats, nil
}

func lastClose(t models.Trade) time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.UpdatedAt
}
