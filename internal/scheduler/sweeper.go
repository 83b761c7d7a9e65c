package scheduler

import (
	"context"
	"errors"
	"sync"

	"binance-signal-trader/internal/models"
	"binance-signal-trader/internal/repository"
	"binance-signal-trader/internal/trader"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SweepReport counts what one sweep did.
type SweepReport struct {
	TradesProcessed int                    `json:"trades_processed"`
	Outcomes        map[trader.Outcome]int `json:"outcomes"`
	Errors          int                    `json:"errors"`
}

// Sweeper advances every open trade by one step.
type Sweeper struct {
	logger  *zap.Logger
	engine  Engine
	trades  TradeRepository
	workers int
}

// NewSweeper creates a sweeper running at most workers steps at once.
func NewSweeper(logger *zap.Logger, engine Engine, trades TradeRepository, workers int) *Sweeper {
	if workers < 1 {
		workers = 1
	}
	return &Sweeper{
		logger:  logger.Named("sweeper"),
		engine:  engine,
		trades:  trades,
		workers: workers,
	}
}

// SweepLifecycle loads the open trades and steps each one. A failing trade
// never stops the others. Cancelling ctx stops new steps from starting;
// steps already committed stay committed.
func (s *Sweeper) SweepLifecycle(ctx context.Context) (*SweepReport, error) {
	trades, err := s.trades.ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Outcomes: make(map[trader.Outcome]int)}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(s.workers)

	for i := range trades {
		if ctx.Err() != nil {
			break
		}
		t := &trades[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcome, err := s.engine.Step(ctx, t)

			mu.Lock()
			defer mu.Unlock()
			report.TradesProcessed++
			report.Outcomes[outcome]++
			if err != nil {
				report.Errors++
				s.logStepError(t, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("Lifecycle sweep finished",
		zap.Int("open", len(trades)),
		zap.Int("processed", report.TradesProcessed),
		zap.Int("errors", report.Errors),
	)
	return report, ctx.Err()
}

func (s *Sweeper) logStepError(t *models.Trade, err error) {
	l := s.logger.With(zap.Uint("trade_id", t.ID), zap.String("pair", t.Pair))
	var partial *trader.PartialSuccessError
	switch {
	case errors.As(err, &partial):
		l.Error("Order executed but trade update failed", zap.Error(err))
	case errors.Is(err, repository.ErrStaleTrade):
		l.Debug("Trade claimed by another worker")
	case errors.Is(err, trader.ErrCredentialsNotFound), errors.Is(err, trader.ErrCredentialsRejected):
		l.Warn("Skipping trade, owner credentials unusable", zap.Error(err))
	default:
		l.Error("Trade step failed", zap.Error(err))
	}
}
