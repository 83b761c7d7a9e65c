package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"binance-signal-trader/internal/models"
	"binance-signal-trader/internal/repository"
	"go.uber.org/zap"
)

// ConfigGetter returns an owner's defaults for a strategy.
type ConfigGetter interface {
	Get(ctx context.Context, owner string, strategy models.StrategyKind) (*models.StrategyConfig, error)
}

// Selection is one pair an owner picked from a scan. Zero sizing fields use
// the owner's pump config.
type Selection struct {
	Pair                 string  `json:"pair" validate:"required,alphanum,min=5,max=20"`
	QuoteAmount          float64 `json:"quote_amount,omitempty" validate:"gte=0"`
	TakeProfitPercentage float64 `json:"take_profit_percentage,omitempty" validate:"gte=0,lt=1000"`
}

// BulkInitiator opens pump trades for pairs an owner selected, provided the
// momentum rule still holds.
type BulkInitiator struct {
	logger   *zap.Logger
	engine   Engine
	trades   TradeRepository
	configs  ConfigGetter
	strategy models.StrategyKind
	defaults models.StrategyConfig
}

// NewBulkInitiator creates a bulk initiator for the scanner's strategy.
func NewBulkInitiator(logger *zap.Logger, scanner *Scanner, configs ConfigGetter, defaultQuote, defaultTakeProfit float64) *BulkInitiator {
	return &BulkInitiator{
		logger:   logger.Named("bulk"),
		engine:   scanner.engine,
		trades:   scanner.trades,
		configs:  configs,
		strategy: scanner.strategy(),
		defaults: models.StrategyConfig{QuoteAmount: defaultQuote, TakeProfitPercentage: defaultTakeProfit},
	}
}

// BulkInitiate re-checks every selection against live market data before
// committing it. A selection that no longer passes is skipped with no record.
func (b *BulkInitiator) BulkInitiate(ctx context.Context, owner string, selections []Selection) ([]CandidateResult, error) {
	cfg, err := b.configs.Get(ctx, owner, b.strategy)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		d := b.defaults
		cfg = &d
	case err != nil:
		return nil, err
	}
	cfg.OwnerID, cfg.Strategy = owner, b.strategy

	results := make([]CandidateResult, 0, len(selections))
	for _, sel := range selections {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, b.initiate(ctx, *cfg, sel))
	}
	return results, nil
}

func (b *BulkInitiator) initiate(ctx context.Context, cfg models.StrategyConfig, sel Selection) CandidateResult {
	pair := strings.ToUpper(strings.TrimSpace(sel.Pair))
	res := CandidateResult{OwnerID: cfg.OwnerID, Pair: pair}

	if sel.QuoteAmount > 0 {
		cfg.QuoteAmount = sel.QuoteAmount
	}
	if sel.TakeProfitPercentage > 0 {
		cfg.TakeProfitPercentage = sel.TakeProfitPercentage
	}
	if pair == "" || cfg.QuoteAmount <= 0 || cfg.TakeProfitPercentage <= 0 {
		res.Status, res.Error = ResultError, fmt.Sprintf("invalid selection %q", sel.Pair)
		return res
	}

	open, err := b.trades.HasOpen(ctx, cfg.OwnerID, pair, cfg.Strategy)
	if err != nil {
		res.Status, res.Error = ResultError, err.Error()
		return res
	}
	if open {
		res.Status, res.Rationale = ResultSkipped, "open trade already exists"
		return res
	}

	t := newTrade(&cfg, pair)
	decision, err := b.engine.EvaluateEntry(ctx, t)
	if err != nil {
		res.Status, res.Error = ResultError, err.Error()
		return res
	}
	res.Rationale = decision.Rationale
	if !decision.Fire {
		b.logger.Info("Selection went stale", zap.String("pair", pair), zap.String("rationale", decision.Rationale))
		res.Status = ResultSkipped
		return res
	}

	t.EntryRationale = decision.Rationale
	if err := b.trades.Create(ctx, t); err != nil {
		res.Status, res.Error = ResultError, err.Error()
		return res
	}
	res.TradeID = t.ID
	return enter(ctx, b.engine, t, decision.Rationale, res)
}
