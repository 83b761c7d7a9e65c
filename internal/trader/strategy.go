package trader

import (
	"context"
	"fmt"

	"binance-signal-trader/internal/config"
	"binance-signal-trader/internal/indicator"
	"binance-signal-trader/internal/models"
	"binance-signal-trader/internal/signal"
	"go.uber.org/zap"
)

// CandleSource provides candle series, oldest first.
type CandleSource interface {
	Series(ctx context.Context, symbol string, n int) ([]indicator.Candle, error)
	Minutes(ctx context.Context, symbol string, n int) ([]indicator.Candle, error)
	Klines(ctx context.Context, symbol, interval string, n int) ([]indicator.Candle, error)
}

// StrategyContext provides the strategy with access to the core components.
type StrategyContext struct {
	Logger *zap.Logger
	Cfg    *config.Config
	Feed   CandleSource
}

// EntryDecision is the outcome of an entry rule.
type EntryDecision struct {
	Fire      bool
	Rationale string
}

// Strategy is the typed handler for one strategy kind.
type Strategy interface {
	// Kind returns the strategy tag stored on trades.
	Kind() models.StrategyKind

	// Entry decides whether a trade waiting for its signal buys at price.
	Entry(ctx context.Context, sc StrategyContext, t *models.Trade, price float64) (EntryDecision, error)

	// ClosedStatus is the status a trade moves to after its position is sold.
	ClosedStatus() models.Status
}

// StrategyFor resolves the handler for kind.
func StrategyFor(kind models.StrategyKind) (Strategy, error) {
	switch kind {
	case models.StrategyManual:
		return manualStrategy{}, nil
	case models.StrategySignal:
		return signalStrategy{}, nil
	case models.StrategyPump:
		return pumpStrategy{}, nil
	case models.StrategyStrategic:
		return dipStrategy{}, nil
	}
	return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidRequest, kind)
}

// manualStrategy buys as soon as the trade is processed.
type manualStrategy struct{}

func (manualStrategy) Kind() models.StrategyKind { return models.StrategyManual }

func (manualStrategy) Entry(context.Context, StrategyContext, *models.Trade, float64) (EntryDecision, error) {
	return EntryDecision{Fire: true, Rationale: "manual entry"}, nil
}

func (manualStrategy) ClosedStatus() models.Status { return models.StatusCompleted }

// signalStrategy buys on a confident BUY from the classifier and goes back to
// waiting after every take profit.
type signalStrategy struct{}

func (signalStrategy) Kind() models.StrategyKind { return models.StrategySignal }

func (signalStrategy) Entry(ctx context.Context, sc StrategyContext, t *models.Trade, price float64) (EntryDecision, error) {
	candles, err := sc.Feed.Series(ctx, t.Pair, sc.Cfg.Trading.SignalHistory)
	if err != nil {
		return EntryDecision{}, fmt.Errorf("failed to load signal candles for %s: %w", t.Pair, err)
	}

	res := signal.AnalyzeAt(indicator.Closes(candles), price)
	fire := res.Signal == signal.Buy && res.Confidence >= sc.Cfg.Trading.BuyConfidence

	sc.Logger.Debug("Classified signal",
		zap.String("pair", t.Pair),
		zap.String("signal", string(res.Signal)),
		zap.Int("score", res.RawScore),
		zap.Float64("confidence", res.Confidence),
		zap.Bool("fire", fire),
	)
	return EntryDecision{Fire: fire, Rationale: res.Rationale()}, nil
}

func (signalStrategy) ClosedStatus() models.Status { return models.StatusAwaitingBuySignal }

// pumpStrategy buys top gainers on a confirmed 5m breakout.
type pumpStrategy struct{}

func (pumpStrategy) Kind() models.StrategyKind { return models.StrategyPump }

func (pumpStrategy) Entry(ctx context.Context, sc StrategyContext, t *models.Trade, _ float64) (EntryDecision, error) {
	params := momentumParams(sc.Cfg.Scanner)

	hourly, err := sc.Feed.Klines(ctx, t.Pair, "1h", 50)
	if err != nil {
		return EntryDecision{}, fmt.Errorf("failed to load 1h klines for %s: %w", t.Pair, err)
	}
	fiveMinute, err := sc.Feed.Klines(ctx, t.Pair, "5m", max(params.BreakoutLookback+1, 50))
	if err != nil {
		return EntryDecision{}, fmt.Errorf("failed to load 5m klines for %s: %w", t.Pair, err)
	}

	res := signal.EvaluateMomentum(hourly, fiveMinute, params)
	return EntryDecision{Fire: res.Pass, Rationale: res.Rationale()}, nil
}

func (pumpStrategy) ClosedStatus() models.Status { return models.StatusCompleted }

func momentumParams(cfg config.Scanner) signal.MomentumParams {
	p := signal.DefaultMomentumParams
	if cfg.RSICeiling > 0 {
		p.RSICeiling = cfg.RSICeiling
	}
	if cfg.BreakoutLookback > 0 {
		p.BreakoutLookback = cfg.BreakoutLookback
	}
	if cfg.VolumeMultiplier > 0 {
		p.VolumeMultiplier = cfg.VolumeMultiplier
	}
	return p
}

// dipStrategy buys after price falls far enough from the recent high.
type dipStrategy struct{}

func (dipStrategy) Kind() models.StrategyKind { return models.StrategyStrategic }

func (dipStrategy) Entry(ctx context.Context, sc StrategyContext, t *models.Trade, price float64) (EntryDecision, error) {
	if t.DipPercentage == nil || t.LookbackMinutes == nil || *t.LookbackMinutes <= 0 {
		return EntryDecision{}, fmt.Errorf("%w: dip trade %d has no dip parameters", ErrInvalidRequest, t.ID)
	}

	window, err := sc.Feed.Minutes(ctx, t.Pair, *t.LookbackMinutes)
	if err != nil {
		return EntryDecision{}, fmt.Errorf("failed to load 1m candles for %s: %w", t.Pair, err)
	}

	res := signal.EvaluateDip(window, price, *t.DipPercentage)
	return EntryDecision{Fire: res.Fire, Rationale: res.Rationale(*t.DipPercentage)}, nil
}

func (dipStrategy) ClosedStatus() models.Status { return models.StatusCompleted }
