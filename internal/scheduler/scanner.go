// Package scheduler runs the strategies on a timer: the top gainer scan, the
// lifecycle sweep over open trades and owner driven bulk entries.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"binance-signal-trader/internal/binance"
	"binance-signal-trader/internal/config"
	"binance-signal-trader/internal/models"
	"binance-signal-trader/internal/trader"
	"go.uber.org/zap"
)

// TradeRepository is the part of the trade store the schedulers use.
type TradeRepository interface {
	Create(ctx context.Context, t *models.Trade) error
	ListOpen(ctx context.Context) ([]models.Trade, error)
	HasOpen(ctx context.Context, owner, pair string, strategy models.StrategyKind) (bool, error)
}

// ConfigLister lists the owners enrolled in a strategy.
type ConfigLister interface {
	ListByStrategy(ctx context.Context, strategy models.StrategyKind) ([]models.StrategyConfig, error)
}

// Engine is the lifecycle engine as seen by the schedulers.
type Engine interface {
	Step(ctx context.Context, t *models.Trade) (trader.Outcome, error)
	Enter(ctx context.Context, t *models.Trade, rationale string) (trader.Outcome, error)
	EvaluateEntry(ctx context.Context, t *models.Trade) (trader.EntryDecision, error)
}

// ResultStatus is the per owner outcome for one candidate.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultPending ResultStatus = "pending"
	ResultSkipped ResultStatus = "skipped"
	ResultError   ResultStatus = "error"
)

// Candidate is one top gainer.
type Candidate struct {
	Symbol             string  `json:"symbol"`
	PriceChangePercent float64 `json:"price_change_percent"`
	LastPrice          float64 `json:"last_price"`
	QuoteVolume        float64 `json:"quote_volume"`
}

// CandidateResult reports what happened for one owner and pair.
type CandidateResult struct {
	OwnerID   string       `json:"owner_id,omitempty"`
	Pair      string       `json:"pair"`
	Status    ResultStatus `json:"status"`
	TradeID   uint         `json:"trade_id,omitempty"`
	Rationale string       `json:"rationale,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// ScanReport is the output of a candidate evaluation.
type ScanReport struct {
	Candidates []Candidate       `json:"candidates"`
	Results    []CandidateResult `json:"results"`
}

// Scanner finds top gainers and opens pump trades for every enrolled owner.
type Scanner struct {
	logger  *zap.Logger
	cfg     config.Scanner
	quote   string
	market  binance.MarketData
	engine  Engine
	trades  TradeRepository
	configs ConfigLister
}

// NewScanner creates a candidate scanner.
func NewScanner(logger *zap.Logger, cfg *config.Config, market binance.MarketData, engine Engine, trades TradeRepository, configs ConfigLister) *Scanner {
	return &Scanner{
		logger:  logger.Named("scanner"),
		cfg:     cfg.Scanner,
		quote:   cfg.Trading.QuoteAsset,
		market:  market,
		engine:  engine,
		trades:  trades,
		configs: configs,
	}
}

func (s *Scanner) strategy() models.StrategyKind {
	if s.cfg.Strategy == "" {
		return models.StrategyPump
	}
	return models.StrategyKind(s.cfg.Strategy)
}

// TopGainers returns the quote asset pairs with enough volume, ranked by 24h
// change, best first.
func (s *Scanner) TopGainers(ctx context.Context) ([]Candidate, error) {
	tickers, err := s.market.Get24hTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load 24h tickers: %w", err)
	}

	var out []Candidate
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, s.quote) || t.Symbol == s.quote {
			continue
		}
		if t.QuoteVolume < s.cfg.MinQuoteVolume {
			continue
		}
		out = append(out, Candidate{
			Symbol:             t.Symbol,
			PriceChangePercent: t.PriceChangePercent,
			LastPrice:          t.LastPrice,
			QuoteVolume:        t.QuoteVolume,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PriceChangePercent > out[j].PriceChangePercent
	})
	if n := s.cfg.TopN; n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// EvaluateCandidates runs one scan. The momentum rule is evaluated once per
// candidate and applied to every enrolled owner without an open trade on it.
func (s *Scanner) EvaluateCandidates(ctx context.Context) (*ScanReport, error) {
	candidates, err := s.TopGainers(ctx)
	if err != nil {
		return nil, err
	}
	report := &ScanReport{Candidates: candidates}
	if len(candidates) == 0 {
		s.logger.Info("No candidates passed the volume floor")
		return report, nil
	}

	owners, err := s.configs.ListByStrategy(ctx, s.strategy())
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		probe := &models.Trade{Pair: c.Symbol, Strategy: s.strategy()}
		decision, evalErr := s.engine.EvaluateEntry(ctx, probe)
		if evalErr != nil {
			s.logger.Warn("Momentum check failed", zap.String("pair", c.Symbol), zap.Error(evalErr))
		}

		for i := range owners {
			res := s.apply(ctx, &owners[i], c, decision, evalErr)
			report.Results = append(report.Results, res)
		}
	}

	s.logger.Info("Candidate scan finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("owners", len(owners)),
		zap.Int("results", len(report.Results)),
	)
	return report, nil
}

func (s *Scanner) apply(ctx context.Context, cfg *models.StrategyConfig, c Candidate, decision trader.EntryDecision, evalErr error) CandidateResult {
	res := CandidateResult{OwnerID: cfg.OwnerID, Pair: c.Symbol, Rationale: decision.Rationale}

	open, err := s.trades.HasOpen(ctx, cfg.OwnerID, c.Symbol, cfg.Strategy)
	if err != nil {
		res.Status, res.Error = ResultError, err.Error()
		return res
	}
	if open {
		res.Status, res.Rationale = ResultSkipped, "open trade already exists"
		return res
	}
	if evalErr != nil {
		res.Status, res.Error = ResultError, evalErr.Error()
		return res
	}

	t := newTrade(cfg, c.Symbol)
	t.EntryRationale = decision.Rationale
	if err := s.trades.Create(ctx, t); err != nil {
		res.Status, res.Error = ResultError, err.Error()
		return res
	}
	res.TradeID = t.ID

	if !decision.Fire {
		res.Status = ResultPending
		return res
	}
	return enter(ctx, s.engine, t, decision.Rationale, res)
}

func newTrade(cfg *models.StrategyConfig, pair string) *models.Trade {
	return &models.Trade{
		OwnerID:              cfg.OwnerID,
		Pair:                 pair,
		Strategy:             cfg.Strategy,
		QuoteAmount:          cfg.QuoteAmount,
		TakeProfitPercentage: cfg.TakeProfitPercentage,
		DipPercentage:        cfg.DipPercentage,
		LookbackMinutes:      cfg.LookbackMinutes,
		Status:               cfg.Strategy.InitialStatus(),
	}
}

// enter buys a freshly created trade and fills in res.
func enter(ctx context.Context, engine Engine, t *models.Trade, rationale string, res CandidateResult) CandidateResult {
	outcome, err := engine.Enter(ctx, t, rationale)
	var partial *trader.PartialSuccessError
	switch {
	case errors.As(err, &partial):
		res.Status, res.Error = ResultSuccess, err.Error()
	case err != nil:
		res.Status, res.Error = ResultError, err.Error()
	case outcome == trader.OutcomeBought:
		res.Status = ResultSuccess
	case outcome == trader.OutcomeFailed:
		res.Status, res.Error = ResultError, t.Message
	default:
		res.Status, res.Error = ResultPending, t.Message
	}
	return res
}
