package trader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"binance-signal-trader/internal/config"
	"binance-signal-trader/internal/exchangerules"
	"binance-signal-trader/internal/models"
	"binance-signal-trader/internal/repository"
	"go.uber.org/zap"
)

// TradeRepository is everything the owner operations need from storage.
type TradeRepository interface {
	TradeStore
	Create(ctx context.Context, t *models.Trade) error
	Get(ctx context.Context, owner string, id uint) (*models.Trade, error)
	ListByOwner(ctx context.Context, owner string, statuses ...models.Status) ([]models.Trade, error)
	Delete(ctx context.Context, t *models.Trade) error
}

// StrategyConfigStore reads and writes per owner strategy defaults.
type StrategyConfigStore interface {
	Upsert(ctx context.Context, cfg *models.StrategyConfig) error
	Get(ctx context.Context, owner string, strategy models.StrategyKind) (*models.StrategyConfig, error)
}

// Service implements the owner facing trade operations.
type Service struct {
	logger  *zap.Logger
	cfg     *config.Config
	engine  *Engine
	trades  TradeRepository
	configs StrategyConfigStore
}

// NewService wires the owner operations to the engine.
func NewService(logger *zap.Logger, cfg *config.Config, engine *Engine, trades TradeRepository, configs StrategyConfigStore) *Service {
	return &Service{
		logger:  logger.Named("service"),
		cfg:     cfg,
		engine:  engine,
		trades:  trades,
		configs: configs,
	}
}

// InitiateRequest opens a trade. Zero sizing fields fall back to the owner's
// strategy config, then to the configured defaults.
type InitiateRequest struct {
	Pair                 string              `json:"pair" validate:"required,alphanum,min=5,max=20"`
	Strategy             models.StrategyKind `json:"strategy"`
	QuoteAmount          float64             `json:"quote_amount" validate:"gte=0"`
	TakeProfitPercentage float64             `json:"take_profit_percentage" validate:"gte=0,lt=1000"`
	DipPercentage        *float64            `json:"dip_percentage,omitempty" validate:"omitempty,gt=0,lt=100"`
	LookbackMinutes      *int                `json:"lookback_minutes,omitempty" validate:"omitempty,gt=0,lte=1000"`
}

// InitiateResult reports the created trade.
type InitiateResult struct {
	TradeID       uint          `json:"trade_id"`
	Status        models.Status `json:"status"`
	Message       string        `json:"message,omitempty"`
	ExchangeError string        `json:"exchange_error,omitempty"`
}

// InitiateTrade validates the request, stores the trade and, for manual
// trades, buys immediately.
func (s *Service) InitiateTrade(ctx context.Context, owner string, req InitiateRequest) (*InitiateResult, error) {
	if req.Strategy == "" {
		req.Strategy = models.StrategyManual
	}
	if !req.Strategy.Valid() {
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidRequest, req.Strategy)
	}
	req.Pair = strings.ToUpper(strings.TrimSpace(req.Pair))
	if req.Pair == "" {
		return nil, fmt.Errorf("%w: pair is required", ErrInvalidRequest)
	}

	if err := s.applyDefaults(ctx, owner, &req); err != nil {
		return nil, err
	}
	if req.QuoteAmount <= 0 || req.TakeProfitPercentage <= 0 {
		return nil, fmt.Errorf("%w: quote amount and take profit must be positive", ErrInvalidRequest)
	}
	if req.Strategy == models.StrategyStrategic {
		if req.DipPercentage == nil || *req.DipPercentage <= 0 || req.LookbackMinutes == nil || *req.LookbackMinutes <= 0 {
			return nil, fmt.Errorf("%w: dip percentage and lookback minutes are required", ErrInvalidRequest)
		}
	} else {
		req.DipPercentage, req.LookbackMinutes = nil, nil
	}

	if _, err := s.engine.account(ctx, owner); err != nil {
		return nil, err
	}
	if _, err := s.engine.rules.ValidateQuote(ctx, req.Pair, req.QuoteAmount); err != nil {
		if errors.Is(err, exchangerules.ErrNotionalTooSmall) || errors.Is(err, exchangerules.ErrSymbolNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return nil, err
	}

	t := &models.Trade{
		OwnerID:              owner,
		Pair:                 req.Pair,
		Strategy:             req.Strategy,
		QuoteAmount:          req.QuoteAmount,
		TakeProfitPercentage: req.TakeProfitPercentage,
		DipPercentage:        req.DipPercentage,
		LookbackMinutes:      req.LookbackMinutes,
		Status:               req.Strategy.InitialStatus(),
	}
	if err := s.trades.Create(ctx, t); err != nil {
		return nil, err
	}

	l := s.logger.With(zap.Uint("trade_id", t.ID), zap.String("pair", t.Pair), zap.String("strategy", string(t.Strategy)))
	l.Info("Trade created", zap.String("status", string(t.Status)))

	result := &InitiateResult{TradeID: t.ID, Status: t.Status}
	if t.Status != models.StatusPending {
		return result, nil
	}

	_, err := s.engine.Step(ctx, t)
	var partial *PartialSuccessError
	switch {
	case errors.As(err, &partial):
		l.Error("Order executed but trade update failed", zap.Error(err))
		result.ExchangeError = err.Error()
	case err != nil:
		l.Warn("Immediate buy did not run", zap.Error(err))
		result.Message = err.Error()
	}
	result.Status = t.Status
	if t.Message != "" {
		result.Message = t.Message
	}
	return result, nil
}

func (s *Service) applyDefaults(ctx context.Context, owner string, req *InitiateRequest) error {
	if req.QuoteAmount > 0 && req.TakeProfitPercentage > 0 &&
		(req.Strategy != models.StrategyStrategic || (req.DipPercentage != nil && req.LookbackMinutes != nil)) {
		return nil
	}

	cfg, err := s.configs.Get(ctx, owner, req.Strategy)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		cfg = &models.StrategyConfig{
			QuoteAmount:          s.cfg.Trading.DefaultQuoteAmount,
			TakeProfitPercentage: s.cfg.Trading.DefaultTakeProfit,
		}
	case err != nil:
		return err
	}

	if req.QuoteAmount == 0 {
		req.QuoteAmount = cfg.QuoteAmount
	}
	if req.TakeProfitPercentage == 0 {
		req.TakeProfitPercentage = cfg.TakeProfitPercentage
	}
	if req.DipPercentage == nil {
		req.DipPercentage = cfg.DipPercentage
	}
	if req.LookbackMinutes == nil {
		req.LookbackMinutes = cfg.LookbackMinutes
	}
	return nil
}

// CloseResult reports an owner close.
type CloseResult struct {
	Closed        bool          `json:"closed"`
	Status        models.Status `json:"status"`
	ExchangeError string        `json:"exchange_error,omitempty"`
}

// CloseTrade sells any held position on a best effort basis and marks the
// trade completed whether or not the sell went through.
func (s *Service) CloseTrade(ctx context.Context, owner string, id uint) (*CloseResult, error) {
	t, err := s.trades.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if t.Status == models.StatusCompleted {
		return &CloseResult{Closed: true, Status: t.Status}, nil
	}

	result := &CloseResult{Closed: true}
	from := t.Status
	sold, exchangeErr := s.liquidate(ctx, t)
	if exchangeErr != nil {
		result.ExchangeError = exchangeErr.Error()
	}

	now := s.engine.now()
	t.Status = models.StatusCompleted
	t.CompletedAt = &now
	t.Message = "closed by owner"
	if exchangeErr != nil {
		t.Message = "closed by owner; sell failed: " + exchangeErr.Error()
	}
	if sold != nil {
		t.SellPrice = &sold.price
		t.SellOrderID = sold.orderID
		t.AddProfit(sold.pnl)
	}

	if err := s.trades.Update(ctx, t, from); err != nil {
		if sold != nil {
			partial := &PartialSuccessError{TradeID: t.ID, Side: "SELL", OrderID: sold.orderID, Err: err}
			s.logger.Error("Owner close sold but trade update failed", zap.Error(partial))
			result.ExchangeError = partial.Error()
			result.Status = from
			return result, nil
		}
		return nil, err
	}

	result.Status = t.Status
	return result, nil
}

// DeleteResult reports an owner delete.
type DeleteResult struct {
	Deleted       bool   `json:"deleted"`
	ExchangeError string `json:"exchange_error,omitempty"`
}

// DeleteTrade sells any held position on a best effort basis, then removes
// the record regardless.
func (s *Service) DeleteTrade(ctx context.Context, owner string, id uint) (*DeleteResult, error) {
	t, err := s.trades.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{Deleted: true}
	if t.Status != models.StatusCompleted {
		if _, exchangeErr := s.liquidate(ctx, t); exchangeErr != nil {
			result.ExchangeError = exchangeErr.Error()
		}
	}

	if err := s.trades.Delete(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("Trade deleted", zap.Uint("trade_id", t.ID), zap.String("pair", t.Pair))
	return result, nil
}

// liquidate sells whatever the trade still holds. It returns the sale, if
// any, and the reason the sell did not happen.
func (s *Service) liquidate(ctx context.Context, t *models.Trade) (*sale, error) {
	if t.HeldAmount() <= 0 {
		return nil, nil
	}

	account, err := s.engine.account(ctx, t.OwnerID)
	if err != nil {
		return nil, err
	}
	price, err := s.engine.client.GetTickerPrice(ctx, t.Pair)
	if err != nil {
		return nil, err
	}
	order, skip, err := s.engine.prepareSale(ctx, t, account, price)
	if err != nil || skip {
		return nil, err
	}
	if err := s.trades.Claim(ctx, t); err != nil {
		return nil, err
	}

	sold, err := s.engine.placeSell(ctx, t, account, order)
	if err != nil {
		var unread *fillError
		if errors.As(err, &unread) {
			t.SellOrderID = unread.orderID
		}
		return nil, fmt.Errorf("%s", exchangeMessage(err))
	}
	return sold, nil
}

// EditRequest carries the fields an owner may change. Nil fields are left alone.
type EditRequest struct {
	QuoteAmount          *float64 `json:"quote_amount,omitempty" validate:"omitempty,gt=0"`
	TakeProfitPercentage *float64 `json:"take_profit_percentage,omitempty" validate:"omitempty,gt=0,lt=1000"`
	DipPercentage        *float64 `json:"dip_percentage,omitempty" validate:"omitempty,gt=0,lt=100"`
	LookbackMinutes      *int     `json:"lookback_minutes,omitempty" validate:"omitempty,gt=0,lte=1000"`
}

func (r EditRequest) empty() bool {
	return r.QuoteAmount == nil && r.TakeProfitPercentage == nil && r.DipPercentage == nil && r.LookbackMinutes == nil
}

// EditTrade applies the fields legal for the trade's status. Waiting trades
// may change sizing and dip parameters, active trades only the take profit
// (the target is recomputed from the purchase price), closed trades nothing.
func (s *Service) EditTrade(ctx context.Context, owner string, id uint, req EditRequest) (*models.Trade, error) {
	if req.empty() {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidRequest)
	}

	t, err := s.trades.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	switch {
	case t.Status.Terminal():
		return nil, fmt.Errorf("%w: trade is %s", ErrInvalidStateForEdit, t.Status)

	case t.Status == models.StatusActive:
		if req.QuoteAmount != nil || req.DipPercentage != nil || req.LookbackMinutes != nil {
			return nil, fmt.Errorf("%w: only take profit can change while active", ErrInvalidStateForEdit)
		}
		t.Retarget(*req.TakeProfitPercentage, s.cfg.Trading.FeeRate)

	default:
		if (req.DipPercentage != nil || req.LookbackMinutes != nil) && t.Strategy != models.StrategyStrategic {
			return nil, fmt.Errorf("%w: dip parameters only apply to %s trades", ErrInvalidRequest, models.StrategyStrategic)
		}
		if req.QuoteAmount != nil {
			t.QuoteAmount = *req.QuoteAmount
		}
		if req.TakeProfitPercentage != nil {
			t.TakeProfitPercentage = *req.TakeProfitPercentage
		}
		if req.DipPercentage != nil {
			t.DipPercentage = req.DipPercentage
		}
		if req.LookbackMinutes != nil {
			t.LookbackMinutes = req.LookbackMinutes
		}
	}

	if err := s.trades.Update(ctx, t, t.Status); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTrades returns the owner's trades, optionally filtered by status.
func (s *Service) ListTrades(ctx context.Context, owner string, statuses ...models.Status) ([]models.Trade, error) {
	return s.trades.ListByOwner(ctx, owner, statuses...)
}

// StrategyConfigRequest sets an owner's defaults for one strategy.
type StrategyConfigRequest struct {
	QuoteAmount          float64  `json:"quote_amount" validate:"gt=0"`
	TakeProfitPercentage float64  `json:"take_profit_percentage" validate:"gt=0,lt=1000"`
	DipPercentage        *float64 `json:"dip_percentage,omitempty" validate:"omitempty,gt=0,lt=100"`
	LookbackMinutes      *int     `json:"lookback_minutes,omitempty" validate:"omitempty,gt=0,lte=1000"`
}

// UpsertStrategyConfig stores the owner's defaults for strategy.
func (s *Service) UpsertStrategyConfig(ctx context.Context, owner string, strategy models.StrategyKind, req StrategyConfigRequest) (*models.StrategyConfig, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidRequest, strategy)
	}
	if req.QuoteAmount <= 0 || req.TakeProfitPercentage <= 0 {
		return nil, fmt.Errorf("%w: quote amount and take profit must be positive", ErrInvalidRequest)
	}

	cfg := &models.StrategyConfig{
		OwnerID:              owner,
		Strategy:             strategy,
		QuoteAmount:          req.QuoteAmount,
		TakeProfitPercentage: req.TakeProfitPercentage,
		DipPercentage:        req.DipPercentage,
		LookbackMinutes:      req.LookbackMinutes,
	}
	if err := s.configs.Upsert(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
