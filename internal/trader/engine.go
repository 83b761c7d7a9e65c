package trader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"binance-signal-trader/internal/binance"
	"binance-signal-trader/internal/config"
	"binance-signal-trader/internal/exchangerules"
	"binance-signal-trader/internal/models"
	"binance-signal-trader/internal/repository"
	"go.uber.org/zap"
)

// TradeStore is the conditional write side of the trade repository.
type TradeStore interface {
	Claim(ctx context.Context, t *models.Trade) error
	Update(ctx context.Context, t *models.Trade, expected models.Status) error
}

// CredentialStore returns an owner's API keys.
type CredentialStore interface {
	Get(ctx context.Context, owner string) (*models.ExchangeCredential, error)
}

// RuleBook sizes and validates orders against the exchange filters.
type RuleBook interface {
	Rule(ctx context.Context, symbol string) (exchangerules.SymbolRule, error)
	PrepareSell(ctx context.Context, symbol string, qty, price float64) (exchangerules.Order, error)
	ValidateQuote(ctx context.Context, symbol string, quote float64) (string, error)
}

// Outcome describes what a step did to a trade.
type Outcome string

const (
	OutcomeIdle     Outcome = "idle"
	OutcomeWaiting  Outcome = "waiting"
	OutcomeBought   Outcome = "bought"
	OutcomeSold     Outcome = "sold"
	OutcomeClosed   Outcome = "closed"
	OutcomeHeld     Outcome = "held"
	OutcomeDeferred Outcome = "deferred"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

// Engine advances trades through their lifecycle. It keeps no state between
// steps; everything it needs is read from the trade and the exchange.
type Engine struct {
	logger *zap.Logger
	cfg    *config.Config
	client binance.RestClientInterface
	rules  RuleBook
	feed   CandleSource
	trades TradeStore
	creds  CredentialStore
	now    func() time.Time
}

// NewEngine creates a new trading engine.
func NewEngine(
	logger *zap.Logger,
	cfg *config.Config,
	client binance.RestClientInterface,
	rules RuleBook,
	feed CandleSource,
	trades TradeStore,
	creds CredentialStore,
) *Engine {
	return &Engine{
		logger: logger.Named("engine"),
		cfg:    cfg,
		client: client,
		rules:  rules,
		feed:   feed,
		trades: trades,
		creds:  creds,
		now:    time.Now,
	}
}

func (e *Engine) strategyContext() StrategyContext {
	return StrategyContext{Logger: e.logger, Cfg: e.cfg, Feed: e.feed}
}

// Step advances one trade by at most one transition. A lost claim returns
// repository.ErrStaleTrade and missing credentials return
// ErrCredentialsNotFound; neither touches the record.
func (e *Engine) Step(ctx context.Context, t *models.Trade) (Outcome, error) {
	if t.Status.Terminal() {
		return OutcomeSkipped, nil
	}

	strategy, err := StrategyFor(t.Strategy)
	if err != nil {
		return e.fail(ctx, t, err.Error())
	}

	account, err := e.account(ctx, t.OwnerID)
	if err != nil {
		return OutcomeSkipped, err
	}

	price, err := e.client.GetTickerPrice(ctx, t.Pair)
	if err != nil {
		return e.readFailure(ctx, t, err)
	}

	switch {
	case t.Status == models.StatusPending:
		return e.buy(ctx, t, account, "manual entry")

	case t.Status.Awaiting():
		decision, err := strategy.Entry(ctx, e.strategyContext(), t, price)
		if err != nil {
			if errors.Is(err, ErrInvalidRequest) {
				return e.fail(ctx, t, err.Error())
			}
			return e.readFailure(ctx, t, err)
		}
		if !decision.Fire {
			return e.wait(ctx, t, decision.Rationale)
		}
		return e.buy(ctx, t, account, decision.Rationale)

	case t.Status == models.StatusActive:
		return e.manage(ctx, t, strategy, account, price)
	}

	return OutcomeSkipped, nil
}

// Enter buys a waiting trade whose entry rule has already been checked.
func (e *Engine) Enter(ctx context.Context, t *models.Trade, rationale string) (Outcome, error) {
	account, err := e.account(ctx, t.OwnerID)
	if err != nil {
		return OutcomeSkipped, err
	}
	return e.buy(ctx, t, account, rationale)
}

// EvaluateEntry runs the entry rule of t's strategy at the live price
// without touching the record.
func (e *Engine) EvaluateEntry(ctx context.Context, t *models.Trade) (EntryDecision, error) {
	strategy, err := StrategyFor(t.Strategy)
	if err != nil {
		return EntryDecision{}, err
	}
	price, err := e.client.GetTickerPrice(ctx, t.Pair)
	if err != nil {
		return EntryDecision{}, fmt.Errorf("failed to get price for %s: %w", t.Pair, err)
	}
	return strategy.Entry(ctx, e.strategyContext(), t, price)
}

func (e *Engine) account(ctx context.Context, owner string) (binance.AccountClient, error) {
	cred, err := e.creds.Get(ctx, owner)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, err
	}

	creds := binance.Credentials{APIKey: cred.APIKey, APISecret: cred.APISecret}
	if !creds.Valid() {
		return nil, ErrCredentialsNotFound
	}
	return e.client.Account(creds), nil
}

func (e *Engine) buy(ctx context.Context, t *models.Trade, account binance.AccountClient, rationale string) (Outcome, error) {
	l := e.logger.With(zap.Uint("trade_id", t.ID), zap.String("pair", t.Pair))

	quote, err := e.rules.ValidateQuote(ctx, t.Pair, t.QuoteAmount)
	if err != nil {
		if errors.Is(err, exchangerules.ErrNotionalTooSmall) {
			return e.note(ctx, t, err.Error(), OutcomeHeld)
		}
		return e.readFailure(ctx, t, err)
	}

	from := t.Status
	if !models.CanTransition(from, models.StatusActive) {
		return OutcomeSkipped, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, models.StatusActive)
	}
	if err := e.trades.Claim(ctx, t); err != nil {
		return OutcomeSkipped, err
	}

	resp, err := account.CreateMarketOrder(ctx, binance.OrderRequest{
		Symbol:        t.Pair,
		Side:          binance.OrderSideBuy,
		QuoteOrderQty: quote,
	})
	if err != nil {
		return e.orderFailure(ctx, t, err)
	}

	qty, spent, err := resp.Executed()
	if err != nil {
		return e.unreadFill(ctx, t, binance.OrderSideBuy, &fillError{orderID: resp.OrderRef(), err: err})
	}
	if qty <= 0 {
		return e.fail(ctx, t, fmt.Sprintf("buy order %s executed no quantity (status %s)", resp.OrderRef(), resp.Status))
	}

	t.Fill(qty, spent/qty, e.cfg.Trading.FeeRate)
	t.Status = models.StatusActive
	t.BuyOrderID = resp.OrderRef()
	t.EntryRationale = rationale
	t.Message = ""

	if err := e.trades.Update(ctx, t, from); err != nil {
		return OutcomeBought, &PartialSuccessError{TradeID: t.ID, Side: binance.OrderSideBuy, OrderID: resp.OrderRef(), Err: err}
	}

	l.Info("Bought",
		zap.String("order_id", t.BuyOrderID),
		zap.Float64("quantity", qty),
		zap.Float64("purchase_price", *t.PurchasePrice),
		zap.Float64("target_price", *t.TargetPrice),
	)
	return OutcomeBought, nil
}

// manage sells an active position once price reaches the target.
func (e *Engine) manage(ctx context.Context, t *models.Trade, strategy Strategy, account binance.AccountClient, price float64) (Outcome, error) {
	if !t.Filled() {
		return e.fail(ctx, t, "active trade has no recorded position")
	}
	if price < *t.TargetPrice {
		return OutcomeIdle, nil
	}

	order, skip, err := e.prepareSale(ctx, t, account, price)
	if err != nil {
		if errors.Is(err, exchangerules.ErrQuantityTooSmall) || errors.Is(err, exchangerules.ErrNotionalTooSmall) {
			return e.note(ctx, t, err.Error(), OutcomeHeld)
		}
		return e.readFailure(ctx, t, err)
	}
	if skip {
		return e.close(ctx, t, strategy, nil, "target reached with nothing left to sell on the exchange")
	}

	if err := e.trades.Claim(ctx, t); err != nil {
		return OutcomeSkipped, err
	}

	s, err := e.placeSell(ctx, t, account, order)
	if err != nil {
		var unread *fillError
		if errors.As(err, &unread) {
			return e.unreadFill(ctx, t, binance.OrderSideSell, unread)
		}
		return e.orderFailure(ctx, t, err)
	}
	if s == nil {
		return e.fail(ctx, t, "sell order executed no quantity")
	}

	return e.close(ctx, t, strategy, s, fmt.Sprintf("take profit at %.8g", s.price))
}

type sale struct {
	orderID string
	price   float64
	pnl     float64
}

// prepareSale sizes a sell of the held position as min(recorded, free).
// skip is set when nothing is left on the exchange.
func (e *Engine) prepareSale(ctx context.Context, t *models.Trade, account binance.AccountClient, price float64) (exchangerules.Order, bool, error) {
	rule, err := e.rules.Rule(ctx, t.Pair)
	if err != nil {
		return exchangerules.Order{}, false, err
	}
	free, err := account.GetFreeBalance(ctx, rule.BaseAsset)
	if err != nil {
		return exchangerules.Order{}, false, err
	}

	sellable := math.Min(t.HeldAmount(), free)
	if sellable <= 0 {
		return exchangerules.Order{}, true, nil
	}

	order, err := e.rules.PrepareSell(ctx, t.Pair, sellable, price)
	return order, false, err
}

// placeSell submits the order. A nil sale means nothing executed.
func (e *Engine) placeSell(ctx context.Context, t *models.Trade, account binance.AccountClient, order exchangerules.Order) (*sale, error) {
	resp, err := account.CreateMarketOrder(ctx, binance.OrderRequest{
		Symbol:   t.Pair,
		Side:     binance.OrderSideSell,
		Quantity: order.String(),
	})
	if err != nil {
		return nil, err
	}

	qty, received, err := resp.Executed()
	if err != nil {
		return nil, &fillError{orderID: resp.OrderRef(), err: err}
	}
	if qty <= 0 {
		return nil, nil
	}

	var cost float64
	if t.PurchasePrice != nil {
		cost = *t.PurchasePrice * qty
	}
	return &sale{orderID: resp.OrderRef(), price: received / qty, pnl: received - cost}, nil
}

// close moves a trade out of active after its position is gone.
func (e *Engine) close(ctx context.Context, t *models.Trade, strategy Strategy, s *sale, msg string) (Outcome, error) {
	from := t.Status
	to := strategy.ClosedStatus()
	if !models.CanTransition(from, to) {
		return OutcomeSkipped, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}

	if s != nil {
		t.SellPrice = &s.price
		t.SellOrderID = s.orderID
		t.AddProfit(s.pnl)
	}
	t.Message = msg
	t.Status = to
	if to == models.StatusCompleted {
		now := e.now()
		t.CompletedAt = &now
	} else {
		t.ClearPosition()
	}

	if err := e.trades.Update(ctx, t, from); err != nil {
		if s != nil {
			return OutcomeSold, &PartialSuccessError{TradeID: t.ID, Side: binance.OrderSideSell, OrderID: s.orderID, Err: err}
		}
		return OutcomeSkipped, err
	}

	e.logger.Info("Closed position",
		zap.Uint("trade_id", t.ID),
		zap.String("pair", t.Pair),
		zap.String("status", string(t.Status)),
		zap.String("sell_order_id", t.SellOrderID),
	)
	if s == nil {
		return OutcomeClosed, nil
	}
	return OutcomeSold, nil
}

// wait records why the entry rule did not fire.
func (e *Engine) wait(ctx context.Context, t *models.Trade, rationale string) (Outcome, error) {
	if !models.CanTransition(t.Status, t.Status) {
		return OutcomeSkipped, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.Status, t.Status)
	}
	t.EntryRationale = rationale
	t.Message = ""
	if err := e.trades.Update(ctx, t, t.Status); err != nil {
		return OutcomeSkipped, err
	}
	return OutcomeWaiting, nil
}

// unreadFill parks a trade in error after the exchange accepted an order
// whose fill could not be read, so the order is never sent twice.
func (e *Engine) unreadFill(ctx context.Context, t *models.Trade, side string, fe *fillError) (Outcome, error) {
	from := t.Status
	if side == binance.OrderSideBuy {
		t.BuyOrderID = fe.orderID
	} else {
		t.SellOrderID = fe.orderID
	}
	t.Status = models.StatusError
	t.Message = fe.Error()

	if err := e.trades.Update(ctx, t, from); err != nil {
		outcome := OutcomeBought
		if side == binance.OrderSideSell {
			outcome = OutcomeSold
		}
		return outcome, &PartialSuccessError{TradeID: t.ID, Side: side, OrderID: fe.orderID, Err: errors.Join(fe.err, err)}
	}
	e.logger.Error("Order executed but its fill could not be read",
		zap.Uint("trade_id", t.ID),
		zap.String("pair", t.Pair),
		zap.String("side", side),
		zap.String("order_id", fe.orderID),
		zap.Error(fe.err),
	)
	return OutcomeFailed, nil
}

// note stores a reason without changing the status.
func (e *Engine) note(ctx context.Context, t *models.Trade, msg string, outcome Outcome) (Outcome, error) {
	if !models.CanTransition(t.Status, t.Status) {
		return OutcomeSkipped, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.Status, t.Status)
	}
	t.Message = msg
	if err := e.trades.Update(ctx, t, t.Status); err != nil {
		return OutcomeSkipped, err
	}
	e.logger.Info("Trade left in place",
		zap.Uint("trade_id", t.ID),
		zap.String("status", string(t.Status)),
		zap.String("reason", msg),
	)
	return outcome, nil
}

// readFailure classifies an error raised before any order was sent.
func (e *Engine) readFailure(ctx context.Context, t *models.Trade, err error) (Outcome, error) {
	switch {
	case ctx.Err() != nil:
		return OutcomeSkipped, ctx.Err()
	case isAuthError(err):
		return OutcomeSkipped, fmt.Errorf("%w: %v", ErrCredentialsRejected, err)
	case binance.IsTransient(err):
		return e.note(ctx, t, "market data unavailable, retrying next cycle: "+err.Error(), OutcomeDeferred)
	}
	return e.fail(ctx, t, err.Error())
}

// orderFailure handles a failed order call. The order is never assumed to
// have executed.
func (e *Engine) orderFailure(ctx context.Context, t *models.Trade, err error) (Outcome, error) {
	if isAuthError(err) {
		return OutcomeSkipped, fmt.Errorf("%w: %v", ErrCredentialsRejected, err)
	}
	return e.fail(ctx, t, exchangeMessage(err))
}

// fail moves a trade to error with msg.
func (e *Engine) fail(ctx context.Context, t *models.Trade, msg string) (Outcome, error) {
	from := t.Status
	if !models.CanTransition(from, models.StatusError) {
		return OutcomeSkipped, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, models.StatusError)
	}
	t.Status = models.StatusError
	t.Message = msg
	if err := e.trades.Update(ctx, t, from); err != nil {
		t.Status = from
		return OutcomeSkipped, err
	}
	e.logger.Warn("Trade moved to error",
		zap.Uint("trade_id", t.ID),
		zap.String("pair", t.Pair),
		zap.String("from", string(from)),
		zap.String("reason", msg),
	)
	return OutcomeFailed, nil
}
