// Package exchangerules resolves per symbol trading filters and sizes orders
// so the exchange accepts them.
package exchangerules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"binance-signal-trader/internal/binance"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrQuantityTooSmall means the adjusted quantity is below the lot minimum.
	ErrQuantityTooSmall = errors.New("quantity below minimum lot size")
	// ErrNotionalTooSmall means the order value is below the minimum notional.
	ErrNotionalTooSmall = errors.New("order value below minimum notional")
	// ErrSymbolNotFound means the exchange does not list the symbol.
	ErrSymbolNotFound = errors.New("symbol not listed on exchange")
)

// SymbolRule holds the filters that matter for market orders.
type SymbolRule struct {
	Symbol      string
	BaseAsset   string
	QuoteAsset  string
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
}

// Precision is the number of decimals implied by the step size.
func (r SymbolRule) Precision() int32 {
	return StepPrecision(r.StepSize)
}

// StepPrecision is the number of decimal places in step. For power of ten
// steps this equals floor(-log10(step)). Other steps differ: 0.05 gives 2
// where floor(-log10(0.05)) gives 1, and only 2 places can hold every
// multiple of 0.05.
func StepPrecision(step decimal.Decimal) int32 {
	if !step.IsPositive() {
		return 0
	}
	p := -step.Exponent()
	if p < 0 {
		p = 0
	}
	for p > 0 && step.Truncate(p-1).Equal(step) {
		p--
	}
	return p
}

// AdjustQuantity floors qty to a multiple of step and truncates it to the
// step precision. It never rounds up and never returns a negative value.
func AdjustQuantity(qty, step decimal.Decimal) decimal.Decimal {
	if !qty.IsPositive() {
		return decimal.Zero
	}
	if !step.IsPositive() {
		return qty
	}
	adjusted := qty.Div(step).Floor().Mul(step)
	return adjusted.Truncate(StepPrecision(step))
}

// Order is a sell quantity that passed every filter.
type Order struct {
	Quantity decimal.Decimal
	Rule     SymbolRule
}

// String renders the quantity the way the exchange expects it.
func (o Order) String() string {
	return o.Quantity.StringFixed(o.Rule.Precision())
}

// Float returns the quantity as a float for persistence.
func (o Order) Float() float64 {
	f, _ := o.Quantity.Float64()
	return f
}

type cacheEntry struct {
	rule    SymbolRule
	expires time.Time
}

// Resolver looks up symbol rules and keeps them for a while.
type Resolver struct {
	market binance.MarketData
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewResolver returns a resolver caching rules for ttl. A zero ttl disables the cache.
func NewResolver(market binance.MarketData, ttl time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{
		market: market,
		logger: logger.Named("rules"),
		ttl:    ttl,
		now:    time.Now,
		cache:  make(map[string]cacheEntry),
	}
}

// Rule returns the rule for symbol.
func (r *Resolver) Rule(ctx context.Context, symbol string) (SymbolRule, error) {
	r.mu.RLock()
	entry, ok := r.cache[symbol]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expires) {
		return entry.rule, nil
	}

	info, err := r.market.GetExchangeInfo(ctx, symbol)
	if err != nil {
		return SymbolRule{}, fmt.Errorf("failed to resolve rules for %s: %w", symbol, err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		rule, err := parseRule(s)
		if err != nil {
			return SymbolRule{}, err
		}
		if r.ttl > 0 {
			r.mu.Lock()
			r.cache[symbol] = cacheEntry{rule: rule, expires: r.now().Add(r.ttl)}
			r.mu.Unlock()
		}
		r.logger.Debug("Resolved symbol rule",
			zap.String("symbol", symbol),
			zap.String("step_size", rule.StepSize.String()),
			zap.String("min_qty", rule.MinQty.String()),
			zap.String("min_notional", rule.MinNotional.String()),
		)
		return rule, nil
	}

	return SymbolRule{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
}

func parseRule(s binance.SymbolInfo) (SymbolRule, error) {
	rule := SymbolRule{Symbol: s.Symbol, BaseAsset: s.BaseAsset, QuoteAsset: s.QuoteAsset}
	parse := func(field, value string) (decimal.Decimal, error) {
		if value == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid %s %q for %s: %w", field, value, s.Symbol, err)
		}
		return d, nil
	}

	var err error
	for _, f := range s.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			if rule.StepSize, err = parse("stepSize", f.StepSize); err != nil {
				return SymbolRule{}, err
			}
			if rule.MinQty, err = parse("minQty", f.MinQty); err != nil {
				return SymbolRule{}, err
			}
		case "MIN_NOTIONAL", "NOTIONAL":
			if rule.MinNotional, err = parse("minNotional", f.MinNotional); err != nil {
				return SymbolRule{}, err
			}
		}
	}
	return rule, nil
}

// PrepareSell adjusts qty for symbol and checks it against the lot and
// notional minimums at price.
func (r *Resolver) PrepareSell(ctx context.Context, symbol string, qty, price float64) (Order, error) {
	rule, err := r.Rule(ctx, symbol)
	if err != nil {
		return Order{}, err
	}

	adjusted := AdjustQuantity(decimal.NewFromFloat(qty), rule.StepSize)
	order := Order{Quantity: adjusted, Rule: rule}

	if !adjusted.IsPositive() || adjusted.LessThan(rule.MinQty) {
		return order, fmt.Errorf("%w: %s adjusted to %s, minimum %s",
			ErrQuantityTooSmall, symbol, order.String(), rule.MinQty.String())
	}

	notional := adjusted.Mul(decimal.NewFromFloat(price))
	if rule.MinNotional.IsPositive() && notional.LessThan(rule.MinNotional) {
		return order, fmt.Errorf("%w: %s value %s, minimum %s",
			ErrNotionalTooSmall, symbol, notional.StringFixed(8), rule.MinNotional.String())
	}
	return order, nil
}

// ValidateQuote checks a buy by quote amount against the minimum notional and
// returns the amount formatted for the order.
func (r *Resolver) ValidateQuote(ctx context.Context, symbol string, quote float64) (string, error) {
	rule, err := r.Rule(ctx, symbol)
	if err != nil {
		return "", err
	}
	amount := decimal.NewFromFloat(quote)
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: %s quote amount must be positive", ErrNotionalTooSmall, symbol)
	}
	if rule.MinNotional.IsPositive() && amount.LessThan(rule.MinNotional) {
		return "", fmt.Errorf("%w: %s quote %s, minimum %s",
			ErrNotionalTooSmall, symbol, amount.String(), rule.MinNotional.String())
	}
	return amount.Truncate(8).String(), nil
}
