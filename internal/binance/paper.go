package binance

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// PaperAccount simulates an account for dry runs. Orders fill immediately at
// the current ticker price and balances never run out.
type PaperAccount struct {
	market MarketData
	logger *zap.Logger
}

var _ AccountClient = (*PaperAccount)(nil)

// NewPaperAccount returns a simulated account priced from market.
func NewPaperAccount(market MarketData, logger *zap.Logger) *PaperAccount {
	return &PaperAccount{market: market, logger: logger}
}

// GetFreeBalance reports an unlimited balance so sells size from the trade.
func (p *PaperAccount) GetFreeBalance(_ context.Context, _ string) (float64, error) {
	return math.MaxFloat64, nil
}

// CreateMarketOrder fills the order at the ticker price.
func (p *PaperAccount) CreateMarketOrder(ctx context.Context, order OrderRequest) (*CreateOrderResponse, error) {
	price, err := p.market.GetTickerPrice(ctx, order.Symbol)
	if err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("paper fill for %s: non-positive price %v", order.Symbol, price)
	}

	var qty, quote float64
	switch {
	case order.QuoteOrderQty != "":
		if quote, err = strconv.ParseFloat(order.QuoteOrderQty, 64); err != nil {
			return nil, fmt.Errorf("paper fill: bad quote quantity %q: %w", order.QuoteOrderQty, err)
		}
		qty = quote / price
	case order.Quantity != "":
		if qty, err = strconv.ParseFloat(order.Quantity, 64); err != nil {
			return nil, fmt.Errorf("paper fill: bad quantity %q: %w", order.Quantity, err)
		}
		quote = qty * price
	default:
		return nil, fmt.Errorf("order for %s has neither quantity nor quote quantity", order.Symbol)
	}

	p.logger.Info("Simulated market order",
		zap.String("symbol", order.Symbol),
		zap.String("side", order.Side),
		zap.Float64("price", price),
		zap.Float64("quantity", qty),
	)

	return &CreateOrderResponse{
		Symbol:              order.Symbol,
		ClientOrderID:       "paper-" + ulid.Make().String(),
		TransactTime:        time.Now().UnixMilli(),
		Price:               strconv.FormatFloat(price, 'f', -1, 64),
		OrigQuantity:        strconv.FormatFloat(qty, 'f', -1, 64),
		ExecutedQuantity:    strconv.FormatFloat(qty, 'f', -1, 64),
		CummulativeQuoteQty: strconv.FormatFloat(quote, 'f', -1, 64),
		Status:              "FILLED",
		Type:                OrderTypeMarket,
		Side:                order.Side,
	}, nil
}
