package exchangerules

import (
	"context"
	"errors"
	"testing"
	"time"

	"binance-signal-trader/internal/binance"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockMarket struct {
	mock.Mock
}

func (m *mockMarket) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockMarket) Get24hTickers(ctx context.Context) ([]binance.Ticker24h, error) {
	args := m.Called(ctx)
	return args.Get(0).([]binance.Ticker24h), args.Error(1)
}

func (m *mockMarket) GetExchangeInfo(ctx context.Context, symbols ...string) (*binance.ExchangeInfoResponse, error) {
	args := m.Called(ctx, symbols)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*binance.ExchangeInfoResponse), args.Error(1)
}

func (m *mockMarket) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]binance.Kline, error) {
	args := m.Called(ctx, symbol, interval, limit)
	return args.Get(0).([]binance.Kline), args.Error(1)
}

func ethInfo() *binance.ExchangeInfoResponse {
	return &binance.ExchangeInfoResponse{Symbols: []binance.SymbolInfo{{
		Symbol:     "ETHUSDT",
		BaseAsset:  "ETH",
		QuoteAsset: "USDT",
		Filters: []binance.Filter{
			{FilterType: "PRICE_FILTER"},
			{FilterType: "LOT_SIZE", MinQty: "0.00100000", StepSize: "0.00100000"},
			{FilterType: "NOTIONAL", MinNotional: "5.00000000"},
		},
	}}}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAdjustQuantity(t *testing.T) {
	testCases := []struct {
		name string
		qty  string
		step string
		want string
	}{
		{"TruncatesToStep", "0.123456", "0.001", "0.123"},
		{"AlreadyAligned", "0.123", "0.001", "0.123"},
		{"WholeSteps", "17.9", "1", "17"},
		{"CoarseStep", "0.00999", "0.01", "0"},
		{"FineStep", "1.23456789", "0.00000001", "1.23456789"},
		{"Negative", "-5", "0.1", "0"},
		{"NonPowerOfTenStep", "1.27", "0.05", "1.25"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := AdjustQuantity(d(tc.qty), d(tc.step))
			assert.True(t, d(tc.want).Equal(got), "got %s want %s", got, tc.want)
		})
	}
}

func TestAdjustQuantityProperties(t *testing.T) {
	steps := []string{"1", "0.1", "0.01", "0.001", "0.00001", "0.05"}
	qtys := []string{"0", "0.0000001", "0.5", "1.987654321", "123.456789", "99999.99999"}

	for _, s := range steps {
		step := d(s)
		for _, q := range qtys {
			qty := d(q)
			once := AdjustQuantity(qty, step)

			assert.True(t, once.LessThanOrEqual(qty), "%s/%s rounded up", q, s)
			assert.False(t, once.IsNegative())
			assert.True(t, once.Mod(step).IsZero(), "%s/%s not a step multiple", q, s)
			assert.True(t, once.Equal(AdjustQuantity(once, step)), "%s/%s not idempotent", q, s)
		}
	}
}

func TestStepPrecision(t *testing.T) {
	assert.Equal(t, int32(3), StepPrecision(d("0.001")))
	assert.Equal(t, int32(8), StepPrecision(d("0.00000001")))
	assert.Equal(t, int32(0), StepPrecision(d("1")))
	assert.Equal(t, int32(0), StepPrecision(d("10")))
	assert.Equal(t, int32(1), StepPrecision(d("0.5")))
	assert.Equal(t, int32(2), StepPrecision(d("0.05")))
	assert.Equal(t, int32(2), StepPrecision(d("0.010")))
}

func TestResolverCachesRules(t *testing.T) {
	market := new(mockMarket)
	market.On("GetExchangeInfo", mock.Anything, []string{"ETHUSDT"}).Return(ethInfo(), nil).Once()

	r := NewResolver(market, time.Minute, zap.NewNop())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	rule, err := r.Rule(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "ETH", rule.BaseAsset)
	assert.True(t, d("0.001").Equal(rule.StepSize))
	assert.True(t, d("5").Equal(rule.MinNotional))

	_, err = r.Rule(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	market.AssertNumberOfCalls(t, "GetExchangeInfo", 1)

	now = now.Add(2 * time.Minute)
	market.On("GetExchangeInfo", mock.Anything, []string{"ETHUSDT"}).Return(ethInfo(), nil).Once()
	_, err = r.Rule(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	market.AssertNumberOfCalls(t, "GetExchangeInfo", 2)
}

func TestResolverErrors(t *testing.T) {
	t.Run("UnknownSymbol", func(t *testing.T) {
		market := new(mockMarket)
		market.On("GetExchangeInfo", mock.Anything, []string{"NOPEUSDT"}).
			Return(&binance.ExchangeInfoResponse{}, nil)

		_, err := NewResolver(market, time.Minute, zap.NewNop()).Rule(context.Background(), "NOPEUSDT")
		assert.ErrorIs(t, err, ErrSymbolNotFound)
	})

	t.Run("ExchangeFailure", func(t *testing.T) {
		market := new(mockMarket)
		market.On("GetExchangeInfo", mock.Anything, []string{"ETHUSDT"}).
			Return(nil, errors.New("down"))

		_, err := NewResolver(market, time.Minute, zap.NewNop()).Rule(context.Background(), "ETHUSDT")
		assert.ErrorContains(t, err, "down")
	})
}

func TestPrepareSell(t *testing.T) {
	market := new(mockMarket)
	market.On("GetExchangeInfo", mock.Anything, []string{"ETHUSDT"}).Return(ethInfo(), nil)
	r := NewResolver(market, time.Minute, zap.NewNop())

	t.Run("Adjusts", func(t *testing.T) {
		order, err := r.PrepareSell(context.Background(), "ETHUSDT", 0.123456, 2000)
		require.NoError(t, err)
		assert.Equal(t, "0.123", order.String())
		assert.Equal(t, 0.123, order.Float())
	})

	t.Run("BelowMinQty", func(t *testing.T) {
		_, err := r.PrepareSell(context.Background(), "ETHUSDT", 0.0004, 2000)
		assert.ErrorIs(t, err, ErrQuantityTooSmall)
	})

	t.Run("BelowMinNotional", func(t *testing.T) {
		_, err := r.PrepareSell(context.Background(), "ETHUSDT", 0.002, 2000)
		assert.ErrorIs(t, err, ErrNotionalTooSmall)
	})
}

func TestValidateQuote(t *testing.T) {
	market := new(mockMarket)
	market.On("GetExchangeInfo", mock.Anything, []string{"ETHUSDT"}).Return(ethInfo(), nil)
	r := NewResolver(market, time.Minute, zap.NewNop())

	amount, err := r.ValidateQuote(context.Background(), "ETHUSDT", 20)
	require.NoError(t, err)
	assert.Equal(t, "20", amount)

	_, err = r.ValidateQuote(context.Background(), "ETHUSDT", 4.99)
	assert.ErrorIs(t, err, ErrNotionalTooSmall)

	_, err = r.ValidateQuote(context.Background(), "ETHUSDT", 0)
	assert.ErrorIs(t, err, ErrNotionalTooSmall)
}
