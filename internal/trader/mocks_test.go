package trader

import (
	"context"
	"testing"
	"time"

	"binance-signal-trader/internal/binance"
	"binance-signal-trader/internal/config"
	"binance-signal-trader/internal/database"
	"binance-signal-trader/internal/exchangerules"
	"binance-signal-trader/internal/indicator"
	"binance-signal-trader/internal/models"
	"binance-signal-trader/internal/repository"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MockRestClient is a mock implementation of the RestClientInterface.
type MockRestClient struct {
	mock.Mock
}

func (m *MockRestClient) GetServerTime(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRestClient) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockRestClient) Get24hTickers(ctx context.Context) ([]binance.Ticker24h, error) {
	args := m.Called(ctx)
	return args.Get(0).([]binance.Ticker24h), args.Error(1)
}

func (m *MockRestClient) GetExchangeInfo(ctx context.Context, symbols ...string) (*binance.ExchangeInfoResponse, error) {
	args := m.Called(ctx, symbols)
	info, _ := args.Get(0).(*binance.ExchangeInfoResponse)
	return info, args.Error(1)
}

func (m *MockRestClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]binance.Kline, error) {
	args := m.Called(ctx, symbol, interval, limit)
	return args.Get(0).([]binance.Kline), args.Error(1)
}

func (m *MockRestClient) Account(creds binance.Credentials) binance.AccountClient {
	args := m.Called(creds)
	return args.Get(0).(binance.AccountClient)
}

// MockAccount is a mock of one owner's signed client.
type MockAccount struct {
	mock.Mock
}

func (m *MockAccount) GetFreeBalance(ctx context.Context, asset string) (float64, error) {
	args := m.Called(ctx, asset)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockAccount) CreateMarketOrder(ctx context.Context, order binance.OrderRequest) (*binance.CreateOrderResponse, error) {
	args := m.Called(ctx, order)
	resp, _ := args.Get(0).(*binance.CreateOrderResponse)
	return resp, args.Error(1)
}

type mockFeed struct {
	mock.Mock
}

func (m *mockFeed) Series(ctx context.Context, symbol string, n int) ([]indicator.Candle, error) {
	args := m.Called(ctx, symbol, n)
	return args.Get(0).([]indicator.Candle), args.Error(1)
}

func (m *mockFeed) Minutes(ctx context.Context, symbol string, n int) ([]indicator.Candle, error) {
	args := m.Called(ctx, symbol, n)
	return args.Get(0).([]indicator.Candle), args.Error(1)
}

func (m *mockFeed) Klines(ctx context.Context, symbol, interval string, n int) ([]indicator.Candle, error) {
	args := m.Called(ctx, symbol, interval, n)
	return args.Get(0).([]indicator.Candle), args.Error(1)
}

func ptr[T any](v T) *T { return &v }

var (
	aliceCreds = binance.Credentials{APIKey: "alice-key", APISecret: "alice-secret"}
	fixedNow   = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

// testEnv wires the engine and service to an in-memory database, a mocked
// exchange and the real rule resolver.
type testEnv struct {
	db      *gorm.DB
	cfg     *config.Config
	client  *MockRestClient
	account *MockAccount
	feed    *mockFeed
	trades  *repository.TradeRepo
	configs *repository.StrategyConfigRepo
	engine  *Engine
	service *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewDatabase(&config.Database{Driver: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.ExchangeCredential{
		OwnerID: "alice", APIKey: aliceCreds.APIKey, APISecret: aliceCreds.APISecret,
	}).Error)

	cfg := &config.Config{
		Trading: config.Trading{
			QuoteAsset:         "USDT",
			FeeRate:            0.001,
			BuyConfidence:      70,
			SignalHistory:      100,
			DefaultQuoteAmount: 20,
			DefaultTakeProfit:  2,
		},
		Scanner: config.Scanner{TopN: 5, RSICeiling: 70, BreakoutLookback: 20, VolumeMultiplier: 1.5},
	}

	env := &testEnv{
		db:      db,
		cfg:     cfg,
		client:  new(MockRestClient),
		account: new(MockAccount),
		feed:    new(mockFeed),
		trades:  repository.NewTradeRepo(db),
		configs: repository.NewStrategyConfigRepo(db),
	}
	env.client.On("Account", aliceCreds).Return(env.account).Maybe()
	env.client.On("GetExchangeInfo", mock.Anything, mock.Anything).Return(&binance.ExchangeInfoResponse{
		Symbols: []binance.SymbolInfo{
			{
				Symbol: "BTCUSDT", Status: "TRADING", BaseAsset: "BTC", QuoteAsset: "USDT",
				Filters: []binance.Filter{
					{FilterType: "LOT_SIZE", MinQty: "0.00100000", StepSize: "0.00100000"},
					{FilterType: "NOTIONAL", MinNotional: "10.00000000"},
				},
			},
		},
	}, nil).Maybe()

	logger := zap.NewNop()
	rules := exchangerules.NewResolver(env.client, 5*time.Minute, logger)
	env.engine = NewEngine(logger, cfg, env.client, rules, env.feed, env.trades, repository.NewCredentialRepo(db))
	env.engine.now = func() time.Time { return fixedNow }
	env.service = NewService(logger, cfg, env.engine, env.trades, env.configs)
	return env
}

// seed stores a trade for alice on BTCUSDT.
func (e *testEnv) seed(t *testing.T, kind models.StrategyKind, status models.Status) *models.Trade {
	t.Helper()
	trade := &models.Trade{
		OwnerID:              "alice",
		Pair:                 "BTCUSDT",
		Strategy:             kind,
		QuoteAmount:          20,
		TakeProfitPercentage: 2,
		Status:               status,
	}
	if kind == models.StrategyStrategic {
		trade.DipPercentage = ptr(5.0)
		trade.LookbackMinutes = ptr(60)
	}
	require.NoError(t, e.trades.Create(context.Background(), trade))
	return trade
}

// seedActive stores an active trade holding qty bought at 50000.
func (e *testEnv) seedActive(t *testing.T, kind models.StrategyKind, qty float64) *models.Trade {
	t.Helper()
	trade := e.seed(t, kind, models.StatusActive)
	trade.Fill(qty, 50000, e.cfg.Trading.FeeRate)
	trade.BuyOrderID = "1001"
	require.NoError(t, e.trades.Update(context.Background(), trade, models.StatusActive))
	return trade
}

func (e *testEnv) reload(t *testing.T, id uint) *models.Trade {
	t.Helper()
	trade, err := e.trades.Get(context.Background(), "alice", id)
	require.NoError(t, err)
	return trade
}

func filled(qty, quote string) *binance.CreateOrderResponse {
	return &binance.CreateOrderResponse{
		Symbol:              "BTCUSDT",
		OrderID:             777,
		ExecutedQuantity:    qty,
		CummulativeQuoteQty: quote,
		Status:              "FILLED",
		Type:                binance.OrderTypeMarket,
	}
}
