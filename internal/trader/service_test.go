package trader

import (
	"context"
	"testing"
	"time"

	"binance-signal-trader/internal/binance"
	"binance-signal-trader/internal/models"
	"binance-signal-trader/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestInitiateManualBuysImmediately(t *testing.T) {
	env := newTestEnv(t)
	env.client.On("GetTickerPrice", mock.Anything, "BTCUSDT").Return(50000.0, nil)
	env.account.On("CreateMarketOrder", mock.Anything, mock.Anything).Return(filled("0.0006", "30"), nil).Once()

	res, err := env.service.InitiateTrade(context.Background(), "alice", InitiateRequest{
		Pair: "btcusdt", QuoteAmount: 30, TakeProfitPercentage: 3,
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, res.Status)
	assert.Empty(t, res.ExchangeError)

	stored := env.reload(t, res.TradeID)
	assert.Equal(t, "BTCUSDT", stored.Pair)
	assert.Equal(t, models.StrategyManual, stored.Strategy)
	assert.InDelta(t, 30, stored.QuoteAmount, 1e-9)
	assert.InDelta(t, models.TargetPrice(50000, 3, 0.001), *stored.TargetPrice, 1e-6)
}

func TestInitiateSignalWaits(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.service.InitiateTrade(context.Background(), "alice", InitiateRequest{
		Pair: "BTCUSDT", Strategy: models.StrategySignal,
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingBuySignal, res.Status)
	stored := env.reload(t, res.TradeID)
	assert.InDelta(t, 20, stored.QuoteAmount, 1e-9)
	assert.InDelta(t, 2, stored.TakeProfitPercentage, 1e-9)
	env.account.AssertNotCalled(t, "CreateMarketOrder", mock.Anything, mock.Anything)
}

func TestInitiateUsesOwnerDefaults(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.UpsertStrategyConfig(context.Background(), "alice", models.StrategyStrategic, StrategyConfigRequest{
		QuoteAmount: 50, TakeProfitPercentage: 4, DipPercentage: ptr(3.0), LookbackMinutes: ptr(90),
	})
	require.NoError(t, err)

	res, err := env.service.InitiateTrade(context.Background(), "alice", InitiateRequest{
		Pair: "BTCUSDT", Strategy: models.StrategyStrategic,
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingDipSignal, res.Status)
	stored := env.reload(t, res.TradeID)
	assert.InDelta(t, 50, stored.QuoteAmount, 1e-9)
	assert.InDelta(t, 4, stored.TakeProfitPercentage, 1e-9)
	require.NotNil(t, stored.DipPercentage)
	assert.InDelta(t, 3, *stored.DipPercentage, 1e-9)
	require.NotNil(t, stored.LookbackMinutes)
	assert.Equal(t, 90, *stored.LookbackMinutes)
}

func TestInitiateRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := map[string]InitiateRequest{
		"unknown strategy":   {Pair: "BTCUSDT", Strategy: "martingale", QuoteAmount: 20, TakeProfitPercentage: 2},
		"missing pair":       {QuoteAmount: 20, TakeProfitPercentage: 2},
		"below min notional": {Pair: "BTCUSDT", QuoteAmount: 5, TakeProfitPercentage: 2},
		"dip without window": {Pair: "BTCUSDT", Strategy: models.StrategyStrategic, QuoteAmount: 20, TakeProfitPercentage: 2, DipPercentage: ptr(5.0)},
		"unlisted symbol":    {Pair: "DOGEUSDT", QuoteAmount: 20, TakeProfitPercentage: 2},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.service.InitiateTrade(ctx, "alice", req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	trades, err := env.service.ListTrades(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestInitiateWithoutCredentials(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.InitiateTrade(context.Background(), "bob", InitiateRequest{
		Pair: "BTCUSDT", QuoteAmount: 20, TakeProfitPercentage: 2,
	})

	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	trades, err := env.service.ListTrades(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestInitiateSurfacesRejectedBuy(t *testing.T) {
	env := newTestEnv(t)
	env.client.On("GetTickerPrice", mock.Anything, "BTCUSDT").Return(50000.0, nil)
	env.account.On("CreateMarketOrder", mock.Anything, mock.Anything).Return(nil, &binance.APIError{
		StatusCode: 400, Code: -2010, Msg: "Account has insufficient balance for requested action.",
	})

	res, err := env.service.InitiateTrade(context.Background(), "alice", InitiateRequest{
		Pair: "BTCUSDT", QuoteAmount: 20, TakeProfitPercentage: 2,
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusError, res.Status)
	assert.Equal(t, "Account has insufficient balance for requested action.", res.Message)
}

func TestCloseSellsAndCompletes(t *testing.T) {
	env := newTestEnv(t)
	trade := env.seedActive(t, models.StrategySignal, 0.002)

	env.client.On("GetTickerPrice", mock.Anything, "BTCUSDT").Return(49000.0, nil)
	env.account.On("GetFreeBalance", mock.Anything, "BTC").Return(1.0, nil)
	env.account.On("CreateMarketOrder", mock.Anything, binance.OrderRequest{
		Symbol: "BTCUSDT", Side: binance.OrderSideSell, Quantity: "0.002",
	}).Return(filled("0.002", "98"), nil).Once()

	res, err := env.service.CloseTrade(context.Background(), "alice", trade.ID)

	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Empty(t, res.ExchangeError)

	stored := env.reload(t, trade.ID)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	require.NotNil(t, stored.ProfitLoss)
	assert.InDelta(t, -2, *stored.ProfitLoss, 1e-6)
	require.NotNil(t, stored.CompletedAt)
}

func TestCloseCompletesEvenWhenSellFails(t *testing.T) {
	env := newTestEnv(t)
	trade := env.seedActive(t, models.StrategyManual, 0.002)

	env.client.On("GetTickerPrice", mock.Anything, "BTCUSDT").Return(49000.0, nil)
	env.account.On("GetFreeBalance", mock.Anything, "BTC").Return(1.0, nil)
	env.account.On("CreateMarketOrder", mock.Anything, mock.Anything).Return(nil, &binance.APIError{
		StatusCode: 400, Code: -1013, Msg: "Filter failure: LOT_SIZE",
	})

	res, err := env.service.CloseTrade(context.Background(), "alice", trade.ID)

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, "Filter failure: LOT_SIZE", res.ExchangeError)
	stored := env.reload(t, trade.ID)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Contains(t, stored.Message, "Filter failure: LOT_SIZE")
}

func TestCloseWaitingTradeNeedsNoExchange(t *testing.T) {
	env := newTestEnv(t)
	trade := env.seed(t, models.StrategySignal, models.StatusAwaitingBuySignal)

	res, err := env.service.CloseTrade(context.Background(), "alice", trade.ID)

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)

	// Closing again is a no-op.
	res, err = env.service.CloseTrade(context.Background(), "alice", trade.ID)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	env.client.AssertNotCalled(t, "GetTickerPrice", mock.Anything, mock.Anything)
}

func TestCloseOtherOwnersTrade(t *testing.T) {
	env := newTestEnv(t)
	trade := env.seed(t, models.StrategyManual, models.StatusPending)

	_, err := env.service.CloseTrade(context.Background(), "mallory", trade.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteSellsThenRemoves(t *testing.T) {
	env := newTestEnv(t)
	trade := env.seedActive(t, models.StrategyManual, 0.002)

	env.client.On("GetTickerPrice", mock.Anything, "BTCUSDT").Return(49000.0, nil)
	env.account.On("GetFreeBalance", mock.Anything, "BTC").Return(1.0, nil)
	env.account.On("CreateMarketOrder", mock.Anything, mock.Anything).Return(filled("0.002", "98"), nil).Once()

	res, err := env.service.DeleteTrade(context.Background(), "alice", trade.ID)

	require.NoError(t, err)
	assert.True(t, res.Deleted)
	_, err = env.trades.Get(context.Background(), "alice", trade.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	env.account.AssertExpectations(t)
}

func TestDeleteCompletedTradeSkipsExchange(t *testing.T) {
	env := newTestEnv(t)
	trade := env.seedActive(t, models.StrategyManual, 0.002)
	trade.Status = models.StatusCompleted
	require.NoError(t, env.trades.Update(context.Background(), trade, models.StatusActive))

	res, err := env.service.DeleteTrade(context.Background(), "alice", trade.ID)

	require.NoError(t, err)
	assert.True(t, res.Deleted)
	env.client.AssertNotCalled(t, "GetTickerPrice", mock.Anything, mock.Anything)
	env.account.AssertNotCalled(t, "CreateMarketOrder", mock.Anything, mock.Anything)
}

func TestDeleteErrorTradeSellsHeldPosition(t *testing.T) {
	env := newTestEnv(t)
	trade := env.seedActive(t, models.StrategyManual, 0.01)
	trade.Status = models.StatusError
	trade.Message = "take profit sell rejected"
	require.NoError(t, env.trades.Update(context.Background(), trade, models.StatusActive))

	env.client.On("GetTickerPrice", mock.Anything, "BTCUSDT").Return(49000.0, nil)
	env.account.On("GetFreeBalance", mock.Anything, "BTC").Return(1.0, nil)
	env.account.On("CreateMarketOrder", mock.Anything, binance.OrderRequest{
		Symbol: "BTCUSDT", Side: binance.OrderSideSell, Quantity: "0.01",
	}).Return(filled("0.01", "490"), nil).Once()

	res, err := env.service.DeleteTrade(context.Background(), "alice", trade.ID)

	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Empty(t, res.ExchangeError)
	_, err = env.trades.Get(context.Background(), "alice", trade.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	env.account.AssertExpectations(t)
}

func TestDeleteErrorTradeWithoutPositionSkipsExchange(t *testing.T) {
	env := newTestEnv(t)
	trade := env.seed(t, models.StrategyManual, models.StatusError)

	res, err := env.service.DeleteTrade(context.Background(), "alice", trade.ID)

	require.NoError(t, err)
	assert.True(t, res.Deleted)
	env.client.AssertNotCalled(t, "GetTickerPrice", mock.Anything, mock.Anything)
}

func TestEditWaitingTrade(t *testing.T) {
	env := newTestEnv(t)
	trade := env.seed(t, models.StrategyStrategic, models.StatusAwaitingDipSignal)

	edited, err := env.service.EditTrade(context.Background(), "alice", trade.ID, EditRequest{
		QuoteAmount: ptr(40.0), DipPercentage: ptr(7.5),
	})

	require.NoError(t, err)
	assert.InDelta(t, 40, edited.QuoteAmount, 1e-9)
	stored := env.reload(t, trade.ID)
	assert.InDelta(t, 7.5, *stored.DipPercentage, 1e-9)
	assert.Equal(t, 60, *stored.LookbackMinutes)
}

func TestEditActiveRetargets(t *testing.T) {
	env := newTestEnv(t)
	trade := env.seedActive(t, models.StrategyManual, 0.002)

	_, err := env.service.EditTrade(context.Background(), "alice", trade.ID, EditRequest{TakeProfitPercentage: ptr(10.0)})
	require.NoError(t, err)

	stored := env.reload(t, trade.ID)
	assert.InDelta(t, models.TargetPrice(50000, 10, 0.001), *stored.TargetPrice, 1e-6)
	assert.InDelta(t, 50000, *stored.PurchasePrice, 1e-9)

	_, err = env.service.EditTrade(context.Background(), "alice", trade.ID, EditRequest{QuoteAmount: ptr(99.0)})
	assert.ErrorIs(t, err, ErrInvalidStateForEdit)
}

func TestEditRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	done := env.seed(t, models.StrategyManual, models.StatusCompleted)
	_, err := env.service.EditTrade(ctx, "alice", done.ID, EditRequest{TakeProfitPercentage: ptr(3.0)})
	assert.ErrorIs(t, err, ErrInvalidStateForEdit)

	signalTrade := env.seed(t, models.StrategySignal, models.StatusAwaitingBuySignal)
	_, err = env.service.EditTrade(ctx, "alice", signalTrade.ID, EditRequest{DipPercentage: ptr(3.0)})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.service.EditTrade(ctx, "alice", signalTrade.ID, EditRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestListTradesFiltersByStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, models.StrategyManual, models.StatusCompleted)
	env.seed(t, models.StrategySignal, models.StatusAwaitingBuySignal)
	env.seedActive(t, models.StrategyManual, 0.002)

	all, err := env.service.ListTrades(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	open, err := env.service.ListTrades(context.Background(), "alice", models.OpenStatuses...)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestUpsertStrategyConfigValidates(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.UpsertStrategyConfig(context.Background(), "alice", "martingale", StrategyConfigRequest{QuoteAmount: 1, TakeProfitPercentage: 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.service.UpsertStrategyConfig(context.Background(), "alice", models.StrategyPump, StrategyConfigRequest{QuoteAmount: 25, TakeProfitPercentage: 3})
	require.NoError(t, err)
	_, err = env.service.UpsertStrategyConfig(context.Background(), "alice", models.StrategyPump, StrategyConfigRequest{QuoteAmount: 30, TakeProfitPercentage: 3})
	require.NoError(t, err)

	cfg, err := env.configs.Get(context.Background(), "alice", models.StrategyPump)
	require.NoError(t, err)
	assert.InDelta(t, 30, cfg.QuoteAmount, 1e-9)
}

func TestStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	recent := env.seed(t, models.StrategyManual, models.StatusCompleted)
	recent.ProfitLoss = ptr(12.5)
	recent.CompletedAt = ptr(fixedNow.Add(-time.Hour))
	require.NoError(t, env.trades.Update(ctx, recent, recent.Status))

	old := env.seed(t, models.StrategyManual, models.StatusCompleted)
	old.ProfitLoss = ptr(-2.5)
	old.CompletedAt = ptr(fixedNow.Add(-72 * time.Hour))
	require.NoError(t, env.trades.Update(ctx, old, old.Status))

	env.seed(t, models.StrategySignal, models.StatusAwaitingBuySignal)

	stats, err := env.service.Statistics(ctx, "alice")

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Open)
	assert.EqualValues(t, 2, stats.AllTime.TotalTrades)
	assert.EqualValues(t, 1, stats.AllTime.ProfitableTrades)
	assert.InDelta(t, 0.5, stats.AllTime.WinRate, 1e-9)
	assert.InDelta(t, 10, stats.AllTime.TotalProfit, 1e-9)
	assert.EqualValues(t, 1, stats.Since24h.TotalTrades)
	assert.InDelta(t, 12.5, stats.Since24h.TotalProfit, 1e-9)
}
