package pricefeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"binance-signal-trader/internal/binance"
	"binance-signal-trader/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPrices struct {
	mock.Mock
}

func (m *mockPrices) Query(ctx context.Context, symbol, interval string, limit int) ([]models.PriceSample, error) {
	args := m.Called(ctx, symbol, interval, limit)
	return args.Get(0).([]models.PriceSample), args.Error(1)
}

type mockMarket struct {
	mock.Mock
	binance.MarketData
}

func (m *mockMarket) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]binance.Kline, error) {
	args := m.Called(ctx, symbol, interval, limit)
	return args.Get(0).([]binance.Kline), args.Error(1)
}

var start = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// newestFirst builds count samples spaced by step, returned newest first the
// way the history store does.
func newestFirst(count int, step time.Duration) []models.PriceSample {
	out := make([]models.PriceSample, count)
	for i := 0; i < count; i++ {
		c := float64(100 + i)
		out[count-1-i] = models.PriceSample{
			OpenTime: start.Add(time.Duration(i) * step),
			Open:     c, High: c + 1, Low: c - 1, Close: c, Volume: 1,
		}
	}
	return out
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("aggregated")
	require.NoError(t, err)
	assert.Equal(t, ModeAggregated, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeNative, m)

	_, err = ParseMode("carrier-pigeon")
	assert.Error(t, err)
}

func TestHourlyNativeIsChronological(t *testing.T) {
	prices := new(mockPrices)
	prices.On("Query", mock.Anything, "BTCUSDT", "1h", 3).Return(newestFirst(3, time.Hour), nil)

	feed, err := New(prices, nil, ModeNative, "1h")
	require.NoError(t, err)

	candles, err := feed.Series(context.Background(), "BTCUSDT", 3)

	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, start, candles[0].OpenTime)
	assert.Equal(t, 102.0, candles[2].Close)
}

func TestHourlyAggregated(t *testing.T) {
	prices := new(mockPrices)
	// 150 minutes: two full hours and a partial third.
	prices.On("Query", mock.Anything, "ETHUSDT", "1m", 180).Return(newestFirst(150, time.Minute), nil)

	feed, err := New(prices, nil, ModeAggregated, "1h")
	require.NoError(t, err)

	candles, err := feed.Series(context.Background(), "ETHUSDT", 3)

	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 159.0, candles[0].Close)
	assert.Equal(t, 160.0, candles[0].High)
	assert.Equal(t, 99.0, candles[0].Low)
	assert.Equal(t, 60.0, candles[0].Volume)
	assert.Equal(t, start.Add(2*time.Hour), candles[2].OpenTime)
	assert.Equal(t, 249.0, candles[2].Close)
	assert.Equal(t, 30.0, candles[2].Volume)
}

func TestHourlyAggregatedKeepsNewestBuckets(t *testing.T) {
	prices := new(mockPrices)
	// Starting mid-hour yields one more bucket than requested.
	samples := newestFirst(120, time.Minute)
	for i := range samples {
		samples[i].OpenTime = samples[i].OpenTime.Add(30 * time.Minute)
	}
	prices.On("Query", mock.Anything, "ETHUSDT", "1m", 120).Return(samples, nil)

	feed, err := New(prices, nil, ModeAggregated, "1h")
	require.NoError(t, err)

	candles, err := feed.Series(context.Background(), "ETHUSDT", 2)

	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, start.Add(time.Hour), candles[0].OpenTime)
	assert.Equal(t, 219.0, candles[1].Close)
}

func TestExchangeMode(t *testing.T) {
	market := new(mockMarket)
	market.On("GetKlines", mock.Anything, "SOLUSDT", "1h", 2).Return([]binance.Kline{
		{OpenTime: start, Close: 10},
		{OpenTime: start.Add(time.Hour), Close: 11},
	}, nil)
	market.On("GetKlines", mock.Anything, "SOLUSDT", "1m", 5).Return([]binance.Kline{}, errors.New("timeout"))

	feed, err := New(nil, market, ModeExchange, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, feed.Interval())

	candles, err := feed.Series(context.Background(), "SOLUSDT", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 11.0, candles[1].Close)

	_, err = feed.Minutes(context.Background(), "SOLUSDT", 5)
	assert.ErrorContains(t, err, "timeout")
}

func TestMinutesFromHistory(t *testing.T) {
	prices := new(mockPrices)
	prices.On("Query", mock.Anything, "BTCUSDT", "1m", 4).Return(newestFirst(4, time.Minute), nil)

	feed, err := New(prices, nil, ModeAggregated, "1h")
	require.NoError(t, err)

	candles, err := feed.Minutes(context.Background(), "BTCUSDT", 4)

	require.NoError(t, err)
	assert.Equal(t, []float64{100, 101, 102, 103}, []float64{candles[0].Close, candles[1].Close, candles[2].Close, candles[3].Close})
}

func TestNativeReadsConfiguredInterval(t *testing.T) {
	prices := new(mockPrices)
	prices.On("Query", mock.Anything, "BTCUSDT", "4h", 2).Return(newestFirst(2, 4*time.Hour), nil)

	feed, err := New(prices, nil, ModeNative, "4h")
	require.NoError(t, err)

	candles, err := feed.Series(context.Background(), "BTCUSDT", 2)

	require.NoError(t, err)
	require.Len(t, candles, 2)
	prices.AssertExpectations(t)
}

func TestExchangeReadsConfiguredInterval(t *testing.T) {
	market := new(mockMarket)
	market.On("GetKlines", mock.Anything, "SOLUSDT", "15m", 3).Return([]binance.Kline{{OpenTime: start, Close: 10}}, nil)

	feed, err := New(nil, market, ModeExchange, "15m")
	require.NoError(t, err)

	_, err = feed.Series(context.Background(), "SOLUSDT", 3)

	require.NoError(t, err)
	market.AssertExpectations(t)
}

func TestAggregatedRejectsOtherIntervals(t *testing.T) {
	_, err := New(nil, nil, ModeAggregated, "4h")
	assert.ErrorContains(t, err, "4h")
}
