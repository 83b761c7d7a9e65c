// Package pricefeed loads candle series for the signal rules, from the price
// history table or from the exchange.
package pricefeed

import (
	"context"
	"fmt"

	"binance-signal-trader/internal/binance"
	"binance-signal-trader/internal/indicator"
	"binance-signal-trader/internal/models"
)

// Mode selects where hourly candles come from.
type Mode string

const (
	// ModeNative reads stored 1h samples.
	ModeNative Mode = "native"
	// ModeAggregated reads stored 1m samples and buckets them per hour.
	ModeAggregated Mode = "aggregated"
	// ModeExchange reads klines from the exchange.
	ModeExchange Mode = "exchange"
)

// ParseMode validates a configured mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeNative, ModeAggregated, ModeExchange:
		return m, nil
	case "":
		return ModeNative, nil
	}
	return "", fmt.Errorf("unknown signal source %q", s)
}

// PriceQuerier is the read side of the price history store. Samples come back
// newest first.
type PriceQuerier interface {
	Query(ctx context.Context, symbol, interval string, limit int) ([]models.PriceSample, error)
}

// DefaultInterval is the signal candle interval when none is configured.
const DefaultInterval = "1h"

// Feed returns candles ordered oldest to newest.
type Feed struct {
	prices   PriceQuerier
	market   binance.MarketData
	mode     Mode
	interval string
}

// New returns a feed reading signal candles of interval according to mode.
// Aggregated mode builds hourly buckets from minute samples and accepts only
// the 1h interval.
func New(prices PriceQuerier, market binance.MarketData, mode Mode, interval string) (*Feed, error) {
	if interval == "" {
		interval = DefaultInterval
	}
	if mode == ModeAggregated && interval != DefaultInterval {
		return nil, fmt.Errorf("signal interval %q is not supported in %s mode", interval, mode)
	}
	return &Feed{prices: prices, market: market, mode: mode, interval: interval}, nil
}

// Mode reports the configured signal source.
func (f *Feed) Mode() Mode { return f.mode }

// Interval reports the signal candle interval.
func (f *Feed) Interval() string { return f.interval }

// Series returns up to n candles of the signal interval. In aggregated mode
// the newest bucket can be partial while ingestion is still writing the
// current hour.
func (f *Feed) Series(ctx context.Context, symbol string, n int) ([]indicator.Candle, error) {
	switch f.mode {
	case ModeExchange:
		return f.Klines(ctx, symbol, f.interval, n)
	case ModeAggregated:
		minutes, err := f.stored(ctx, symbol, "1m", n*60)
		if err != nil {
			return nil, err
		}
		hours := indicator.AggregateHourly(minutes)
		if len(hours) > n {
			hours = hours[len(hours)-n:]
		}
		return hours, nil
	default:
		return f.stored(ctx, symbol, f.interval, n)
	}
}

// Minutes returns the last n one minute candles, from the exchange in
// exchange mode and from the history table otherwise.
func (f *Feed) Minutes(ctx context.Context, symbol string, n int) ([]indicator.Candle, error) {
	if f.mode == ModeExchange {
		return f.Klines(ctx, symbol, "1m", n)
	}
	return f.stored(ctx, symbol, "1m", n)
}

// Klines returns the last n exchange candles of interval.
func (f *Feed) Klines(ctx context.Context, symbol, interval string, n int) ([]indicator.Candle, error) {
	klines, err := f.market.GetKlines(ctx, symbol, interval, n)
	if err != nil {
		return nil, err
	}
	out := make([]indicator.Candle, len(klines))
	for i, k := range klines {
		out[i] = indicator.Candle{
			OpenTime: k.OpenTime,
			Open:     k.Open,
			High:     k.High,
			Low:      k.Low,
			Close:    k.Close,
			Volume:   k.Volume,
		}
	}
	return out, nil
}

// stored reads samples and reverses them into chronological order.
func (f *Feed) stored(ctx context.Context, symbol, interval string, limit int) ([]indicator.Candle, error) {
	samples, err := f.prices.Query(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	out := make([]indicator.Candle, len(samples))
	for i, s := range samples {
		out[len(samples)-1-i] = indicator.Candle{
			OpenTime: s.OpenTime.UTC(),
			Open:     s.Open,
			High:     s.High,
			Low:      s.Low,
			Close:    s.Close,
			Volume:   s.Volume,
		}
	}
	return out, nil
}
