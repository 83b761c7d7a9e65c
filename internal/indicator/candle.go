package indicator

import "time"

// Candle is an OHLCV bar.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Closes extracts close prices.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts high prices.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Volumes extracts volumes.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// AggregateHourly groups minute candles, ordered oldest to newest, into hourly
// buckets keyed by the open time truncated to the hour. The newest bucket may
// be partial; it is kept so the last close tracks the live price.
func AggregateHourly(minutes []Candle) []Candle {
	out := make([]Candle, 0, len(minutes)/60+1)
	for _, m := range minutes {
		bucket := m.OpenTime.UTC().Truncate(time.Hour)
		if n := len(out); n > 0 && out[n-1].OpenTime.Equal(bucket) {
			cur := &out[n-1]
			if m.High > cur.High {
				cur.High = m.High
			}
			if m.Low < cur.Low {
				cur.Low = m.Low
			}
			cur.Close = m.Close
			cur.Volume += m.Volume
			continue
		}
		out = append(out, Candle{
			OpenTime: bucket,
			Open:     m.Open,
			High:     m.High,
			Low:      m.Low,
			Close:    m.Close,
			Volume:   m.Volume,
		})
	}
	return out
}
