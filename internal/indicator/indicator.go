// Package indicator holds the technical indicator math shared by every
// strategy. All functions are pure and take closes ordered oldest to newest.
package indicator

import "math"

// SMA returns the mean of the last period values, or 0 when there are fewer
// than period values.
func SMA(data []float64, period int) float64 {
	if period <= 0 || len(data) < period {
		return 0
	}
	return Average(data[len(data)-period:])
}

// EMASeries returns the exponential moving average series. The first value is
// seeded with the SMA of the first period values; the result has
// len(data)-period+1 entries, or none when there is not enough data.
func EMASeries(data []float64, period int) []float64 {
	if period <= 0 || len(data) < period {
		return []float64{}
	}

	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(data)-period+1)
	ema := Average(data[:period])
	out = append(out, ema)
	for _, v := range data[period:] {
		ema = v*k + ema*(1-k)
		out = append(out, ema)
	}
	return out
}

// EMA returns the latest value of EMASeries, or 0 when there is not enough data.
func EMA(data []float64, period int) float64 {
	series := EMASeries(data, period)
	if len(series) == 0 {
		return 0
	}
	return Last(series)
}

// RSI computes the relative strength index with Wilder smoothing. It returns
// 100 when the smoothed average loss is exactly zero and a neutral 50 when
// there are not enough closes.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		var g, l float64
		if delta > 0 {
			g = delta
		} else {
			l = -delta
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult is the latest point of the MACD indicator.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// MACDLine returns EMA(12)-EMA(26) aligned on the shorter EMA(26) series.
func MACDLine(closes []float64) []float64 {
	fast := EMASeries(closes, macdFast)
	slow := EMASeries(closes, macdSlow)
	if len(slow) == 0 {
		return []float64{}
	}

	offset := len(fast) - len(slow)
	line := make([]float64, len(slow))
	for i := range slow {
		line[i] = fast[i+offset] - slow[i]
	}
	return line
}

// MACD returns the latest MACD, signal and histogram values. ok is false when
// there are not enough closes to seed the signal line.
func MACD(closes []float64) (MACDResult, bool) {
	line := MACDLine(closes)
	signal := EMASeries(line, macdSignal)
	if len(signal) == 0 {
		return MACDResult{}, false
	}

	m := Last(line)
	s := Last(signal)
	return MACDResult{MACD: m, Signal: s, Histogram: m - s}, true
}

// Bands is a Bollinger band snapshot.
type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// BollingerBands returns SMA(period) plus and minus k population standard
// deviations.
func BollingerBands(closes []float64, period int, k float64) Bands {
	middle := SMA(closes, period)
	sd := StdDev(closes, period)
	return Bands{
		Upper:  middle + k*sd,
		Middle: middle,
		Lower:  middle - k*sd,
	}
}

// StdDev returns the population standard deviation of the last period values.
func StdDev(data []float64, period int) float64 {
	if period <= 0 || len(data) < period {
		return 0
	}
	window := data[len(data)-period:]
	mean := Average(window)

	var sum float64
	for _, v := range window {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(period))
}

// Volatility is the 20 period standard deviation as a percentage of price.
func Volatility(closes []float64, price float64) float64 {
	if price == 0 {
		return 0
	}
	return StdDev(closes, 20) / price * 100
}

// Average returns the arithmetic mean, or 0 for an empty slice.
func Average(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// Last returns the newest value. It panics on an empty slice.
func Last(s []float64) float64 {
	return s[len(s)-1]
}

// LastValues returns at most size trailing values.
func LastValues(s []float64, size int) []float64 {
	if l := len(s); l > size {
		return s[l-size:]
	}
	return s
}

// Highest returns the maximum of the last period values.
func Highest(data []float64, period int) float64 {
	arr := LastValues(data, period)
	if len(arr) == 0 {
		return 0
	}
	maxVal := arr[0]
	for _, v := range arr {
		if v > maxVal {
			maxVal = v
		}
	}
	return maxVal
}

// Lowest returns the minimum of the last period values.
func Lowest(data []float64, period int) float64 {
	arr := LastValues(data, period)
	if len(arr) == 0 {
		return 0
	}
	minVal := arr[0]
	for _, v := range arr {
		if v < minVal {
			minVal = v
		}
	}
	return minVal
}
