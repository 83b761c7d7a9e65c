package signal

import (
	"fmt"
	"strings"

	"binance-signal-trader/internal/indicator"
)

// MomentumParams configures the breakout entry used for top gainer candidates.
type MomentumParams struct {
	RSICeiling       float64
	BreakoutLookback int
	VolumeMultiplier float64
}

// DefaultMomentumParams matches the scanner defaults.
var DefaultMomentumParams = MomentumParams{
	RSICeiling:       70,
	BreakoutLookback: 20,
	VolumeMultiplier: 1.5,
}

// MomentumResult reports each check of the breakout entry.
type MomentumResult struct {
	Pass         bool
	HourlyRSI    float64
	Resistance   float64
	Breakout     bool
	VolumeRatio  float64
	VolumeOK     bool
	EMA20        float64
	AboveEMA     bool
	Insufficient bool
}

// Rationale summarises the checks.
func (r MomentumResult) Rationale() string {
	if r.Insufficient {
		return "momentum: insufficient candle history"
	}
	parts := []string{
		fmt.Sprintf("1h rsi=%.1f", r.HourlyRSI),
		fmt.Sprintf("breakout=%t (resistance %.8g)", r.Breakout, r.Resistance),
		fmt.Sprintf("volume=%.0f%% of avg", r.VolumeRatio*100),
		fmt.Sprintf("above ema20=%t", r.AboveEMA),
	}
	verdict := "rejected"
	if r.Pass {
		verdict = "confirmed"
	}
	return "momentum " + verdict + ": " + strings.Join(parts, ", ")
}

// EvaluateMomentum checks a top gainer for a confirmed breakout: hourly RSI
// below the ceiling, the last 5m close above the highest high of the previous
// lookback candles on at least VolumeMultiplier times their average volume,
// and the close above the 5m EMA20.
func EvaluateMomentum(hourly, fiveMinute []indicator.Candle, p MomentumParams) MomentumResult {
	lookback := p.BreakoutLookback
	if len(hourly) < 15 || len(fiveMinute) < lookback+1 || len(fiveMinute) < 20 {
		return MomentumResult{Insufficient: true}
	}

	var res MomentumResult
	res.HourlyRSI = indicator.RSI(indicator.Closes(hourly), 14)

	last := fiveMinute[len(fiveMinute)-1]
	prior := fiveMinute[len(fiveMinute)-1-lookback : len(fiveMinute)-1]

	res.Resistance = indicator.Highest(indicator.Highs(prior), lookback)
	res.Breakout = last.Close > res.Resistance

	avgVolume := indicator.Average(indicator.Volumes(prior))
	if avgVolume > 0 {
		res.VolumeRatio = last.Volume / avgVolume
	}
	res.VolumeOK = res.VolumeRatio >= p.VolumeMultiplier

	res.EMA20 = indicator.EMA(indicator.Closes(fiveMinute), 20)
	res.AboveEMA = last.Close > res.EMA20

	res.Pass = res.HourlyRSI < p.RSICeiling && res.Breakout && res.VolumeOK && res.AboveEMA
	return res
}

// DipResult reports the dip rule for the strategic strategy.
type DipResult struct {
	Fire    bool
	High    float64
	DropPct float64
	Bounce  bool
}

// Rationale summarises the dip check.
func (r DipResult) Rationale(dipPct float64) string {
	return fmt.Sprintf("dip %.2f%% from high %.8g (need %.2f%%), bounce=%t, fire=%t",
		r.DropPct, r.High, dipPct, r.Bounce, r.Fire)
}

// EvaluateDip fires when price has fallen at least dipPct percent from the
// highest high in the window. The bounce check, the last close above the one
// before it, is reported but does not gate the signal.
func EvaluateDip(window []indicator.Candle, price, dipPct float64) DipResult {
	if len(window) == 0 {
		return DipResult{}
	}

	var res DipResult
	res.High = indicator.Highest(indicator.Highs(window), len(window))
	if res.High > 0 {
		res.DropPct = (res.High - price) / res.High * 100
	}
	if n := len(window); n >= 2 {
		res.Bounce = window[n-1].Close > window[n-2].Close
	}
	res.Fire = res.DropPct >= dipPct
	return res
}
