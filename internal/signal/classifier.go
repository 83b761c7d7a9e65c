// Package signal turns indicator snapshots into entry decisions.
package signal

import (
	"fmt"
	"math"
	"strings"

	"binance-signal-trader/internal/indicator"
)

// Signal is the classifier verdict.
type Signal string

const (
	Buy  Signal = "BUY"
	Sell Signal = "SELL"
	Hold Signal = "HOLD"
)

// MinHistory is the number of closes needed for the 50 period moving average.
const MinHistory = 50

// Snapshot is the set of indicators the classifier scores.
type Snapshot struct {
	Price      float64              `json:"price"`
	RSI        float64              `json:"rsi"`
	MACD       indicator.MACDResult `json:"macd"`
	MA20       float64              `json:"ma20"`
	MA50       float64              `json:"ma50"`
	Bands      indicator.Bands      `json:"bands"`
	Volatility float64              `json:"volatility"`
}

// Result is the outcome of classifying a snapshot.
type Result struct {
	Signal       Signal   `json:"signal"`
	RawScore     int      `json:"raw_score"`
	Confidence   float64  `json:"confidence"`
	Insufficient bool     `json:"insufficient"`
	Snapshot     Snapshot `json:"snapshot"`
	Reasons      []string `json:"reasons"`
}

// Rationale is a one-line summary suitable for persisting on a trade.
func (r Result) Rationale() string {
	if r.Insufficient {
		return "insufficient price history: HOLD (0%)"
	}
	return fmt.Sprintf("%s score=%d confidence=%.1f%% [%s]",
		r.Signal, r.RawScore, r.Confidence, strings.Join(r.Reasons, ", "))
}

// Analyze computes the indicator snapshot over closes (oldest to newest) and
// classifies it against the last close. With fewer than MinHistory closes it
// reports HOLD at 0%.
func Analyze(closes []float64) Result {
	if len(closes) == 0 {
		return Result{Signal: Hold, Insufficient: true}
	}
	return AnalyzeAt(closes, indicator.Last(closes))
}

// AnalyzeAt is Analyze with the price compared against the indicators taken
// from the live ticker instead of the last close.
func AnalyzeAt(closes []float64, price float64) Result {
	if len(closes) < MinHistory {
		return Result{Signal: Hold, Insufficient: true}
	}

	macd, _ := indicator.MACD(closes)
	snap := Snapshot{
		Price:      price,
		RSI:        indicator.RSI(closes, 14),
		MACD:       macd,
		MA20:       indicator.SMA(closes, 20),
		MA50:       indicator.SMA(closes, 50),
		Bands:      indicator.BollingerBands(closes, 20, 2),
		Volatility: indicator.Volatility(closes, price),
	}
	return Classify(snap)
}

// Classify scores a snapshot.
func Classify(s Snapshot) Result {
	score := 0
	var reasons []string
	add := func(points int, reason string) {
		score += points
		reasons = append(reasons, fmt.Sprintf("%s %+d", reason, points))
	}

	switch {
	case s.RSI < 30:
		add(30, "rsi oversold")
	case s.RSI < 40:
		add(15, "rsi weak")
	case s.RSI > 70:
		add(-30, "rsi overbought")
	case s.RSI > 60:
		add(-15, "rsi strong")
	}

	if s.MACD.MACD > s.MACD.Signal && s.MACD.Histogram > 0 {
		add(25, "macd bullish")
	} else if s.MACD.MACD < s.MACD.Signal && s.MACD.Histogram < 0 {
		add(-25, "macd bearish")
	}

	if s.Price > s.MA20 {
		add(20, "above ma20")
	} else if s.Price < s.MA20 {
		add(-20, "below ma20")
	}

	if s.Price > s.MA50 {
		add(15, "above ma50")
	} else if s.Price < s.MA50 {
		add(-15, "below ma50")
	}

	if s.Price < s.Bands.Lower {
		add(10, "below lower band")
	} else if s.Price > s.Bands.Upper {
		add(-10, "above upper band")
	}

	if score > 100 {
		score = 100
	} else if score < -100 {
		score = -100
	}

	sig, conf := classifyScore(score)
	return Result{
		Signal:     sig,
		RawScore:   score,
		Confidence: conf,
		Snapshot:   s,
		Reasons:    reasons,
	}
}

// classifyScore maps a raw score to a signal and confidence. SELL confidence
// tops out below 50 while BUY starts at 50; the asymmetry is kept as is
// pending product review.
func classifyScore(score int) (Signal, float64) {
	raw := float64(score)
	var sig Signal
	var conf float64
	switch {
	case score >= 20:
		sig = Buy
		conf = 50 + math.Max(0, (raw-20)/80)*50
	case score <= -20:
		sig = Sell
		conf = 49.9 - math.Max(0, (math.Abs(raw)-20)/80)*49.9
	default:
		sig = Hold
		conf = 50 + raw/20*10
	}
	return sig, math.Min(100, math.Max(0, conf))
}
