// Package indicators contains the pure indicator functions and the rolling
// panel operations. All vectorisation lives here; callers never hand-roll
// rolling windows.
//
// Scalar functions return a nil pointer when there is insufficient data; that
// is the "none" result the screening pipeline skips on.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// SMA returns the arithmetic mean of the last n closes, or nil if len < n.
func SMA(prices []float64, n int) *float64 {
	if n <= 0 || len(prices) < n {
		return nil
	}
	out := talib.Sma(prices, n)
	v := out[len(out)-1]
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// EMA returns the exponential moving average seeded with the SMA of the
// first n values, k = 2/(n+1). Nil if len < n.
func EMA(prices []float64, n int) *float64 {
	if n <= 0 || len(prices) < n {
		return nil
	}
	out := talib.Ema(prices, n)
	v := out[len(out)-1]
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// ADTV returns the mean trading value over the last n bars, imputing
// close*volume where the upstream omitted the trade value.
func ADTV(bars []domain.Bar, n int) *float64 {
	if n <= 0 || len(bars) < n {
		return nil
	}
	sum := 0.0
	for _, b := range bars[len(bars)-n:] {
		sum += b.Value()
	}
	v := sum / float64(n)
	return &v
}

// RVOL returns today's trading value divided by the ADTV of the n bars
// preceding today. Nil when history is short or the trailing ADTV is zero.
func RVOL(bars []domain.Bar, n int) *float64 {
	if n <= 0 || len(bars) < n+1 {
		return nil
	}
	today := bars[len(bars)-1]
	trailing := ADTV(bars[:len(bars)-1], n)
	if trailing == nil || *trailing == 0 {
		return nil
	}
	v := today.Value() / *trailing
	return &v
}

// ATR returns the arithmetic mean of the last n true ranges, where
// TR_i = max(high-low, |high-prevClose|, |low-prevClose|). Requires n+1 bars
// so every range has a previous close.
func ATR(bars []domain.Bar, n int) *float64 {
	if n <= 0 || len(bars) < n+1 {
		return nil
	}
	sum := 0.0
	for i := len(bars) - n; i < len(bars); i++ {
		sum += trueRange(bars[i], bars[i-1].Close)
	}
	v := sum / float64(n)
	return &v
}

func trueRange(b domain.Bar, prevClose float64) float64 {
	tr := b.High - b.Low
	if d := math.Abs(b.High - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(b.Low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// MACDResult holds the full MACD series aligned to the input prices.
// Entries before the slow-period offset are NaN.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes EMA(fast)-EMA(slow) with an EMA(signalN) signal line over the
// whole price series. The standard parameterisation is (12, 26, 9).
func MACD(prices []float64, fast, slow, signalN int) *MACDResult {
	if len(prices) < slow+signalN {
		return nil
	}
	macd, signal, hist := talib.Macd(prices, fast, slow, signalN)

	// talib emits zeros in the warm-up region; mark them as undefined so a
	// decision can never read a warm-up value by accident.
	warmup := slow + signalN - 2
	for i := 0; i < warmup && i < len(macd); i++ {
		macd[i], signal[i], hist[i] = math.NaN(), math.NaN(), math.NaN()
	}
	return &MACDResult{MACD: macd, Signal: signal, Histogram: hist}
}

// LastSignal returns the most recent defined signal value, or nil.
func (m *MACDResult) LastSignal() *float64 {
	for i := len(m.Signal) - 1; i >= 0; i-- {
		if !math.IsNaN(m.Signal[i]) {
			v := m.Signal[i]
			return &v
		}
	}
	return nil
}

// Return computes the n-period simple return prices[-1]/prices[-n-1] - 1.
// Nil when fewer than n+1 prices exist: at len == n the return is undefined,
// at len == n+1 it is defined.
func Return(prices []float64, n int) *float64 {
	if n <= 0 || len(prices) < n+1 {
		return nil
	}
	base := prices[len(prices)-n-1]
	if base <= 0 {
		return nil
	}
	v := prices[len(prices)-1]/base - 1
	return &v
}

// Disparity returns (price/sma)*100, the proximity of price to a moving
// average. Nil when the SMA is zero.
func Disparity(price, sma float64) *float64 {
	if sma == 0 {
		return nil
	}
	v := price / sma * 100
	return &v
}

// AnnualisedVol returns the standard deviation of the given daily returns
// scaled by sqrt(252). Nil with fewer than two observations.
func AnnualisedVol(dailyReturns []float64) *float64 {
	if len(dailyReturns) < 2 {
		return nil
	}
	mean := 0.0
	for _, r := range dailyReturns {
		mean += r
	}
	mean /= float64(len(dailyReturns))

	ss := 0.0
	for _, r := range dailyReturns {
		d := r - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(dailyReturns)-1))
	v := std * math.Sqrt(252)
	return &v
}
