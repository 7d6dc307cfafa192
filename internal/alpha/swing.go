// Package alpha contains the screening predicates: swing (volume/momentum
// breakout), pullback (post-surge retracement), and the static phoenix target
// list. Filters evaluate one symbol's bar history as of a decision day and
// report which gate rejected it, so a screen can explain its output.
package alpha

import (
	"fmt"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/indicators"
)

// Candidate is a symbol that cleared every gate of a filter, with the
// metrics that justified it.
type Candidate struct {
	Symbol  string             `json:"symbol"`
	Day     domain.Day         `json:"day"`
	Filter  string             `json:"filter"`
	Metrics map[string]float64 `json:"metrics"`
}

// SwingConfig holds the swing filter thresholds.
type SwingConfig struct {
	MinADTV        float64 // KRW
	MinMarketCap   float64 // KRW; alternative liquidity credential
	MinRVOL        float64
	MinDailyReturn float64 // fraction
	DisparityLow   float64 // exclusive lower bound, percent
	DisparityHigh  float64 // inclusive upper bound, percent
}

// DefaultSwingConfig mirrors the production thresholds.
func DefaultSwingConfig() SwingConfig {
	return SwingConfig{
		MinADTV:        50_000_000_000,
		MinMarketCap:   300_000_000_000,
		MinRVOL:        2.5,
		MinDailyReturn: 0.04,
		DisparityLow:   100,
		DisparityHigh:  112,
	}
}

const (
	swingADTVWindow = 20
	swingRVOLWindow = 20
	swingFastSMA    = 10
	swingSlowEMA    = 20
	swingBaseSMA    = 20
)

// SwingFilter applies four gates in order, short-circuiting on the first
// failure: liquidity, relative volume, momentum, disparity band.
type SwingFilter struct {
	cfg SwingConfig
}

func NewSwingFilter(cfg SwingConfig) *SwingFilter {
	return &SwingFilter{cfg: cfg}
}

// Evaluate runs the gates over a bar history ending at the decision day.
// marketCap of 0 means unknown; the gate then rests on ADTV alone. The
// returned reason names the failed gate, empty on pass.
func (f *SwingFilter) Evaluate(symbol string, bars []domain.Bar, marketCap float64) (Candidate, string) {
	if len(bars) < swingRVOLWindow+1 {
		return Candidate{}, "insufficient history"
	}
	today := bars[len(bars)-1]
	prev := bars[len(bars)-2]

	// Gate 1: liquidity, ADTV or market-cap credential.
	adtv := indicators.ADTV(bars, swingADTVWindow)
	liquid := adtv != nil && *adtv >= f.cfg.MinADTV
	if !liquid && marketCap > 0 && marketCap >= f.cfg.MinMarketCap {
		liquid = true
	}
	if !liquid {
		return Candidate{}, "liquidity"
	}

	// Gate 2: relative volume.
	rvol := indicators.RVOL(bars, swingRVOLWindow)
	if rvol == nil || *rvol < f.cfg.MinRVOL {
		return Candidate{}, "rvol"
	}

	// Gate 3: momentum posture.
	closes := closesOf(bars)
	sma10 := indicators.SMA(closes, swingFastSMA)
	ema20 := indicators.EMA(closes, swingSlowEMA)
	if sma10 == nil || ema20 == nil {
		return Candidate{}, "insufficient history"
	}
	if today.Close <= *sma10 || today.Close <= *ema20 {
		return Candidate{}, "momentum"
	}
	if prev.Close <= 0 {
		return Candidate{}, "momentum"
	}
	dailyReturn := today.Close/prev.Close - 1
	if dailyReturn < f.cfg.MinDailyReturn {
		return Candidate{}, "momentum"
	}

	// Gate 4: disparity band against the 20-day mean.
	sma20 := indicators.SMA(closes, swingBaseSMA)
	if sma20 == nil {
		return Candidate{}, "insufficient history"
	}
	disparity := indicators.Disparity(today.Close, *sma20)
	if disparity == nil || *disparity <= f.cfg.DisparityLow || *disparity > f.cfg.DisparityHigh {
		return Candidate{}, "disparity"
	}

	return Candidate{
		Symbol: symbol,
		Day:    today.Day,
		Filter: "swing",
		Metrics: map[string]float64{
			"adtv20":       *adtv,
			"rvol":         *rvol,
			"daily_return": dailyReturn,
			"disparity":    *disparity,
		},
	}, ""
}

func closesOf(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func (f *SwingFilter) String() string {
	return fmt.Sprintf("swing(adtv>=%.0f, rvol>=%.1f)", f.cfg.MinADTV, f.cfg.MinRVOL)
}
