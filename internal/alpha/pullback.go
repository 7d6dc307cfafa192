package alpha

import (
	"math"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/indicators"
)

// PullbackConfig holds the pullback filter thresholds.
type PullbackConfig struct {
	MinADTV          float64
	SurgeMinRVOL     float64
	SurgeMinReturn   float64
	SurgeLookback    int
	MaxVolumeRatio   float64 // today's volume over surge-day volume
	FibLow, FibHigh  float64
	MaxEMA5Disparity float64 // fraction, symmetric
}

func DefaultPullbackConfig() PullbackConfig {
	return PullbackConfig{
		MinADTV:          5_000_000_000,
		SurgeMinRVOL:     3.0,
		SurgeMinReturn:   0.10,
		SurgeLookback:    5,
		MaxVolumeRatio:   0.35,
		FibLow:           0.382,
		FibHigh:          0.618,
		MaxEMA5Disparity: 0.02,
	}
}

const pullbackRVOLWindow = 20

// PullbackFilter finds stocks that surged on heavy volume within the last
// few days and have since retraced into the fibonacci zone on drying volume,
// hugging the 5-day EMA.
type PullbackFilter struct {
	cfg PullbackConfig
}

func NewPullbackFilter(cfg PullbackConfig) *PullbackFilter {
	return &PullbackFilter{cfg: cfg}
}

// Evaluate runs the gates over a bar history ending at the decision day.
func (f *PullbackFilter) Evaluate(symbol string, bars []domain.Bar) (Candidate, string) {
	need := pullbackRVOLWindow + f.cfg.SurgeLookback + 1
	if len(bars) < need {
		return Candidate{}, "insufficient history"
	}
	today := bars[len(bars)-1]

	adtv := indicators.ADTV(bars, pullbackRVOLWindow)
	if adtv == nil || *adtv < f.cfg.MinADTV {
		return Candidate{}, "liquidity"
	}

	surgeIdx := f.findSurge(bars)
	if surgeIdx < 0 {
		return Candidate{}, "no surge"
	}
	surge := bars[surgeIdx]
	surgePrevClose := bars[surgeIdx-1].Close

	if surge.Volume <= 0 || today.Volume/surge.Volume > f.cfg.MaxVolumeRatio {
		return Candidate{}, "volume not contracted"
	}

	span := surge.High - surgePrevClose
	if span <= 0 {
		return Candidate{}, "degenerate surge range"
	}
	retracement := (surge.High - today.Close) / span
	if retracement < f.cfg.FibLow || retracement > f.cfg.FibHigh {
		return Candidate{}, "outside fib zone"
	}

	ema5 := indicators.EMA(closesOf(bars), 5)
	if ema5 == nil || *ema5 <= 0 {
		return Candidate{}, "insufficient history"
	}
	if math.Abs(today.Close / *ema5 - 1) > f.cfg.MaxEMA5Disparity {
		return Candidate{}, "away from 5-ema"
	}

	return Candidate{
		Symbol: symbol,
		Day:    today.Day,
		Filter: "pullback",
		Metrics: map[string]float64{
			"adtv20":      *adtv,
			"surge_day":   float64(surge.Day),
			"surge_high":  surge.High,
			"retracement": retracement,
			"vol_ratio":   today.Volume / surge.Volume,
		},
	}, ""
}

// findSurge returns the index of the most recent day within the lookback
// whose relative volume and day-on-day return both cleared the surge bars,
// or -1. Today itself is excluded; a surge is something to pull back from.
func (f *PullbackFilter) findSurge(bars []domain.Bar) int {
	last := len(bars) - 2
	first := len(bars) - 1 - f.cfg.SurgeLookback
	for i := last; i >= first; i-- {
		if i < pullbackRVOLWindow+1 {
			break
		}
		prevClose := bars[i-1].Close
		if prevClose <= 0 {
			continue
		}
		if bars[i].Close/prevClose-1 < f.cfg.SurgeMinReturn {
			continue
		}
		rvol := indicators.RVOL(bars[:i+1], pullbackRVOLWindow)
		if rvol == nil || *rvol < f.cfg.SurgeMinRVOL {
			continue
		}
		return i
	}
	return -1
}
