// Package regime classifies market state from moving-average and MACD
// posture. Labels drive capital deployment: BULL keeps full exposure,
// WARNING halves it, BEAR goes to cash.
package regime

import (
	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/indicators"
	"github.com/Gotti0/kimum-trade-sub000/internal/marketdata"
)

const (
	fastSMAWindow  = 5
	slowSMAWindow  = 50
	assetSMAWindow = 200

	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// Deployment fractions per label.
const (
	DeployFull = 1.0
	DeployHalf = 0.5
	DeployNone = 0.0
)

// Deployment maps a label to its capital deployment fraction.
func Deployment(label domain.RegimeLabel) float64 {
	switch label {
	case domain.RegimeWarning:
		return DeployHalf
	case domain.RegimeBear:
		return DeployNone
	default:
		return DeployFull
	}
}

type Detector struct {
	log zerolog.Logger
}

func NewDetector(log zerolog.Logger) *Detector {
	return &Detector{log: log.With().Str("component", "regime").Logger()}
}

// Classify is the single-index rule: BULL while the benchmark close holds at
// or above its 200-day mean. An unavailable benchmark reads as BEAR; trading
// blind is not an option.
func (d *Detector) Classify(bench marketdata.BenchmarkView) domain.RegimeLabel {
	if !bench.OK {
		return domain.RegimeBear
	}
	if bench.Close >= bench.SMA200 {
		return domain.RegimeBull
	}
	return domain.RegimeBear
}

// ClassifyStrict is the stricter benchmark rule over a raw close history
// (oldest first): SMA(5) below SMA(50) and a negative MACD signal together
// mean BEAR; either alone means WARNING. Too little history reads as BEAR.
func (d *Detector) ClassifyStrict(closes []float64) domain.RegimeLabel {
	if len(closes) < slowSMAWindow {
		return domain.RegimeBear
	}

	fast := indicators.SMA(closes, fastSMAWindow)
	slow := indicators.SMA(closes, slowSMAWindow)
	if fast == nil || slow == nil {
		return domain.RegimeBear
	}
	trendDown := *fast < *slow

	signalDown := false
	if macd := indicators.MACD(closes, macdFast, macdSlow, macdSignal); macd != nil {
		if sig := macd.LastSignal(); sig != nil {
			signalDown = *sig < 0
		}
	}

	switch {
	case trendDown && signalDown:
		return domain.RegimeBear
	case trendDown || signalDown:
		return domain.RegimeWarning
	default:
		return domain.RegimeBull
	}
}

// ClassifyAssets labels each ticker against its own 200-day mean at the view
// day, using only strictly earlier closes. The cash ticker is always BULL.
// A ticker with insufficient history is BEAR: no trend evidence, no exposure.
func (d *Detector) ClassifyAssets(v marketdata.View, tickers []string, cashTicker string) map[string]domain.RegimeLabel {
	out := make(map[string]domain.RegimeLabel, len(tickers))
	for _, ticker := range tickers {
		if ticker == cashTicker {
			out[ticker] = domain.RegimeBull
			continue
		}
		out[ticker] = d.classifyAsset(v, ticker)
	}
	return out
}

func (d *Detector) classifyAsset(v marketdata.View, ticker string) domain.RegimeLabel {
	// One extra row so the mean covers the 200 days before the decision day.
	hist, ok := v.History(ticker, assetSMAWindow+1)
	if !ok {
		return domain.RegimeBear
	}
	var sum float64
	for _, c := range hist[:assetSMAWindow] {
		sum += c
	}
	sma := sum / assetSMAWindow
	if hist[assetSMAWindow] >= sma {
		return domain.RegimeBull
	}
	return domain.RegimeBear
}
