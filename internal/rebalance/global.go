package rebalance

import (
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/scoring"
)

// GlobalWeights applies per-asset regime routing to a scored global
// allocation: every non-cash ticker labelled BEAR hands its weight to the
// cash ticker, and the domestic bucket is expanded equally across the
// selected domestic symbols (the proxy ETF stands in when the selection is
// empty). The final weights are normalised to 1.
func (r *Rebalancer) GlobalWeights(day domain.Day, alloc scoring.GlobalAllocation, labels map[string]domain.RegimeLabel, krSelection []string) domain.RebalanceEvent {
	weights := make(map[string]float64, len(alloc.Weights)+len(krSelection))
	perTicker := make(map[string]domain.RegimeLabel, len(alloc.Weights))

	cash := alloc.CashTicker
	for ticker, w := range alloc.Weights {
		label, known := labels[ticker]
		if !known {
			label = domain.RegimeBull
		}
		if ticker == cash {
			label = domain.RegimeBull
		}
		perTicker[ticker] = label
		if label == domain.RegimeBear {
			weights[cash] += w
			continue
		}
		weights[ticker] += w
	}

	r.expandDomestic(day, alloc, labels, krSelection, weights, perTicker)

	normaliseTo(weights, 1)

	event := domain.RebalanceEvent{
		Day:             day,
		Regime:          overallLabel(weights, cash),
		WeightMethod:    "global_preset",
		NumSelected:     len(weights),
		PerTickerRegime: perTicker,
		TargetWeights:   weights,
	}
	return event
}

// expandDomestic routes the carried domestic bucket. The proxy's own regime
// gates the bucket: a BEAR proxy sends the whole bucket to cash.
func (r *Rebalancer) expandDomestic(day domain.Day, alloc scoring.GlobalAllocation, labels map[string]domain.RegimeLabel, krSelection []string, weights map[string]float64, perTicker map[string]domain.RegimeLabel) {
	if alloc.DomesticWeight == 0 {
		return
	}

	proxyLabel, known := labels[alloc.DomesticProxy]
	if !known {
		proxyLabel = domain.RegimeBull
	}
	perTicker[alloc.DomesticProxy] = proxyLabel

	if proxyLabel == domain.RegimeBear {
		weights[alloc.CashTicker] += alloc.DomesticWeight
		return
	}

	if len(krSelection) == 0 {
		weights[alloc.DomesticProxy] += alloc.DomesticWeight
		return
	}

	per := alloc.DomesticWeight / float64(len(krSelection))
	for _, symbol := range krSelection {
		weights[symbol] += per
	}
	r.log.Debug().Str("day", day.String()).Int("kr_symbols", len(krSelection)).
		Float64("bucket", alloc.DomesticWeight).Msg("Domestic bucket expanded")
}

func normaliseTo(weights map[string]float64, target float64) {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return
	}
	for k, w := range weights {
		weights[k] = w * target / sum
	}
}

// overallLabel summarises an event: BEAR when nothing but cash holds weight.
func overallLabel(weights map[string]float64, cash string) domain.RegimeLabel {
	for ticker, w := range weights {
		if ticker != cash && w > 0 {
			return domain.RegimeBull
		}
	}
	return domain.RegimeBear
}
