// Package rebalance turns scored selections into target weight maps and
// records each decision as a RebalanceEvent. Regime labels come in from the
// caller; this package only assigns and re-routes weight.
package rebalance

import (
	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/indicators"
	"github.com/Gotti0/kimum-trade-sub000/internal/marketdata"
	"github.com/Gotti0/kimum-trade-sub000/internal/regime"
)

// WeightMethod selects the domestic sizing rule.
type WeightMethod string

const (
	MethodEqual      WeightMethod = "equal_weight"
	MethodInverseVol WeightMethod = "inverse_volatility"
)

// volWindow is the daily-return window behind inverse-volatility sizing.
const volWindow = 20

type Rebalancer struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Rebalancer {
	return &Rebalancer{log: log.With().Str("component", "rebalancer").Logger()}
}

// DomesticWeights assigns weights across the selected symbols under the given
// regime label. BEAR zeroes everything (full cash); WARNING halves the
// deployment. An empty selection yields an event with no weights.
func (r *Rebalancer) DomesticWeights(v marketdata.View, selected []string, label domain.RegimeLabel, method WeightMethod) (domain.RebalanceEvent, error) {
	event := domain.RebalanceEvent{
		Day:           v.Day(),
		Regime:        label,
		WeightMethod:  string(method),
		NumSelected:   len(selected),
		TargetWeights: make(map[string]float64, len(selected)),
	}

	if len(selected) == 0 {
		return event, nil
	}

	deploy := regime.Deployment(label)
	if deploy == 0 {
		for _, s := range selected {
			event.TargetWeights[s] = 0
		}
		return event, nil
	}

	var weights map[string]float64
	switch method {
	case MethodEqual:
		weights = equalWeights(selected)
	case MethodInverseVol:
		weights = r.inverseVolWeights(v, selected)
	default:
		return domain.RebalanceEvent{}, &domain.ConfigError{
			Field: "weight_method", Reason: "unsupported method " + string(method),
		}
	}

	for s, w := range weights {
		event.TargetWeights[s] = w * deploy
	}
	return event, nil
}

func equalWeights(selected []string) map[string]float64 {
	w := 1.0 / float64(len(selected))
	out := make(map[string]float64, len(selected))
	for _, s := range selected {
		out[s] = w
	}
	return out
}

// inverseVolWeights sizes positions proportionally to 1/sigma of 20-day daily
// returns (annualised). Symbols with an undefined or zero sigma are dropped
// and the remainder renormalises; if nothing has a valid sigma the whole
// selection falls back to equal weight.
func (r *Rebalancer) inverseVolWeights(v marketdata.View, selected []string) map[string]float64 {
	inv := make(map[string]float64, len(selected))
	var invSum float64
	for _, s := range selected {
		rets, ok := v.DailyReturns(s, volWindow)
		if !ok {
			r.log.Warn().Str("symbol", s).Str("day", v.Day().String()).
				Msg("No return history for volatility sizing, dropping")
			continue
		}
		sigma := indicators.AnnualisedVol(rets)
		if sigma == nil || *sigma == 0 {
			r.log.Warn().Str("symbol", s).Str("day", v.Day().String()).
				Msg("Degenerate volatility, dropping from sizing")
			continue
		}
		inv[s] = 1 / *sigma
		invSum += inv[s]
	}

	if invSum == 0 {
		return equalWeights(selected)
	}
	out := make(map[string]float64, len(inv))
	for s, iv := range inv {
		out[s] = iv / invSum
	}
	return out
}
