package portfolio

import "github.com/Gotti0/kimum-trade-sub000/internal/domain"

// CostParams are per-market trading frictions, as fractions of the traded
// amount. Slippage is directional: buys fill above market, sells below.
type CostParams struct {
	Commission float64 `yaml:"commission"`
	Slippage   float64 `yaml:"slippage"`
}

// CostTable maps each market to its cost parameters.
type CostTable map[domain.Market]CostParams

// DefaultCostTable carries the production defaults: domestic 1.5bp
// commission / 20bp slippage, global 3bp / 10bp.
func DefaultCostTable() CostTable {
	domestic := CostParams{Commission: 0.00015, Slippage: 0.0020}
	global := CostParams{Commission: 0.0003, Slippage: 0.0010}
	return CostTable{
		domain.MarketDomestic:    domestic,
		domain.MarketDomesticATS: domestic,
		domain.MarketGlobalETF:   global,
		domain.MarketBenchmark:   global,
	}
}

// For resolves the parameters for a market, defaulting to the domestic row.
func (t CostTable) For(market domain.Market) CostParams {
	if p, ok := t[market]; ok {
		return p
	}
	return t[domain.MarketDomestic]
}

// BuyExec returns the effective buy fill price.
func (p CostParams) BuyExec(price float64) float64 { return price * (1 + p.Slippage) }

// SellExec returns the effective sell fill price.
func (p CostParams) SellExec(price float64) float64 { return price * (1 - p.Slippage) }
