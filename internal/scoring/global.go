package scoring

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/marketdata"
)

// shiftEpsilon keeps shifted-positive weights defined when every passing
// ticker carries the same score.
const shiftEpsilon = 0.01

// GlobalAllocation is the scorer's output for one decision day. Weights
// include the cash diversions; the domestic bucket is carried separately as
// the proxy's weight, to be expanded across the top-N domestic symbols by the
// rebalancer.
type GlobalAllocation struct {
	Weights        map[string]float64 `json:"weights"`
	Scores         map[string]float64 `json:"scores"`
	DomesticProxy  string             `json:"domestic_proxy,omitempty"`
	DomesticWeight float64            `json:"domestic_weight"`
	KRTopN         int                `json:"kr_top_n"`
	CashTicker     string             `json:"cash_ticker"`
}

// GlobalScorer allocates preset category weights across a global ETF panel.
type GlobalScorer struct {
	riskFreeRate float64
	log          zerolog.Logger
}

func NewGlobalScorer(riskFreeRate float64, log zerolog.Logger) *GlobalScorer {
	return &GlobalScorer{
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("component", "global_scorer").Logger(),
	}
}

// Allocate distributes each category's strategic weight across its tickers.
// Per category: tickers failing the absolute-momentum gate (or lacking
// history) divert their per-head share of the category weight to the cash
// ticker; the remainder is split across passing tickers proportionally to a
// shifted-positive score. Final weights are normalised to 1.
func (g *GlobalScorer) Allocate(v marketdata.View, preset Preset) (GlobalAllocation, error) {
	if err := preset.Validate(); err != nil {
		return GlobalAllocation{}, err
	}

	alloc := GlobalAllocation{
		Weights:    make(map[string]float64),
		Scores:     make(map[string]float64),
		KRTopN:     preset.KRTopN,
		CashTicker: preset.cash(),
	}

	for _, cat := range preset.Categories {
		if cat.Weight == 0 {
			continue
		}
		if cat.Domestic {
			alloc.DomesticProxy = cat.Proxy
			alloc.DomesticWeight += cat.Weight
			continue
		}
		g.allocateCategory(v, cat, alloc)
	}

	normalise(alloc.Weights, 1-alloc.DomesticWeight)

	g.log.Debug().Str("day", v.Day().String()).Str("preset", preset.Name).
		Int("tickers", len(alloc.Weights)).Msg("Global allocation computed")
	return alloc, nil
}

func (g *GlobalScorer) allocateCategory(v marketdata.View, cat Category, alloc GlobalAllocation) {
	type scored struct {
		ticker string
		score  float64
	}
	var pass []scored
	var failCount int

	present := 0
	for _, ticker := range cat.Tickers {
		r3, ok3 := v.ReturnN(ticker, Lookback3M)
		r6, ok6 := v.ReturnN(ticker, Lookback6M)
		r12, ok12 := v.ReturnN(ticker, Lookback12M)
		if !ok3 || !ok6 || !ok12 {
			if _, known := v.Price(ticker); known {
				present++
				failCount++
			}
			continue
		}
		present++
		score := (r3 + r6 + r12) / 3
		alloc.Scores[ticker] = score
		if r12 < g.riskFreeRate {
			failCount++
			continue
		}
		pass = append(pass, scored{ticker, score})
	}
	if present == 0 {
		// No panel data at all for this category: everything to cash.
		alloc.Weights[alloc.CashTicker] += cat.Weight
		return
	}

	perHead := cat.Weight / float64(present)
	if failCount > 0 {
		alloc.Weights[alloc.CashTicker] += perHead * float64(failCount)
	}

	remaining := perHead * float64(len(pass))
	if remaining == 0 {
		return
	}

	minScore := math.Inf(1)
	for _, s := range pass {
		if s.score < minScore {
			minScore = s.score
		}
	}
	var shiftedSum float64
	for _, s := range pass {
		shiftedSum += s.score - minScore + shiftEpsilon
	}
	for _, s := range pass {
		alloc.Weights[s.ticker] += remaining * (s.score - minScore + shiftEpsilon) / shiftedSum
	}
}

// normalise scales weights so they sum to target; a zero sum is left alone.
func normalise(weights map[string]float64, target float64) {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 || target <= 0 {
		return
	}
	for k, w := range weights {
		weights[k] = w * target / sum
	}
}
