// Package scoring ranks instruments by blended momentum. The domestic scorer
// implements dual momentum (relative blend + absolute gate); the global
// scorer layers preset category weights on top of the same blend.
package scoring

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/marketdata"
)

// Lookback windows for the 3/6/12-month return blend, in trading days.
const (
	Lookback3M  = 63
	Lookback6M  = 126
	Lookback12M = 252
)

// DefaultLiquidityThreshold is the minimum 20-day average trade value for
// the domestic liquidity universe: 50 billion KRW.
const DefaultLiquidityThreshold = 50_000_000_000

// DomesticConfig parameterises the domestic dual-momentum selection.
type DomesticConfig struct {
	LiquidityThreshold float64 // minimum adtv20, KRW
	TopN               int
	RiskFreeRate       float64 // annual fraction; absolute-momentum hurdle
}

// ScoredAsset is one ranked instrument with its blend components.
type ScoredAsset struct {
	Symbol string  `json:"symbol"`
	Score  float64 `json:"score"`
	R3M    float64 `json:"r3m"`
	R6M    float64 `json:"r6m"`
	R12M   float64 `json:"r12m"`
}

// Scorer performs the domestic selection. It holds no per-run mutable state
// and is safe to share across concurrent runs.
type Scorer struct {
	cfg DomesticConfig
	log zerolog.Logger
}

func NewScorer(cfg DomesticConfig, log zerolog.Logger) *Scorer {
	return &Scorer{cfg: cfg, log: log.With().Str("component", "scorer").Logger()}
}

// Score computes the momentum blend for one symbol at the view day. The
// second return is false when the absolute momentum gate fails or any
// lookback lacks full clean history; a young instrument is never scored
// from a shorter window.
func (s *Scorer) Score(v marketdata.View, symbol string) (ScoredAsset, bool) {
	r3, ok3 := v.ReturnN(symbol, Lookback3M)
	r6, ok6 := v.ReturnN(symbol, Lookback6M)
	r12, ok12 := v.ReturnN(symbol, Lookback12M)
	if !ok3 || !ok6 || !ok12 {
		return ScoredAsset{}, false
	}
	if r12 < s.cfg.RiskFreeRate {
		return ScoredAsset{}, false
	}
	return ScoredAsset{
		Symbol: symbol,
		Score:  (r3 + r6 + r12) / 3,
		R3M:    r3,
		R6M:    r6,
		R12M:   r12,
	}, true
}

// SelectAssets runs the full domestic pipeline at the view day: liquidity
// universe, momentum blend, absolute gate, top-N cut. Result ordering is
// deterministic: descending score, symbol as tiebreak.
func (s *Scorer) SelectAssets(v marketdata.View) []ScoredAsset {
	var ranked []ScoredAsset
	for _, symbol := range v.Symbols() {
		adtv, ok := v.ADTV20(symbol)
		if !ok || adtv < s.cfg.LiquidityThreshold {
			continue
		}
		scored, ok := s.Score(v, symbol)
		if !ok {
			continue
		}
		ranked = append(ranked, scored)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})

	if s.cfg.TopN > 0 && len(ranked) > s.cfg.TopN {
		ranked = ranked[:s.cfg.TopN]
	}

	s.log.Debug().Str("day", v.Day().String()).Int("selected", len(ranked)).
		Msg("Domestic selection complete")
	return ranked
}

// Symbols projects a ranked slice onto its symbols.
func Symbols(ranked []ScoredAsset) []string {
	out := make([]string, len(ranked))
	for i, a := range ranked {
		out[i] = a.Symbol
	}
	return out
}
