// Package screener runs the alpha filters over the latest stored bars and
// persists a ranked target list for the day.
package screener

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/alpha"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// Kind selects which filter a screen runs.
type Kind string

const (
	KindSwing    Kind = "swing"
	KindPullback Kind = "pullback"
)

// RankedCandidate is a passing symbol with its position in the ranking.
type RankedCandidate struct {
	alpha.Candidate
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
}

// Result is one complete screen: the ranked passes plus a tally of why the
// rest were rejected.
type Result struct {
	Kind        Kind              `json:"kind"`
	Day         domain.Day        `json:"day"`
	GeneratedAt time.Time         `json:"generated_at"`
	Universe    int               `json:"universe"`
	Candidates  []RankedCandidate `json:"candidates"`
	Rejections  map[string]int    `json:"rejections"`
}

// MarketCapFn resolves a symbol's market cap in KRW, 0 when unknown.
type MarketCapFn func(symbol string) float64

// Screener evaluates every symbol at its most recent bar. Evaluation is
// point-in-time by construction: only bars up to the decision day exist in
// the input.
type Screener struct {
	swing    *alpha.SwingFilter
	pullback *alpha.PullbackFilter
	caps     MarketCapFn
	log      zerolog.Logger
}

func New(swingCfg alpha.SwingConfig, pullbackCfg alpha.PullbackConfig, caps MarketCapFn, log zerolog.Logger) *Screener {
	if caps == nil {
		caps = func(string) float64 { return 0 }
	}
	return &Screener{
		swing:    alpha.NewSwingFilter(swingCfg),
		pullback: alpha.NewPullbackFilter(pullbackCfg),
		caps:     caps,
		log:      log.With().Str("component", "screener").Logger(),
	}
}

// Run screens the universe as of each symbol's latest bar. The screen day is
// the most recent bar day seen across the universe; symbols whose data ends
// earlier are still evaluated at their own last bar.
func (s *Screener) Run(kind Kind, seriesBySymbol map[string]*domain.BarSeries) (*Result, error) {
	if kind != KindSwing && kind != KindPullback {
		return nil, &domain.ConfigError{Field: "kind", Reason: fmt.Sprintf("unknown screen kind %q", kind)}
	}

	result := &Result{
		Kind:        kind,
		GeneratedAt: time.Now().UTC(),
		Universe:    len(seriesBySymbol),
		Rejections:  make(map[string]int),
	}

	symbols := make([]string, 0, len(seriesBySymbol))
	for symbol := range seriesBySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		series := seriesBySymbol[symbol]
		if series == nil || series.Len() == 0 {
			result.Rejections["no data"]++
			continue
		}
		if last := series.Bars[series.Len()-1].Day; last > result.Day {
			result.Day = last
		}

		var cand alpha.Candidate
		var reason string
		switch kind {
		case KindSwing:
			cand, reason = s.swing.Evaluate(symbol, series.Bars, s.caps(symbol))
		case KindPullback:
			cand, reason = s.pullback.Evaluate(symbol, series.Bars)
		}
		if reason != "" {
			result.Rejections[reason]++
			continue
		}
		result.Candidates = append(result.Candidates, RankedCandidate{
			Candidate: cand,
			Score:     screenScore(kind, cand),
		})
	}

	sort.Slice(result.Candidates, func(i, j int) bool {
		a, b := result.Candidates[i], result.Candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Symbol < b.Symbol
	})
	for i := range result.Candidates {
		result.Candidates[i].Rank = i + 1
	}

	s.log.Info().Str("kind", string(kind)).Int("universe", result.Universe).
		Int("candidates", len(result.Candidates)).Str("day", result.Day.String()).
		Msg("Screen complete")
	return result, nil
}

// screenScore orders candidates within a screen. Swing ranks by relative
// volume; pullback ranks by how close the retracement sits to the half-fib.
func screenScore(kind Kind, cand alpha.Candidate) float64 {
	switch kind {
	case KindSwing:
		return cand.Metrics["rvol"]
	case KindPullback:
		return -math.Abs(cand.Metrics["retracement"] - 0.5)
	}
	return 0
}

// Store persists screen results under dir as <kind>_latest.json, written via
// temp-then-rename so readers never see a partial file.
type Store struct {
	dir string
	log zerolog.Logger
}

func NewStore(dir string, log zerolog.Logger) *Store {
	return &Store{dir: dir, log: log.With().Str("component", "screener_store").Logger()}
}

func (st *Store) path(kind Kind) string {
	return filepath.Join(st.dir, string(kind)+"_latest.json")
}

func (st *Store) Save(result *Result) error {
	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create screener dir: %w", err)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal screen result: %w", err)
	}
	tmp := st.path(result.Kind) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write screen result: %w", err)
	}
	if err := os.Rename(tmp, st.path(result.Kind)); err != nil {
		return fmt.Errorf("failed to publish screen result: %w", err)
	}
	st.log.Debug().Str("kind", string(result.Kind)).Int("candidates", len(result.Candidates)).
		Msg("Screen result saved")
	return nil
}

// Latest loads the stored result for the kind. A missing file is not an
// error; it returns (nil, nil).
func (st *Store) Latest(kind Kind) (*Result, error) {
	data, err := os.ReadFile(st.path(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read screen result: %w", err)
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode screen result: %w", err)
	}
	return &result, nil
}
