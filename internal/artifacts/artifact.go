// Package artifacts persists finished runs: a JSON artefact per strategy for
// the dashboard plus a SQLite index of every run ever made.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/analytics"
	"github.com/Gotti0/kimum-trade-sub000/internal/backtest"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// AllocationEntry is one row of a global preset's final target allocation.
type AllocationEntry struct {
	Ticker string  `json:"ticker"`
	Weight float64 `json:"weight"`
}

// RunArtifact is the serialised outcome of one backtest run. Equity keys are
// ISO dates; duplicate in-memory days collapse to the post-rebalance mark.
type RunArtifact struct {
	Strategy    string    `json:"strategy"`
	GeneratedAt time.Time `json:"generated_at"`
	StartDay    string    `json:"start_day"`
	EndDay      string    `json:"end_day"`
	ElapsedSec  float64   `json:"elapsed_sec"`

	Config  map[string]any     `json:"config,omitempty"`
	Metrics map[string]float64 `json:"metrics"`

	EquityCurve     map[string]float64 `json:"equity_curve"`
	BenchmarkEquity map[string]float64 `json:"benchmark_equity,omitempty"`

	TradeSummary  map[string]int `json:"trade_summary"`
	RegimeSummary map[string]int `json:"regime_summary"`

	// Global-mode extras: the last rebalance's allocation and per-ticker
	// regime classification.
	GlobalAllocation []AllocationEntry `json:"global_allocation,omitempty"`
	RegimeByClass    map[string]string `json:"regime_by_class,omitempty"`

	FinalValue float64 `json:"final_value"`
	Turnover   float64 `json:"turnover"`
	Commission float64 `json:"commission"`
	Slippage   float64 `json:"slippage"`
}

// Build assembles the artefact from a run result and its analysis. config is
// echoed verbatim so a stored artefact is reproducible.
func Build(strategy string, result *backtest.Result, report *analytics.Report, config map[string]any) *RunArtifact {
	a := &RunArtifact{
		Strategy:      strategy,
		GeneratedAt:   time.Now().UTC(),
		StartDay:      result.StartDay.String(),
		EndDay:        result.EndDay.String(),
		ElapsedSec:    result.Elapsed.Seconds(),
		Config:        config,
		Metrics:       report.Metrics(),
		EquityCurve:   curveMap(result.Equity),
		TradeSummary:  make(map[string]int),
		RegimeSummary: make(map[string]int),
		FinalValue:    result.FinalValue,
		Turnover:      result.Turnover,
		Commission:    result.Commission,
		Slippage:      result.Slippage,
	}
	for action, n := range report.TradeCounts {
		a.TradeSummary[string(action)] = n
	}
	for label, n := range report.RegimeCounts {
		a.RegimeSummary[string(label)] = n
	}
	if len(result.BenchmarkEquity) > 0 {
		a.BenchmarkEquity = curveMap(result.BenchmarkEquity)
	}
	if result.Mode == backtest.ModeGlobal && len(result.Events) > 0 {
		last := result.Events[len(result.Events)-1]
		for _, ticker := range sortedWeightKeys(last.TargetWeights) {
			a.GlobalAllocation = append(a.GlobalAllocation, AllocationEntry{
				Ticker: ticker,
				Weight: last.TargetWeights[ticker],
			})
		}
		if len(last.PerTickerRegime) > 0 {
			a.RegimeByClass = make(map[string]string, len(last.PerTickerRegime))
			for ticker, label := range last.PerTickerRegime {
				a.RegimeByClass[ticker] = string(label)
			}
		}
	}
	return a
}

func curveMap(equity []domain.EquityPoint) map[string]float64 {
	out := make(map[string]float64, len(equity))
	for _, p := range equity {
		out[p.Day.String()] = p.Value // later duplicates overwrite
	}
	return out
}

func sortedWeightKeys(weights map[string]float64) []string {
	out := make([]string, 0, len(weights))
	for ticker := range weights {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

// Store writes each strategy's artefact to <root>/<strategy>/latest_result.json
// via temp-then-rename.
type Store struct {
	root string
	log  zerolog.Logger
}

func NewStore(root string, log zerolog.Logger) *Store {
	return &Store{root: root, log: log.With().Str("component", "artifact_store").Logger()}
}

func (s *Store) path(strategy string) string {
	return filepath.Join(s.root, strategy, "latest_result.json")
}

func (s *Store) Save(artifact *RunArtifact) (string, error) {
	path := s.path(artifact.Strategy)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to publish artifact: %w", err)
	}
	s.log.Info().Str("strategy", artifact.Strategy).Str("path", path).Msg("Artifact saved")
	return path, nil
}

// SaveChart writes the rendered equity chart next to the artefact.
func (s *Store) SaveChart(strategy string, png []byte) (string, error) {
	dir := filepath.Dir(s.path(strategy))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	path := filepath.Join(dir, "equity.png")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write chart: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to publish chart: %w", err)
	}
	return path, nil
}

// Latest loads the stored artefact for a strategy; a missing file returns
// (nil, nil).
func (s *Store) Latest(strategy string) (*RunArtifact, error) {
	data, err := os.ReadFile(s.path(strategy))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	var artifact RunArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	return &artifact, nil
}
