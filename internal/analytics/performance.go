// Package analytics turns an equity curve and its trade/rebalance logs into
// a performance report, and renders the equity chart.
package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

const tradingDaysPerYear = 252

// frozenRunThreshold flags symbols whose price did not move for this many
// consecutive marks, the signature of a delisted instrument carried forward.
const frozenRunThreshold = 10

// DrawdownEpisode describes the maximum drawdown: the peak it fell from, the
// trough, and the first recovery day when the curve regained the peak.
type DrawdownEpisode struct {
	Depth     float64    `json:"depth"` // negative fraction
	OnsetDay  domain.Day `json:"onset_day"`
	TroughDay domain.Day `json:"trough_day"`
	Recovery  domain.Day `json:"recovery_day,omitempty"`
	Recovered bool       `json:"recovered"`
}

// Report is the full performance summary of one run.
type Report struct {
	StartDay     domain.Day `json:"start_day"`
	EndDay       domain.Day `json:"end_day"`
	InitialValue float64    `json:"initial_value"`
	FinalValue   float64    `json:"final_value"`

	TotalReturn float64 `json:"total_return"`
	CAGR        float64 `json:"cagr"`
	AnnualVol   float64 `json:"annual_vol"`
	Sharpe      float64 `json:"sharpe"`
	Sortino     float64 `json:"sortino"` // +Inf when no losing day
	Calmar      float64 `json:"calmar"`

	MaxDrawdown DrawdownEpisode `json:"max_drawdown"`

	WinRateDaily   float64 `json:"win_rate_daily"`
	WinRateMonthly float64 `json:"win_rate_monthly"`
	BestDay        float64 `json:"best_day"`
	WorstDay       float64 `json:"worst_day"`
	BestMonth      float64 `json:"best_month"`
	WorstMonth     float64 `json:"worst_month"`
	ProfitFactor   float64 `json:"profit_factor"`

	TradeCounts  map[domain.TradeAction]int `json:"trade_counts"`
	RegimeCounts map[domain.RegimeLabel]int `json:"regime_counts"`
}

// Analyze computes the report. Duplicate equity days (rebalance re-records)
// collapse to the later entry. At least two distinct days are required.
func Analyze(equity []domain.EquityPoint, trades []domain.TradeRecord, events []domain.RebalanceEvent, riskFreeRate float64) (*Report, error) {
	curve := dedupe(equity)
	if len(curve) < 2 {
		return nil, &domain.ConfigError{Field: "equity_curve", Reason: "need at least two equity points"}
	}

	values := make([]float64, len(curve))
	for i, p := range curve {
		values[i] = p.Value
	}
	daily := pctChange(values)

	r := &Report{
		StartDay:     curve[0].Day,
		EndDay:       curve[len(curve)-1].Day,
		InitialValue: values[0],
		FinalValue:   values[len(values)-1],
		TradeCounts:  make(map[domain.TradeAction]int),
		RegimeCounts: make(map[domain.RegimeLabel]int),
	}
	r.TotalReturn = r.FinalValue/r.InitialValue - 1

	spanDays := float64(r.EndDay - r.StartDay)
	r.CAGR = math.Pow(r.FinalValue/r.InitialValue, 365.25/spanDays) - 1

	std := stat.StdDev(daily, nil)
	mean := stat.Mean(daily, nil)
	r.AnnualVol = std * math.Sqrt(tradingDaysPerYear)
	if std > 0 {
		r.Sharpe = (mean - riskFreeRate/tradingDaysPerYear) / std * math.Sqrt(tradingDaysPerYear)
	}
	r.Sortino = sortino(daily)

	r.MaxDrawdown = maxDrawdown(curve, values)
	if r.MaxDrawdown.Depth < 0 {
		r.Calmar = r.CAGR / math.Abs(r.MaxDrawdown.Depth)
	}

	r.WinRateDaily, r.BestDay, r.WorstDay = winStats(daily)
	monthly := monthlyReturns(curve)
	r.WinRateMonthly, r.BestMonth, r.WorstMonth = winStats(monthly)
	r.ProfitFactor = profitFactor(daily)

	for _, t := range trades {
		r.TradeCounts[t.Action]++
	}
	for _, e := range events {
		r.RegimeCounts[e.Regime]++
	}
	return r, nil
}

// Metrics flattens the report for serialisation. Infinities are clamped to
// zero-adjacent sentinels JSON can carry.
func (r *Report) Metrics() map[string]float64 {
	clamp := func(v float64) float64 {
		if math.IsInf(v, 1) {
			return math.MaxFloat64
		}
		if math.IsInf(v, -1) {
			return -math.MaxFloat64
		}
		return v
	}
	return map[string]float64{
		"total_return":     r.TotalReturn,
		"cagr":             r.CAGR,
		"annual_vol":       r.AnnualVol,
		"sharpe":           clamp(r.Sharpe),
		"sortino":          clamp(r.Sortino),
		"calmar":           clamp(r.Calmar),
		"mdd":              r.MaxDrawdown.Depth,
		"win_rate_daily":   r.WinRateDaily,
		"win_rate_monthly": r.WinRateMonthly,
		"best_day":         r.BestDay,
		"worst_day":        r.WorstDay,
		"best_month":       r.BestMonth,
		"worst_month":      r.WorstMonth,
		"profit_factor":    clamp(r.ProfitFactor),
	}
}

// dedupe keeps the later point for duplicate days; the input is day-ordered.
func dedupe(equity []domain.EquityPoint) []domain.EquityPoint {
	out := make([]domain.EquityPoint, 0, len(equity))
	for _, p := range equity {
		if n := len(out); n > 0 && out[n-1].Day == p.Day {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

func pctChange(values []float64) []float64 {
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

func sortino(daily []float64) float64 {
	var negatives []float64
	for _, r := range daily {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if len(negatives) == 0 {
		return math.Inf(1)
	}
	downside := stat.StdDev(negatives, nil)
	if downside == 0 || math.IsNaN(downside) {
		return math.Inf(1)
	}
	return stat.Mean(daily, nil) * tradingDaysPerYear / (downside * math.Sqrt(tradingDaysPerYear))
}

// maxDrawdown scans the running peak. The drawdown series is non-positive
// and bounded below by -1 for non-negative equity.
func maxDrawdown(curve []domain.EquityPoint, values []float64) DrawdownEpisode {
	episode := DrawdownEpisode{}
	peak := values[0]
	peakDay := curve[0].Day
	curOnset := peakDay

	for i, v := range values {
		if v > peak {
			peak = v
			peakDay = curve[i].Day
			continue
		}
		if peak == 0 {
			continue
		}
		dd := (v - peak) / peak
		if dd < episode.Depth {
			episode.Depth = dd
			episode.OnsetDay = peakDay
			episode.TroughDay = curve[i].Day
			curOnset = peakDay
		}
	}

	if episode.Depth == 0 {
		episode.OnsetDay = curve[0].Day
		episode.TroughDay = curve[0].Day
		episode.Recovered = true
		return episode
	}

	// First day after the trough where the curve regains the onset peak.
	onsetValue := 0.0
	for i, p := range curve {
		if p.Day == curOnset {
			onsetValue = values[i]
		}
		if p.Day > episode.TroughDay && onsetValue > 0 && values[i] >= onsetValue {
			episode.Recovery = p.Day
			episode.Recovered = true
			break
		}
	}
	return episode
}

func winStats(returns []float64) (winRate, best, worst float64) {
	if len(returns) == 0 {
		return 0, 0, 0
	}
	wins := 0
	best, worst = returns[0], returns[0]
	for _, r := range returns {
		if r > 0 {
			wins++
		}
		if r > best {
			best = r
		}
		if r < worst {
			worst = r
		}
	}
	return float64(wins) / float64(len(returns)), best, worst
}

func profitFactor(returns []float64) float64 {
	var pos, neg float64
	for _, r := range returns {
		if r > 0 {
			pos += r
		} else {
			neg += r
		}
	}
	if neg == 0 {
		if pos == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return pos / math.Abs(neg)
}

// monthlyReturns compounds the curve to month-end values and differences
// them.
func monthlyReturns(curve []domain.EquityPoint) []float64 {
	var monthEnd []float64
	for i, p := range curve {
		if i == len(curve)-1 || curve[i+1].Day.YearMonth() != p.Day.YearMonth() {
			monthEnd = append(monthEnd, p.Value)
		}
	}
	if len(monthEnd) < 2 {
		return nil
	}
	return pctChange(monthEnd)
}

// FrozenSymbols reports symbols whose close did not move for at least the
// threshold run inside the close history, the forward-fill signature of a
// delisting.
func FrozenSymbols(closesBySymbol map[string][]float64) []string {
	var out []string
	for symbol, closes := range closesBySymbol {
		run := 1
		for i := 1; i < len(closes); i++ {
			if closes[i] == closes[i-1] && !math.IsNaN(closes[i]) {
				run++
				if run > frozenRunThreshold {
					out = append(out, symbol)
					break
				}
			} else {
				run = 1
			}
		}
	}
	sort.Strings(out)
	return out
}
