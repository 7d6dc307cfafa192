package marketdata

import (
	"math"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// View is a read-only point-in-time slice of a panel: rows at or before the
// view day. Every scalar a decision depends on must come through here.
type View struct {
	panel *Panel
	upto  int // inclusive row index
	day   domain.Day
}

// Day returns the decision day of the view.
func (v View) Day() domain.Day { return v.day }

// Symbols returns the panel's instrument set.
func (v View) Symbols() []string { return v.panel.Symbols }

// Rows returns the number of trading days visible to the view.
func (v View) Rows() int { return v.upto + 1 }

// Price returns the latest forward-filled close at or before the view day.
func (v View) Price(symbol string) (float64, bool) {
	j, ok := v.panel.symIdx[symbol]
	if !ok {
		return 0, false
	}
	p := v.panel.closes[v.upto][j]
	if math.IsNaN(p) || p <= 0 {
		return 0, false
	}
	return p, true
}

// ADTV20 returns the shifted 20-day trading-value mean: the value visible at
// the view day reflects only strictly earlier bars.
func (v View) ADTV20(symbol string) (float64, bool) {
	j, ok := v.panel.symIdx[symbol]
	if !ok {
		return 0, false
	}
	a := v.panel.adtv20[v.upto][j]
	if math.IsNaN(a) {
		return 0, false
	}
	return a, true
}

// Volume returns the zero-filled volume at the view day.
func (v View) Volume(symbol string) (float64, bool) {
	j, ok := v.panel.symIdx[symbol]
	if !ok {
		return 0, false
	}
	return v.panel.volumes[v.upto][j], true
}

// History returns up to n closes ending at the view day, oldest first.
// False when the symbol is unknown or fewer than n defined rows exist.
func (v View) History(symbol string, n int) ([]float64, bool) {
	j, ok := v.panel.symIdx[symbol]
	if !ok {
		return nil, false
	}
	lo := v.upto - n + 1
	if lo < 0 {
		return nil, false
	}
	out := make([]float64, 0, n)
	for i := lo; i <= v.upto; i++ {
		p := v.panel.closes[i][j]
		if math.IsNaN(p) {
			return nil, false
		}
		out = append(out, p)
	}
	return out, true
}

// ReturnN computes the n-trading-day simple return ending at the view day.
func (v View) ReturnN(symbol string, n int) (float64, bool) {
	hist, ok := v.History(symbol, n+1)
	if !ok {
		return 0, false
	}
	base := hist[0]
	if base <= 0 {
		return 0, false
	}
	return hist[len(hist)-1]/base - 1, true
}

// DailyReturns returns the last n day-on-day returns ending at the view day.
func (v View) DailyReturns(symbol string, n int) ([]float64, bool) {
	hist, ok := v.History(symbol, n+1)
	if !ok {
		return nil, false
	}
	out := make([]float64, n)
	for i := 1; i < len(hist); i++ {
		if hist[i-1] == 0 {
			return nil, false
		}
		out[i-1] = hist[i]/hist[i-1] - 1
	}
	return out, true
}

// Prices returns the forward-filled close of every symbol with a defined
// price at the view day.
func (v View) Prices() map[string]float64 {
	out := make(map[string]float64, len(v.panel.Symbols))
	for _, sym := range v.panel.Symbols {
		if p, ok := v.Price(sym); ok {
			out[sym] = p
		}
	}
	return out
}

// BenchmarkView exposes the benchmark scalars visible at a decision day.
// SMA200 is pre-shifted by one day during Rebuild.
type BenchmarkView struct {
	Close  float64
	SMA200 float64
	OK     bool
}
