// Package marketdata builds the aligned panel matrices every strategy reads
// from, and gates all access through point-in-time views. Direct panel
// access from decision code is a defect; ViewAt(day) is the only door.
package marketdata

import (
	"math"
	"sort"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/indicators"
)

// minPanelRows is the minimum bar count for an instrument to enter the
// panel; anything shorter cannot even seed the 20-day trading-value mean.
const minPanelRows = 20

// adtvWindow is the rolling window for the trading-value mean.
const adtvWindow = 20

// Panel holds the dense matrices keyed on (tradingDay, instrument).
// Closes are forward-filled, volumes zero-filled, and ADTV20 is
// rolling_mean(close*volume, 20) shifted by one day so day t's value only
// reflects bars strictly before t. Panels are immutable after construction
// and safe to share across concurrent runs.
type Panel struct {
	Days    []domain.Day
	Symbols []string

	closes  [][]float64 // [dayIdx][symIdx]
	volumes [][]float64
	adtv20  [][]float64

	dayIdx map[domain.Day]int
	symIdx map[string]int
}

// BuildPanel assembles a panel from one series per symbol. Instruments with
// fewer than 20 observed bars are dropped.
func BuildPanel(seriesBySymbol map[string]*domain.BarSeries) *Panel {
	daySet := make(map[domain.Day]struct{})
	kept := make([]string, 0, len(seriesBySymbol))
	for sym, series := range seriesBySymbol {
		if series == nil || series.Len() < minPanelRows {
			continue
		}
		kept = append(kept, sym)
		for _, b := range series.Bars {
			daySet[b.Day] = struct{}{}
		}
	}
	sort.Strings(kept)

	days := make([]domain.Day, 0, len(daySet))
	for d := range daySet {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	p := &Panel{
		Days:    days,
		Symbols: kept,
		dayIdx:  make(map[domain.Day]int, len(days)),
		symIdx:  make(map[string]int, len(kept)),
	}
	for i, d := range days {
		p.dayIdx[d] = i
	}
	for i, s := range kept {
		p.symIdx[s] = i
	}

	nDays, nSyms := len(days), len(kept)
	p.closes = makeMatrix(nDays, nSyms)
	p.volumes = makeMatrix(nDays, nSyms)
	p.adtv20 = makeMatrix(nDays, nSyms)

	for j, sym := range kept {
		closeCol := nanColumn(nDays)
		volCol := nanColumn(nDays)
		for _, b := range seriesBySymbol[sym].Bars {
			i := p.dayIdx[b.Day]
			closeCol[i] = b.Close
			volCol[i] = b.Volume
		}

		closeCol = indicators.ForwardFill(closeCol)
		volCol = indicators.ZeroFill(volCol)

		value := make([]float64, nDays)
		for i := range value {
			value[i] = closeCol[i] * volCol[i]
		}
		adtvCol := indicators.Shift(indicators.RollingMean(value, adtvWindow), 1)

		for i := 0; i < nDays; i++ {
			p.closes[i][j] = closeCol[i]
			p.volumes[i][j] = volCol[i]
			p.adtv20[i][j] = adtvCol[i]
		}
	}

	return p
}

func makeMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}

// rowAtOrBefore returns the index of the latest panel row at or before day,
// or -1 when the day precedes the panel. Clamping tolerates market holidays.
func (p *Panel) rowAtOrBefore(day domain.Day) int {
	idx := sort.Search(len(p.Days), func(i int) bool { return p.Days[i] > day })
	return idx - 1
}

// MonthEndDays returns the last trading day of each calendar month present
// in the panel.
func (p *Panel) MonthEndDays() []domain.Day {
	var out []domain.Day
	for i, d := range p.Days {
		if i == len(p.Days)-1 || p.Days[i+1].YearMonth() != d.YearMonth() {
			out = append(out, d)
		}
	}
	return out
}
