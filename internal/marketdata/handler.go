package marketdata

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/indicators"
)

// benchmarkSMAWindow is the regime SMA window over benchmark closes.
const benchmarkSMAWindow = 200

// Handler owns one universe's panel plus the benchmark series used for
// regime classification. After Rebuild the panel is immutable; all decision
// reads go through ViewAt / CurrentPrices.
type Handler struct {
	log zerolog.Logger

	panel *Panel

	benchSymbol string
	benchDays   []domain.Day
	benchClose  []float64
	benchSMA200 []float64 // shifted by one day
}

// NewHandler creates an empty handler; call Rebuild before use.
func NewHandler(log zerolog.Logger) *Handler {
	return &Handler{log: log.With().Str("component", "data_handler").Logger()}
}

// Rebuild constructs the panels from the loaded series set. The benchmark
// series is kept on its own day axis; its SMA(200) is shifted by one so a
// decision at day t never sees day t's close inside the average.
func (h *Handler) Rebuild(seriesBySymbol map[string]*domain.BarSeries, benchmark *domain.BarSeries) error {
	if len(seriesBySymbol) == 0 {
		return &domain.ConfigError{Field: "universe", Reason: "no instruments loaded"}
	}

	panel := BuildPanel(seriesBySymbol)
	if len(panel.Symbols) == 0 {
		return &domain.ConfigError{Field: "universe", Reason: "no instrument has 20 rows of history"}
	}
	dropped := len(seriesBySymbol) - len(panel.Symbols)
	if dropped > 0 {
		h.log.Warn().Int("dropped", dropped).Msg("Dropped thin instruments from panel")
	}

	h.panel = panel
	h.setBenchmark(benchmark)

	h.log.Info().
		Int("symbols", len(panel.Symbols)).
		Int("days", len(panel.Days)).
		Str("benchmark", h.benchSymbol).
		Msg("Panel rebuilt")
	return nil
}

// RebuildFromPanel installs a previously built panel, typically a snapshot
// cache hit, skipping the derivation pass.
func (h *Handler) RebuildFromPanel(panel *Panel, benchmark *domain.BarSeries) error {
	if panel == nil || len(panel.Symbols) == 0 {
		return &domain.ConfigError{Field: "universe", Reason: "empty panel snapshot"}
	}
	h.panel = panel
	h.setBenchmark(benchmark)

	h.log.Info().
		Int("symbols", len(panel.Symbols)).
		Int("days", len(panel.Days)).
		Str("benchmark", h.benchSymbol).
		Msg("Panel restored from snapshot")
	return nil
}

func (h *Handler) setBenchmark(benchmark *domain.BarSeries) {
	if benchmark != nil && !benchmark.Empty() {
		h.benchSymbol = benchmark.Symbol
		h.benchDays = make([]domain.Day, benchmark.Len())
		h.benchClose = make([]float64, benchmark.Len())
		for i, b := range benchmark.Bars {
			h.benchDays[i] = b.Day
			h.benchClose[i] = b.Close
		}
		h.benchSMA200 = indicators.Shift(indicators.RollingMean(h.benchClose, benchmarkSMAWindow), 1)
	} else {
		h.benchSymbol = ""
		h.benchDays = nil
		h.benchClose = nil
		h.benchSMA200 = nil
	}
}

// Panel exposes the immutable panel for snapshotting. Decision code must not
// touch it directly.
func (h *Handler) Panel() *Panel { return h.panel }

// ViewAt returns the point-in-time view and benchmark scalars for a decision
// day. Benchmark scalars clamp to the most recent row at or before the day
// to tolerate market holidays.
func (h *Handler) ViewAt(day domain.Day) (View, BenchmarkView, error) {
	if h.panel == nil {
		return View{}, BenchmarkView{}, fmt.Errorf("panel not built")
	}
	row := h.panel.rowAtOrBefore(day)
	if row < 0 {
		return View{}, BenchmarkView{}, fmt.Errorf("%w: day %s precedes panel start", domain.ErrDataGap, day)
	}
	return View{panel: h.panel, upto: row, day: day}, h.benchmarkAt(day), nil
}

func (h *Handler) benchmarkAt(day domain.Day) BenchmarkView {
	if len(h.benchDays) == 0 {
		return BenchmarkView{}
	}
	idx := -1
	for i := len(h.benchDays) - 1; i >= 0; i-- {
		if h.benchDays[i] <= day {
			idx = i
			break
		}
	}
	if idx < 0 {
		return BenchmarkView{}
	}
	sma := h.benchSMA200[idx]
	if math.IsNaN(sma) {
		return BenchmarkView{}
	}
	return BenchmarkView{Close: h.benchClose[idx], SMA200: sma, OK: true}
}

// BenchmarkHistory returns up to n benchmark closes at or before day, oldest
// first. Used by the strict WARNING/BEAR classifier.
func (h *Handler) BenchmarkHistory(day domain.Day, n int) []float64 {
	if len(h.benchDays) == 0 {
		return nil
	}
	hi := -1
	for i := len(h.benchDays) - 1; i >= 0; i-- {
		if h.benchDays[i] <= day {
			hi = i
			break
		}
	}
	if hi < 0 {
		return nil
	}
	lo := hi - n + 1
	if lo < 0 {
		lo = 0
	}
	out := make([]float64, hi-lo+1)
	copy(out, h.benchClose[lo:hi+1])
	return out
}

// CurrentPrices returns each instrument's forward-filled close at the most
// recent panel row at or before day.
func (h *Handler) CurrentPrices(day domain.Day) map[string]float64 {
	if h.panel == nil {
		return nil
	}
	row := h.panel.rowAtOrBefore(day)
	if row < 0 {
		return nil
	}
	v := View{panel: h.panel, upto: row, day: day}
	return v.Prices()
}

// MonthEndDays returns the last trading day of each calendar month in the
// panel.
func (h *Handler) MonthEndDays() []domain.Day {
	if h.panel == nil {
		return nil
	}
	return h.panel.MonthEndDays()
}

// BacktestWindow returns the panel days starting warmup trading days after
// the first row.
func (h *Handler) BacktestWindow(warmup int) []domain.Day {
	if h.panel == nil || warmup >= len(h.panel.Days) {
		return nil
	}
	out := make([]domain.Day, len(h.panel.Days)-warmup)
	copy(out, h.panel.Days[warmup:])
	return out
}
