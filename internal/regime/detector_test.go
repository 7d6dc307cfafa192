package regime

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/marketdata"
)

func TestClassifySingleIndex(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	assert.Equal(t, domain.RegimeBull,
		d.Classify(marketdata.BenchmarkView{Close: 105, SMA200: 100, OK: true}))
	assert.Equal(t, domain.RegimeBull,
		d.Classify(marketdata.BenchmarkView{Close: 100, SMA200: 100, OK: true}),
		"touching the mean is still BULL")
	assert.Equal(t, domain.RegimeBear,
		d.Classify(marketdata.BenchmarkView{Close: 95, SMA200: 100, OK: true}))
	assert.Equal(t, domain.RegimeBear,
		d.Classify(marketdata.BenchmarkView{}), "no benchmark data means no exposure")
}

func TestClassifyStrict(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	// Steady uptrend: fast mean above slow, positive signal.
	up := make([]float64, 120)
	for i := range up {
		up[i] = 100 + float64(i)
	}
	assert.Equal(t, domain.RegimeBull, d.ClassifyStrict(up))

	// Steady downtrend: fast below slow and negative MACD signal.
	down := make([]float64, 120)
	for i := range down {
		down[i] = 220 - float64(i)
	}
	assert.Equal(t, domain.RegimeBear, d.ClassifyStrict(down))

	// Long decline with a modest 5-day bounce: the 5-day mean climbs over
	// the 50-day while the MACD signal is still negative from the slide.
	mixed := make([]float64, 120)
	for i := 0; i < 115; i++ {
		mixed[i] = 220 - float64(i)
	}
	for i := 115; i < 120; i++ {
		mixed[i] = 135
	}
	assert.Equal(t, domain.RegimeWarning, d.ClassifyStrict(mixed))

	assert.Equal(t, domain.RegimeBear, d.ClassifyStrict(up[:30]),
		"short history cannot prove a trend")
}

func TestClassifyAssetsPerTicker(t *testing.T) {
	start := domain.MustParseDay("20200102")
	series := make(map[string]*domain.BarSeries)
	add := func(symbol string, f func(i int) float64) {
		s := &domain.BarSeries{Symbol: symbol}
		bars := make([]domain.Bar, 260)
		for i := range bars {
			c := f(i)
			bars[i] = domain.Bar{Day: start.AddDays(i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
		}
		s.Merge(bars)
		series[symbol] = s
	}
	add("SPY", func(i int) float64 { return 100 + float64(i) })
	add("EEM", func(i int) float64 { return 400 - float64(i) })
	add("SHY", func(i int) float64 { return 10 - float64(i)*0.01 }) // falling, but cash
	series["YOUNG"] = func() *domain.BarSeries {
		s := &domain.BarSeries{Symbol: "YOUNG"}
		var bars []domain.Bar
		for i := 200; i < 260; i++ {
			bars = append(bars, domain.Bar{Day: start.AddDays(i), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1000})
		}
		s.Merge(bars)
		return s
	}()

	h := marketdata.NewHandler(zerolog.Nop())
	require.NoError(t, h.Rebuild(series, nil))
	v, _, err := h.ViewAt(start.AddDays(259))
	require.NoError(t, err)

	d := NewDetector(zerolog.Nop())
	labels := d.ClassifyAssets(v, []string{"SPY", "EEM", "SHY", "YOUNG"}, "SHY")

	assert.Equal(t, domain.RegimeBull, labels["SPY"])
	assert.Equal(t, domain.RegimeBear, labels["EEM"])
	assert.Equal(t, domain.RegimeBull, labels["SHY"], "cash ticker is always BULL")
	assert.Equal(t, domain.RegimeBear, labels["YOUNG"], "insufficient history means BEAR")
}

func TestDeploymentFractions(t *testing.T) {
	assert.Equal(t, 1.0, Deployment(domain.RegimeBull))
	assert.Equal(t, 0.5, Deployment(domain.RegimeWarning))
	assert.Equal(t, 0.0, Deployment(domain.RegimeBear))
}
