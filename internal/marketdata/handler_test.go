package marketdata

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// seriesOf builds a daily series from consecutive trading days starting at
// start, with the given closes. Volume is constant 100 unless overridden.
func seriesOf(symbol string, start domain.Day, closes []float64) *domain.BarSeries {
	s := &domain.BarSeries{Symbol: symbol}
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Day: start.AddDays(i), Open: c, High: c, Low: c, Close: c, Volume: 100,
		}
	}
	s.Merge(bars)
	return s
}

func rampCloses(n int, base float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + float64(i)
	}
	return out
}

func TestBuildPanelDropsThinInstruments(t *testing.T) {
	start := domain.MustParseDay("20240102")
	series := map[string]*domain.BarSeries{
		"AAA": seriesOf("AAA", start, rampCloses(30, 100)),
		"BBB": seriesOf("BBB", start, rampCloses(5, 50)), // below minimum
	}

	p := BuildPanel(series)
	assert.Equal(t, []string{"AAA"}, p.Symbols)
	assert.Len(t, p.Days, 30)
}

func TestPanelForwardFillsClosesAndZeroFillsVolumes(t *testing.T) {
	start := domain.MustParseDay("20240102")
	full := seriesOf("AAA", start, rampCloses(30, 100))

	// BBB misses day index 25 entirely.
	gappy := &domain.BarSeries{Symbol: "BBB"}
	var bars []domain.Bar
	for i := 0; i < 30; i++ {
		if i == 25 {
			continue
		}
		c := 50.0 + float64(i)
		bars = append(bars, domain.Bar{Day: start.AddDays(i), Open: c, High: c, Low: c, Close: c, Volume: 100})
	}
	gappy.Merge(bars)

	p := BuildPanel(map[string]*domain.BarSeries{"AAA": full, "BBB": gappy})
	v := View{panel: p, upto: 25, day: start.AddDays(25)}

	price, ok := v.Price("BBB")
	require.True(t, ok)
	assert.Equal(t, 50.0+24, price, "close carries forward through the gap")

	vol, ok := v.Volume("BBB")
	require.True(t, ok)
	assert.Zero(t, vol, "missing volume means no trading, not carried volume")
}

func TestADTVReflectsOnlyStrictlyEarlierBars(t *testing.T) {
	start := domain.MustParseDay("20240102")
	closes := rampCloses(30, 100)
	p := BuildPanel(map[string]*domain.BarSeries{
		"AAA": seriesOf("AAA", start, closes),
	})

	// Row 20 is the first defined shifted value: the mean of rows 0..19.
	vEarly := View{panel: p, upto: 19, day: start.AddDays(19)}
	_, ok := vEarly.ADTV20("AAA")
	assert.False(t, ok, "window not yet seeded")

	v := View{panel: p, upto: 20, day: start.AddDays(20)}
	got, ok := v.ADTV20("AAA")
	require.True(t, ok)

	var want float64
	for i := 0; i < 20; i++ {
		want += closes[i] * 100
	}
	want /= 20
	assert.InDelta(t, want, got, 1e-9, "day 20's value excludes day 20's bar")
}

func TestADTVDefinedForLateListing(t *testing.T) {
	start := domain.MustParseDay("20240102")
	p := BuildPanel(map[string]*domain.BarSeries{
		"OLD": seriesOf("OLD", start, rampCloses(120, 100)),
		"NEW": seriesOf("NEW", start.AddDays(60), rampCloses(60, 500)),
	})
	require.Len(t, p.Days, 120)

	// Inside the pre-listing gap the stat is undefined.
	vGap := View{panel: p, upto: 70, day: start.AddDays(70)}
	_, ok := vGap.ADTV20("NEW")
	assert.False(t, ok, "window still overlaps the pre-listing gap")

	// Twenty post-listing bars later the shifted window is clean; the gap
	// must not poison it.
	v := View{panel: p, upto: 119, day: start.AddDays(119)}
	got, ok := v.ADTV20("NEW")
	require.True(t, ok, "late listing earns its liquidity stat")

	var want float64
	for i := 39; i < 59; i++ { // listing days 39..58 are panel rows 99..118
		want += (500 + float64(i)) * 100
	}
	want /= 20
	assert.InDelta(t, want, got, 1e-9)
}

func TestViewHistoryAndReturns(t *testing.T) {
	start := domain.MustParseDay("20240102")
	p := BuildPanel(map[string]*domain.BarSeries{
		"AAA": seriesOf("AAA", start, rampCloses(30, 100)),
	})
	v := View{panel: p, upto: 29, day: start.AddDays(29)}

	hist, ok := v.History("AAA", 5)
	require.True(t, ok)
	assert.Equal(t, []float64{125, 126, 127, 128, 129}, hist)

	r, ok := v.ReturnN("AAA", 10)
	require.True(t, ok)
	assert.InDelta(t, 129.0/119.0-1, r, 1e-12)

	rets, ok := v.DailyReturns("AAA", 3)
	require.True(t, ok)
	require.Len(t, rets, 3)
	assert.InDelta(t, 129.0/128.0-1, rets[2], 1e-12)

	_, ok = v.History("AAA", 31)
	assert.False(t, ok, "more history than the panel holds")
}

func TestHandlerViewAtClampsHolidays(t *testing.T) {
	start := domain.MustParseDay("20240102")
	h := NewHandler(zerolog.Nop())
	require.NoError(t, h.Rebuild(map[string]*domain.BarSeries{
		"AAA": seriesOf("AAA", start, rampCloses(30, 100)),
	}, nil))

	last := start.AddDays(29)
	holiday := last.AddDays(2)

	v, _, err := h.ViewAt(holiday)
	require.NoError(t, err)
	price, ok := v.Price("AAA")
	require.True(t, ok)
	assert.Equal(t, 129.0, price, "holiday clamps to last trading row")

	_, _, err = h.ViewAt(start.AddDays(-1))
	assert.ErrorIs(t, err, domain.ErrDataGap)
}

func TestHandlerBenchmarkSMAShifted(t *testing.T) {
	start := domain.MustParseDay("20200102")
	n := 205
	closes := rampCloses(n, 1000)

	h := NewHandler(zerolog.Nop())
	require.NoError(t, h.Rebuild(map[string]*domain.BarSeries{
		"AAA": seriesOf("AAA", start, rampCloses(n, 100)),
	}, seriesOf("SPY", start, closes)))

	// Index 199 has a defined raw SMA but the shifted value is still NaN.
	_, bv, err := h.ViewAt(start.AddDays(199))
	require.NoError(t, err)
	assert.False(t, bv.OK, "shifted SMA undefined on its seed day")

	_, bv, err = h.ViewAt(start.AddDays(200))
	require.NoError(t, err)
	require.True(t, bv.OK)

	var want float64
	for i := 0; i < 200; i++ {
		want += closes[i]
	}
	want /= 200
	assert.InDelta(t, want, bv.SMA200, 1e-9, "day 200 sees the mean of days 0..199 only")
	assert.Equal(t, closes[200], bv.Close)
}

func TestHandlerMonthEndDays(t *testing.T) {
	// Jan 29..31 and Feb 2..4 (skipping a weekend-like gap).
	s := &domain.BarSeries{Symbol: "AAA"}
	var bars []domain.Bar
	for _, w := range []string{"20240129", "20240130", "20240131", "20240202", "20240203", "20240204"} {
		d := domain.MustParseDay(w)
		bars = append(bars, domain.Bar{Day: d, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	}
	// Pad history so the instrument clears the minimum row count.
	pad := domain.MustParseDay("20240129")
	for i := 1; i <= 20; i++ {
		bars = append(bars, domain.Bar{Day: pad.AddDays(-i), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	}
	s.Merge(bars)

	h := NewHandler(zerolog.Nop())
	require.NoError(t, h.Rebuild(map[string]*domain.BarSeries{"AAA": s}, nil))

	ends := h.MonthEndDays()
	require.NotEmpty(t, ends)
	assert.Contains(t, ends, domain.MustParseDay("20240131"))
	assert.Equal(t, domain.MustParseDay("20240204"), ends[len(ends)-1], "panel's last day closes its month")
}

func TestSnapshotRoundTrip(t *testing.T) {
	start := domain.MustParseDay("20240102")
	series := map[string]*domain.BarSeries{
		"AAA": seriesOf("AAA", start, rampCloses(30, 100)),
		"BBB": seriesOf("BBB", start, rampCloses(30, 50)),
	}
	p := BuildPanel(series)

	cache := NewSnapshotCache(t.TempDir(), zerolog.Nop())
	key := Key(series)

	miss, err := cache.Load(key)
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, cache.Store(key, p))

	got, err := cache.Load(key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.Days, got.Days)
	assert.Equal(t, p.Symbols, got.Symbols)

	v1 := View{panel: p, upto: 25, day: p.Days[25]}
	v2 := View{panel: got, upto: 25, day: got.Days[25]}
	p1, _ := v1.Price("AAA")
	p2, _ := v2.Price("AAA")
	assert.Equal(t, p1, p2)
	a1, ok1 := v1.ADTV20("BBB")
	a2, ok2 := v2.ADTV20("BBB")
	assert.Equal(t, ok1, ok2)
	if ok1 {
		assert.Equal(t, a1, a2)
	}
}

func TestSnapshotKeyChangesWithNewBar(t *testing.T) {
	start := domain.MustParseDay("20240102")
	series := map[string]*domain.BarSeries{
		"AAA": seriesOf("AAA", start, rampCloses(30, 100)),
	}
	k1 := Key(series)

	series["AAA"].Merge([]domain.Bar{{
		Day: start.AddDays(30), Open: 130, High: 131, Low: 129, Close: 130, Volume: 100,
	}})
	k2 := Key(series)
	assert.NotEqual(t, k1, k2)
}

func TestBacktestWindowSkipsWarmup(t *testing.T) {
	start := domain.MustParseDay("20240102")
	h := NewHandler(zerolog.Nop())
	require.NoError(t, h.Rebuild(map[string]*domain.BarSeries{
		"AAA": seriesOf("AAA", start, rampCloses(30, 100)),
	}, nil))

	days := h.BacktestWindow(10)
	require.Len(t, days, 20)
	assert.Equal(t, start.AddDays(10), days[0])

	assert.Nil(t, h.BacktestWindow(30))
}

func TestViewPricesSkipsUndefined(t *testing.T) {
	start := domain.MustParseDay("20240102")
	late := &domain.BarSeries{Symbol: "BBB"}
	var bars []domain.Bar
	for i := 5; i < 30; i++ {
		c := 50.0 + float64(i)
		bars = append(bars, domain.Bar{Day: start.AddDays(i), Open: c, High: c, Low: c, Close: c, Volume: 100})
	}
	late.Merge(bars)

	p := BuildPanel(map[string]*domain.BarSeries{
		"AAA": seriesOf("AAA", start, rampCloses(30, 100)),
		"BBB": late,
	})

	v := View{panel: p, upto: 2, day: start.AddDays(2)}
	prices := v.Prices()
	assert.Contains(t, prices, "AAA")
	assert.NotContains(t, prices, "BBB", "no close yet, nothing to forward-fill from")
	assert.True(t, math.IsNaN(p.closes[2][p.symIdx["BBB"]]))
}
