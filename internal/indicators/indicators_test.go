package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

func seq(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}

	v := SMA(prices, 5)
	require.NotNil(t, v)
	assert.InDelta(t, 3.0, *v, 1e-12)

	v = SMA(prices, 3)
	require.NotNil(t, v)
	assert.InDelta(t, 4.0, *v, 1e-12)

	assert.Nil(t, SMA(prices, 6), "insufficient data yields none")
	assert.Nil(t, SMA(nil, 1))
}

func TestEMAMatchesRecursion(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15, 16}
	n := 3
	k := 2.0 / float64(n+1)

	// Seed with SMA of first n, then recurse.
	want := (10.0 + 11 + 12) / 3
	for _, p := range prices[n:] {
		want = p*k + want*(1-k)
	}

	got := EMA(prices, n)
	require.NotNil(t, got)
	assert.InDelta(t, want, *got, 1e-9)

	assert.Nil(t, EMA(prices[:2], 3))
}

func TestReturnBoundary(t *testing.T) {
	prices := seq(5, 100, 1) // 100..104

	// len == n: undefined. len == n+1: defined.
	assert.Nil(t, Return(prices, 5))
	v := Return(prices, 4)
	require.NotNil(t, v)
	assert.InDelta(t, 104.0/100.0-1, *v, 1e-12)
}

func TestADTVAndRVOL(t *testing.T) {
	bars := []domain.Bar{
		{Close: 10, Volume: 100},             // value 1000
		{Close: 10, Volume: 200},             // value 2000
		{Close: 10, Volume: 0, TradeValue: 0},// value 0
		{Close: 10, Volume: 600},             // value 6000
	}

	adtv := ADTV(bars[:3], 3)
	require.NotNil(t, adtv)
	assert.InDelta(t, 1000.0, *adtv, 1e-12)

	rvol := RVOL(bars, 3)
	require.NotNil(t, rvol)
	assert.InDelta(t, 6.0, *rvol, 1e-12)

	assert.Nil(t, RVOL(bars[:3], 3), "needs n prior bars plus today")
}

func TestATR(t *testing.T) {
	bars := []domain.Bar{
		{High: 12, Low: 10, Close: 11},
		{High: 13, Low: 11, Close: 12}, // TR = max(2, |13-11|, |11-11|) = 2
		{High: 16, Low: 13, Close: 15}, // TR = max(3, |16-12|, |13-12|) = 4
	}

	atr := ATR(bars, 2)
	require.NotNil(t, atr)
	assert.InDelta(t, 3.0, *atr, 1e-12)

	assert.Nil(t, ATR(bars, 3), "needs n+1 bars")
}

func TestATRGapDominatesRange(t *testing.T) {
	bars := []domain.Bar{
		{High: 100, Low: 99, Close: 100},
		{High: 90, Low: 88, Close: 89}, // gap down: TR = |90-100| = 10
	}
	atr := ATR(bars, 1)
	require.NotNil(t, atr)
	assert.InDelta(t, 10.0, *atr, 1e-12)
}

func TestMACD(t *testing.T) {
	prices := seq(60, 100, 0.5)

	res := MACD(prices, 12, 26, 9)
	require.NotNil(t, res)
	require.Len(t, res.MACD, len(prices))

	assert.True(t, math.IsNaN(res.Signal[0]), "warm-up region undefined")

	sig := res.LastSignal()
	require.NotNil(t, sig)
	// Steady uptrend: fast EMA above slow EMA, positive signal.
	assert.Greater(t, *sig, 0.0)

	assert.Nil(t, MACD(prices[:20], 12, 26, 9))
}

func TestDisparity(t *testing.T) {
	v := Disparity(110, 100)
	require.NotNil(t, v)
	assert.InDelta(t, 110.0, *v, 1e-12)
	assert.Nil(t, Disparity(110, 0))
}

func TestAnnualisedVol(t *testing.T) {
	flat := []float64{0.01, 0.01, 0.01}
	v := AnnualisedVol(flat)
	require.NotNil(t, v)
	assert.InDelta(t, 0.0, *v, 1e-12)

	assert.Nil(t, AnnualisedVol([]float64{0.01}))
}

func TestRollingMean(t *testing.T) {
	out := RollingMean([]float64{1, 2, 3, 4}, 2)
	assert.True(t, math.IsNaN(out[0]))
	assert.InDelta(t, 1.5, out[1], 1e-12)
	assert.InDelta(t, 3.5, out[3], 1e-12)
}

func TestRollingMeanRecoversAfterNaNPrefix(t *testing.T) {
	nan := math.NaN()
	xs := []float64{nan, nan, nan, 10, 20, 30, 40}

	out := RollingMean(xs, 3)
	for i := 0; i < 5; i++ {
		assert.True(t, math.IsNaN(out[i]), "row %d still inside the gap", i)
	}
	assert.InDelta(t, 20.0, out[5], 1e-12, "first clean window")
	assert.InDelta(t, 30.0, out[6], 1e-12)
}

func TestRollingMeanNaNInsideWindow(t *testing.T) {
	nan := math.NaN()
	xs := []float64{1, 2, nan, 4, 5, 6}

	out := RollingMean(xs, 2)
	assert.InDelta(t, 1.5, out[1], 1e-12)
	assert.True(t, math.IsNaN(out[2]))
	assert.True(t, math.IsNaN(out[3]), "window still touches the gap")
	assert.InDelta(t, 4.5, out[4], 1e-12)
	assert.InDelta(t, 5.5, out[5], 1e-12)
}

func TestShiftOne(t *testing.T) {
	out := Shift([]float64{1, 2, 3}, 1)
	assert.True(t, math.IsNaN(out[0]))
	assert.Equal(t, 1.0, out[1])
	assert.Equal(t, 2.0, out[2])
}

func TestCumMax(t *testing.T) {
	out := CumMax([]float64{3, 1, 4, 2})
	assert.Equal(t, []float64{3, 3, 4, 4}, out)
}

func TestPctChange(t *testing.T) {
	out := PctChange([]float64{100, 110, 99})
	assert.True(t, math.IsNaN(out[0]))
	assert.InDelta(t, 0.10, out[1], 1e-12)
	assert.InDelta(t, -0.10, out[2], 1e-12)

	assert.Empty(t, PctChange(nil))
	assert.Empty(t, PctChange([]float64{}))
}

func TestForwardFill(t *testing.T) {
	nan := math.NaN()
	out := ForwardFill([]float64{nan, 1, nan, nan, 2})
	assert.True(t, math.IsNaN(out[0]), "leading gap stays undefined")
	assert.Equal(t, []float64{1, 1, 1, 2}, out[1:])
}
