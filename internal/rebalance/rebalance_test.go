package rebalance

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/marketdata"
	"github.com/Gotti0/kimum-trade-sub000/internal/scoring"
)

// viewWith builds a panel view over synthetic closes; vol controls the
// daily oscillation amplitude per symbol.
func viewWith(t *testing.T, amplitudes map[string]float64) marketdata.View {
	t.Helper()
	start := domain.MustParseDay("20230102")
	series := make(map[string]*domain.BarSeries)
	n := 60
	for sym, amp := range amplitudes {
		s := &domain.BarSeries{Symbol: sym}
		bars := make([]domain.Bar, n)
		for i := range bars {
			c := 100.0
			if i%2 == 1 {
				c = 100 * (1 + amp)
			}
			bars[i] = domain.Bar{Day: start.AddDays(i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
		}
		s.Merge(bars)
		series[sym] = s
	}

	h := marketdata.NewHandler(zerolog.Nop())
	require.NoError(t, h.Rebuild(series, nil))
	v, _, err := h.ViewAt(start.AddDays(n - 1))
	require.NoError(t, err)
	return v
}

func TestEqualWeights(t *testing.T) {
	v := viewWith(t, map[string]float64{"A": 0.01, "B": 0.01, "C": 0.01})
	r := New(zerolog.Nop())

	event, err := r.DomesticWeights(v, []string{"A", "B", "C"}, domain.RegimeBull, MethodEqual)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, event.WeightSum(), 1e-9)
	assert.InDelta(t, 1.0/3, event.TargetWeights["A"], 1e-9)
	assert.Equal(t, 3, event.NumSelected)
}

func TestInverseVolFavoursQuietSymbol(t *testing.T) {
	v := viewWith(t, map[string]float64{"QUIET": 0.01, "WILD": 0.05})
	r := New(zerolog.Nop())

	event, err := r.DomesticWeights(v, []string{"QUIET", "WILD"}, domain.RegimeBull, MethodInverseVol)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, event.WeightSum(), 1e-9)
	assert.Greater(t, event.TargetWeights["QUIET"], event.TargetWeights["WILD"])
}

func TestInverseVolDropsDegenerateSigma(t *testing.T) {
	// FLAT never moves: sigma 0, dropped; the remainder renormalises.
	v := viewWith(t, map[string]float64{"FLAT": 0, "A": 0.01, "B": 0.02})
	r := New(zerolog.Nop())

	event, err := r.DomesticWeights(v, []string{"FLAT", "A", "B"}, domain.RegimeBull, MethodInverseVol)
	require.NoError(t, err)
	assert.NotContains(t, event.TargetWeights, "FLAT")
	assert.InDelta(t, 1.0, event.WeightSum(), 1e-9)
}

func TestInverseVolFallsBackToEqualWeight(t *testing.T) {
	v := viewWith(t, map[string]float64{"FLAT1": 0, "FLAT2": 0})
	r := New(zerolog.Nop())

	event, err := r.DomesticWeights(v, []string{"FLAT1", "FLAT2"}, domain.RegimeBull, MethodInverseVol)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, event.TargetWeights["FLAT1"], 1e-9)
	assert.InDelta(t, 0.5, event.TargetWeights["FLAT2"], 1e-9)
}

func TestBearRegimeZeroesAllWeights(t *testing.T) {
	v := viewWith(t, map[string]float64{"A": 0.01, "B": 0.02})
	r := New(zerolog.Nop())

	event, err := r.DomesticWeights(v, []string{"A", "B"}, domain.RegimeBear, MethodInverseVol)
	require.NoError(t, err)
	assert.Zero(t, event.WeightSum())
	assert.Zero(t, event.TargetWeights["A"])
	assert.Zero(t, event.TargetWeights["B"])
	assert.Equal(t, domain.RegimeBear, event.Regime)
}

func TestWarningRegimeHalvesDeployment(t *testing.T) {
	v := viewWith(t, map[string]float64{"A": 0.01, "B": 0.01})
	r := New(zerolog.Nop())

	event, err := r.DomesticWeights(v, []string{"A", "B"}, domain.RegimeWarning, MethodEqual)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, event.WeightSum(), 1e-9)
	assert.InDelta(t, 0.25, event.TargetWeights["A"], 1e-9)
}

func TestEmptySelectionYieldsEmptyWeights(t *testing.T) {
	v := viewWith(t, map[string]float64{"A": 0.01})
	r := New(zerolog.Nop())

	event, err := r.DomesticWeights(v, nil, domain.RegimeBull, MethodEqual)
	require.NoError(t, err)
	assert.Empty(t, event.TargetWeights)
}

func TestUnsupportedMethodIsConfigError(t *testing.T) {
	v := viewWith(t, map[string]float64{"A": 0.01})
	r := New(zerolog.Nop())

	_, err := r.DomesticWeights(v, []string{"A"}, domain.RegimeBull, WeightMethod("martingale"))
	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestGlobalWeightsBearTickerDivertsToCash(t *testing.T) {
	// Preset category equity=0.55 across five tickers; EEM scored 0.09 but
	// sits in BEAR, so its weight must land on the cash ticker.
	alloc := scoring.GlobalAllocation{
		Weights: map[string]float64{
			"SPY": 0.15, "QQQ": 0.12, "VEA": 0.10, "VTV": 0.09, "EEM": 0.09,
			"AGG": 0.30, "SHY": 0.15,
		},
		CashTicker: "SHY",
	}
	labels := map[string]domain.RegimeLabel{
		"SPY": domain.RegimeBull, "QQQ": domain.RegimeBull,
		"VEA": domain.RegimeBull, "VTV": domain.RegimeBull,
		"EEM": domain.RegimeBear, "AGG": domain.RegimeBull,
	}

	r := New(zerolog.Nop())
	event := r.GlobalWeights(domain.MustParseDay("20240131"), alloc, labels, nil)

	assert.InDelta(t, 1.0, event.WeightSum(), 1e-9)
	assert.Zero(t, event.TargetWeights["EEM"])
	assert.InDelta(t, 0.15+0.09, event.TargetWeights["SHY"], 1e-9)

	var equity float64
	for _, s := range []string{"SPY", "QQQ", "VEA", "VTV"} {
		equity += event.TargetWeights[s]
	}
	assert.InDelta(t, 0.55-0.09, equity, 1e-9)
	assert.Equal(t, domain.RegimeBear, event.PerTickerRegime["EEM"])
}

func TestGlobalWeightsExpandsDomesticBucket(t *testing.T) {
	alloc := scoring.GlobalAllocation{
		Weights:        map[string]float64{"SPY": 0.5, "SHY": 0.2},
		CashTicker:     "SHY",
		DomesticProxy:  "EWY",
		DomesticWeight: 0.3,
	}
	labels := map[string]domain.RegimeLabel{
		"SPY": domain.RegimeBull, "EWY": domain.RegimeBull,
	}

	r := New(zerolog.Nop())
	event := r.GlobalWeights(domain.MustParseDay("20240131"), alloc, labels,
		[]string{"005930", "000660", "035420"})

	assert.InDelta(t, 1.0, event.WeightSum(), 1e-9)
	assert.InDelta(t, 0.1, event.TargetWeights["005930"], 1e-9)
	assert.InDelta(t, 0.1, event.TargetWeights["000660"], 1e-9)
	assert.Zero(t, event.TargetWeights["EWY"])
}

func TestGlobalWeightsKeepsProxyWhenSelectionEmpty(t *testing.T) {
	alloc := scoring.GlobalAllocation{
		Weights:        map[string]float64{"SPY": 0.7},
		CashTicker:     "SHY",
		DomesticProxy:  "EWY",
		DomesticWeight: 0.3,
	}
	labels := map[string]domain.RegimeLabel{"SPY": domain.RegimeBull, "EWY": domain.RegimeBull}

	r := New(zerolog.Nop())
	event := r.GlobalWeights(domain.MustParseDay("20240131"), alloc, labels, nil)
	assert.InDelta(t, 0.3, event.TargetWeights["EWY"], 1e-9)
}

func TestGlobalWeightsBearProxySendsBucketToCash(t *testing.T) {
	alloc := scoring.GlobalAllocation{
		Weights:        map[string]float64{"SPY": 0.7},
		CashTicker:     "SHY",
		DomesticProxy:  "EWY",
		DomesticWeight: 0.3,
	}
	labels := map[string]domain.RegimeLabel{"SPY": domain.RegimeBull, "EWY": domain.RegimeBear}

	r := New(zerolog.Nop())
	event := r.GlobalWeights(domain.MustParseDay("20240131"), alloc, labels,
		[]string{"005930"})

	assert.Zero(t, event.TargetWeights["005930"])
	assert.InDelta(t, 0.3, event.TargetWeights["SHY"], 1e-9)
	assert.InDelta(t, 1.0, event.WeightSum(), 1e-9)
}

func TestGlobalWeightsAllBearIsFullCash(t *testing.T) {
	alloc := scoring.GlobalAllocation{
		Weights:    map[string]float64{"SPY": 0.6, "AGG": 0.4},
		CashTicker: "SHY",
	}
	labels := map[string]domain.RegimeLabel{
		"SPY": domain.RegimeBear, "AGG": domain.RegimeBear,
	}

	r := New(zerolog.Nop())
	event := r.GlobalWeights(domain.MustParseDay("20240131"), alloc, labels, nil)

	assert.Equal(t, domain.RegimeBear, event.Regime)
	assert.InDelta(t, 1.0, event.TargetWeights["SHY"], 1e-9)
	for ticker, w := range event.TargetWeights {
		if ticker != "SHY" {
			assert.Zero(t, w, ticker)
		}
	}
	assert.False(t, math.IsNaN(event.WeightSum()))
}
