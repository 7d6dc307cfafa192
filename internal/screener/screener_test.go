package screener

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gotti0/kimum-trade-sub000/internal/alpha"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

func seriesOf(symbol string, closes, volumes []float64) *domain.BarSeries {
	start := domain.MustParseDay("20240102")
	s := &domain.BarSeries{Symbol: symbol}
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Day: start.AddDays(i), Open: c, High: c, Low: c * 0.99, Close: c, Volume: volumes[i],
		}
	}
	s.Merge(bars)
	return s
}

// breakoutSeries is 20 quiet days at 10,000 then a +8% day on the given
// volume multiple of the base 5,000,000 shares.
func breakoutSeries(symbol string, lastVolume float64) *domain.BarSeries {
	closes := make([]float64, 21)
	volumes := make([]float64, 21)
	for i := 0; i < 20; i++ {
		closes[i] = 10_000
		volumes[i] = 5_000_000
	}
	closes[20] = 10_800
	volumes[20] = lastVolume
	return seriesOf(symbol, closes, volumes)
}

func newScreener(t *testing.T, caps MarketCapFn) *Screener {
	t.Helper()
	return New(alpha.DefaultSwingConfig(), alpha.DefaultPullbackConfig(), caps, zerolog.Nop())
}

func TestSwingScreenRanksByRelativeVolume(t *testing.T) {
	universe := map[string]*domain.BarSeries{
		"HOT":   breakoutSeries("HOT", 18_000_000),  // rvol ~3.9
		"WARM":  breakoutSeries("WARM", 13_000_000), // rvol ~2.8
		"QUIET": breakoutSeries("QUIET", 5_000_000), // rvol ~1.1, rejected
	}

	s := newScreener(t, nil)
	result, err := s.Run(KindSwing, universe)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "HOT", result.Candidates[0].Symbol)
	assert.Equal(t, 1, result.Candidates[0].Rank)
	assert.Equal(t, "WARM", result.Candidates[1].Symbol)
	assert.Equal(t, 2, result.Candidates[1].Rank)
	assert.Greater(t, result.Candidates[0].Score, result.Candidates[1].Score)

	assert.Equal(t, 3, result.Universe)
	assert.Equal(t, 1, result.Rejections["rvol"])
	assert.Equal(t, domain.MustParseDay("20240102").AddDays(20), result.Day)
}

func TestScreenTiesBreakBySymbol(t *testing.T) {
	universe := map[string]*domain.BarSeries{
		"BBB": breakoutSeries("BBB", 13_000_000),
		"AAA": breakoutSeries("AAA", 13_000_000),
	}

	s := newScreener(t, nil)
	result, err := s.Run(KindSwing, universe)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "AAA", result.Candidates[0].Symbol)
	assert.Equal(t, "BBB", result.Candidates[1].Symbol)
}

func TestScreenUsesMarketCapProvider(t *testing.T) {
	// Illiquid tape: 1,000 shares of value per day fails ADTV, but a large
	// market cap substitutes.
	closes := make([]float64, 21)
	volumes := make([]float64, 21)
	for i := 0; i < 20; i++ {
		closes[i] = 10_000
		volumes[i] = 1_000
	}
	closes[20] = 10_800
	volumes[20] = 3_000
	universe := map[string]*domain.BarSeries{
		"BIG": seriesOf("BIG", closes, volumes),
	}

	withoutCaps := newScreener(t, nil)
	result, err := withoutCaps.Run(KindSwing, universe)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.Equal(t, 1, result.Rejections["liquidity"])

	withCaps := newScreener(t, func(string) float64 { return 400_000_000_000 })
	result, err = withCaps.Run(KindSwing, universe)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "BIG", result.Candidates[0].Symbol)
}

func TestPullbackScreenReportsRejectionReasons(t *testing.T) {
	// Flat tape with no surge anywhere in the lookback.
	closes := make([]float64, 30)
	volumes := make([]float64, 30)
	for i := range closes {
		closes[i] = 10_000
		volumes[i] = 1_000_000
	}
	universe := map[string]*domain.BarSeries{
		"FLAT":  seriesOf("FLAT", closes, volumes),
		"EMPTY": {Symbol: "EMPTY"},
	}

	s := newScreener(t, nil)
	result, err := s.Run(KindPullback, universe)
	require.NoError(t, err)

	assert.Empty(t, result.Candidates)
	assert.Equal(t, 1, result.Rejections["no surge"])
	assert.Equal(t, 1, result.Rejections["no data"])
}

func TestScreenRejectsUnknownKind(t *testing.T) {
	s := newScreener(t, nil)
	var cfgErr *domain.ConfigError
	_, err := s.Run(Kind("daytrade"), nil)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir, zerolog.Nop())

	missing, err := st.Latest(KindSwing)
	require.NoError(t, err)
	assert.Nil(t, missing, "no file yet is a miss, not an error")

	s := newScreener(t, nil)
	result, err := s.Run(KindSwing, map[string]*domain.BarSeries{
		"HOT": breakoutSeries("HOT", 13_000_000),
	})
	require.NoError(t, err)
	require.NoError(t, st.Save(result))

	loaded, err := st.Latest(KindSwing)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, result.Kind, loaded.Kind)
	assert.Equal(t, result.Day, loaded.Day)
	require.Len(t, loaded.Candidates, 1)
	assert.Equal(t, "HOT", loaded.Candidates[0].Symbol)
	assert.Equal(t, 1, loaded.Candidates[0].Rank)

	// Saving again overwrites in place.
	require.NoError(t, st.Save(result))
	again, err := st.Latest(KindSwing)
	require.NoError(t, err)
	assert.Equal(t, loaded.Candidates, again.Candidates)
}
