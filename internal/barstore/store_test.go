package barstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// fakeSource serves synthetic daily bars and counts calls.
type fakeSource struct {
	name    string
	calls   atomic.Int64
	failAll bool
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchDailyBars(_ context.Context, _ string, from, to domain.Day) ([]domain.Bar, error) {
	f.calls.Add(1)
	if f.failAll {
		return nil, errors.New("backend down")
	}
	var bars []domain.Bar
	for d := from; d <= to; d++ {
		bars = append(bars, domain.Bar{Day: d, Open: 10, High: 11, Low: 9, Close: 10, Volume: 100})
	}
	return bars, nil
}

func (f *fakeSource) FetchMinuteBars(ctx context.Context, symbol string, from, to domain.Day) ([]domain.Bar, error) {
	return f.FetchDailyBars(ctx, symbol, from, to)
}

func (f *fakeSource) FetchInstrumentInfo(context.Context, []string) (map[string]domain.InstrumentInfo, error) {
	return nil, errors.New("not implemented")
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), zerolog.New(nil).Level(zerolog.Disabled))
}

func TestEnsureRangeFetchesAndPersists(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{name: "kiwoom"}

	from := domain.Today().AddDays(-10)
	to := domain.Today().AddDays(-1)

	series, err := store.EnsureRange(context.Background(), src, "005930", from, to, IntervalDaily)
	require.NoError(t, err)
	assert.True(t, series.Covers(from, to))
	assert.EqualValues(t, 1, src.calls.Load())

	// Cache file written atomically under daily_charts.
	_, err = os.Stat(filepath.Join(store.dir, "daily_charts", "005930.json"))
	assert.NoError(t, err)
}

func TestEnsureRangeHotPathSkipsNetwork(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{name: "kiwoom"}

	from := domain.Today().AddDays(-10)
	to := domain.Today().AddDays(-1)

	first, err := store.EnsureRange(context.Background(), src, "005930", from, to, IntervalDaily)
	require.NoError(t, err)
	callsAfterFirst := src.calls.Load()

	second, err := store.EnsureRange(context.Background(), src, "005930", from, to, IntervalDaily)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, src.calls.Load(), "covered range must not refetch")
	assert.Equal(t, first.Bars, second.Bars, "idempotent in memory")
}

func TestEnsureRangeIncrementalBackfill(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{name: "kiwoom"}
	ctx := context.Background()

	mid := domain.Today().AddDays(-5)
	to := domain.Today().AddDays(-1)
	_, err := store.EnsureRange(ctx, src, "005930", mid, to, IntervalDaily)
	require.NoError(t, err)

	// Extending backwards only fetches the missing head (plus trailing-day refresh).
	from := domain.Today().AddDays(-10)
	series, err := store.EnsureRange(ctx, src, "005930", from, to, IntervalDaily)
	require.NoError(t, err)
	assert.True(t, series.Covers(from, to))
	require.NoError(t, series.Validate())
}

func TestEnsureRangeFallsBackToCacheOnFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	good := &fakeSource{name: "kiwoom"}
	from := domain.Today().AddDays(-10)
	mid := domain.Today().AddDays(-5)
	_, err := store.EnsureRange(ctx, good, "005930", from, mid, IntervalDaily)
	require.NoError(t, err)

	bad := &fakeSource{name: "kiwoom", failAll: true}
	series, err := store.EnsureRange(ctx, bad, "005930", from, domain.Today(), IntervalDaily)
	require.NoError(t, err, "usable cache beats a failed fetch")
	assert.True(t, series.Covers(from, mid))
}

func TestEnsureRangeNoCacheSurfacesError(t *testing.T) {
	store := newTestStore(t)
	bad := &fakeSource{name: "kiwoom", failAll: true}

	_, err := store.EnsureRange(context.Background(), bad, "005930",
		domain.Today().AddDays(-5), domain.Today(), IntervalDaily)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoCache)
}

func TestEnsureRangeRejectsInvertedRange(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{name: "kiwoom"}

	_, err := store.EnsureRange(context.Background(), src, "005930",
		domain.Today(), domain.Today().AddDays(-5), IntervalDaily)
	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestDailyCodecRoundTrip(t *testing.T) {
	series := &domain.BarSeries{Symbol: "005930"}
	series.Merge([]domain.Bar{
		{Day: domain.MustParseDay("20240102"), Open: 1, High: 2, Low: 1, Close: 2, Volume: 10, TradeValue: 20},
		{Day: domain.MustParseDay("20240103"), Open: 2, High: 3, Low: 2, Close: 3, Volume: 20},
	})

	data, err := encodeDaily(series)
	require.NoError(t, err)

	decoded, dropped, err := decodeDaily("005930", data)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Equal(t, series.Bars, decoded.Bars)
}

func TestMinuteCodecRoundTrip(t *testing.T) {
	series := &domain.BarSeries{Symbol: "005930"}
	series.Merge([]domain.Bar{
		{Day: domain.MustParseDay("20240102"), Time: 901, Open: 1, High: 2, Low: 1, Close: 2, Volume: 10},
		{Day: domain.MustParseDay("20240102"), Time: 902, Open: 2, High: 3, Low: 2, Close: 3, Volume: 20},
	})

	data, err := encodeMinute(series)
	require.NoError(t, err)

	decoded, dropped, err := decodeMinute("005930", data)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Equal(t, series.Bars, decoded.Bars)
}

func TestPrefetchBoundedPool(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{name: "kiwoom"}

	symbols := []string{"A", "B", "C", "D", "E", "F"}
	err := store.Prefetch(context.Background(), src, symbols,
		domain.Today().AddDays(-5), domain.Today().AddDays(-1), IntervalDaily)
	require.NoError(t, err)

	for _, sym := range symbols {
		series, err := store.Load("kiwoom", sym, IntervalDaily)
		require.NoError(t, err)
		assert.False(t, series.Empty())
	}
}
