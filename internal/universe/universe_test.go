package universe

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gotti0/kimum-trade-sub000/internal/database"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(database.Config{
		Path: filepath.Join(t.TempDir(), "universe.db"),
		Name: "universe",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewRepository(db, zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func TestRepositoryUpsertAndGet(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, []domain.InstrumentInfo{
		{Symbol: "005930", MarketType: "KOSPI", Sector: "Semiconductors", MarketCap: 4.5e14, ATSEligible: true},
		{Symbol: "035420", MarketType: "KOSPI", Sector: "Internet", MarketCap: 3.2e13},
	}))

	rec, err := repo.Get(ctx, "005930")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Semiconductors", rec.Sector)
	assert.Equal(t, 4.5e14, rec.MarketCap)
	assert.True(t, rec.ATSEligible)
	assert.False(t, rec.UpdatedAt.IsZero())

	missing, err := repo.Get(ctx, "999999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Re-upsert refreshes in place.
	require.NoError(t, repo.Upsert(ctx, []domain.InstrumentInfo{
		{Symbol: "005930", MarketType: "KOSPI", Sector: "Semiconductors", MarketCap: 5.0e14, ATSEligible: true},
	}))
	rec, err = repo.Get(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, 5.0e14, rec.MarketCap)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "005930", list[0].Symbol, "ordered by symbol")
}

func TestRepositoryMarketCaps(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, []domain.InstrumentInfo{
		{Symbol: "A", MarketCap: 1e12},
		{Symbol: "B"}, // unknown cap stays out of the map
	}))

	caps, err := repo.MarketCaps(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"A": 1e12}, caps)
}

// fakeInfoSource records batch sizes and fails on request.
type fakeInfoSource struct {
	batches  [][]string
	failOn   int // 1-based batch index to fail, 0 never
	failWith error
}

func (f *fakeInfoSource) Name() string { return "fake" }

func (f *fakeInfoSource) FetchDailyBars(context.Context, string, domain.Day, domain.Day) ([]domain.Bar, error) {
	return nil, nil
}

func (f *fakeInfoSource) FetchMinuteBars(context.Context, string, domain.Day, domain.Day) ([]domain.Bar, error) {
	return nil, nil
}

func (f *fakeInfoSource) FetchInstrumentInfo(_ context.Context, symbols []string) (map[string]domain.InstrumentInfo, error) {
	f.batches = append(f.batches, symbols)
	if f.failOn == len(f.batches) {
		return nil, f.failWith
	}
	out := make(map[string]domain.InstrumentInfo, len(symbols))
	for _, s := range symbols {
		out[s] = domain.InstrumentInfo{Symbol: s, MarketType: "KOSPI", MarketCap: 1e12}
	}
	return out, nil
}

func manySymbols(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%06d", i)
	}
	return out
}

func TestSyncBatchesAtTwoHundred(t *testing.T) {
	repo := testRepo(t)
	source := &fakeInfoSource{}
	svc := NewSyncService(repo, source, zerolog.Nop())

	updated, err := svc.Sync(context.Background(), manySymbols(450))
	require.NoError(t, err)
	assert.Equal(t, 450, updated)

	require.Len(t, source.batches, 3)
	assert.Len(t, source.batches[0], 200)
	assert.Len(t, source.batches[1], 200)
	assert.Len(t, source.batches[2], 50)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 450)
}

func TestSyncSkipsFailedBatch(t *testing.T) {
	repo := testRepo(t)
	boom := errors.New("endpoint down")
	source := &fakeInfoSource{failOn: 1, failWith: boom}
	svc := NewSyncService(repo, source, zerolog.Nop())

	updated, err := svc.Sync(context.Background(), manySymbols(250))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 50, updated, "second batch still lands")

	require.Len(t, source.batches, 2)
}
