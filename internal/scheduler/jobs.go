package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/barstore"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/universe"
)

// RefreshJob tops up the daily bar cache for the configured universe. The
// symbol list is resolved at run time so newly synced instruments join the
// next refresh without a restart.
type RefreshJob struct {
	Store        *barstore.Store
	Source       domain.BarSource
	Symbols      func(ctx context.Context) ([]string, error)
	LookbackDays int
	Log          zerolog.Logger
}

func (j RefreshJob) Name() string { return "nightly_refresh" }

func (j RefreshJob) Run(ctx context.Context) error {
	symbols, err := j.Symbols(ctx)
	if err != nil {
		return err
	}
	lookback := j.LookbackDays
	if lookback <= 0 {
		lookback = 400 // covers the 252-day momentum window plus warmup
	}
	to := domain.Today()
	from := to.AddDays(-lookback)

	j.Log.Info().Int("symbols", len(symbols)).Str("from", from.String()).
		Str("to", to.String()).Msg("Nightly refresh starting")
	return j.Store.Prefetch(ctx, j.Source, symbols, from, to, barstore.IntervalDaily)
}

// UniverseSyncJob refreshes instrument metadata for the same universe.
type UniverseSyncJob struct {
	Sync    *universe.SyncService
	Symbols func(ctx context.Context) ([]string, error)
	Log     zerolog.Logger
}

func (j UniverseSyncJob) Name() string { return "universe_sync" }

func (j UniverseSyncJob) Run(ctx context.Context) error {
	symbols, err := j.Symbols(ctx)
	if err != nil {
		return err
	}
	updated, err := j.Sync.Sync(ctx, symbols)
	j.Log.Info().Int("updated", updated).Msg("Universe sync job finished")
	return err
}
