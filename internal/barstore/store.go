// Package barstore implements the append-only per-instrument bar cache.
// Bars are fetched lazily from a BarSource, merged with the local JSON cache,
// and persisted with a write-temp-then-rename so a crash never leaves a
// partial file behind.
package barstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// Interval selects bar granularity.
type Interval string

const (
	IntervalDaily  Interval = "daily"
	IntervalMinute Interval = "minute"
)

// DefaultPrefetchWorkers bounds concurrent fetches for distinct instruments.
const DefaultPrefetchWorkers = 4

// Store is the bar cache. Series are loaded from disk on first access and
// cached in memory indefinitely; a run sees a frozen view of the cache.
type Store struct {
	dir string
	log zerolog.Logger

	mu     sync.RWMutex
	series map[string]*domain.BarSeries // keyed by cache-relative path

	// One writer per cache file at a time.
	fileMu sync.Map // path -> *sync.Mutex
}

// New creates a bar store rooted at dir (the cache/ directory).
func New(dir string, log zerolog.Logger) *Store {
	return &Store{
		dir:    dir,
		log:    log.With().Str("component", "barstore").Logger(),
		series: make(map[string]*domain.BarSeries),
	}
}

// path maps (source, symbol, interval) to the cache-relative file path.
// Daily bars share the daily_charts partition; minute bars are partitioned
// by source.
func (s *Store) path(source, symbol string, interval Interval) string {
	if interval == IntervalDaily {
		return filepath.Join("daily_charts", symbol+".json")
	}
	return filepath.Join(source, symbol+"_raw.json")
}

func (s *Store) lockFor(path string) *sync.Mutex {
	mu, _ := s.fileMu.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Load returns the full in-memory series for a symbol, loading from disk on
// first access. A missing cache file yields an empty series, not an error.
func (s *Store) Load(source, symbol string, interval Interval) (*domain.BarSeries, error) {
	rel := s.path(source, symbol, interval)

	s.mu.RLock()
	cached, ok := s.series[rel]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	series, err := s.loadFromDisk(rel, symbol, interval)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.series[rel] = series
	s.mu.Unlock()
	return series, nil
}

func (s *Store) loadFromDisk(rel, symbol string, interval Interval) (*domain.BarSeries, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, rel))
	if os.IsNotExist(err) {
		return &domain.BarSeries{Symbol: symbol}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", rel, err)
	}

	var series *domain.BarSeries
	var dropped int
	if interval == IntervalDaily {
		series, dropped, err = decodeDaily(symbol, data)
	} else {
		series, dropped, err = decodeMinute(symbol, data)
	}
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		s.log.Warn().Str("symbol", symbol).Int("dropped", dropped).
			Msg("Dropped invalid cached bars")
	}
	return series, nil
}

// EnsureRange guarantees the series covers [from, to] for the given source,
// performing the minimal incremental fetch. The hot path (already covered,
// clamped to today) performs no network call and returns the cached series
// unchanged.
func (s *Store) EnsureRange(ctx context.Context, source domain.BarSource, symbol string, from, to domain.Day, interval Interval) (*domain.BarSeries, error) {
	if from > to {
		return nil, &domain.ConfigError{Field: "date_range", Reason: fmt.Sprintf("from %s after to %s", from, to)}
	}
	if today := domain.Today(); to > today {
		to = today
	}

	series, err := s.Load(source.Name(), symbol, interval)
	if err != nil {
		return nil, err
	}

	if series.Covers(from, to) {
		return series, nil
	}

	fetched, fetchErr := s.fetchGaps(ctx, source, symbol, series, from, to, interval)
	if fetchErr != nil {
		if !series.Empty() {
			s.log.Warn().Err(fetchErr).Str("symbol", symbol).Str("source", source.Name()).
				Msg("Fetch failed, serving cached bars")
			return series, nil
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrNoCache, fetchErr)
	}

	rel := s.path(source.Name(), symbol, interval)
	mu := s.lockFor(rel)
	mu.Lock()
	defer mu.Unlock()

	if dropped := series.Merge(fetched); dropped > 0 {
		s.log.Warn().Str("symbol", symbol).Int("dropped", dropped).
			Msg("Dropped invalid fetched bars")
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	if err := s.persist(rel, series, interval); err != nil {
		return nil, err
	}

	s.log.Debug().Str("symbol", symbol).Str("source", source.Name()).
		Int("bars", series.Len()).Msg("Cache range ensured")
	return series, nil
}

// fetchGaps requests only the uncovered edges of the range. The trailing
// cached day is refetched so a stale same-day bar gets corrected.
func (s *Store) fetchGaps(ctx context.Context, source domain.BarSource, symbol string, series *domain.BarSeries, from, to domain.Day, interval Interval) ([]domain.Bar, error) {
	fetch := func(lo, hi domain.Day) ([]domain.Bar, error) {
		if interval == IntervalDaily {
			return source.FetchDailyBars(ctx, symbol, lo, hi)
		}
		return source.FetchMinuteBars(ctx, symbol, lo, hi)
	}

	if series.Empty() {
		return fetch(from, to)
	}

	var out []domain.Bar
	if series.FirstDay() > from {
		bars, err := fetch(from, series.FirstDay().AddDays(-1))
		if err != nil {
			return nil, err
		}
		out = append(out, bars...)
	}
	if series.LastDay() < to {
		bars, err := fetch(series.LastDay(), to)
		if err != nil {
			return nil, err
		}
		out = append(out, bars...)
	}
	return out, nil
}

// persist writes the series atomically: temp file in the same directory,
// then rename.
func (s *Store) persist(rel string, series *domain.BarSeries, interval Interval) error {
	full := filepath.Join(s.dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	var data []byte
	var err error
	if interval == IntervalDaily {
		data, err = encodeDaily(series)
	} else {
		data, err = encodeMinute(series)
	}
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), filepath.Base(full)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return fmt.Errorf("rename cache %s: %w", rel, err)
	}
	return nil
}

// Prefetch ensures ranges for many symbols concurrently with a bounded
// worker pool. Per-symbol failures are collected, not fatal: the first error
// is returned after all workers finish so a single bad symbol cannot abort a
// whole refresh.
func (s *Store) Prefetch(ctx context.Context, source domain.BarSource, symbols []string, from, to domain.Day, interval Interval) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultPrefetchWorkers)

	var mu sync.Mutex
	var firstErr error
	failed := 0

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if _, err := s.EnsureRange(ctx, source, symbol, from, to, interval); err != nil {
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = fmt.Errorf("prefetch %s: %w", symbol, err)
				}
				mu.Unlock()
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("Prefetch failed for symbol")
			}
			return ctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if failed > 0 {
		s.log.Warn().Int("failed", failed).Int("total", len(symbols)).
			Msg("Prefetch finished with failures")
	}
	return firstErr
}
