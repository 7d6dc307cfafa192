package universe

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// maxBatchSize is the per-call symbol cap the brokerage info endpoint
// enforces.
const maxBatchSize = 200

// SyncService refreshes instrument metadata from a market-data backend in
// bounded batches. A failed batch is logged and skipped; the remaining
// batches still run.
type SyncService struct {
	repo   *Repository
	source domain.BarSource
	log    zerolog.Logger
}

func NewSyncService(repo *Repository, source domain.BarSource, log zerolog.Logger) *SyncService {
	return &SyncService{
		repo:   repo,
		source: source,
		log:    log.With().Str("component", "universe_sync").Logger(),
	}
}

// Sync fetches and upserts metadata for the given symbols. Returns the number
// of instruments updated and the first batch error, if any.
func (s *SyncService) Sync(ctx context.Context, symbols []string) (int, error) {
	updated := 0
	var firstErr error

	for start := 0; start < len(symbols); start += maxBatchSize {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		end := start + maxBatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[start:end]

		infos, err := s.source.FetchInstrumentInfo(ctx, batch)
		if err != nil {
			s.log.Warn().Err(err).Int("batch_start", start).Int("batch_size", len(batch)).
				Msg("Instrument info fetch failed, skipping batch")
			if firstErr == nil {
				firstErr = fmt.Errorf("fetch instrument info batch at %d: %w", start, err)
			}
			continue
		}

		list := make([]domain.InstrumentInfo, 0, len(infos))
		for _, symbol := range batch {
			if info, ok := infos[symbol]; ok {
				list = append(list, info)
			}
		}
		if err := s.repo.Upsert(ctx, list); err != nil {
			return updated, err
		}
		updated += len(list)
	}

	s.log.Info().Int("symbols", len(symbols)).Int("updated", updated).Msg("Universe sync complete")
	return updated, firstErr
}
