package reliability

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/database"
)

// MaintenanceService keeps the local SQLite stores healthy: WAL checkpoints
// to bound file growth and integrity checks to catch corruption early.
type MaintenanceService struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

func NewMaintenanceService(databases map[string]*database.DB, log zerolog.Logger) *MaintenanceService {
	return &MaintenanceService{
		databases: databases,
		log:       log.With().Str("component", "maintenance").Logger(),
	}
}

// CheckpointAll truncates every database's WAL. Per-database failures are
// collected; the rest still checkpoint.
func (s *MaintenanceService) CheckpointAll() error {
	var firstErr error
	for name, db := range s.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			s.log.Error().Err(err).Str("database", name).Msg("WAL checkpoint failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.log.Debug().Str("database", name).Msg("WAL checkpointed")
	}
	return firstErr
}

// VerifyAll runs the integrity check on every database.
func (s *MaintenanceService) VerifyAll(ctx context.Context) error {
	for name, db := range s.databases {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database %s failed verification: %w", name, err)
		}
	}
	s.log.Info().Int("databases", len(s.databases)).Msg("All databases verified")
	return nil
}
