package artifacts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/database"
)

const runIndexSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    strategy      TEXT NOT NULL,
    started_at    TEXT NOT NULL,
    start_day     TEXT NOT NULL,
    end_day       TEXT NOT NULL,
    final_value   REAL NOT NULL,
    cagr          REAL NOT NULL,
    mdd           REAL NOT NULL,
    sharpe        REAL NOT NULL,
    elapsed_sec   REAL NOT NULL,
    artifact_path TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_strategy ON runs(strategy, started_at DESC);
`

// RunEntry is one row of the run index.
type RunEntry struct {
	ID           string    `json:"id"`
	Strategy     string    `json:"strategy"`
	StartedAt    time.Time `json:"started_at"`
	StartDay     string    `json:"start_day"`
	EndDay       string    `json:"end_day"`
	FinalValue   float64   `json:"final_value"`
	CAGR         float64   `json:"cagr"`
	MDD          float64   `json:"mdd"`
	Sharpe       float64   `json:"sharpe"`
	ElapsedSec   float64   `json:"elapsed_sec"`
	ArtifactPath string    `json:"artifact_path"`
}

// RunIndex keeps every completed run queryable, while the JSON store only
// holds each strategy's latest artefact.
type RunIndex struct {
	db  *database.DB
	log zerolog.Logger
}

func NewRunIndex(db *database.DB, log zerolog.Logger) (*RunIndex, error) {
	if err := db.ApplySchema(runIndexSchema); err != nil {
		return nil, err
	}
	return &RunIndex{db: db, log: log.With().Str("component", "run_index").Logger()}, nil
}

// Record inserts the artefact as a new run row and returns the assigned id.
func (idx *RunIndex) Record(ctx context.Context, artifact *RunArtifact, artifactPath string) (string, error) {
	id := uuid.NewString()
	err := database.WithTransaction(idx.db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, strategy, started_at, start_day, end_day,
			                  final_value, cagr, mdd, sharpe, elapsed_sec, artifact_path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, artifact.Strategy, artifact.GeneratedAt.Format(time.RFC3339),
			artifact.StartDay, artifact.EndDay,
			artifact.FinalValue, artifact.Metrics["cagr"], artifact.Metrics["mdd"],
			artifact.Metrics["sharpe"], artifact.ElapsedSec, artifactPath)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to index run: %w", err)
	}
	idx.log.Debug().Str("run_id", id).Str("strategy", artifact.Strategy).Msg("Run indexed")
	return id, nil
}

// Recent returns the newest runs for a strategy, most recent first. An empty
// strategy matches every strategy.
func (idx *RunIndex) Recent(ctx context.Context, strategy string, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, strategy, started_at, start_day, end_day,
		       final_value, cagr, mdd, sharpe, elapsed_sec, artifact_path
		FROM runs`
	args := []any{}
	if strategy != "" {
		query += ` WHERE strategy = ?`
		args = append(args, strategy)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := idx.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var e RunEntry
		var startedAt string
		if err := rows.Scan(&e.ID, &e.Strategy, &startedAt, &e.StartDay, &e.EndDay,
			&e.FinalValue, &e.CAGR, &e.MDD, &e.Sharpe, &e.ElapsedSec, &e.ArtifactPath); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if e.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("corrupt started_at in run %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
