// Package universe maintains the instrument metadata store: per-symbol
// market type, sector, market cap, and ATS eligibility, synced in batches
// from a market-data backend.
package universe

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/database"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

const instrumentSchema = `
CREATE TABLE IF NOT EXISTS instruments (
    symbol       TEXT PRIMARY KEY,
    market_type  TEXT NOT NULL DEFAULT '',
    sector       TEXT NOT NULL DEFAULT '',
    market_cap   REAL NOT NULL DEFAULT 0,
    ats_eligible INTEGER NOT NULL DEFAULT 0,
    updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_instruments_sector ON instruments(sector);
`

// Record is one stored instrument with its sync timestamp.
type Record struct {
	domain.InstrumentInfo
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository reads and writes the instruments table.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

func NewRepository(db *database.DB, log zerolog.Logger) (*Repository, error) {
	if err := db.ApplySchema(instrumentSchema); err != nil {
		return nil, err
	}
	return &Repository{db: db, log: log.With().Str("component", "universe_repo").Logger()}, nil
}

// Upsert inserts or refreshes the given instruments in one transaction.
func (r *Repository) Upsert(ctx context.Context, infos []domain.InstrumentInfo) error {
	if len(infos) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	err := database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO instruments (symbol, market_type, sector, market_cap, ats_eligible, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol) DO UPDATE SET
			    market_type  = excluded.market_type,
			    sector       = excluded.sector,
			    market_cap   = excluded.market_cap,
			    ats_eligible = excluded.ats_eligible,
			    updated_at   = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, info := range infos {
			if info.Symbol == "" {
				continue
			}
			ats := 0
			if info.ATSEligible {
				ats = 1
			}
			if _, err := stmt.ExecContext(ctx, info.Symbol, info.MarketType, info.Sector,
				info.MarketCap, ats, now); err != nil {
				return fmt.Errorf("upsert %s: %w", info.Symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert instruments: %w", err)
	}
	return nil
}

// Get returns one instrument; (nil, nil) when unknown.
func (r *Repository) Get(ctx context.Context, symbol string) (*Record, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT symbol, market_type, sector, market_cap, ats_eligible, updated_at
		FROM instruments WHERE symbol = ?`, symbol)
	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load instrument %s: %w", symbol, err)
	}
	return rec, nil
}

// List returns every stored instrument ordered by symbol.
func (r *Repository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT symbol, market_type, sector, market_cap, ats_eligible, updated_at
		FROM instruments ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument row: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// MarketCaps returns the symbol to market-cap map the screeners consume.
func (r *Repository) MarketCaps(ctx context.Context) (map[string]float64, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT symbol, market_cap FROM instruments WHERE market_cap > 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to load market caps: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var symbol string
		var mcap float64
		if err := rows.Scan(&symbol, &mcap); err != nil {
			return nil, fmt.Errorf("failed to scan market cap row: %w", err)
		}
		out[symbol] = mcap
	}
	return out, rows.Err()
}

func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var rec Record
	var ats int
	var updatedAt string
	if err := scan(&rec.Symbol, &rec.MarketType, &rec.Sector, &rec.MarketCap, &ats, &updatedAt); err != nil {
		return nil, err
	}
	rec.ATSEligible = ats != 0
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("corrupt updated_at for %s: %w", rec.Symbol, err)
	}
	rec.UpdatedAt = t
	return &rec, nil
}
