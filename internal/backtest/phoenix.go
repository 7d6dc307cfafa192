package backtest

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/alpha"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/portfolio"
)

// Snapshot and entry minute marks (HHMM).
const (
	phoenixSnapshotTime = 914
	phoenixEntryTime    = 915
	phoenixCloseTime    = 1515
)

// exitBand maps a snapshot-return interval onto a fixed exit time. Bands are
// evaluated in declared order, first match wins, lower bound inclusive.
type exitBand struct {
	low, high float64 // [low, high)
	exitTime  int     // 0 = no entry
}

var phoenixBands = []exitBand{
	{low: 0.09, high: 10, exitTime: phoenixCloseTime},
	{low: 0.04, high: 0.09, exitTime: 1400},
	{low: 0, high: 0.04, exitTime: 1130},
	{low: -0.04, high: 0, exitTime: 1000},
	{low: -10, high: -0.04, exitTime: 0},
}

func exitTimeFor(snapshotReturn float64) int {
	for _, band := range phoenixBands {
		if snapshotReturn >= band.low && snapshotReturn < band.high {
			return band.exitTime
		}
	}
	return 0
}

// PhoenixConfig parameterises the phoenix replication run.
type PhoenixConfig struct {
	List             *alpha.PhoenixList
	InitialCapital   float64
	PositionFraction float64

	Costs   portfolio.CostTable
	Markets portfolio.MarketResolver
}

func (c *PhoenixConfig) defaults() {
	if c.PositionFraction == 0 {
		c.PositionFraction = 0.2
	}
}

// PhoenixEngine replays the fixed-time decision rule over minute bars: take
// the 09:14 snapshot return against the previous close, enter at 09:15, and
// exit at the band's fixed time.
type PhoenixEngine struct {
	minutes map[string]*domain.BarSeries
	log     zerolog.Logger
}

func NewPhoenixEngine(minutes map[string]*domain.BarSeries, log zerolog.Logger) *PhoenixEngine {
	return &PhoenixEngine{
		minutes: minutes,
		log:     log.With().Str("component", "phoenix_engine").Logger(),
	}
}

// Run replays every listed day in [from, to]. Symbols without minute data
// for a listed day are skipped.
func (e *PhoenixEngine) Run(ctx context.Context, cfg PhoenixConfig, from, to domain.Day) (*Result, error) {
	cfg.defaults()
	if cfg.List == nil {
		return nil, &domain.ConfigError{Field: "phoenix_list", Reason: "no target list"}
	}

	pm, err := portfolio.NewManager(cfg.InitialCapital, cfg.Costs, cfg.Markets, e.log)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	var first, last domain.Day

	for _, d := range cfg.List.Days() {
		if d < from || d > to {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if first == 0 {
			first = d
		}
		last = d

		closes := make(map[string]float64)
		targets := append([]string(nil), cfg.List.TargetsFor(d)...)
		sort.Strings(targets)
		for _, symbol := range targets {
			if closePrice, ok := e.replay(cfg, pm, d, symbol); ok {
				closes[symbol] = closePrice
			}
		}
		pm.RecordDailyEquity(d, closes, 1)
	}

	if first == 0 {
		return nil, &domain.ConfigError{Field: "date_range", Reason: "no listed days in range"}
	}

	turnover, commission, slippage := pm.Totals()
	return &Result{
		Mode:       "phoenix",
		StartDay:   first,
		EndDay:     last,
		Equity:     pm.EquityCurve(),
		Trades:     pm.Trades(),
		FinalValue: pm.Cash(),
		Turnover:   turnover,
		Commission: commission,
		Slippage:   slippage,
		Elapsed:    time.Since(started),
	}, nil
}

// replay runs one symbol's intraday round trip. Returns the day's last seen
// price for equity marking.
func (e *PhoenixEngine) replay(cfg PhoenixConfig, pm *portfolio.Manager, d domain.Day, symbol string) (float64, bool) {
	series, ok := e.minutes[symbol]
	if !ok {
		e.log.Warn().Str("symbol", symbol).Str("day", d.String()).Msg("No minute data for target")
		return 0, false
	}

	dayBars, prevClose := splitDay(series.Bars, d)
	if len(dayBars) == 0 || prevClose <= 0 {
		e.log.Warn().Str("symbol", symbol).Str("day", d.String()).Msg("Insufficient minute data, skipping")
		return 0, false
	}

	snap, ok := barAtOrBefore(dayBars, phoenixSnapshotTime)
	if !ok {
		return 0, false
	}
	snapshotReturn := snap.Close/prevClose - 1

	exitTime := exitTimeFor(snapshotReturn)
	if exitTime == 0 {
		e.log.Debug().Str("symbol", symbol).Str("day", d.String()).
			Float64("snapshot_return", snapshotReturn).Msg("Band declines entry")
		return snap.Close, false
	}

	entry, ok := barAtOrAfter(dayBars, phoenixEntryTime)
	if !ok {
		return snap.Close, false
	}
	exit, ok := barAtOrBefore(dayBars, exitTime)
	if !ok || exit.Time <= entry.Time {
		return snap.Close, false
	}

	value := pm.Value(nil, 1) * cfg.PositionFraction
	shares := pm.BuyValue(d, symbol, value, entry.Open, 1)
	if shares == 0 {
		return exit.Close, false
	}
	pm.SellShares(d, symbol, shares, exit.Close, 1)
	return exit.Close, true
}

// splitDay returns the minute bars of day d in time order plus the last close
// strictly before d.
func splitDay(bars []domain.Bar, d domain.Day) ([]domain.Bar, float64) {
	var dayBars []domain.Bar
	prevClose := 0.0
	for _, b := range bars {
		switch {
		case b.Day < d:
			prevClose = b.Close
		case b.Day == d:
			dayBars = append(dayBars, b)
		}
	}
	return dayBars, prevClose
}

func barAtOrBefore(dayBars []domain.Bar, hhmm int) (domain.Bar, bool) {
	for i := len(dayBars) - 1; i >= 0; i-- {
		if dayBars[i].Time <= hhmm {
			return dayBars[i], true
		}
	}
	return domain.Bar{}, false
}

func barAtOrAfter(dayBars []domain.Bar, hhmm int) (domain.Bar, bool) {
	for _, b := range dayBars {
		if b.Time >= hhmm {
			return b, true
		}
	}
	return domain.Bar{}, false
}
