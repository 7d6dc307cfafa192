package backtest

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/alpha"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/indicators"
	"github.com/Gotti0/kimum-trade-sub000/internal/portfolio"
)

// PullbackConfig parameterises the daily-cadence pullback run.
type PullbackConfig struct {
	Filter           alpha.PullbackConfig
	InitialCapital   float64
	PositionFraction float64 // of current equity per entry
	GapDownGuard     float64 // abort entry below open/prevClose
	ATRWindow        int
	HardStopATR      float64 // stop at entry - k*ATR
	TakeProfitATR    float64 // partial take at entry + k*ATR
	PartialFraction  float64
	HorizonDays      int // force close after this many trading days
	RestageCooldown  int // trading days a gapped-down symbol stays barred

	Costs   portfolio.CostTable
	Markets portfolio.MarketResolver
}

func (c *PullbackConfig) defaults() {
	if c.PositionFraction == 0 {
		c.PositionFraction = 0.1
	}
	if c.GapDownGuard == 0 {
		c.GapDownGuard = 0.98
	}
	if c.ATRWindow == 0 {
		c.ATRWindow = 14
	}
	if c.HardStopATR == 0 {
		c.HardStopATR = 1.2
	}
	if c.TakeProfitATR == 0 {
		c.TakeProfitATR = 1.5
	}
	if c.PartialFraction == 0 {
		c.PartialFraction = 0.5
	}
	if c.HorizonDays == 0 {
		c.HorizonDays = 7
	}
	if c.RestageCooldown == 0 {
		c.RestageCooldown = 7
	}
	if c.Filter.SurgeLookback == 0 {
		c.Filter = alpha.DefaultPullbackConfig()
	}
}

// staged is a candidate waiting for the next day's open.
type staged struct {
	symbol    string
	prevClose float64
	atr       float64
}

// openTrade is a live pullback position with its stop state.
type openTrade struct {
	symbol      string
	entryDay    domain.Day
	entryPrice  float64
	atr         float64
	heldDays    int
	partialDone bool
	stop        float64
}

// PullbackEngine runs the pullback strategy bar-by-bar over daily series.
// Candidates found at day d's close are attempted at day d+1's open with a
// gap-down guard, then managed with ATR stops until the horizon.
type PullbackEngine struct {
	series map[string]*domain.BarSeries
	index  map[string]map[domain.Day]int
	log    zerolog.Logger
}

func NewPullbackEngine(series map[string]*domain.BarSeries, log zerolog.Logger) *PullbackEngine {
	index := make(map[string]map[domain.Day]int, len(series))
	for symbol, s := range series {
		m := make(map[domain.Day]int, s.Len())
		for i, b := range s.Bars {
			m[b.Day] = i
		}
		index[symbol] = m
	}
	return &PullbackEngine{
		series: series,
		index:  index,
		log:    log.With().Str("component", "pullback_engine").Logger(),
	}
}

// Run executes the daily loop. The failure model is per-symbol: a symbol
// without usable data is skipped, never fatal.
func (e *PullbackEngine) Run(ctx context.Context, cfg PullbackConfig, from, to domain.Day) (*Result, error) {
	cfg.defaults()
	filter := alpha.NewPullbackFilter(cfg.Filter)

	pm, err := portfolio.NewManager(cfg.InitialCapital, cfg.Costs, cfg.Markets, e.log)
	if err != nil {
		return nil, err
	}

	days := e.tradingDays(from, to)
	if len(days) == 0 {
		return nil, &domain.ConfigError{Field: "date_range", Reason: "no trading days in range"}
	}

	started := time.Now()
	var pending []staged
	open := make(map[string]*openTrade)
	barred := make(map[string]int) // symbol -> trading days left in cooldown

	for _, d := range days {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		pending = e.attemptEntries(cfg, pm, d, pending, open, barred)
		e.manageOpen(cfg, pm, d, open)
		pending = append(pending, e.stageCandidates(cfg, filter, d, open, barred)...)

		for symbol := range barred {
			if barred[symbol]--; barred[symbol] <= 0 {
				delete(barred, symbol)
			}
		}

		pm.RecordDailyEquity(d, e.closesAt(d), 1)
	}

	turnover, commission, slippage := pm.Totals()
	return &Result{
		Mode:       "pullback",
		StartDay:   days[0],
		EndDay:     days[len(days)-1],
		Equity:     pm.EquityCurve(),
		Trades:     pm.Trades(),
		FinalValue: pm.Value(e.closesAt(days[len(days)-1]), 1),
		Turnover:   turnover,
		Commission: commission,
		Slippage:   slippage,
		Elapsed:    time.Since(started),
	}, nil
}

// attemptEntries tries yesterday's staged candidates at today's open. A gap
// down through the guard aborts the entry and bars the symbol from restaging
// for the cooldown.
func (e *PullbackEngine) attemptEntries(cfg PullbackConfig, pm *portfolio.Manager, d domain.Day, pending []staged, open map[string]*openTrade, barred map[string]int) []staged {
	for _, cand := range pending {
		bar, ok := e.barAt(cand.symbol, d)
		if !ok {
			e.log.Warn().Str("symbol", cand.symbol).Str("day", d.String()).
				Msg("No bar on entry day, dropping candidate")
			continue
		}
		if cand.prevClose <= 0 || bar.Open/cand.prevClose < cfg.GapDownGuard {
			barred[cand.symbol] = cfg.RestageCooldown
			e.log.Info().Str("symbol", cand.symbol).Str("day", d.String()).
				Float64("open", bar.Open).Float64("prev_close", cand.prevClose).
				Msg("Gap-down guard aborted entry")
			continue
		}

		value := pm.Value(e.closesAt(d), 1) * cfg.PositionFraction
		shares := pm.BuyValue(d, cand.symbol, value, bar.Open, 1)
		if shares == 0 {
			continue
		}
		open[cand.symbol] = &openTrade{
			symbol:     cand.symbol,
			entryDay:   d,
			entryPrice: bar.Open,
			atr:        cand.atr,
			stop:       bar.Open - cfg.HardStopATR*cand.atr,
		}
	}
	return nil
}

// manageOpen applies, in order, the hard stop, the partial profit take with
// breakeven move, and the horizon force-close.
func (e *PullbackEngine) manageOpen(cfg PullbackConfig, pm *portfolio.Manager, d domain.Day, open map[string]*openTrade) {
	for _, symbol := range sortedKeys(open) {
		trade := open[symbol]
		if trade.entryDay == d {
			continue
		}
		bar, ok := e.barAt(symbol, d)
		if !ok {
			continue
		}
		trade.heldDays++

		if bar.Low <= trade.stop {
			pm.SellShares(d, symbol, pm.Positions()[symbol].Shares, trade.stop, 1)
			delete(open, symbol)
			continue
		}

		if !trade.partialDone {
			if target := trade.entryPrice + cfg.TakeProfitATR*trade.atr; bar.High >= target {
				held := pm.Positions()[symbol].Shares
				pm.SellShares(d, symbol, held*cfg.PartialFraction, target, 1)
				trade.partialDone = true
				trade.stop = trade.entryPrice // residual rides at breakeven
			}
		}

		if trade.heldDays >= cfg.HorizonDays {
			pm.SellShares(d, symbol, pm.Positions()[symbol].Shares, bar.Close, 1)
			delete(open, symbol)
		}
	}
}

// stageCandidates evaluates the filter at today's close for tomorrow's open.
func (e *PullbackEngine) stageCandidates(cfg PullbackConfig, filter *alpha.PullbackFilter, d domain.Day, open map[string]*openTrade, barred map[string]int) []staged {
	var out []staged
	for _, symbol := range sortedKeys(e.series) {
		if _, held := open[symbol]; held {
			continue
		}
		if barred[symbol] > 0 {
			continue
		}
		idx, ok := e.index[symbol][d]
		if !ok {
			continue
		}
		bars := e.series[symbol].Bars[:idx+1]
		cand, reason := filter.Evaluate(symbol, bars)
		if reason != "" {
			continue
		}
		atr := indicators.ATR(bars, cfg.ATRWindow)
		if atr == nil || *atr <= 0 {
			continue
		}
		out = append(out, staged{symbol: cand.Symbol, prevClose: bars[len(bars)-1].Close, atr: *atr})
	}
	return out
}

func (e *PullbackEngine) barAt(symbol string, d domain.Day) (domain.Bar, bool) {
	idx, ok := e.index[symbol][d]
	if !ok {
		return domain.Bar{}, false
	}
	return e.series[symbol].Bars[idx], true
}

// closesAt returns each symbol's close at d, when it traded that day.
func (e *PullbackEngine) closesAt(d domain.Day) map[string]float64 {
	out := make(map[string]float64, len(e.series))
	for symbol := range e.series {
		if bar, ok := e.barAt(symbol, d); ok {
			out[symbol] = bar.Close
		}
	}
	return out
}

func (e *PullbackEngine) tradingDays(from, to domain.Day) []domain.Day {
	set := make(map[domain.Day]struct{})
	for _, s := range e.series {
		for _, b := range s.Bars {
			if b.Day >= from && b.Day <= to {
				set[b.Day] = struct{}{}
			}
		}
	}
	out := make([]domain.Day, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
