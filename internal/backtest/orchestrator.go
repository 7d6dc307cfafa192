// Package backtest runs the event-driven simulation loops: the month-end
// rotation strategies (domestic dual momentum, global preset allocation) and
// the daily-cadence intraday strategies (pullback, phoenix). One run is one
// goroutine; cancellation is honoured at day boundaries and partial results
// are discarded.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/marketdata"
	"github.com/Gotti0/kimum-trade-sub000/internal/portfolio"
	"github.com/Gotti0/kimum-trade-sub000/internal/rebalance"
	"github.com/Gotti0/kimum-trade-sub000/internal/regime"
	"github.com/Gotti0/kimum-trade-sub000/internal/scoring"
)

// Mode selects the rotation strategy flavour.
type Mode string

const (
	ModeDomestic Mode = "domestic"
	ModeGlobal   Mode = "global"
)

// Config parameterises one monthly-rotation run.
type Config struct {
	Mode           Mode
	InitialCapital float64
	WeightMethod   rebalance.WeightMethod
	Scorer         scoring.DomesticConfig
	Preset         scoring.Preset // global mode only
	StrictRegime   bool           // domestic: SMA5/50 + MACD downscaling
	USDKRW         float64        // conversion for USD-quoted instruments

	Costs   portfolio.CostTable
	Markets portfolio.MarketResolver

	// BenchmarkWeights drives the parallel benchmark portfolio, rebalanced
	// on the same month-end cadence. Defaults to 60% SPY / 40% AGG.
	BenchmarkWeights map[string]float64

	// Progress, when set, is called at each decile boundary with 10..100.
	Progress func(percent int)
}

func (c *Config) defaults() {
	if c.USDKRW == 0 {
		c.USDKRW = 1
	}
	if c.BenchmarkWeights == nil {
		c.BenchmarkWeights = map[string]float64{"SPY": 0.6, "AGG": 0.4}
	}
	if c.WeightMethod == "" {
		c.WeightMethod = rebalance.MethodEqual
	}
}

// Result is everything a finished run produced.
type Result struct {
	Mode            Mode
	StartDay        domain.Day
	EndDay          domain.Day
	Equity          []domain.EquityPoint
	BenchmarkEquity []domain.EquityPoint
	Trades          []domain.TradeRecord
	Events          []domain.RebalanceEvent
	FinalValue      float64
	Turnover        float64
	Commission      float64
	Slippage        float64
	Elapsed         time.Duration
}

// Orchestrator runs monthly-rotation backtests over one panel. The optional
// domestic handler feeds the global preset's Korean-equity bucket.
type Orchestrator struct {
	handler    *marketdata.Handler
	krHandler  *marketdata.Handler
	detector   *regime.Detector
	rebalancer *rebalance.Rebalancer
	log        zerolog.Logger
}

func NewOrchestrator(handler *marketdata.Handler, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		handler:    handler,
		detector:   regime.NewDetector(log),
		rebalancer: rebalance.New(log),
		log:        log.With().Str("component", "orchestrator").Logger(),
	}
}

// WithDomesticPanel attaches the domestic panel used to expand the global
// preset's Korean-equity bucket.
func (o *Orchestrator) WithDomesticPanel(h *marketdata.Handler) *Orchestrator {
	o.krHandler = h
	return o
}

// Run executes the daily loop from from to to inclusive. Per-symbol problems
// are skipped and logged; configuration and invariant problems abort the run.
func (o *Orchestrator) Run(ctx context.Context, cfg Config, from, to domain.Day) (*Result, error) {
	cfg.defaults()
	if from > to {
		return nil, &domain.ConfigError{Field: "date_range", Reason: fmt.Sprintf("from %s after to %s", from, to)}
	}

	days := o.tradingDays(from, to)
	if len(days) == 0 {
		return nil, &domain.ConfigError{Field: "date_range", Reason: "no trading days in range"}
	}

	pm, err := portfolio.NewManager(cfg.InitialCapital, cfg.Costs, cfg.Markets, o.log)
	if err != nil {
		return nil, err
	}
	benchPM, err := portfolio.NewManager(cfg.InitialCapital, cfg.Costs, cfg.Markets, zerolog.Nop())
	if err != nil {
		return nil, err
	}

	scorer := scoring.NewScorer(cfg.Scorer, o.log)
	globalScorer := scoring.NewGlobalScorer(cfg.Scorer.RiskFreeRate, o.log)

	monthEnd := make(map[domain.Day]bool)
	for _, d := range o.handler.MonthEndDays() {
		monthEnd[d] = true
	}

	started := time.Now()
	var events []domain.RebalanceEvent
	lastDecile := 0

	for i, d := range days {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		prices := o.handler.CurrentPrices(d)
		pm.RecordDailyEquity(d, prices, cfg.USDKRW)
		benchPM.RecordDailyEquity(d, prices, cfg.USDKRW)

		if monthEnd[d] {
			if err := benchPM.ExecuteTrades(d, cfg.BenchmarkWeights, prices, cfg.USDKRW); err != nil {
				return nil, fmt.Errorf("benchmark rebalance on %s: %w", d, err)
			}
			benchPM.RecordDailyEquity(d, prices, cfg.USDKRW)

			event, err := o.rebalanceOnce(cfg, scorer, globalScorer, pm, d, prices)
			if err != nil {
				return nil, err
			}
			if event != nil {
				events = append(events, *event)
				pm.RecordDailyEquity(d, prices, cfg.USDKRW)
			}
		}

		if cfg.Progress != nil {
			if decile := (i + 1) * 10 / len(days); decile > lastDecile {
				lastDecile = decile
				cfg.Progress(decile * 10)
			}
		}
	}

	turnover, commission, slippage := pm.Totals()
	result := &Result{
		Mode:            cfg.Mode,
		StartDay:        days[0],
		EndDay:          days[len(days)-1],
		Equity:          pm.EquityCurve(),
		BenchmarkEquity: benchPM.EquityCurve(),
		Trades:          pm.Trades(),
		Events:          events,
		FinalValue:      pm.Value(o.handler.CurrentPrices(days[len(days)-1]), cfg.USDKRW),
		Turnover:        turnover,
		Commission:      commission,
		Slippage:        slippage,
		Elapsed:         time.Since(started),
	}

	o.log.Info().Str("mode", string(cfg.Mode)).
		Str("from", result.StartDay.String()).Str("to", result.EndDay.String()).
		Float64("final_value", result.FinalValue).Int("trades", len(result.Trades)).
		Dur("elapsed", result.Elapsed).Msg("Backtest finished")
	return result, nil
}

func (o *Orchestrator) tradingDays(from, to domain.Day) []domain.Day {
	var out []domain.Day
	for _, d := range o.handler.BacktestWindow(0) {
		if d >= from && d <= to {
			out = append(out, d)
		}
	}
	return out
}

// rebalanceOnce runs Scorer → Rebalancer → ExecuteTrades for one trigger
// day. A failed view is logged and skipped; execution failures are fatal.
func (o *Orchestrator) rebalanceOnce(cfg Config, scorer *scoring.Scorer, globalScorer *scoring.GlobalScorer, pm *portfolio.Manager, d domain.Day, prices map[string]float64) (*domain.RebalanceEvent, error) {
	view, benchView, err := o.handler.ViewAt(d)
	if err != nil {
		o.log.Warn().Err(err).Str("day", d.String()).Msg("No view for trigger day, skipping rebalance")
		return nil, nil
	}

	var event domain.RebalanceEvent
	switch cfg.Mode {
	case ModeGlobal:
		alloc, err := globalScorer.Allocate(view, cfg.Preset)
		if err != nil {
			return nil, err
		}
		tickers := make([]string, 0, len(alloc.Weights)+1)
		for t := range alloc.Weights {
			tickers = append(tickers, t)
		}
		if alloc.DomesticProxy != "" {
			tickers = append(tickers, alloc.DomesticProxy)
		}
		labels := o.detector.ClassifyAssets(view, tickers, alloc.CashTicker)
		event = o.rebalancer.GlobalWeights(d, alloc, labels, o.domesticSelection(scorer, alloc.KRTopN, d))

	case ModeDomestic:
		label := o.classifyDomestic(cfg, d, benchView)
		selected := scoring.Symbols(scorer.SelectAssets(view))
		event, err = o.rebalancer.DomesticWeights(view, selected, label, cfg.WeightMethod)
		if err != nil {
			return nil, err
		}

	default:
		return nil, &domain.ConfigError{Field: "mode", Reason: "unknown mode " + string(cfg.Mode)}
	}

	if err := pm.ExecuteTrades(d, event.TargetWeights, prices, cfg.USDKRW); err != nil {
		return nil, fmt.Errorf("execute trades on %s: %w", d, err)
	}
	return &event, nil
}

func (o *Orchestrator) classifyDomestic(cfg Config, d domain.Day, benchView marketdata.BenchmarkView) domain.RegimeLabel {
	if cfg.StrictRegime {
		return o.detector.ClassifyStrict(o.handler.BenchmarkHistory(d, 120))
	}
	return o.detector.Classify(benchView)
}

// domesticSelection scores the Korean panel for the global preset's equity
// bucket. Empty when no domestic panel is attached.
func (o *Orchestrator) domesticSelection(scorer *scoring.Scorer, topN int, d domain.Day) []string {
	if o.krHandler == nil {
		return nil
	}
	view, _, err := o.krHandler.ViewAt(d)
	if err != nil {
		o.log.Warn().Err(err).Str("day", d.String()).Msg("No domestic view, keeping proxy ETF")
		return nil
	}
	ranked := scorer.SelectAssets(view)
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return scoring.Symbols(ranked)
}
