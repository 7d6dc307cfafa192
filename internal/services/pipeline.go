// Package services glues the bar substrate to the strategy engines: load the
// cached series, build panels (through the snapshot cache), run a backtest or
// screen, analyse the result, and persist the artefact, chart, and run-index
// entry. Every public run method has the job function shape so the job
// manager can launch it directly.
package services

import (
	"context"
	"regexp"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/alpha"
	"github.com/Gotti0/kimum-trade-sub000/internal/analytics"
	"github.com/Gotti0/kimum-trade-sub000/internal/artifacts"
	"github.com/Gotti0/kimum-trade-sub000/internal/backtest"
	"github.com/Gotti0/kimum-trade-sub000/internal/barstore"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/jobs"
	"github.com/Gotti0/kimum-trade-sub000/internal/marketdata"
	"github.com/Gotti0/kimum-trade-sub000/internal/portfolio"
	"github.com/Gotti0/kimum-trade-sub000/internal/reliability"
	"github.com/Gotti0/kimum-trade-sub000/internal/scoring"
	"github.com/Gotti0/kimum-trade-sub000/internal/screener"
	"github.com/Gotti0/kimum-trade-sub000/internal/universe"
)

// defaultLookbackDays covers the 12-month momentum window plus warmup.
const defaultLookbackDays = 500

// krSymbolPattern matches six-digit Korean instrument codes.
var krSymbolPattern = regexp.MustCompile(`^\d{6}$`)

// Config wires a pipeline. Sources may be nil when the backend is not
// configured; runs needing a missing source fail with a ConfigError.
type Config struct {
	Bars      *barstore.Store
	Snapshots *marketdata.SnapshotCache
	Domestic  domain.BarSource // daily Korean bars
	Minutes   domain.BarSource // minute-capable Korean source
	Global    domain.BarSource // global ETFs + benchmark
	FX        domain.FXSource

	Artifacts   *artifacts.Store
	RunIndex    *artifacts.RunIndex
	ScreenStore *screener.Store
	Universe    *universe.Repository
	Sync        *universe.SyncService

	// Backups nil disables the backup job.
	Backups         *reliability.BackupService
	BackupRetention int // days

	Presets      map[string]scoring.Preset
	PhoenixList  *alpha.PhoenixList
	InitialCash  float64
	RiskFreeRate float64
	Benchmark    string

	// LiquidityThreshold gates the domestic selection universe on adtv20,
	// in KRW. Zero means the 50 billion default.
	LiquidityThreshold float64

	DomesticSymbols []string
	ScreenSymbols   []string
	GlobalPreset    string
	LookbackDays    int
}

// Pipeline runs the strategies end to end.
type Pipeline struct {
	cfg Config
	log zerolog.Logger
}

func NewPipeline(cfg Config, log zerolog.Logger) *Pipeline {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = defaultLookbackDays
	}
	if cfg.GlobalPreset == "" {
		cfg.GlobalPreset = "balanced"
	}
	if cfg.LiquidityThreshold == 0 {
		cfg.LiquidityThreshold = scoring.DefaultLiquidityThreshold
	}
	return &Pipeline{cfg: cfg, log: log.With().Str("component", "pipeline").Logger()}
}

// marketFor classifies a symbol for cost and currency purposes. Six-digit
// codes are Korean equities; everything else trades as a global ETF, except
// the configured benchmark.
func (p *Pipeline) marketFor(symbol string) domain.Market {
	if symbol == p.cfg.Benchmark {
		return domain.MarketBenchmark
	}
	if krSymbolPattern.MatchString(symbol) {
		return domain.MarketDomestic
	}
	return domain.MarketGlobalETF
}

// loadSeries ensures [from, to] coverage for each symbol. Transient fetch
// failures with no cache drop the symbol with a warning; the run continues
// with the rest.
func (p *Pipeline) loadSeries(ctx context.Context, log zerolog.Logger, source domain.BarSource, symbols []string, from, to domain.Day, interval barstore.Interval) (map[string]*domain.BarSeries, error) {
	if source == nil {
		return nil, &domain.ConfigError{Field: "source", Reason: "no market-data backend configured"}
	}

	out := make(map[string]*domain.BarSeries, len(symbols))
	for _, symbol := range symbols {
		series, err := p.cfg.Bars.EnsureRange(ctx, source, symbol, from, to, interval)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("symbol", symbol).Msg("Skipping symbol")
			continue
		}
		if series.Empty() {
			continue
		}
		out[symbol] = series
	}
	if len(out) == 0 {
		return nil, &domain.ConfigError{Field: "universe", Reason: "no symbol has usable bars"}
	}
	return out, nil
}

// buildHandler assembles a panel handler, reusing a snapshot when the series
// set is unchanged since the last build.
func (p *Pipeline) buildHandler(series map[string]*domain.BarSeries, benchmark *domain.BarSeries, log zerolog.Logger) (*marketdata.Handler, error) {
	handler := marketdata.NewHandler(log)

	if p.cfg.Snapshots != nil {
		key := marketdata.Key(series)
		if panel, err := p.cfg.Snapshots.Load(key); err == nil && panel != nil {
			if err := handler.RebuildFromPanel(panel, benchmark); err == nil {
				return handler, nil
			}
		}
		if err := handler.Rebuild(series, benchmark); err != nil {
			return nil, err
		}
		if err := p.cfg.Snapshots.Store(key, handler.Panel()); err != nil {
			log.Warn().Err(err).Msg("Failed to store panel snapshot")
		}
		return handler, nil
	}

	if err := handler.Rebuild(series, benchmark); err != nil {
		return nil, err
	}
	return handler, nil
}

func (p *Pipeline) benchmarkSeries(ctx context.Context, from, to domain.Day) (*domain.BarSeries, error) {
	if p.cfg.Global == nil || p.cfg.Benchmark == "" {
		return nil, nil
	}
	return p.cfg.Bars.EnsureRange(ctx, p.cfg.Global, p.cfg.Benchmark, from, to, barstore.IntervalDaily)
}

func (p *Pipeline) window() (domain.Day, domain.Day) {
	to := domain.Today()
	return to.AddDays(-p.cfg.LookbackDays), to
}

// finishRun analyses a backtest result and persists artefact, chart, and
// index entry.
func (p *Pipeline) finishRun(ctx context.Context, log zerolog.Logger, strategy string, result *backtest.Result, runConfig map[string]any) error {
	report, err := analytics.Analyze(result.Equity, result.Trades, result.Events, p.cfg.RiskFreeRate)
	if err != nil {
		return err
	}

	artifact := artifacts.Build(strategy, result, report, runConfig)
	path, err := p.cfg.Artifacts.Save(artifact)
	if err != nil {
		return err
	}

	if png, err := analytics.RenderEquityChart(strategy, result.Equity, result.BenchmarkEquity); err == nil {
		if _, err := p.cfg.Artifacts.SaveChart(strategy, png); err != nil {
			log.Warn().Err(err).Msg("Failed to save equity chart")
		}
	} else {
		log.Warn().Err(err).Msg("Failed to render equity chart")
	}

	if p.cfg.RunIndex != nil {
		if _, err := p.cfg.RunIndex.Record(ctx, artifact, path); err != nil {
			log.Warn().Err(err).Msg("Failed to index run")
		}
	}

	log.Info().Str("strategy", strategy).
		Float64("final_value", result.FinalValue).
		Float64("cagr", report.CAGR).
		Float64("mdd", report.MaxDrawdown.Depth).
		Msg("Run finished")
	return nil
}

// RunDomesticBacktest runs the domestic dual-momentum rotation.
func (p *Pipeline) RunDomesticBacktest(ctx context.Context, log zerolog.Logger, progress func(int)) error {
	from, to := p.window()
	series, err := p.loadSeries(ctx, log, p.cfg.Domestic, p.cfg.DomesticSymbols, from, to, barstore.IntervalDaily)
	if err != nil {
		return err
	}
	bench, err := p.benchmarkSeries(ctx, from, to)
	if err != nil {
		log.Warn().Err(err).Msg("Benchmark unavailable, running without regime gate")
		bench = nil
	}

	handler, err := p.buildHandler(series, bench, log)
	if err != nil {
		return err
	}

	cfg := backtest.Config{
		Mode:           backtest.ModeDomestic,
		InitialCapital: p.cfg.InitialCash,
		Scorer: scoring.DomesticConfig{
			LiquidityThreshold: p.cfg.LiquidityThreshold,
			TopN:               5,
			RiskFreeRate:       p.cfg.RiskFreeRate,
		},
		StrictRegime: true,
		Costs:        portfolio.DefaultCostTable(),
		Markets:      p.marketFor,
		Progress:     progress,
	}

	result, err := backtest.NewOrchestrator(handler, log).Run(ctx, cfg, from, to)
	if err != nil {
		return err
	}
	return p.finishRun(ctx, log, "domestic", result, map[string]any{
		"top_n":         cfg.Scorer.TopN,
		"strict_regime": cfg.StrictRegime,
		"lookback_days": p.cfg.LookbackDays,
	})
}

// RunGlobalBacktest runs the preset-driven global allocation, expanding the
// Korean-equity bucket through the domestic panel when one is available.
func (p *Pipeline) RunGlobalBacktest(ctx context.Context, log zerolog.Logger, progress func(int)) error {
	preset, err := scoring.PresetByName(p.cfg.Presets, p.cfg.GlobalPreset)
	if err != nil {
		return err
	}

	from, to := p.window()
	series, err := p.loadSeries(ctx, log, p.cfg.Global, presetTickers(preset), from, to, barstore.IntervalDaily)
	if err != nil {
		return err
	}
	bench, err := p.benchmarkSeries(ctx, from, to)
	if err != nil {
		bench = nil
	}

	handler, err := p.buildHandler(series, bench, log)
	if err != nil {
		return err
	}

	orchestrator := backtest.NewOrchestrator(handler, log)
	if len(p.cfg.DomesticSymbols) > 0 && p.cfg.Domestic != nil {
		if krSeries, err := p.loadSeries(ctx, log, p.cfg.Domestic, p.cfg.DomesticSymbols, from, to, barstore.IntervalDaily); err == nil {
			if krHandler, err := p.buildHandler(krSeries, bench, log); err == nil {
				orchestrator.WithDomesticPanel(krHandler)
			}
		} else {
			log.Warn().Err(err).Msg("Domestic panel unavailable, preset KR bucket stays on proxy")
		}
	}

	usdkrw := 1350.0
	if p.cfg.FX != nil {
		if fx, err := p.cfg.FX.GetUSDKRW(ctx); err == nil {
			usdkrw = fx
		} else {
			log.Warn().Err(err).Float64("fallback", usdkrw).Msg("FX fetch failed, using fallback rate")
		}
	}

	cfg := backtest.Config{
		Mode:           backtest.ModeGlobal,
		InitialCapital: p.cfg.InitialCash,
		Preset:         preset,
		USDKRW:         usdkrw,
		Scorer: scoring.DomesticConfig{
			LiquidityThreshold: p.cfg.LiquidityThreshold,
			TopN:               preset.KRTopN,
			RiskFreeRate:       p.cfg.RiskFreeRate,
		},
		Costs:    portfolio.DefaultCostTable(),
		Markets:  p.marketFor,
		Progress: progress,
	}

	result, err := orchestrator.Run(ctx, cfg, from, to)
	if err != nil {
		return err
	}
	return p.finishRun(ctx, log, "global", result, map[string]any{
		"preset":        preset.Name,
		"usdkrw":        usdkrw,
		"lookback_days": p.cfg.LookbackDays,
	})
}

// RunPullbackBacktest replays the staged-entry pullback strategy over the
// domestic daily universe.
func (p *Pipeline) RunPullbackBacktest(ctx context.Context, log zerolog.Logger, progress func(int)) error {
	from, to := p.window()
	series, err := p.loadSeries(ctx, log, p.cfg.Domestic, p.cfg.DomesticSymbols, from, to, barstore.IntervalDaily)
	if err != nil {
		return err
	}
	if progress != nil {
		progress(30)
	}

	cfg := backtest.PullbackConfig{
		Filter:         alpha.DefaultPullbackConfig(),
		InitialCapital: p.cfg.InitialCash,
		Costs:          portfolio.DefaultCostTable(),
		Markets:        p.marketFor,
	}
	result, err := backtest.NewPullbackEngine(series, log).Run(ctx, cfg, from, to)
	if err != nil {
		return err
	}
	if progress != nil {
		progress(90)
	}
	return p.finishRun(ctx, log, "pullback", result, map[string]any{
		"lookback_days": p.cfg.LookbackDays,
	})
}

// RunPhoenixReplay replays the date-keyed phoenix target list on minute bars.
func (p *Pipeline) RunPhoenixReplay(ctx context.Context, log zerolog.Logger, progress func(int)) error {
	if p.cfg.PhoenixList == nil {
		return &domain.ConfigError{Field: "phoenix_list", Reason: "no target list configured"}
	}

	days := p.cfg.PhoenixList.Days()
	if len(days) == 0 {
		return &domain.ConfigError{Field: "phoenix_list", Reason: "target list is empty"}
	}
	from, to := days[0], days[len(days)-1]

	symbols := phoenixSymbols(p.cfg.PhoenixList, days)
	minutes, err := p.loadSeries(ctx, log, p.cfg.Minutes, symbols, from, to, barstore.IntervalMinute)
	if err != nil {
		return err
	}
	if progress != nil {
		progress(40)
	}

	cfg := backtest.PhoenixConfig{
		List:           p.cfg.PhoenixList,
		InitialCapital: p.cfg.InitialCash,
		Costs:          portfolio.DefaultCostTable(),
		Markets:        p.marketFor,
	}
	result, err := backtest.NewPhoenixEngine(minutes, log).Run(ctx, cfg, from, to)
	if err != nil {
		return err
	}
	if progress != nil {
		progress(90)
	}
	return p.finishRun(ctx, log, "phoenix", result, map[string]any{
		"targets": len(symbols),
		"days":    len(days),
	})
}

// RunScreen evaluates the swing or pullback filter at the latest cached day
// and publishes the ranked result.
func (p *Pipeline) RunScreen(kind screener.Kind) func(ctx context.Context, log zerolog.Logger, progress func(int)) error {
	return func(ctx context.Context, log zerolog.Logger, progress func(int)) error {
		symbols := p.cfg.ScreenSymbols
		if len(symbols) == 0 {
			symbols = p.cfg.DomesticSymbols
		}

		to := domain.Today()
		series, err := p.loadSeries(ctx, log, p.cfg.Domestic, symbols, to.AddDays(-90), to, barstore.IntervalDaily)
		if err != nil {
			return err
		}
		if progress != nil {
			progress(50)
		}

		var caps screener.MarketCapFn
		if p.cfg.Universe != nil {
			if table, err := p.cfg.Universe.MarketCaps(ctx); err == nil {
				caps = func(symbol string) float64 { return table[symbol] }
			} else {
				log.Warn().Err(err).Msg("Market caps unavailable for screen")
			}
		}

		s := screener.New(alpha.DefaultSwingConfig(), alpha.DefaultPullbackConfig(), caps, log)
		result, err := s.Run(kind, series)
		if err != nil {
			return err
		}
		if err := p.cfg.ScreenStore.Save(result); err != nil {
			return err
		}

		log.Info().Str("kind", string(kind)).
			Int("universe", result.Universe).
			Int("candidates", len(result.Candidates)).
			Msg("Screen finished")
		return nil
	}
}

// RunUniverseSync refreshes stored instrument metadata for the configured
// universe.
func (p *Pipeline) RunUniverseSync(ctx context.Context, log zerolog.Logger, progress func(int)) error {
	if p.cfg.Sync == nil {
		return &domain.ConfigError{Field: "universe_sync", Reason: "no sync service configured"}
	}
	updated, err := p.cfg.Sync.Sync(ctx, p.cfg.DomesticSymbols)
	if err != nil {
		return err
	}
	if progress != nil {
		progress(100)
	}
	log.Info().Int("updated", updated).Msg("Universe sync finished")
	return nil
}

// RunDataRefresh prefetches the daily bar cache for the whole universe.
func (p *Pipeline) RunDataRefresh(ctx context.Context, log zerolog.Logger, progress func(int)) error {
	from, to := p.window()

	if p.cfg.Domestic != nil && len(p.cfg.DomesticSymbols) > 0 {
		if err := p.cfg.Bars.Prefetch(ctx, p.cfg.Domestic, p.cfg.DomesticSymbols, from, to, barstore.IntervalDaily); err != nil {
			return err
		}
	}
	if progress != nil {
		progress(60)
	}
	if p.cfg.Global != nil {
		symbols := p.globalRefreshSymbols()
		if len(symbols) > 0 {
			if err := p.cfg.Bars.Prefetch(ctx, p.cfg.Global, symbols, from, to, barstore.IntervalDaily); err != nil {
				return err
			}
		}
	}
	log.Info().Msg("Data refresh finished")
	return nil
}

// RunBackup snapshots every registered database, ships the archive off-site,
// and rotates expired backups.
func (p *Pipeline) RunBackup(ctx context.Context, log zerolog.Logger, progress func(int)) error {
	if p.cfg.Backups == nil {
		return &domain.ConfigError{Field: "backup", Reason: "no backup target configured"}
	}
	if err := p.cfg.Backups.CreateAndUpload(ctx); err != nil {
		return err
	}
	if progress != nil {
		progress(80)
	}
	if p.cfg.BackupRetention > 0 {
		if err := p.cfg.Backups.RotateOldBackups(ctx, p.cfg.BackupRetention); err != nil {
			log.Warn().Err(err).Msg("Backup rotation failed")
		}
	}
	log.Info().Msg("Backup finished")
	return nil
}

// JobFuncs binds every job kind to its pipeline method. Jobs whose
// prerequisites are missing stay registered and fail with a ConfigError when
// started.
func (p *Pipeline) JobFuncs() map[jobs.Kind]jobs.Fn {
	return map[jobs.Kind]jobs.Fn{
		jobs.KindBacktestDomestic: p.RunDomesticBacktest,
		jobs.KindBacktestGlobal:   p.RunGlobalBacktest,
		jobs.KindBacktestPullback: p.RunPullbackBacktest,
		jobs.KindBacktestPhoenix:  p.RunPhoenixReplay,
		jobs.KindScreenSwing:      p.RunScreen(screener.KindSwing),
		jobs.KindScreenPullback:   p.RunScreen(screener.KindPullback),
		jobs.KindUniverseSync:     p.RunUniverseSync,
		jobs.KindDataRefresh:      p.RunDataRefresh,
		jobs.KindBackup:           p.RunBackup,
	}
}

// globalRefreshSymbols collects every ticker any preset can allocate, plus
// the benchmark.
func (p *Pipeline) globalRefreshSymbols() []string {
	set := make(map[string]bool)
	for _, preset := range p.cfg.Presets {
		for _, ticker := range presetTickers(preset) {
			set[ticker] = true
		}
	}
	if p.cfg.Benchmark != "" {
		set[p.cfg.Benchmark] = true
	}
	out := make([]string, 0, len(set))
	for ticker := range set {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

func presetTickers(preset scoring.Preset) []string {
	set := make(map[string]bool)
	for _, cat := range preset.Categories {
		for _, ticker := range cat.Tickers {
			set[ticker] = true
		}
		if cat.Proxy != "" {
			set[cat.Proxy] = true
		}
	}
	if preset.CashTicker != "" {
		set[preset.CashTicker] = true
	}
	out := make([]string, 0, len(set))
	for ticker := range set {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

func phoenixSymbols(list *alpha.PhoenixList, days []domain.Day) []string {
	set := make(map[string]bool)
	for _, day := range days {
		for _, symbol := range list.TargetsFor(day) {
			set[symbol] = true
		}
	}
	out := make([]string, 0, len(set))
	for symbol := range set {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
