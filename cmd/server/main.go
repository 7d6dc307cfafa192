// Package main is the entry point for the kimum trading research server. It
// wires the market-data clients, the bar cache, the strategy pipeline, and
// the HTTP control surface, then runs until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/alpha"
	"github.com/Gotti0/kimum-trade-sub000/internal/artifacts"
	"github.com/Gotti0/kimum-trade-sub000/internal/barstore"
	"github.com/Gotti0/kimum-trade-sub000/internal/clients/bridge"
	"github.com/Gotti0/kimum-trade-sub000/internal/clients/ebest"
	"github.com/Gotti0/kimum-trade-sub000/internal/clients/kiwoom"
	"github.com/Gotti0/kimum-trade-sub000/internal/clients/yahoo"
	"github.com/Gotti0/kimum-trade-sub000/internal/config"
	"github.com/Gotti0/kimum-trade-sub000/internal/database"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/jobs"
	"github.com/Gotti0/kimum-trade-sub000/internal/marketdata"
	"github.com/Gotti0/kimum-trade-sub000/internal/reliability"
	"github.com/Gotti0/kimum-trade-sub000/internal/scheduler"
	"github.com/Gotti0/kimum-trade-sub000/internal/screener"
	"github.com/Gotti0/kimum-trade-sub000/internal/server"
	"github.com/Gotti0/kimum-trade-sub000/internal/services"
	"github.com/Gotti0/kimum-trade-sub000/internal/universe"
	"github.com/Gotti0/kimum-trade-sub000/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info", true)
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(cfg.LogLevel, cfg.DevMode)
	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting kimum server")

	// Two databases: runs.db is the append-mostly run index, universe.db
	// holds instrument metadata. Both join the backup archive and the
	// /api/system/databases report.
	runsDB, err := database.Open(database.Config{
		Path: filepath.Join(cfg.DataDir, "runs.db"), Profile: database.ProfileLedger, Name: "runs",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open runs database")
	}
	defer runsDB.Close()

	universeDB, err := database.Open(database.Config{
		Path: filepath.Join(cfg.DataDir, "universe.db"), Profile: database.ProfileStandard, Name: "universe",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open universe database")
	}
	defer universeDB.Close()

	databases := map[string]*database.DB{"runs": runsDB, "universe": universeDB}

	runIndex, err := artifacts.NewRunIndex(runsDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise run index")
	}
	universeRepo, err := universe.NewRepository(universeDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise universe repository")
	}

	bars := barstore.New(filepath.Join(cfg.DataDir, "bars"), log)
	snapshots := marketdata.NewSnapshotCache(filepath.Join(cfg.DataDir, "snapshots"), log)
	artifactStore := artifacts.NewStore(filepath.Join(cfg.DataDir, "artifacts"), log)
	screenStore := screener.NewStore(filepath.Join(cfg.DataDir, "screens"), log)

	domestic, minutes := buildKoreanSources(cfg, log)
	global := yahoo.New(yahoo.Config{BaseURL: cfg.YahooBaseURL}, log)

	presets, err := config.LoadPresets(cfg.PresetsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.PresetsPath).Msg("Failed to load presets")
	}

	var phoenixList *alpha.PhoenixList
	if cfg.PhoenixListPath != "" {
		phoenixList, err = alpha.LoadPhoenixList(cfg.PhoenixListPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.PhoenixListPath).Msg("Failed to load phoenix list")
		}
	}

	var syncService *universe.SyncService
	if domestic != nil {
		syncService = universe.NewSyncService(universeRepo, domestic, log)
	}

	// Off-site backups only when a bucket is configured.
	var backups *reliability.BackupService
	if cfg.S3Bucket != "" {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialise S3 client")
		}
		backups = reliability.NewBackupService(s3Client, databases, cfg.DataDir, log)
	}

	pipeline := services.NewPipeline(services.Config{
		Bars:               bars,
		Snapshots:          snapshots,
		Domestic:           domestic,
		Minutes:            minutes,
		Global:             global,
		FX:                 global,
		Artifacts:          artifactStore,
		RunIndex:           runIndex,
		ScreenStore:        screenStore,
		Universe:           universeRepo,
		Sync:               syncService,
		Backups:            backups,
		BackupRetention:    cfg.BackupRetention,
		Presets:            presets,
		PhoenixList:        phoenixList,
		InitialCash:        cfg.InitialCashKRW,
		RiskFreeRate:       cfg.RiskFreeRateAnn,
		LiquidityThreshold: cfg.LiquidityKRW,
		Benchmark:          cfg.BenchmarkSymbol,
		DomesticSymbols:    splitSymbols(cfg.UniverseSymbols),
		ScreenSymbols:      splitSymbols(cfg.ScreenUniverse),
	}, log)

	manager := jobs.NewManager(log)
	jobFuncs := pipeline.JobFuncs()

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		DataDir:   cfg.DataDir,
		Jobs:      manager,
		JobFuncs:  jobFuncs,
		Artifacts: artifactStore,
		RunIndex:  runIndex,
		Screens:   screenStore,
		Universe:  universeRepo,
		Databases: databases,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started")

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = startScheduler(cfg, manager, jobFuncs, domestic, bars, syncService, universeRepo, log)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server stopped")
}

// buildKoreanSources picks the daily and minute backends for the Korean
// market. Kiwoom serves daily bars when configured, falling back to the
// localhost bridge; eBEST owns minute bars, again with the bridge as
// fallback. Nil means the backend is unavailable and dependent jobs fail
// with a configuration error.
func buildKoreanSources(cfg *config.Config, log zerolog.Logger) (daily, minutes domain.BarSource) {
	var bridgeClient domain.BarSource
	if cfg.BridgeBaseURL != "" {
		bridgeClient = bridge.New(bridge.Config{BaseURL: cfg.BridgeBaseURL}, log)
	}

	daily = bridgeClient
	if cfg.KiwoomBaseURL != "" {
		daily = kiwoom.New(kiwoom.Config{BaseURL: cfg.KiwoomBaseURL, AccessToken: cfg.KiwoomToken}, log)
	}

	minutes = bridgeClient
	if cfg.EbestBaseURL != "" {
		minutes = ebest.New(ebest.Config{BaseURL: cfg.EbestBaseURL, AccessToken: cfg.EbestToken}, log)
	}
	return daily, minutes
}

// startScheduler registers the recurring work: the nightly cache refresh and
// metadata sync after the KRX close, and the weekly backup when a backup
// target exists. Scheduled runs go through the job manager so they surface
// in the jobs API like manual runs.
func startScheduler(cfg *config.Config, manager *jobs.Manager,
	jobFuncs map[jobs.Kind]jobs.Fn, domestic domain.BarSource, bars *barstore.Store,
	syncService *universe.SyncService, universeRepo *universe.Repository, log zerolog.Logger) *scheduler.Scheduler {

	sched := scheduler.New(log)

	symbols := func(ctx context.Context) ([]string, error) {
		if configured := splitSymbols(cfg.UniverseSymbols); len(configured) > 0 {
			return configured, nil
		}
		records, err := universeRepo.List(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(records))
		for _, r := range records {
			out = append(out, r.Symbol)
		}
		return out, nil
	}

	if domestic != nil {
		if err := sched.AddJob(scheduler.ScheduleNightlyRefresh, scheduler.RefreshJob{
			Store: bars, Source: domestic, Symbols: symbols, Log: log,
		}); err != nil {
			log.Error().Err(err).Msg("Failed to register refresh job")
		}
	}
	if syncService != nil {
		if err := sched.AddJob(scheduler.ScheduleUniverseSync, scheduler.UniverseSyncJob{
			Sync: syncService, Symbols: symbols, Log: log,
		}); err != nil {
			log.Error().Err(err).Msg("Failed to register universe sync job")
		}
	}
	if backupFn, ok := jobFuncs[jobs.KindBackup]; ok && cfg.S3Bucket != "" {
		if err := sched.AddJob(scheduler.ScheduleWeeklyBackup, scheduler.FuncJob{
			JobName: "weekly_backup",
			Fn: func(ctx context.Context) error {
				_, err := manager.Start(jobs.KindBackup, backupFn)
				return err
			},
		}); err != nil {
			log.Error().Err(err).Msg("Failed to register backup job")
		}
	}

	sched.Start()
	return sched
}

func splitSymbols(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
