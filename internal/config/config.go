// Package config loads the application configuration from environment
// variables (with an optional .env file) and strategy presets from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// Config holds application configuration.
type Config struct {
	DataDir  string // base directory for caches, databases, artefacts
	Port     int
	DevMode  bool
	LogLevel string

	// Market-data backends. Empty base URLs disable the backend.
	KiwoomBaseURL    string
	KiwoomToken      string
	EbestBaseURL     string
	EbestToken       string
	BridgeBaseURL    string
	YahooBaseURL     string // override for tests; empty means the public API
	PresetsPath      string // optional YAML overriding the compiled-in presets
	PhoenixListPath  string // date-keyed replay target list; empty disables phoenix
	UniverseSymbols  string // comma-separated refresh universe
	BackupRetention  int    // days; 0 keeps everything
	RiskFreeRateAnn  float64
	InitialCashKRW   float64
	LiquidityKRW     float64 // domestic adtv20 floor; 0 means the built-in default
	BenchmarkSymbol  string
	ScreenUniverse   string // comma-separated screener universe
	SchedulerEnabled bool

	// Off-site backup target. Bucket empty disables backups.
	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("KIMUM_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("KIMUM_PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		KiwoomBaseURL:    getEnv("KIWOOM_BASE_URL", ""),
		KiwoomToken:      getEnv("KIWOOM_ACCESS_TOKEN", ""),
		EbestBaseURL:     getEnv("EBEST_BASE_URL", ""),
		EbestToken:       getEnv("EBEST_ACCESS_TOKEN", ""),
		BridgeBaseURL:    getEnv("BRIDGE_BASE_URL", ""),
		YahooBaseURL:     getEnv("YAHOO_BASE_URL", ""),
		PresetsPath:      getEnv("KIMUM_PRESETS_PATH", ""),
		PhoenixListPath:  getEnv("PHOENIX_LIST_PATH", ""),
		UniverseSymbols:  getEnv("KIMUM_UNIVERSE", ""),
		ScreenUniverse:   getEnv("KIMUM_SCREEN_UNIVERSE", ""),
		BackupRetention:  getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		RiskFreeRateAnn:  getEnvAsFloat("RISK_FREE_RATE", 0.03),
		InitialCashKRW:   getEnvAsFloat("INITIAL_CASH_KRW", 100_000_000),
		LiquidityKRW:     getEnvAsFloat("LIQUIDITY_THRESHOLD_KRW", 0),
		BenchmarkSymbol:  getEnv("BENCHMARK_SYMBOL", "SPY"),
		SchedulerEnabled: getEnvAsBool("SCHEDULER_ENABLED", true),

		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return &domain.ConfigError{Field: "port", Reason: fmt.Sprintf("out of range: %d", c.Port)}
	}
	if c.InitialCashKRW <= 0 {
		return &domain.ConfigError{Field: "initial_cash", Reason: "must be positive"}
	}
	if c.BackupRetention < 0 {
		return &domain.ConfigError{Field: "backup_retention_days", Reason: "must not be negative"}
	}
	if c.S3Bucket != "" && (c.S3AccessKeyID == "" || c.S3SecretAccessKey == "") {
		return &domain.ConfigError{Field: "s3_bucket", Reason: "bucket set without credentials"}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
