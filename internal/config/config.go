// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/edgefinder/internal/utils"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// AllowedOrigins restricts browser access to the ops API. "*" allows all.
	AllowedOrigins []string

	Analysis  AnalysisConfig
	Scheduler SchedulerConfig
	Backup    BackupConfig

	// SynthesisWSURL is the websocket endpoint of the external synthesis
	// service that consumes completion notifications. Empty disables the push.
	SynthesisWSURL string
}

// AnalysisConfig holds statistical evaluation tunables
type AnalysisConfig struct {
	FamilyWiseAlpha  float64 // Significance level after Bonferroni correction
	MinSamples       int     // Minimum aligned observations (aligner default)
	GrangerMaxLag    int     // Lag grid upper bound for Granger causality
	PermutationCount int     // Null-distribution draws for the permutation test
	EventWindowPre   int     // Trading days before the event in a CAR window
	EventWindowPost  int     // Trading days after the event in a CAR window
	BaselinePeriod   int     // SMA period for the abnormal-return baseline
}

// SchedulerConfig holds evaluation scheduler tunables
type SchedulerConfig struct {
	Workers        int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	QueryTimeout   time.Duration // Per-collaborator-call timeout
	SweepSchedule  string        // cron spec for the pending-hypothesis sweep
	ReviewSchedule string        // cron spec for the significance-lapse review
}

// BackupConfig holds S3-compatible backup settings
type BackupConfig struct {
	Enabled   bool
	Schedule  string // cron spec
	Endpoint  string // S3-compatible endpoint (R2, MinIO, AWS)
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Keep      int // Number of backups to retain
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("EDGEFINDER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8090),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AllowedOrigins: utils.ParseCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		Analysis: AnalysisConfig{
			FamilyWiseAlpha:  getEnvAsFloat("SIGNIFICANCE_LEVEL", 0.05),
			MinSamples:       getEnvAsInt("MIN_SAMPLE_SIZE", 10),
			GrangerMaxLag:    getEnvAsInt("GRANGER_MAX_LAG", 10),
			PermutationCount: getEnvAsInt("PERMUTATION_COUNT", 1000),
			EventWindowPre:   getEnvAsInt("EVENT_WINDOW_PRE", 1),
			EventWindowPost:  getEnvAsInt("EVENT_WINDOW_POST", 5),
			BaselinePeriod:   getEnvAsInt("BASELINE_SMA_PERIOD", 20),
		},
		Scheduler: SchedulerConfig{
			Workers:        getEnvAsInt("EVAL_WORKERS", 4),
			MaxAttempts:    getEnvAsInt("EVAL_MAX_ATTEMPTS", 3),
			RetryBaseDelay: time.Duration(getEnvAsInt("EVAL_RETRY_BASE_MS", 500)) * time.Millisecond,
			QueryTimeout:   time.Duration(getEnvAsInt("COLLABORATOR_TIMEOUT_SECONDS", 30)) * time.Second,
			SweepSchedule:  getEnv("EVAL_SWEEP_SCHEDULE", "0 */5 * * * *"),
			ReviewSchedule: getEnv("LAPSE_REVIEW_SCHEDULE", "0 0 6 * * *"),
		},
		Backup: BackupConfig{
			Enabled:   getEnvAsBool("BACKUP_ENABLED", false),
			Schedule:  getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
			Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
			Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
			AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
			Region:    getEnv("BACKUP_S3_REGION", "auto"),
			Keep:      getEnvAsInt("BACKUP_KEEP", 14),
		},
		SynthesisWSURL: getEnv("SYNTHESIS_WS_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.Analysis.FamilyWiseAlpha <= 0 || c.Analysis.FamilyWiseAlpha >= 1 {
		return fmt.Errorf("SIGNIFICANCE_LEVEL must be in (0, 1), got %v", c.Analysis.FamilyWiseAlpha)
	}
	if c.Analysis.MinSamples < 3 {
		return fmt.Errorf("MIN_SAMPLE_SIZE must be at least 3, got %d", c.Analysis.MinSamples)
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("EVAL_WORKERS must be at least 1, got %d", c.Scheduler.Workers)
	}
	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("BACKUP_S3_BUCKET is required when backups are enabled")
	}
	return nil
}

// Helper functions
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
