package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/edgefinder/internal/clients/synthesis"
	"github.com/aristath/edgefinder/internal/config"
	"github.com/aristath/edgefinder/internal/database"
	"github.com/aristath/edgefinder/internal/domain"
	"github.com/aristath/edgefinder/internal/evaluator"
	"github.com/aristath/edgefinder/internal/modules/hypotheses"
	"github.com/aristath/edgefinder/internal/modules/marketdata"
	"github.com/aristath/edgefinder/internal/modules/relationships"
	"github.com/aristath/edgefinder/internal/modules/verdicts"
	"github.com/aristath/edgefinder/internal/reliability"
	"github.com/aristath/edgefinder/internal/scheduler"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Open databases and apply schemas
// 2. Create repositories
// 3. Create the evaluator and its completion hook
// 4. Create the worker pool and scheduled jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{}

	if err := initDatabases(c, cfg, log); err != nil {
		return nil, err
	}

	initRepositories(c, log)

	if err := initServices(c, cfg, log); err != nil {
		c.Close()
		return nil, err
	}

	if err := registerJobs(c, cfg, log); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func initDatabases(c *Container, cfg *config.Config, log zerolog.Logger) error {
	researchDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "research.db"),
		Profile: database.ProfileLedger,
		Name:    "research",
	})
	if err != nil {
		return fmt.Errorf("failed to open research database: %w", err)
	}
	if err := researchDB.Migrate(); err != nil {
		researchDB.Close()
		return fmt.Errorf("failed to migrate research database: %w", err)
	}
	c.ResearchDB = researchDB

	marketDB, err := marketdata.Open(filepath.Join(cfg.DataDir, "marketdata.db"))
	if err != nil {
		researchDB.Close()
		return err
	}
	if err := marketdata.EnsureSchema(marketDB); err != nil {
		marketDB.Close()
		researchDB.Close()
		return err
	}
	c.MarketDataDB = marketDB

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return nil
}

func initRepositories(c *Container, log zerolog.Logger) {
	conn := c.ResearchDB.Conn()
	c.HypothesisRepo = hypotheses.NewRepository(conn, log)
	c.VerdictRepo = verdicts.NewRepository(conn, log)
	c.RelationshipRepo = relationships.NewRepository(conn, log)
	c.MarketDataRepo = marketdata.NewRepository(c.MarketDataDB, log)
}

func initServices(c *Container, cfg *config.Config, log zerolog.Logger) error {
	// Completion hook: push to the synthesis engine when configured,
	// otherwise log-only.
	var hook domain.CompletionHook
	if cfg.SynthesisWSURL != "" {
		client := synthesis.NewClient(cfg.SynthesisWSURL, log)
		c.SynthesisClient = client
		hook = client
	} else {
		hook = synthesis.NewLogHook(log)
	}

	c.Evaluator = evaluator.New(
		evaluator.Config{
			FamilyWiseAlpha:  cfg.Analysis.FamilyWiseAlpha,
			MinSamples:       cfg.Analysis.MinSamples,
			GrangerMaxLag:    cfg.Analysis.GrangerMaxLag,
			PermutationCount: cfg.Analysis.PermutationCount,
			EventWindowPre:   cfg.Analysis.EventWindowPre,
			EventWindowPost:  cfg.Analysis.EventWindowPost,
			BaselinePeriod:   cfg.Analysis.BaselinePeriod,
			QueryTimeout:     cfg.Scheduler.QueryTimeout,
		},
		c.MarketDataRepo,
		c.MarketDataRepo,
		c.ResearchDB,
		c.HypothesisRepo,
		c.VerdictRepo,
		c.RelationshipRepo,
		hook,
		log,
	)

	c.Pool = scheduler.NewPool(
		scheduler.PoolConfig{
			Workers:        cfg.Scheduler.Workers,
			MaxAttempts:    cfg.Scheduler.MaxAttempts,
			RetryBaseDelay: cfg.Scheduler.RetryBaseDelay,
		},
		c.Evaluator,
		c.HypothesisRepo,
		log,
	)

	if cfg.Backup.Enabled {
		storage, err := reliability.NewStorageClient(
			cfg.Backup.Endpoint,
			cfg.Backup.Region,
			cfg.Backup.AccessKey,
			cfg.Backup.SecretKey,
			cfg.Backup.Bucket,
			log,
		)
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}

		c.BackupService = reliability.NewBackupService(
			storage,
			map[string]reliability.SQLExecutor{
				"research":   c.ResearchDB,
				"marketdata": c.MarketDataDB,
			},
			cfg.DataDir,
			log,
		)
	}

	return nil
}

func registerJobs(c *Container, cfg *config.Config, log zerolog.Logger) error {
	c.Scheduler = scheduler.New(log)

	if err := c.Scheduler.AddJob(cfg.Scheduler.SweepSchedule, scheduler.NewPendingSweepJob(c.Pool)); err != nil {
		return fmt.Errorf("failed to register pending sweep job: %w", err)
	}

	reviewJob := scheduler.NewLapseReviewJob(c.VerdictRepo, c.RelationshipRepo, cfg.Analysis.FamilyWiseAlpha, log)
	if err := c.Scheduler.AddJob(cfg.Scheduler.ReviewSchedule, reviewJob); err != nil {
		return fmt.Errorf("failed to register lapse review job: %w", err)
	}

	if c.BackupService != nil {
		backupJob := reliability.NewBackupJob(c.BackupService, cfg.Backup.Keep)
		if err := c.Scheduler.AddJob(cfg.Backup.Schedule, backupJob); err != nil {
			return fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	return nil
}
