// Package di provides dependency injection wiring and initialization.
package di

import (
	"database/sql"

	"github.com/aristath/edgefinder/internal/clients/synthesis"
	"github.com/aristath/edgefinder/internal/database"
	"github.com/aristath/edgefinder/internal/evaluator"
	"github.com/aristath/edgefinder/internal/modules/hypotheses"
	"github.com/aristath/edgefinder/internal/modules/marketdata"
	"github.com/aristath/edgefinder/internal/modules/relationships"
	"github.com/aristath/edgefinder/internal/modules/verdicts"
	"github.com/aristath/edgefinder/internal/reliability"
	"github.com/aristath/edgefinder/internal/scheduler"
)

// Container holds all initialized dependencies.
// Two-database architecture:
//   - research.db: hypotheses, verdicts, relationships, population counter
//   - marketdata.db: events and daily prices written by ingestion adapters
type Container struct {
	// Databases
	ResearchDB   *database.DB
	MarketDataDB *sql.DB

	// Repositories
	HypothesisRepo   *hypotheses.Repository
	VerdictRepo      *verdicts.Repository
	RelationshipRepo *relationships.Repository
	MarketDataRepo   *marketdata.Repository

	// Core services
	Evaluator *evaluator.Evaluator
	Pool      *scheduler.Pool
	Scheduler *scheduler.Scheduler

	// Optional services
	SynthesisClient *synthesis.Client          // nil when no endpoint configured
	BackupService   *reliability.BackupService // nil when backups disabled
}

// Close releases every database handle
func (c *Container) Close() {
	if c.ResearchDB != nil {
		c.ResearchDB.Close()
	}
	if c.MarketDataDB != nil {
		c.MarketDataDB.Close()
	}
}
