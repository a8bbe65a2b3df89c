// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/adaptivetrader/internal/database"
	"github.com/aristath/adaptivetrader/internal/engine"
	"github.com/aristath/adaptivetrader/internal/execution"
	"github.com/aristath/adaptivetrader/internal/feeder"
	"github.com/aristath/adaptivetrader/internal/modules/experience"
	"github.com/aristath/adaptivetrader/internal/modules/learning"
	"github.com/aristath/adaptivetrader/internal/modules/outcome"
	"github.com/aristath/adaptivetrader/internal/modules/policy"
	"github.com/aristath/adaptivetrader/internal/reliability"
	"github.com/aristath/adaptivetrader/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire and passed to the server for access to services.
type Container struct {
	// Databases
	RegistryDB *database.DB

	// Storage
	Store  *experience.Store
	Policy *policy.Service

	// Learning
	Registry  *learning.Registry
	Inference *learning.Inference
	Pipeline  *learning.Pipeline

	// Decision loop
	Engine   *engine.Engine
	Tracker  *outcome.Tracker
	Feeder   *feeder.JSONLFeeder
	Executor *execution.PaperExecutor
	Loop     *engine.Loop

	// Reliability; nil when backups are disabled
	Backup *reliability.BackupService

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered background jobs
type JobInstances struct {
	Retrain             scheduler.Job
	RebuildPolicy       scheduler.Job
	CheckWALCheckpoints scheduler.Job
	Backup              scheduler.Job // nil when backups are disabled
}

// Close releases the feed and the registry database
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.Feeder != nil {
		_ = c.Feeder.Close()
	}
	if c.RegistryDB != nil {
		_ = c.RegistryDB.Close()
	}
}
