package di

import (
	"fmt"

	"github.com/aristath/adaptivetrader/internal/config"
	"github.com/aristath/adaptivetrader/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the model registry database and applies its schema.
// The decision log itself is a JSONL file owned by the experience store.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// registry.db - model catalog, active pointer and training runs
	registryDB, err := database.New(database.Config{
		Path:    cfg.RegistryPath(),
		Profile: database.ProfileLedger, // promotions must survive power loss
		Name:    "registry",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize registry database: %w", err)
	}
	container.RegistryDB = registryDB

	if err := registryDB.Migrate(); err != nil {
		registryDB.Close()
		return nil, fmt.Errorf("failed to apply schema to %s: %w", registryDB.Name(), err)
	}

	log.Info().Str("path", cfg.RegistryPath()).Msg("Registry database initialized")
	return container, nil
}
