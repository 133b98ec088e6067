package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

// MaybeRunDev brings the schema current on startup when running in dev with
// LIBRARY_AUTO_MIGRATE set. Postgres gets the embedded goose migrations.
// sqlite has no goose schema and is migrated from the models.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	if cfg.DB.IsSQLite() {
		logg.Info(ctx, "auto-migrating sqlite schema from models")
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("automigrate sqlite: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, "")
	if err != nil {
		return err
	}
	logg.Info(ctx, "applying embedded migrations")
	if err := runner.Run(ctx, "up"); err != nil {
		return err
	}
	if version, err := runner.Version(ctx); err == nil {
		ctx = logg.WithField(ctx, "version", version)
	}
	logg.Info(ctx, "migrations applied")
	return nil
}
