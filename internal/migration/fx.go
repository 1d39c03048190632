package migration

import (
	"context"

	"github.com/smallbiznis/schoolbilling/internal/config"
	"github.com/smallbiznis/schoolbilling/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			log.Info("auto migration disabled")
		} else if cfg.DBType != "" && cfg.DBType != "postgres" {
			log.Warn("embedded migrations target postgres; skipping", zap.String("db_type", cfg.DBType))
		} else {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		}

		created, err := seed.EnsurePlatformAdmins(context.Background(), conn, cfg.PlatformAdminIDs)
		if err != nil {
			return err
		}
		if created > 0 {
			log.Info("platform admins seeded", zap.Int("count", created))
		}
		return nil
	}),
)
