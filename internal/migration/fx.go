package migration

import (
	"github.com/smallbiznis/invoiceengine/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			log.Info("schema migrations skipped", zap.String("reason", "DATABASE_AUTO_MIGRATE=false"))
			return nil
		}
		if err := Migrate(conn); err != nil {
			return err
		}
		log.Info("schema migrations applied", zap.String("type", cfg.DBType))
		return nil
	}),
)
