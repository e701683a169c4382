package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoiceengine/internal/audit"
	"github.com/smallbiznis/invoiceengine/internal/billing"
	"github.com/smallbiznis/invoiceengine/internal/catalog"
	"github.com/smallbiznis/invoiceengine/internal/clock"
	"github.com/smallbiznis/invoiceengine/internal/config"
	"github.com/smallbiznis/invoiceengine/internal/contract"
	"github.com/smallbiznis/invoiceengine/internal/invoice"
	"github.com/smallbiznis/invoiceengine/internal/lock"
	"github.com/smallbiznis/invoiceengine/internal/logger"
	"github.com/smallbiznis/invoiceengine/internal/migration"
	"github.com/smallbiznis/invoiceengine/internal/observability"
	"github.com/smallbiznis/invoiceengine/internal/scheduler"
	"github.com/smallbiznis/invoiceengine/internal/server"
	"github.com/smallbiznis/invoiceengine/internal/store/gormstore"
	"github.com/smallbiznis/invoiceengine/internal/tenant"
	"github.com/smallbiznis/invoiceengine/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Core Infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,
		gormstore.Module,
		server.Module,

		// Domain services
		audit.Module,
		tenant.Module,
		billing.Module,
		catalog.Module,
		contract.Module,
		invoice.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
