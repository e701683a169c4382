package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoiceengine/internal/audit"
	"github.com/smallbiznis/invoiceengine/internal/billing"
	"github.com/smallbiznis/invoiceengine/internal/clock"
	"github.com/smallbiznis/invoiceengine/internal/config"
	"github.com/smallbiznis/invoiceengine/internal/invoice"
	"github.com/smallbiznis/invoiceengine/internal/lock"
	"github.com/smallbiznis/invoiceengine/internal/logger"
	"github.com/smallbiznis/invoiceengine/internal/observability"
	"github.com/smallbiznis/invoiceengine/internal/store/gormstore"
	"github.com/smallbiznis/invoiceengine/internal/tenant"
	"github.com/smallbiznis/invoiceengine/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "invoicectl",
		Short: "Operate the contract invoicing engine",
		Long: `invoicectl triggers invoicing runs outside the schedule, applies schema
migrations and exports what the runs issued. Connection settings come from the same
environment variables and .env file as the scheduler daemon.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newMigrateCmd(),
		newTenantsCmd(),
		newInvoiceCmd(),
		newExportCmd(),
		newAuditCmd(),
	)
	return root
}

// withApp starts the storage and service graph, fills targets and stops the
// graph once fn returns.
func withApp(ctx context.Context, fn func() error, targets ...any) error {
	app := fx.New(
		fx.NopLogger,
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.SnowflakeNode)
		}),
		db.Module,
		clock.Module,
		lock.Module,
		gormstore.Module,
		audit.Module,
		tenant.Module,
		billing.Module,
		invoice.Module,
		fx.Populate(targets...),
	)
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Stop(context.Background())
	return fn()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
