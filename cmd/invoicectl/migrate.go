package main

import (
	"fmt"

	"github.com/smallbiznis/invoiceengine/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				conn *gorm.DB
				log  *zap.Logger
			)
			return withApp(cmd.Context(), func() error {
				if err := migration.Migrate(conn); err != nil {
					return err
				}
				log.Info("schema migrations applied")
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return err
			}, &conn, &log)
		},
	}
}
