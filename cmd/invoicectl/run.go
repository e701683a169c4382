package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	auditdomain "github.com/smallbiznis/invoiceengine/internal/audit/domain"
	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	"github.com/smallbiznis/invoiceengine/internal/clock"
	"github.com/smallbiznis/invoiceengine/internal/config"
	"github.com/smallbiznis/invoiceengine/internal/observability/metricspush"
	"github.com/smallbiznis/invoiceengine/pkg/telemetry/correlation"
	"github.com/smallbiznis/invoiceengine/pkg/tenantctx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	var tenantFlag, asOfFlag string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Invoice every due contract of one tenant",
		Example: `  # Invoice everything due today
  invoicectl run --tenant 1790000000000000000

  # Catch up to a given day
  invoicectl run --tenant 1790000000000000000 --as-of 2024-03-01`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseTenant(tenantFlag)
			if err != nil {
				return err
			}

			var (
				svc billingdomain.Service
				clk clock.Clock
				cfg config.Config
				log *zap.Logger
			)
			ctx := cmd.Context()
			return withApp(ctx, func() error {
				asOf, err := parseAsOf(asOfFlag, clk)
				if err != nil {
					return err
				}
				res, runErr := svc.RunInvoicing(tenantContext(ctx, tenantID), tenantID, asOf)
				if pusher := metricspush.NewPusher(cfg, log); pusher != nil {
					if err := pusher.Push(ctx, prometheus.DefaultGatherer); err != nil {
						log.Warn("push run metrics", zap.Error(err))
					}
				}
				if runErr != nil {
					return runErr
				}
				return printJSON(cmd.OutOrStdout(), res)
			}, &svc, &clk, &cfg, &log)
		},
	}
	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&asOfFlag, "as-of", "", "bill periods starting on or before this day, YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func parseTenant(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid --tenant %q", value)
	}
	return id, nil
}

// tenantContext scopes ctx to tenantID with invoicectl as the audit actor and
// one correlation id per invocation.
func tenantContext(ctx context.Context, tenantID snowflake.ID) context.Context {
	ctx, _ = correlation.Ensure(tenantctx.WithTenantID(ctx, tenantID))
	return auditdomain.WithActor(ctx, auditdomain.ActorTypeCLI, "invoicectl")
}

func parseAsOf(value string, clk clock.Clock) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return calendar.Truncate(clk.Now()), nil
	}
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD", value)
	}
	return calendar.Truncate(day), nil
}
