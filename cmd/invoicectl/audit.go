package main

import (
	"github.com/smallbiznis/invoiceengine/internal/audit/domain"
	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	var (
		tenantFlag string
		req        domain.ListAuditLogRequest
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Page through the audit trail of a tenant",
		Example: `  # Corrections issued through the CLI
  invoicectl audit --tenant 1790000000000000000 --action billing.correction --actor-type cli`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseTenant(tenantFlag)
			if err != nil {
				return err
			}
			var svc domain.Service
			ctx := cmd.Context()
			return withApp(ctx, func() error {
				res, err := svc.List(tenantContext(ctx, tenantID), req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}, &svc)
		},
	}
	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&req.Action, "action", "", "only entries with this action, e.g. "+domain.ActionBillingRun)
	cmd.Flags().StringVar(&req.TargetType, "target-type", "", "only entries on this target type")
	cmd.Flags().StringVar(&req.ActorType, "actor-type", "", "only entries by this actor type")
	cmd.Flags().IntVar(&req.PageSize, "page-size", 50, "entries per page, at most 250")
	cmd.Flags().StringVar(&req.PageToken, "page-token", "", "next_page_token of the previous page")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
