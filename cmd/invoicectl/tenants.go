package main

import (
	"github.com/smallbiznis/invoiceengine/internal/tenant/domain"
	"github.com/spf13/cobra"
)

type tenantRow struct {
	ID                         string `json:"id"`
	Name                       string `json:"name"`
	LastInvoiceNumber          int64  `json:"last_invoice_number"`
	NumberOfContracts          int64  `json:"number_of_contracts"`
	DaysUntilInvoiceExpiration int    `json:"days_until_invoice_expiration"`
}

func newTenantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tenants",
		Short: "List tenants with their invoice counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var svc domain.Service
			return withApp(cmd.Context(), func() error {
				tenants, err := svc.List(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([]tenantRow, 0, len(tenants))
				for _, t := range tenants {
					rows = append(rows, tenantRow{
						ID:                         t.ID.String(),
						Name:                       t.Name,
						LastInvoiceNumber:          t.LastInvoiceNumber,
						NumberOfContracts:          t.NumberOfContracts,
						DaysUntilInvoiceExpiration: t.DaysUntilInvoiceExpiration,
					})
				}
				return printJSON(cmd.OutOrStdout(), rows)
			}, &svc)
		},
	}
}
