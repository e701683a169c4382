package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoiceengine/internal/clock"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/invoiceengine/internal/ledger/domain"
	"github.com/spf13/cobra"
)

type collectionBatch struct {
	PaymentMethod string                      `json:"payment_method"`
	Total         decimal.Decimal             `json:"total"`
	Collections   []*invoicedomain.Collection `json:"collections"`
}

type ledgerExport struct {
	InvoiceNumber int64                             `json:"invoice_number"`
	Debit         decimal.Decimal                   `json:"debit"`
	Credit        decimal.Decimal                   `json:"credit"`
	Posts         []*ledgerdomain.GeneralLedgerPost `json:"posts"`
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the collections or ledger posts of one invoice date",
	}
	cmd.AddCommand(newExportCollectionsCmd(), newExportLedgerCmd())
	return cmd
}

func newExportCollectionsCmd() *cobra.Command {
	var tenantFlag, dateFlag string
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Collections grouped by payment method",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseTenant(tenantFlag)
			if err != nil {
				return err
			}
			var (
				svc invoicedomain.Service
				clk clock.Clock
			)
			ctx := cmd.Context()
			return withApp(ctx, func() error {
				date, err := parseDate("date", dateFlag, clk)
				if err != nil {
					return err
				}
				grouped, err := svc.CollectionsByPaymentMethod(tenantContext(ctx, tenantID), date)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), collectionBatches(grouped))
			}, &svc, &clk)
		},
	}
	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&dateFlag, "date", "", "invoice date, YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newExportLedgerCmd() *cobra.Command {
	var tenantFlag, dateFlag string
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "General ledger posts per invoice",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseTenant(tenantFlag)
			if err != nil {
				return err
			}
			var (
				svc invoicedomain.Service
				clk clock.Clock
			)
			ctx := cmd.Context()
			return withApp(ctx, func() error {
				date, err := parseDate("date", dateFlag, clk)
				if err != nil {
					return err
				}
				invoices, err := svc.InvoicesWithPosts(tenantContext(ctx, tenantID), date)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), ledgerExports(invoices))
			}, &svc, &clk)
		},
	}
	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&dateFlag, "date", "", "invoice date, YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newInvoiceCmd() *cobra.Command {
	var tenantFlag, idFlag string
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Show one invoice with its lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := parseTenant(tenantFlag)
			if err != nil {
				return err
			}
			id, err := snowflake.ParseString(strings.TrimSpace(idFlag))
			if err != nil || id == 0 {
				return fmt.Errorf("invalid --id %q", idFlag)
			}
			var svc invoicedomain.Service
			ctx := cmd.Context()
			return withApp(ctx, func() error {
				inv, err := svc.Get(tenantContext(ctx, tenantID), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), inv)
			}, &svc)
		},
	}
	cmd.Flags().StringVar(&tenantFlag, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&idFlag, "id", "", "invoice id")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

// collectionBatches orders payment methods by name so exports diff cleanly.
func collectionBatches(grouped map[string][]*invoicedomain.Collection) []collectionBatch {
	methods := make([]string, 0, len(grouped))
	for method := range grouped {
		methods = append(methods, method)
	}
	sort.Strings(methods)

	out := make([]collectionBatch, 0, len(methods))
	for _, method := range methods {
		total := decimal.Zero
		for _, c := range grouped[method] {
			total = total.Add(c.Amount)
		}
		out = append(out, collectionBatch{PaymentMethod: method, Total: total, Collections: grouped[method]})
	}
	return out
}

func ledgerExports(invoices []*invoicedomain.InvoiceWithPosts) []ledgerExport {
	out := make([]ledgerExport, 0, len(invoices))
	for _, inv := range invoices {
		debit, credit := decimal.Zero, decimal.Zero
		for _, p := range inv.Posts {
			debit = debit.Add(p.AmountDebit)
			credit = credit.Add(p.AmountCredit)
		}
		out = append(out, ledgerExport{
			InvoiceNumber: inv.Invoice.InvoiceNumber,
			Debit:         debit,
			Credit:        credit,
			Posts:         inv.Posts,
		})
	}
	return out
}

func parseDate(flag, value string, clk clock.Clock) (time.Time, error) {
	day, err := parseAsOf(value, clk)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: want YYYY-MM-DD", flag, strings.TrimSpace(value))
	}
	return day, nil
}
