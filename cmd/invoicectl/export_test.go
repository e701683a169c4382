package main

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/invoiceengine/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionBatchesSortedWithTotals(t *testing.T) {
	grouped := map[string][]*invoicedomain.Collection{
		"DIRECT_DEBIT": {
			{InvoiceNumber: 1, Amount: decimal.RequireFromString("40.33")},
			{InvoiceNumber: 2, Amount: decimal.RequireFromString("80.67")},
		},
		"INVOICE": {
			{InvoiceNumber: 3, Amount: decimal.RequireFromString("-12.10")},
		},
	}

	batches := collectionBatches(grouped)
	require.Len(t, batches, 2)
	assert.Equal(t, "INVOICE", batches[0].PaymentMethod)
	assert.True(t, batches[0].Total.Equal(decimal.RequireFromString("-12.10")))
	assert.Equal(t, "DIRECT_DEBIT", batches[1].PaymentMethod)
	assert.True(t, batches[1].Total.Equal(decimal.NewFromInt(121)))
	assert.Len(t, batches[1].Collections, 2)
}

func TestLedgerExportsBalancePerInvoice(t *testing.T) {
	invoices := []*invoicedomain.InvoiceWithPosts{{
		Invoice: &invoicedomain.Invoice{InvoiceNumber: 7},
		Posts: []*ledgerdomain.GeneralLedgerPost{
			{Kind: ledgerdomain.PostKindDebtor, AmountDebit: decimal.NewFromInt(121)},
			{Kind: ledgerdomain.PostKindProceeds, AmountCredit: decimal.NewFromInt(100)},
			{Kind: ledgerdomain.PostKindVAT, AmountCredit: decimal.NewFromInt(21)},
		},
	}}

	out := ledgerExports(invoices)
	require.Len(t, out, 1)
	assert.Equal(t, int64(7), out[0].InvoiceNumber)
	assert.True(t, out[0].Debit.Equal(out[0].Credit))
	assert.Len(t, out[0].Posts, 3)
}

func TestExportRequiresTenant(t *testing.T) {
	for _, args := range [][]string{
		{"export", "collections"},
		{"export", "ledger"},
		{"audit"},
		{"invoice", "--id", "5"},
	} {
		root := newRootCmd()
		root.SetArgs(args)
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})

		err := root.Execute()
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "tenant", args)
	}
}

func TestInvoiceRejectsMalformedID(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"invoice", "--tenant", "42", "--id", "x"})
	root.SetOut(&bytes.Buffer{})

	err := root.Execute()
	require.ErrorContains(t, err, `invalid --id "x"`)
}

func TestParseTenant(t *testing.T) {
	id, err := parseTenant(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.Int64())

	_, err = parseTenant("0")
	require.Error(t, err)
}
