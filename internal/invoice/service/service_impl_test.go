package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	billingservice "github.com/smallbiznis/invoiceengine/internal/billing/service"
	catalogdomain "github.com/smallbiznis/invoiceengine/internal/catalog/domain"
	"github.com/smallbiznis/invoiceengine/internal/clock"
	"github.com/smallbiznis/invoiceengine/internal/config"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/invoiceengine/internal/ledger/domain"
	"github.com/smallbiznis/invoiceengine/internal/migration"
	"github.com/smallbiznis/invoiceengine/internal/store/gormstore"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
	"github.com/smallbiznis/invoiceengine/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tenantID = snowflake.ID(1)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// setup bills one monthly contract for January and February. The invoices
// are split 60/40 between an invoice payer and a direct debit payer.
func setup(t *testing.T) (context.Context, invoicedomain.Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.Migrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	st := gormstore.New(db)
	ctx := tenantctx.WithTenantID(context.Background(), tenantID)

	start := day(2024, 1, 1)
	rate := snowflake.ID(30)
	base := dec("100")
	require.NoError(t, st.CreateTenant(ctx, &tenantdomain.Tenant{ID: tenantID, Name: "acme", DaysUntilInvoiceExpiration: 14}))
	require.NoError(t, st.CreateContractType(ctx, &catalogdomain.ContractType{ID: 10, TenantID: tenantID, Code: "RENT", GeneralLedgerDebit: "1300"}))
	require.NoError(t, st.CreateBaseComponent(ctx, &catalogdomain.BaseComponent{ID: 20, TenantID: tenantID, Code: "BASE", GeneralLedgerCredit: "8000"}))
	require.NoError(t, st.CreateVATRate(ctx, &catalogdomain.VATRate{
		ID: rate, TenantID: tenantID, Type: 1, StartDate: day(2020, 1, 1), Percentage: dec("21"), GeneralLedgerAccount: "1500",
	}))
	require.NoError(t, st.CreateContract(ctx, &contractdomain.Contract{
		ID: 100, TenantID: tenantID, ContractTypeID: 10, Status: contractdomain.ContractStatusActive,
		InvoicingPeriod: "MONTH", PricingType: contractdomain.PricingPerPeriod,
		StartDate: start, DateNextProlongation: &start,
		BaseAmount: dec("100"), VATAmount: dec("21"), TotalAmount: dec("121"),
	}))
	require.NoError(t, st.CreateComponent(ctx, &contractdomain.Component{
		ID: 200, TenantID: tenantID, ContractID: 100, BaseComponentID: 20, VATRateID: &rate,
		StartDate: start, DateNextProlongation: &start, BaseAmount: &base,
		VATAmount: dec("21"), TotalAmount: dec("121"),
	}))
	require.NoError(t, st.ReplacePersons(ctx, tenantID, 100, []*contractdomain.ContractPerson{
		{
			ID: 300, TenantID: tenantID, ContractID: 100, Name: "Cash", StartDate: start,
			PaymentMethod: contractdomain.PaymentMethodInvoice, PercentageOfTotal: dec("60"), PaymentDay: 1,
		},
		{
			ID: 301, TenantID: tenantID, ContractID: 100, Name: "Bank", StartDate: start,
			PaymentMethod: contractdomain.PaymentMethodDirectDebit, IBAN: "NL91ABNA0417164300", Mandate: "M-1",
			PercentageOfTotal: dec("40"), PaymentDay: 1,
		},
	}))

	billing := billingservice.NewService(billingservice.Params{
		Store:         st,
		Log:           zap.NewNop(),
		GenID:         node,
		BillingConfig: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Clock:         clock.NewFakeClock(day(2024, 2, 1)),
	})
	for _, asOf := range []time.Time{day(2024, 1, 1), day(2024, 2, 1)} {
		res, err := billing.RunInvoicing(ctx, tenantID, asOf)
		require.NoError(t, err)
		require.Equal(t, 1, res.Invoices)
	}

	return ctx, NewService(ServiceParam{Store: st, Log: zap.NewNop()})
}

func TestListByContractAndGet(t *testing.T) {
	ctx, svc := setup(t)

	invoices, err := svc.ListByContract(ctx, 100)
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, int64(1), invoices[0].InvoiceNumber)
	assert.Equal(t, int64(2), invoices[1].InvoiceNumber)

	got, err := svc.Get(ctx, invoices[1].ID)
	require.NoError(t, err)
	assert.Equal(t, invoices[1].ID, got.Invoice.ID)
	require.Len(t, got.Lines, 1)
	assert.True(t, got.Lines[0].TotalAmount.Equal(dec("121")))

	_, err = svc.Get(ctx, 12345)
	require.ErrorIs(t, err, invoicedomain.ErrNotFound)

	other := tenantctx.WithTenantID(context.Background(), 2)
	_, err = svc.Get(other, invoices[0].ID)
	require.ErrorIs(t, err, invoicedomain.ErrNotFound)

	_, err = svc.ListByContract(context.Background(), 100)
	require.ErrorIs(t, err, invoicedomain.ErrInvalidTenant)
}

func TestCollectionsByPaymentMethod(t *testing.T) {
	ctx, svc := setup(t)

	grouped, err := svc.CollectionsByPaymentMethod(ctx, day(2024, 2, 1))
	require.NoError(t, err)
	require.Len(t, grouped, 2)

	invoiced := grouped[string(contractdomain.PaymentMethodInvoice)]
	require.Len(t, invoiced, 1)
	assert.Equal(t, int64(2), invoiced[0].InvoiceNumber)
	assert.True(t, invoiced[0].Amount.Equal(dec("72.6")), invoiced[0].Amount.String())

	debit := grouped[string(contractdomain.PaymentMethodDirectDebit)]
	require.Len(t, debit, 1)
	assert.Equal(t, "M-1", debit[0].Mandate)
	assert.True(t, debit[0].Amount.Equal(dec("48.4")), debit[0].Amount.String())

	empty, err := svc.CollectionsByPaymentMethod(ctx, day(2024, 3, 1))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInvoicesWithPostsBalance(t *testing.T) {
	ctx, svc := setup(t)

	out, err := svc.InvoicesWithPosts(ctx, day(2024, 1, 1))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].Invoice.InvoiceNumber)
	require.Len(t, out[0].Posts, 3)

	sum := decimal.Zero
	kinds := map[ledgerdomain.PostKind]int{}
	for _, p := range out[0].Posts {
		sum = sum.Add(p.Signed())
		kinds[p.Kind]++
	}
	assert.True(t, sum.IsZero(), sum.String())
	assert.Equal(t, 1, kinds[ledgerdomain.PostKindDebtor])
	assert.Equal(t, 1, kinds[ledgerdomain.PostKindProceeds])
	assert.Equal(t, 1, kinds[ledgerdomain.PostKindVAT])

	none, err := svc.InvoicesWithPosts(ctx, day(2023, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, none)
}
