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
	"github.com/smallbiznis/invoiceengine/internal/migration"
	"github.com/smallbiznis/invoiceengine/internal/store/gormstore"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
	"github.com/smallbiznis/invoiceengine/pkg/tenantctx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tenantID = snowflake.ID(1)

type fixture struct {
	ctx     context.Context
	store   *gormstore.Store
	billing *billingservice.Service
	svc     catalogdomain.Service
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newFixture(t *testing.T) *fixture {
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
	holder := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	billing := billingservice.NewService(billingservice.Params{
		Store:         st,
		Log:           zap.NewNop(),
		GenID:         node,
		BillingConfig: holder,
		Clock:         clock.NewFakeClock(day(2024, 3, 20)),
	})
	svc := NewService(Params{
		Store:         st,
		Log:           zap.NewNop(),
		GenID:         node,
		Corrector:     billing,
		BillingConfig: holder,
	})

	ctx := tenantctx.WithTenantID(context.Background(), tenantID)
	require.NoError(t, st.CreateTenant(ctx, &tenantdomain.Tenant{ID: tenantID, Name: "acme", DaysUntilInvoiceExpiration: 14}))
	return &fixture{ctx: ctx, store: st, billing: billing, svc: svc}
}

func TestContractTypeLifecycle(t *testing.T) {
	f := newFixture(t)

	ct, err := f.svc.CreateContractType(f.ctx, catalogdomain.ContractTypeRequest{Code: "RENT", GeneralLedgerDebit: "1300"})
	require.NoError(t, err)

	_, err = f.svc.CreateContractType(f.ctx, catalogdomain.ContractTypeRequest{Code: "RENT"})
	require.ErrorIs(t, err, catalogdomain.ErrDuplicateCode)

	_, err = f.svc.CreateContractType(context.Background(), catalogdomain.ContractTypeRequest{Code: "X"})
	require.ErrorIs(t, err, catalogdomain.ErrInvalidTenant)

	updated, err := f.svc.UpdateContractType(f.ctx, ct.ID, catalogdomain.ContractTypeRequest{Code: "RENT", GeneralLedgerDebit: "1400"})
	require.NoError(t, err)
	require.Equal(t, "1400", updated.GeneralLedgerDebit)

	other := tenantctx.WithTenantID(context.Background(), 2)
	_, err = f.svc.UpdateContractType(other, ct.ID, catalogdomain.ContractTypeRequest{Code: "RENT"})
	require.ErrorIs(t, err, catalogdomain.ErrNotFound)

	require.NoError(t, f.svc.DeleteContractType(f.ctx, ct.ID))
	require.ErrorIs(t, f.svc.DeleteContractType(f.ctx, ct.ID), catalogdomain.ErrNotFound)
}

func TestBaseComponentInUseOnceBilled(t *testing.T) {
	f := newFixture(t)
	seedBilledContract(t, f, nil)

	_, err := f.svc.UpdateBaseComponent(f.ctx, 20, catalogdomain.BaseComponentRequest{Code: "BASE", Description: "renamed"})
	require.ErrorIs(t, err, catalogdomain.ErrInUse)
	require.ErrorIs(t, f.svc.DeleteBaseComponent(f.ctx, 20), catalogdomain.ErrInUse)
	require.ErrorIs(t, f.svc.DeleteContractType(f.ctx, 10), catalogdomain.ErrInUse)
}

func TestCreateVATRateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateVATRate(f.ctx, catalogdomain.CreateVATRateRequest{
		Type: 1, StartDate: day(2024, 1, 1), Percentage: dec("101"),
	})
	require.ErrorIs(t, err, catalogdomain.ErrInvalidPercentage)

	end := day(2024, 1, 1)
	_, err = f.svc.CreateVATRate(f.ctx, catalogdomain.CreateVATRateRequest{
		Type: 1, StartDate: day(2024, 1, 1), EndDate: &end, Percentage: dec("21"),
	})
	require.ErrorIs(t, err, catalogdomain.ErrInvalidDateRange)

	_, err = f.svc.CreateVATRate(f.ctx, catalogdomain.CreateVATRateRequest{
		Type: 1, StartDate: day(2024, 1, 1), Percentage: dec("21"),
	})
	require.NoError(t, err)

	_, err = f.svc.CreateVATRate(f.ctx, catalogdomain.CreateVATRateRequest{
		Type: 1, StartDate: day(2023, 6, 1), Percentage: dec("19"),
	})
	require.ErrorIs(t, err, catalogdomain.ErrInvalidDateRange)
}

func TestCreateVATRateKeepsOneOpenRatePerType(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.CreateVATRate(f.ctx, catalogdomain.CreateVATRateRequest{
		Type: 1, StartDate: day(2023, 1, 1), Percentage: dec("19"),
	})
	require.NoError(t, err)
	second, err := f.svc.CreateVATRate(f.ctx, catalogdomain.CreateVATRateRequest{
		Type: 1, StartDate: day(2024, 1, 1), Percentage: dec("21"), LinkPredecessor: true,
	})
	require.NoError(t, err)

	vatType := 1
	rates, err := f.svc.ListVATRates(f.ctx, &vatType)
	require.NoError(t, err)
	require.Len(t, rates, 2)

	open := 0
	for _, r := range rates {
		if r.IsOpen() {
			open++
			require.Equal(t, second.ID, r.ID)
		}
		if r.ID == first.ID {
			require.True(t, r.EndDate.Equal(day(2024, 1, 1)))
			require.NotNil(t, r.SuccessorID)
			require.Equal(t, second.ID, *r.SuccessorID)
		}
	}
	require.Equal(t, 1, open)
}

func TestCreateVATRateCorrectsComponentsBilledPastSwitch(t *testing.T) {
	f := newFixture(t)
	seedBilledContract(t, f, nil)

	rate, err := f.svc.CreateVATRate(f.ctx, catalogdomain.CreateVATRateRequest{
		Type: 1, StartDate: day(2024, 3, 16), Percentage: dec("9"), LinkPredecessor: true,
	})
	require.NoError(t, err)

	invoices, err := f.store.ListInvoicesByContract(f.ctx, tenantID, 100)
	require.NoError(t, err)
	require.Len(t, invoices, 4)
	correction := invoices[3]
	require.Equal(t, invoicedomain.InvoiceKindCorrection, correction.Kind)

	lines, err := f.store.InvoiceLines(f.ctx, tenantID, correction.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	for _, l := range lines {
		switch l.Kind {
		case invoicedomain.LineKindReversal:
			require.True(t, l.BaseAmount.Equal(dec("-51.61")), l.BaseAmount.String())
			require.True(t, l.VATAmount.Equal(dec("-10.84")), l.VATAmount.String())
			require.Equal(t, snowflake.ID(30), *l.VATRateID)
		case invoicedomain.LineKindRebill:
			require.True(t, l.BaseAmount.Equal(dec("51.61")), l.BaseAmount.String())
			require.True(t, l.VATAmount.Equal(dec("4.65")), l.VATAmount.String())
			require.Equal(t, rate.ID, *l.VATRateID)
		default:
			t.Fatalf("unexpected line kind %s", l.Kind)
		}
	}

	comp, err := f.store.GetComponent(f.ctx, tenantID, 200)
	require.NoError(t, err)
	require.Equal(t, rate.ID, *comp.VATRateID)
	require.True(t, comp.VATAmount.Equal(dec("9")))
	require.True(t, comp.DateNextProlongation.Equal(day(2024, 4, 1)))

	contract, err := f.store.GetContract(f.ctx, tenantID, 100)
	require.NoError(t, err)
	require.True(t, contract.VATAmount.Equal(dec("9")), contract.VATAmount.String())
	require.True(t, contract.TotalAmount.Equal(dec("109")), contract.TotalAmount.String())
}

func TestDeleteVATRateWithdrawsVATFromDraftComponents(t *testing.T) {
	f := newFixture(t)
	start := day(2024, 1, 1)
	seedBilledContract(t, f, &start)

	require.NoError(t, f.svc.DeleteVATRate(f.ctx, 30))
	require.ErrorIs(t, f.svc.DeleteVATRate(f.ctx, 30), catalogdomain.ErrNotFound)

	comp, err := f.store.GetComponent(f.ctx, tenantID, 200)
	require.NoError(t, err)
	require.Nil(t, comp.VATRateID)
	require.True(t, comp.VATAmount.IsZero())
	require.True(t, comp.TotalAmount.Equal(dec("100")))

	contract, err := f.store.GetContract(f.ctx, tenantID, 100)
	require.NoError(t, err)
	require.True(t, contract.VATAmount.IsZero())
	require.True(t, contract.TotalAmount.Equal(dec("100")))
}

func TestDeleteVATRateRefusesBilledRate(t *testing.T) {
	f := newFixture(t)
	seedBilledContract(t, f, nil)

	require.ErrorIs(t, f.svc.DeleteVATRate(f.ctx, 30), catalogdomain.ErrInUse)
	_, err := f.svc.UpdateVATRate(f.ctx, 30, catalogdomain.UpdateVATRateRequest{Percentage: ptr(dec("19"))})
	require.ErrorIs(t, err, catalogdomain.ErrInUse)
}

func ptr[T any](v T) *T { return &v }

// seedBilledContract creates a monthly contract with one component of 100
// net at 21% VAT. Without draftFrom it is billed January through March;
// with draftFrom the contract stays in draft and the rate is deleted instead.
func seedBilledContract(t *testing.T, f *fixture, draftFrom *time.Time) {
	t.Helper()
	ctx := f.ctx
	start := day(2024, 1, 1)

	require.NoError(t, f.store.CreateContractType(ctx, &catalogdomain.ContractType{ID: 10, TenantID: tenantID, Code: "RENT"}))
	require.NoError(t, f.store.CreateBaseComponent(ctx, &catalogdomain.BaseComponent{ID: 20, TenantID: tenantID, Code: "BASE"}))
	require.NoError(t, f.store.CreateVATRate(ctx, &catalogdomain.VATRate{
		ID: 30, TenantID: tenantID, Type: 1, StartDate: day(2020, 1, 1), Percentage: dec("21"),
	}))

	status := contractdomain.ContractStatusActive
	next := &start
	if draftFrom != nil {
		status = contractdomain.ContractStatusDraft
		next = nil
	}
	require.NoError(t, f.store.CreateContract(ctx, &contractdomain.Contract{
		ID: 100, TenantID: tenantID, ContractTypeID: 10, Status: status,
		InvoicingPeriod: "MONTH", PricingType: contractdomain.PricingPerPeriod,
		StartDate: start, DateNextProlongation: next,
		BaseAmount: dec("100"), VATAmount: dec("21"), TotalAmount: dec("121"),
	}))
	rateID := snowflake.ID(30)
	base := dec("100")
	require.NoError(t, f.store.CreateComponent(ctx, &contractdomain.Component{
		ID: 200, TenantID: tenantID, ContractID: 100, BaseComponentID: 20, VATRateID: &rateID,
		StartDate: start, DateNextProlongation: next, BaseAmount: &base,
		VATAmount: dec("21"), TotalAmount: dec("121"),
	}))
	require.NoError(t, f.store.ReplacePersons(ctx, tenantID, 100, []*contractdomain.ContractPerson{{
		ID: 300, TenantID: tenantID, ContractID: 100, Name: "Payer", StartDate: start,
		PaymentMethod: contractdomain.PaymentMethodInvoice, PercentageOfTotal: dec("100"), PaymentDay: 1,
	}}))

	if draftFrom == nil {
		_, err := f.billing.RunInvoicing(ctx, tenantID, day(2024, 3, 1))
		require.NoError(t, err)
	}
}
