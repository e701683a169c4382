package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/invoiceengine/internal/catalog/domain"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	"github.com/smallbiznis/invoiceengine/internal/migration"
	"github.com/smallbiznis/invoiceengine/internal/store"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.Migrate(db))
	return New(db)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedContract(t *testing.T, s *Store, tenantID, id snowflake.ID, next *time.Time, status contractdomain.ContractStatus) *contractdomain.Contract {
	t.Helper()
	c := &contractdomain.Contract{
		ID:                   id,
		TenantID:             tenantID,
		ContractTypeID:       1,
		Status:               status,
		InvoicingPeriod:      "MONTH",
		PricingType:          contractdomain.PricingPerPeriod,
		StartDate:            day(2024, 1, 1),
		DateNextProlongation: next,
	}
	require.NoError(t, s.CreateContract(context.Background(), c))
	return c
}

func TestTenantScopedLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTenant(ctx, &tenantdomain.Tenant{ID: 1, Name: "acme"}))
	seedContract(t, s, 1, 10, nil, contractdomain.ContractStatusDraft)

	got, err := s.GetContract(ctx, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, got)

	other, err := s.GetContract(ctx, 2, 10)
	require.NoError(t, err)
	require.Nil(t, other)

	require.NoError(t, s.DeleteContract(ctx, 2, 10))
	got, err = s.GetContract(ctx, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, got)

	locked, err := s.LockTenant(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "acme", locked.Name)

	missing, err := s.LockTenant(ctx, 99)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestDueContractsFiltersStatusAndDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past := day(2024, 3, 1)
	future := day(2024, 5, 1)
	seedContract(t, s, 1, 10, &past, contractdomain.ContractStatusActive)
	seedContract(t, s, 1, 11, &future, contractdomain.ContractStatusActive)
	seedContract(t, s, 1, 12, &past, contractdomain.ContractStatusDraft)
	seedContract(t, s, 1, 13, nil, contractdomain.ContractStatusActive)
	seedContract(t, s, 2, 14, &past, contractdomain.ContractStatusActive)

	due, err := s.DueContracts(ctx, 1, day(2024, 3, 1))
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, snowflake.ID(10), due[0].ID)
}

func TestTransactionRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.CreateTenant(ctx, &tenantdomain.Tenant{ID: 5, Name: "rolled back"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetTenant(ctx, 5)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestOpenVATRateAndUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	closedEnd := day(2024, 1, 1)
	require.NoError(t, s.CreateVATRate(ctx, &catalogdomain.VATRate{
		ID: 1, TenantID: 1, Type: 1, StartDate: day(2023, 1, 1), EndDate: &closedEnd,
		Percentage: decimal.NewFromInt(19),
	}))
	require.NoError(t, s.CreateVATRate(ctx, &catalogdomain.VATRate{
		ID: 2, TenantID: 1, Type: 1, StartDate: day(2024, 1, 1),
		Percentage: decimal.NewFromInt(21),
	}))

	open, err := s.OpenVATRate(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, snowflake.ID(2), open.ID)

	vatType := 1
	rates, err := s.ListVATRates(ctx, 1, &vatType)
	require.NoError(t, err)
	require.Len(t, rates, 2)

	rateID := snowflake.ID(2)
	amount := decimal.NewFromInt(100)
	require.NoError(t, s.CreateComponent(ctx, &contractdomain.Component{
		ID: 20, TenantID: 1, ContractID: 10, BaseComponentID: 3, VATRateID: &rateID,
		StartDate: day(2024, 1, 1), BaseAmount: &amount,
	}))
	require.NoError(t, s.CreateInvoiceLines(ctx, []*invoicedomain.InvoiceLine{{
		ID: 30, TenantID: 1, InvoiceID: 40, ComponentID: 20, VATRateID: &rateID,
		InvoiceDate: day(2024, 1, 1), PeriodStart: day(2024, 1, 1), PeriodEnd: day(2024, 2, 1),
	}}))

	usage, err := s.VATRateUsage(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, usage.InUse())
	require.Equal(t, int64(1), usage.Billed)

	usage, err = s.VATRateUsage(ctx, 1, 1)
	require.NoError(t, err)
	require.False(t, usage.InUse())
}

func TestInvoiceLinesForComponentNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lines := []*invoicedomain.InvoiceLine{
		{ID: 1, TenantID: 1, InvoiceID: 9, ComponentID: 5, InvoiceDate: day(2024, 1, 1), PeriodStart: day(2024, 1, 1), PeriodEnd: day(2024, 2, 1)},
		{ID: 2, TenantID: 1, InvoiceID: 9, ComponentID: 5, InvoiceDate: day(2024, 3, 1), PeriodStart: day(2024, 3, 1), PeriodEnd: day(2024, 4, 1)},
		{ID: 3, TenantID: 1, InvoiceID: 9, ComponentID: 5, InvoiceDate: day(2024, 2, 1), PeriodStart: day(2024, 2, 1), PeriodEnd: day(2024, 3, 1)},
		{ID: 4, TenantID: 1, InvoiceID: 9, ComponentID: 6, InvoiceDate: day(2024, 2, 1), PeriodStart: day(2024, 2, 1), PeriodEnd: day(2024, 3, 1)},
	}
	require.NoError(t, s.CreateInvoiceLines(ctx, lines))

	got, err := s.InvoiceLinesForComponent(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []snowflake.ID{2, 3, 1}, []snowflake.ID{got[0].ID, got[1].ID, got[2].ID})
}

func TestReplacePersons(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	person := func(id snowflake.ID, name string) *contractdomain.ContractPerson {
		return &contractdomain.ContractPerson{
			ID: id, TenantID: 1, ContractID: 10, Name: name, StartDate: day(2024, 1, 1),
			PaymentMethod: contractdomain.PaymentMethodInvoice, PercentageOfTotal: decimal.NewFromInt(100),
		}
	}
	require.NoError(t, s.ReplacePersons(ctx, 1, 10, []*contractdomain.ContractPerson{person(1, "first")}))
	require.NoError(t, s.ReplacePersons(ctx, 1, 10, []*contractdomain.ContractPerson{person(2, "second")}))

	got, err := s.ListPersons(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "second", got[0].Name)

	none, err := s.ListPersons(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, none)
}
