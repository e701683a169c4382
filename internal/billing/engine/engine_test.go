package engine

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/invoiceengine/internal/catalog/domain"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/invoiceengine/internal/ledger/domain"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqIDs struct {
	next int64
}

func (s *seqIDs) Generate() snowflake.ID {
	s.next++
	return snowflake.ID(1000 + s.next)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func ptr[T any](v T) *T { return &v }

const (
	typeID = snowflake.ID(10)
	baseID = snowflake.ID(20)
	rateID = snowflake.ID(30)
)

type world struct {
	engine   *Engine
	tenant   *tenantdomain.Tenant
	contract *contractdomain.Contract
	comp     *contractdomain.Component
	others   []*contractdomain.Component
	persons  []*contractdomain.ContractPerson
	rates    []*catalogdomain.VATRate
}

// newWorld is a monthly contract from 2024-01-01 with one component of 100
// net at 21% VAT, paid in full by one person.
func newWorld() *world {
	start := day(2024, 1, 1)
	w := &world{
		engine: New(&seqIDs{}, Config{}),
		tenant: &tenantdomain.Tenant{ID: 1, DaysUntilInvoiceExpiration: 14},
		contract: &contractdomain.Contract{
			ID: 100, TenantID: 1, ContractTypeID: typeID,
			Status:          contractdomain.ContractStatusActive,
			InvoicingPeriod: "MONTH", PricingType: contractdomain.PricingPerPeriod,
			StartDate: start, DateNextProlongation: ptr(start),
			BaseAmount: dec("100"), VATAmount: dec("21"), TotalAmount: dec("121"),
		},
		comp: &contractdomain.Component{
			ID: 200, TenantID: 1, ContractID: 100, BaseComponentID: baseID, VATRateID: ptr(rateID),
			StartDate: start, DateNextProlongation: ptr(start), BaseAmount: ptr(dec("100")),
			VATAmount: dec("21"), TotalAmount: dec("121"),
		},
		persons: []*contractdomain.ContractPerson{{
			ID: 300, TenantID: 1, ContractID: 100, Name: "Payer", StartDate: start,
			PaymentMethod: contractdomain.PaymentMethodInvoice, PercentageOfTotal: dec("100"), PaymentDay: 1,
		}},
		rates: []*catalogdomain.VATRate{{
			ID: rateID, TenantID: 1, Type: 1, StartDate: day(2020, 1, 1), Percentage: dec("21"), GeneralLedgerAccount: "1500",
		}},
	}
	return w
}

func (w *world) catalog() Catalog {
	return NewCatalog(
		[]*catalogdomain.ContractType{{ID: typeID, TenantID: 1, Code: "RENT", GeneralLedgerDebit: "1300"}},
		[]*catalogdomain.BaseComponent{{ID: baseID, TenantID: 1, Code: "BASE", GeneralLedgerCredit: "8000"}},
		w.rates,
	)
}

func (w *world) bill(t *testing.T, asOf time.Time) *Output {
	t.Helper()
	out, err := w.engine.BillContract(ContractInput{
		Tenant:     w.tenant,
		Contract:   w.contract,
		Components: append([]*contractdomain.Component{w.comp}, w.others...),
		Persons:    w.persons,
		Catalog:    w.catalog(),
	}, asOf)
	require.NoError(t, err)
	return out
}

// requireAggregates checks the contract amounts against its live components.
func (w *world) requireAggregates(t *testing.T) {
	t.Helper()
	base, vat, total := decimal.Zero, decimal.Zero, decimal.Zero
	for _, c := range append([]*contractdomain.Component{w.comp}, w.others...) {
		if c.IsRetired() {
			continue
		}
		b, v, tot := c.Contribution()
		base, vat, total = base.Add(b), vat.Add(v), total.Add(tot)
	}
	assert.True(t, w.contract.BaseAmount.Equal(base), "base %s, components %s", w.contract.BaseAmount, base)
	assert.True(t, w.contract.VATAmount.Equal(vat), "vat %s, components %s", w.contract.VATAmount, vat)
	assert.True(t, w.contract.TotalAmount.Equal(total), "total %s, components %s", w.contract.TotalAmount, total)
}

func requireBalanced(t *testing.T, posts []*ledgerdomain.GeneralLedgerPost) {
	t.Helper()
	sum := decimal.Zero
	for _, p := range posts {
		assert.False(t, !p.AmountDebit.IsZero() && !p.AmountCredit.IsZero(), "post %d books both sides", p.ID)
		sum = sum.Add(p.Signed())
	}
	assert.True(t, sum.IsZero(), "posts off balance by %s", sum)
}

func TestBillContractCatchesUpOnOneInvoice(t *testing.T) {
	w := newWorld()

	out := w.bill(t, day(2024, 3, 1))
	require.Len(t, out.Invoices, 1)
	require.Len(t, out.Lines, 3)
	require.Len(t, out.Posts, 7)
	require.Len(t, out.Collections, 1)
	requireBalanced(t, out.Posts)

	inv := out.Invoices[0]
	assert.Equal(t, int64(1), inv.InvoiceNumber)
	assert.True(t, inv.Date.Equal(day(2024, 3, 1)))
	assert.True(t, inv.ExpirationDate.Equal(day(2024, 3, 15)))
	assert.True(t, inv.PeriodStart.Equal(day(2024, 1, 1)))
	assert.True(t, inv.PeriodEnd.Equal(day(2024, 4, 1)))
	assert.True(t, inv.TotalAmount.Equal(dec("363")), inv.TotalAmount.String())
	assert.Equal(t, "1300", inv.GeneralLedgerAccount)
	for i, line := range out.Lines {
		assert.Equal(t, inv.ID, line.InvoiceID)
		assert.True(t, line.PeriodStart.Equal(day(2024, time.Month(i+1), 1)))
		assert.True(t, line.TotalAmount.Equal(dec("121")))
	}
	for _, p := range out.Posts {
		assert.True(t, p.Date.Equal(day(2024, 3, 1)))
	}
	assert.True(t, out.Collections[0].Amount.Equal(dec("363")))

	assert.Equal(t, int64(1), w.tenant.LastInvoiceNumber)
	assert.True(t, w.contract.DatePrevProlongation.Equal(day(2024, 3, 1)))
	assert.True(t, w.contract.DateNextProlongation.Equal(day(2024, 4, 1)))
	assert.True(t, w.comp.DateNextProlongation.Equal(day(2024, 4, 1)))
	assert.True(t, w.contract.Balance.Equal(dec("363")))

	again := w.bill(t, day(2024, 3, 1))
	assert.Empty(t, again.Invoices)
	assert.Equal(t, int64(1), w.tenant.LastInvoiceNumber)
}

func TestBillContractDatesInvoiceOnRunDay(t *testing.T) {
	w := newWorld()

	out := w.bill(t, day(2024, 1, 10))
	require.Len(t, out.Invoices, 1)
	inv := out.Invoices[0]
	assert.True(t, inv.Date.Equal(day(2024, 1, 10)))
	assert.True(t, inv.ExpirationDate.Equal(day(2024, 1, 24)))
	assert.True(t, out.Lines[0].InvoiceDate.Equal(day(2024, 1, 10)))
	assert.True(t, inv.PeriodStart.Equal(day(2024, 1, 1)))
	assert.True(t, inv.PeriodEnd.Equal(day(2024, 2, 1)))
}

func TestBillContractProratesLateComponentStart(t *testing.T) {
	w := newWorld()
	w.comp.StartDate = day(2024, 1, 16)
	w.comp.DateNextProlongation = ptr(day(2024, 1, 16))

	out := w.bill(t, day(2024, 1, 1))
	require.Len(t, out.Lines, 1)
	line := out.Lines[0]
	assert.True(t, line.PeriodStart.Equal(day(2024, 1, 16)))
	assert.True(t, line.PeriodEnd.Equal(day(2024, 2, 1)))
	assert.True(t, line.BaseAmount.Equal(dec("51.61")), line.BaseAmount.String())
	assert.True(t, line.VATAmount.Equal(dec("10.84")), line.VATAmount.String())
	assert.True(t, w.comp.DateNextProlongation.Equal(day(2024, 2, 1)))
}

func TestBillContractFinalPeriodEnds(t *testing.T) {
	w := newWorld()
	w.contract.EndDate = ptr(day(2024, 1, 20))

	out := w.bill(t, day(2024, 6, 1))
	require.Len(t, out.Invoices, 1)
	line := out.Lines[0]
	assert.True(t, line.PeriodEnd.Equal(day(2024, 1, 21)))
	assert.True(t, line.BaseAmount.Equal(dec("64.52")), line.BaseAmount.String())
	assert.True(t, line.VATAmount.Equal(dec("13.55")), line.VATAmount.String())

	assert.Equal(t, contractdomain.ContractStatusEnded, w.contract.Status)
	assert.Nil(t, w.contract.DateNextProlongation)
	assert.True(t, w.contract.DatePrevProlongation.Equal(day(2024, 1, 20)))
	assert.True(t, out.Invoices[0].PeriodEnd.Equal(day(2024, 1, 21)))
	assert.Nil(t, w.comp.DateNextProlongation)
	assert.True(t, w.contract.TotalAmount.IsZero(), w.contract.TotalAmount.String())
}

func TestBillContractRetiresComponentEndingOnPeriodBoundary(t *testing.T) {
	w := newWorld()
	w.comp.EndDate = ptr(day(2024, 1, 31))

	out := w.bill(t, day(2024, 1, 1))
	require.Len(t, out.Lines, 1)
	line := out.Lines[0]
	assert.True(t, line.BaseAmount.Equal(dec("100")), line.BaseAmount.String())
	assert.True(t, line.VATAmount.Equal(dec("21")), line.VATAmount.String())
	assert.True(t, line.PeriodEnd.Equal(day(2024, 2, 1)))

	assert.Nil(t, w.comp.DateNextProlongation)
	assert.True(t, w.comp.DatePrevProlongation.Equal(day(2024, 1, 1)))
	assert.True(t, w.contract.BaseAmount.IsZero(), w.contract.BaseAmount.String())
	w.requireAggregates(t)

	next := w.bill(t, day(2024, 2, 1))
	assert.Empty(t, next.Invoices)
	assert.Equal(t, int64(1), w.tenant.LastInvoiceNumber)
}

func TestBillContractZeroRatedLineKeepsVATPost(t *testing.T) {
	w := newWorld()
	w.rates[0].Percentage = decimal.Zero
	w.comp.VATAmount = decimal.Zero
	w.comp.TotalAmount = dec("100")

	out := w.bill(t, day(2024, 1, 1))
	require.Len(t, out.Lines, 1)
	require.Len(t, out.Posts, 3)
	requireBalanced(t, out.Posts)

	kinds := map[ledgerdomain.PostKind]*ledgerdomain.GeneralLedgerPost{}
	for _, p := range out.Posts {
		kinds[p.Kind] = p
	}
	vat := kinds[ledgerdomain.PostKindVAT]
	require.NotNil(t, vat)
	assert.True(t, vat.AmountCredit.IsZero())
	assert.True(t, vat.AmountDebit.IsZero())
	assert.Equal(t, "1500", vat.GeneralLedgerAccount)
	assert.Equal(t, out.Lines[0].ID, *vat.InvoiceLineID)
}

func TestBillContractLineWithoutVATTypeHasNoVATPost(t *testing.T) {
	w := newWorld()
	w.comp.VATRateID = nil
	w.comp.VATAmount = decimal.Zero
	w.comp.TotalAmount = dec("100")
	w.contract.ApplyDelta(decimal.Zero, dec("-21"), dec("-21"))

	out := w.bill(t, day(2024, 1, 1))
	require.Len(t, out.Posts, 2)
	for _, p := range out.Posts {
		assert.NotEqual(t, ledgerdomain.PostKindVAT, p.Kind)
	}
}

func TestBillContractDiscardsEmptyInvoice(t *testing.T) {
	w := newWorld()
	w.comp.DatePrevProlongation = ptr(day(2023, 12, 1))
	w.comp.DateNextProlongation = nil
	w.tenant.LastInvoiceNumber = 7

	out := w.bill(t, day(2024, 2, 1))
	assert.Empty(t, out.Invoices)
	assert.Equal(t, int64(7), w.tenant.LastInvoiceNumber)
	assert.True(t, w.contract.DateNextProlongation.Equal(day(2024, 3, 1)))
}

func TestBillContractFollowsVATSuccessor(t *testing.T) {
	w := newWorld()
	w.rates = []*catalogdomain.VATRate{
		{ID: rateID, TenantID: 1, Type: 1, StartDate: day(2020, 1, 1), EndDate: ptr(day(2024, 2, 1)), Percentage: dec("21"), SuccessorID: ptr(snowflake.ID(31))},
		{ID: 31, TenantID: 1, Type: 1, StartDate: day(2024, 2, 1), Percentage: dec("9")},
	}

	out := w.bill(t, day(2024, 2, 1))
	require.Len(t, out.Lines, 2)
	assert.True(t, out.Lines[0].VATAmount.Equal(dec("21")))
	assert.Equal(t, rateID, *out.Lines[0].VATRateID)
	assert.True(t, out.Lines[1].VATAmount.Equal(dec("9")))
	assert.Equal(t, snowflake.ID(31), *out.Lines[1].VATRateID)

	assert.Equal(t, snowflake.ID(31), *w.comp.VATRateID)
	assert.True(t, w.comp.TotalAmount.Equal(dec("109")))
	assert.True(t, w.contract.VATAmount.Equal(dec("9")))
}

func TestBillContractPerDayPricing(t *testing.T) {
	w := newWorld()
	w.contract.PricingType = contractdomain.PricingPerDay
	w.comp.BaseAmount = ptr(dec("3"))
	w.comp.VATAmount = dec("0.63")
	w.comp.TotalAmount = dec("3.63")

	out := w.bill(t, day(2024, 2, 1))
	require.Len(t, out.Lines, 2)
	assert.True(t, out.Lines[0].BaseAmount.Equal(dec("93")), out.Lines[0].BaseAmount.String())
	assert.True(t, out.Lines[1].BaseAmount.Equal(dec("87")), out.Lines[1].BaseAmount.String())
	assert.True(t, out.Lines[1].VATAmount.Equal(dec("18.27")), out.Lines[1].VATAmount.String())
}

func TestBillContractUnitPricedLine(t *testing.T) {
	w := newWorld()
	w.comp.BaseAmount = nil
	w.comp.UnitAmount = ptr(dec("2.50"))
	w.comp.NumberOfUnits = ptr(dec("4"))
	w.comp.VATAmount = dec("2.10")
	w.comp.TotalAmount = dec("12.10")

	out := w.bill(t, day(2024, 1, 1))
	require.Len(t, out.Lines, 1)
	line := out.Lines[0]
	require.NotNil(t, line.UnitPrice)
	assert.True(t, line.UnitPrice.Equal(dec("2.5")))
	assert.True(t, line.NumberOfUnits.Equal(dec("4")))
	assert.True(t, line.TotalAmount.Equal(dec("12.1")))
}

func TestBillContractRejectsMissingPricing(t *testing.T) {
	w := newWorld()
	w.comp.BaseAmount = nil

	_, err := w.engine.BillContract(ContractInput{
		Tenant:     w.tenant,
		Contract:   w.contract,
		Components: []*contractdomain.Component{w.comp},
		Persons:    w.persons,
		Catalog:    w.catalog(),
	}, day(2024, 1, 1))
	require.Error(t, err)
}

func TestCollectionsLastPayerTakesRemainder(t *testing.T) {
	w := newWorld()
	w.persons = []*contractdomain.ContractPerson{
		{ID: 301, Name: "A", StartDate: day(2024, 1, 1), PaymentMethod: contractdomain.PaymentMethodInvoice, PercentageOfTotal: dec("33.33")},
		{ID: 302, Name: "B", StartDate: day(2024, 1, 1), PaymentMethod: contractdomain.PaymentMethodInvoice, PercentageOfTotal: dec("33.33")},
		{ID: 303, Name: "C", StartDate: day(2024, 1, 1), PaymentMethod: contractdomain.PaymentMethodEmail, PercentageOfTotal: dec("33.34")},
		{ID: 304, Name: "Gone", StartDate: day(2023, 1, 1), EndDate: ptr(day(2023, 12, 31)), PaymentMethod: contractdomain.PaymentMethodInvoice, PercentageOfTotal: dec("100")},
	}

	out := w.bill(t, day(2024, 1, 1))
	require.Len(t, out.Collections, 3)
	assert.True(t, out.Collections[0].Amount.Equal(dec("40.33")))
	assert.True(t, out.Collections[1].Amount.Equal(dec("40.33")))
	assert.True(t, out.Collections[2].Amount.Equal(dec("40.34")))

	sum := decimal.Zero
	for _, c := range out.Collections {
		sum = sum.Add(c.Amount)
		assert.Equal(t, out.Invoices[0].InvoiceNumber, c.InvoiceNumber)
	}
	assert.True(t, sum.Equal(out.Invoices[0].TotalAmount))
}

func TestRunBillsContractsInIDOrder(t *testing.T) {
	w := newWorld()
	second := *w.contract
	second.ID = 50
	second.DateNextProlongation = ptr(day(2024, 1, 1))
	comp2 := *w.comp
	comp2.ID = 201
	comp2.ContractID = 50
	comp2.DateNextProlongation = ptr(day(2024, 1, 1))

	out, err := w.engine.Run(&Batch{
		Tenant:    w.tenant,
		Contracts: []*contractdomain.Contract{w.contract, &second},
		Components: map[snowflake.ID][]*contractdomain.Component{
			w.contract.ID: {w.comp},
			second.ID:     {&comp2},
		},
		Persons: map[snowflake.ID][]*contractdomain.ContractPerson{w.contract.ID: w.persons},
		Catalog: w.catalog(),
	}, day(2024, 1, 1))
	require.NoError(t, err)
	require.Len(t, out.Invoices, 2)
	assert.Equal(t, snowflake.ID(50), out.Invoices[0].ContractID)
	assert.Equal(t, int64(1), out.Invoices[0].InvoiceNumber)
	assert.Empty(t, collectionsFor(out, out.Invoices[0].ID))
	assert.Len(t, collectionsFor(out, out.Invoices[1].ID), 1)
}

func collectionsFor(out *Output, invoiceID snowflake.ID) []*invoicedomain.Collection {
	var res []*invoicedomain.Collection
	for _, c := range out.Collections {
		if c.InvoiceID == invoiceID {
			res = append(res, c)
		}
	}
	return res
}
