package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	"github.com/smallbiznis/invoiceengine/internal/billing/proration"
	catalogdomain "github.com/smallbiznis/invoiceengine/internal/catalog/domain"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
)

// CorrectionItem is one component whose invoiced history no longer holds.
//
// Cutover is the first day that must not stay billed on the terms in Lines.
// Replacement, when set, is billed for the same days; it may be Component
// itself after a price or VAT change. Retire ends Component the day before
// Cutover.
type CorrectionItem struct {
	Component   *contractdomain.Component
	Lines       []*invoicedomain.InvoiceLine
	Cutover     time.Time
	Replacement *contractdomain.Component
	Retire      bool
}

// CorrectionInput groups the corrections of one contract into one invoice.
type CorrectionInput struct {
	Tenant   *tenantdomain.Tenant
	Contract *contractdomain.Contract
	Persons  []*contractdomain.ContractPerson
	Catalog  Catalog
	Date     time.Time
	Items    []CorrectionItem
	// EndContract closes the contract once every item is settled.
	EndContract bool
}

// InvoicedUntil returns the exclusive end of the latest billed day in lines.
func InvoicedUntil(lines []*invoicedomain.InvoiceLine) *time.Time {
	var until *time.Time
	for _, l := range lines {
		if until == nil || l.PeriodEnd.After(*until) {
			end := l.PeriodEnd
			until = &end
		}
	}
	return until
}

// Correct issues a correction invoice that reverses what was billed from each
// item's cutover onward and rebills replacements for the same days.
func (e *Engine) Correct(in CorrectionInput) (*Output, error) {
	if len(in.Items) == 0 {
		return nil, billingdomain.ErrNothingToCorrect
	}
	contract := in.Contract
	period, err := contract.Period()
	if err != nil {
		return nil, fmt.Errorf("contract %s: %w: %v", contract.ID, billingdomain.ErrInvalidContract, err)
	}
	contractType, err := in.Catalog.contractType(contract.ContractTypeID)
	if err != nil {
		return nil, fmt.Errorf("contract %s contract type: %w", contract.ID, err)
	}

	inv := e.NewInvoice(in.Tenant, contract, contractType, in.Date, invoicedomain.InvoiceKindCorrection)
	res := &Output{}
	var spanStart, spanEnd *time.Time

	for _, item := range in.Items {
		lines, from, until, err := e.correctComponent(inv, contract, period, in.Catalog, item)
		if err != nil {
			in.Tenant.ReleaseInvoiceNumber(inv.InvoiceNumber)
			return nil, fmt.Errorf("component %s: %w", item.Component.ID, err)
		}
		for _, l := range lines {
			res.Lines = append(res.Lines, l)
			res.Posts = append(res.Posts, e.LinePosts(inv, l)...)
		}
		if spanStart == nil || from.Before(*spanStart) {
			f := from
			spanStart = &f
		}
		if spanEnd == nil || until.After(*spanEnd) {
			u := until
			spanEnd = &u
		}
	}
	inv.PeriodStart = spanStart
	inv.PeriodEnd = spanEnd

	if in.EndContract {
		if contract.EndDate != nil {
			end := calendar.Truncate(*contract.EndDate)
			contract.DatePrevProlongation = &end
		}
		contract.DateNextProlongation = nil
		contract.Status = contractdomain.ContractStatusTerminated
	}

	e.finalizeInvoice(inv, contract, in.Persons, res)
	return res, nil
}

// correctComponent walks the item's lines from newest to oldest, summing
// every line that reaches past the cutover, and scales the sum by the share
// of those days that were billed wrongly.
func (e *Engine) correctComponent(
	inv *invoicedomain.Invoice,
	contract *contractdomain.Contract,
	period calendar.Period,
	cat Catalog,
	item CorrectionItem,
) ([]*invoicedomain.InvoiceLine, time.Time, time.Time, error) {
	comp := item.Component
	cutover := calendar.Truncate(item.Cutover)
	if start := calendar.Truncate(comp.StartDate); cutover.Before(start) {
		cutover = start
	}

	history := append([]*invoicedomain.InvoiceLine(nil), item.Lines...)
	sort.Slice(history, func(i, j int) bool {
		if !history[i].PeriodStart.Equal(history[j].PeriodStart) {
			return history[i].PeriodStart.After(history[j].PeriodStart)
		}
		return history[i].ID > history[j].ID
	})

	var (
		sum         proration.Amounts
		included    int
		windowStart time.Time
		until       time.Time
		latest      *invoicedomain.InvoiceLine
	)
	for _, l := range history {
		if !l.PeriodEnd.After(cutover) {
			break
		}
		if latest == nil {
			latest = l
		}
		sum = sum.Add(proration.Amounts{Base: l.Net(), VAT: l.VATAmount})
		included++
		windowStart = l.PeriodStart
		if l.PeriodEnd.After(until) {
			until = l.PeriodEnd
		}
	}
	if included == 0 {
		return nil, time.Time{}, time.Time{}, billingdomain.ErrNothingToCorrect
	}

	wrongFrom := cutover
	if windowStart.After(wrongFrom) {
		wrongFrom = windowStart
	}
	daysCorrection := calendar.DaysBetween(windowStart, until)
	daysWrong := calendar.DaysBetween(wrongFrom, until)
	if daysCorrection <= 0 {
		return nil, time.Time{}, time.Time{}, billingdomain.ErrZeroLengthPeriod
	}
	num := decimal.NewFromInt(int64(daysWrong))
	den := decimal.NewFromInt(int64(daysCorrection))

	base, err := cat.baseComponent(comp.BaseComponentID)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}

	out := make([]*invoicedomain.InvoiceLine, 0, 2)
	out = append(out, e.NewInvoiceLine(LineInput{
		Invoice:       inv,
		Contract:      contract,
		Component:     comp,
		BaseComponent: base,
		VATRate:       snapshotRate(latest),
		Amounts:       sum.Scale(num, den, e.cfg.Places).Neg(),
		Start:         wrongFrom,
		End:           until,
		Kind:          invoicedomain.LineKindReversal,
	}))

	if repl := item.Replacement; repl != nil {
		if err := repl.ValidatePricing(); err != nil {
			return nil, time.Time{}, time.Time{}, billingdomain.ErrMissingPricing
		}
		replBase, err := cat.baseComponent(repl.BaseComponentID)
		if err != nil {
			return nil, time.Time{}, time.Time{}, err
		}
		replRate, err := cat.vatRate(repl.VATRateID)
		if err != nil {
			return nil, time.Time{}, time.Time{}, err
		}
		rebillEnd := until
		if repl.EndDate != nil {
			if stop := calendar.AddDays(*repl.EndDate, 1); stop.Before(rebillEnd) {
				rebillEnd = stop
			}
		}
		if wrongFrom.Before(rebillEnd) {
			full, err := e.calc.AmountsBetween(repl.Pricing(), contract.ProrationMode(), period, contract.StartDate, windowStart, rebillEnd)
			if err != nil {
				return nil, time.Time{}, time.Time{}, err
			}
			span := decimal.NewFromInt(int64(calendar.DaysBetween(windowStart, rebillEnd)))
			billed := decimal.NewFromInt(int64(calendar.DaysBetween(wrongFrom, rebillEnd)))
			out = append(out, e.NewInvoiceLine(LineInput{
				Invoice:       inv,
				Contract:      contract,
				Component:     repl,
				BaseComponent: replBase,
				VATRate:       replRate,
				Amounts:       full.Scale(billed, span, e.cfg.Places),
				Start:         wrongFrom,
				End:           rebillEnd,
				Kind:          invoicedomain.LineKindRebill,
			}))
		}
		// A replacement whose end date falls within the corrected days is
		// billed in full here and never reaches a regular run.
		ended := repl.EndDate != nil && !calendar.AddDays(*repl.EndDate, 1).After(until)
		switch {
		case ended:
			from := wrongFrom
			repl.DatePrevProlongation = &from
			if repl.DateNextProlongation != nil {
				base, vat, total := repl.Contribution()
				contract.ApplyDelta(base.Neg(), vat.Neg(), total.Neg())
			}
			repl.DateNextProlongation = nil
		case repl.ID != comp.ID:
			from, next := wrongFrom, until
			repl.DatePrevProlongation = &from
			repl.DateNextProlongation = &next
		}
	}

	if item.Retire {
		retireAt(contract, comp, cutover)
		if repl := item.Replacement; repl != nil && repl.ID != comp.ID {
			id := repl.ID
			comp.ReplacedByID = &id
		}
	}
	return out, wrongFrom, until, nil
}

// retireAt ends comp the day before cutover and takes it out of the contract
// aggregates if billing had not already done so. A cutover on or before the
// component start leaves EndDate the day before StartDate: it never ran.
func retireAt(contract *contractdomain.Contract, comp *contractdomain.Component, cutover time.Time) {
	end := calendar.AddDays(cutover, -1)
	if start := calendar.Truncate(comp.StartDate); end.Before(start) {
		end = calendar.AddDays(start, -1)
	}
	if comp.DateNextProlongation != nil {
		base, vat, total := comp.Contribution()
		contract.ApplyDelta(base.Neg(), vat.Neg(), total.Neg())
		comp.DateNextProlongation = nil
	}
	comp.EndDate = &end
	comp.DatePrevProlongation = &end
}

// snapshotRate rebuilds the VAT details a line was billed with so the
// reversal books against the same accounts.
func snapshotRate(line *invoicedomain.InvoiceLine) *catalogdomain.VATRate {
	if line == nil || line.VATType == nil {
		return nil
	}
	rate := &catalogdomain.VATRate{
		Type:                   *line.VATType,
		GeneralLedgerAccount:   line.GeneralLedgerAccountVAT,
		GeneralLedgerDimension: line.GeneralLedgerDimensionVAT,
	}
	if line.VATRateID != nil {
		rate.ID = *line.VATRateID
	}
	return rate
}
