package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
)

// ContractInput is one contract with everything needed to bill it.
type ContractInput struct {
	Tenant     *tenantdomain.Tenant
	Contract   *contractdomain.Contract
	Components []*contractdomain.Component
	Persons    []*contractdomain.ContractPerson
	Catalog    Catalog
}

// BillContract invoices every period of the contract starting on or before
// asOf and advances the contract pointers. All caught-up periods land on one
// invoice dated asOf.
func (e *Engine) BillContract(in ContractInput, asOf time.Time) (*Output, error) {
	contract := in.Contract
	asOf = calendar.Truncate(asOf)
	out := &Output{}
	if !contract.IsDue(asOf) {
		return out, nil
	}

	period, err := contract.Period()
	if err != nil {
		return nil, fmt.Errorf("contract %s: %w: %v", contract.ID, billingdomain.ErrInvalidContract, err)
	}
	contractType, err := in.Catalog.contractType(contract.ContractTypeID)
	if err != nil {
		return nil, fmt.Errorf("contract %s contract type: %w", contract.ID, err)
	}

	components := append([]*contractdomain.Component(nil), in.Components...)
	sort.Slice(components, func(i, j int) bool { return components[i].ID < components[j].ID })

	inv := e.NewInvoice(in.Tenant, contract, contractType, asOf, invoicedomain.InvoiceKindRegular)
	res := &Output{}
	for contract.IsDue(asOf) {
		w := e.nextWindow(contract, period)
		billed := false
		for _, comp := range components {
			if comp.DateNextProlongation == nil {
				continue
			}
			if !w.Final && !comp.DateNextProlongation.Before(w.End) {
				continue
			}
			bill, err := e.billComponent(inv, contract, period, w, comp, in.Catalog)
			if err != nil {
				return nil, fmt.Errorf("contract %s: %w", contract.ID, err)
			}
			if bill == nil {
				continue
			}
			billed = true
			res.Lines = append(res.Lines, bill.Line)
			res.Posts = append(res.Posts, bill.Posts...)
		}
		if billed {
			coverPeriod(inv, w)
		}
		e.advanceContract(contract, w)
	}

	if len(res.Lines) == 0 {
		in.Tenant.ReleaseInvoiceNumber(inv.InvoiceNumber)
		return out, nil
	}
	e.finalizeInvoice(inv, contract, in.Persons, res)
	out.Append(res)
	return out, nil
}

// coverPeriod widens the invoice period to include w.
func coverPeriod(inv *invoicedomain.Invoice, w window) {
	start, end := w.Start, w.End
	if w.Final {
		end = calendar.AddDays(w.StopAt, 1)
	}
	if inv.PeriodStart == nil || start.Before(*inv.PeriodStart) {
		inv.PeriodStart = &start
	}
	if inv.PeriodEnd == nil || end.After(*inv.PeriodEnd) {
		inv.PeriodEnd = &end
	}
}

// nextWindow is the period starting at the contract's next prolongation date.
func (e *Engine) nextWindow(contract *contractdomain.Contract, period calendar.Period) window {
	start := calendar.Truncate(*contract.DateNextProlongation)
	end := calendar.MustAdvance(period, start)
	w := window{Start: start, End: end}
	if contract.EndDate != nil && contract.EndDate.Before(end) {
		w.Final = true
		w.StopAt = calendar.Truncate(*contract.EndDate)
	}
	return w
}

// advanceContract moves the contract past w. The final period leaves the
// contract fully invoiced and ended.
func (e *Engine) advanceContract(contract *contractdomain.Contract, w window) {
	if w.Final {
		stop := w.StopAt
		contract.DatePrevProlongation = &stop
		contract.DateNextProlongation = nil
		contract.Status = contractdomain.ContractStatusEnded
		return
	}
	start, end := w.Start, w.End
	contract.DatePrevProlongation = &start
	contract.DateNextProlongation = &end
}

// finalizeInvoice adds the debtor post and the collections once all lines are on inv.
func (e *Engine) finalizeInvoice(
	inv *invoicedomain.Invoice,
	contract *contractdomain.Contract,
	persons []*contractdomain.ContractPerson,
	res *Output,
) {
	if !inv.TotalAmount.IsZero() {
		res.Posts = append(res.Posts, e.DebtorPost(inv, contract))
	}
	res.Collections = append(res.Collections, e.Collections(inv, persons)...)
	res.Invoices = append([]*invoicedomain.Invoice{inv}, res.Invoices...)
}
