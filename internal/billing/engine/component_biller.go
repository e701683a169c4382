package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	"github.com/smallbiznis/invoiceengine/internal/billing/proration"
	catalogdomain "github.com/smallbiznis/invoiceengine/internal/catalog/domain"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/invoiceengine/internal/ledger/domain"
)

// window is the contract period being invoiced. End is exclusive. When Final
// is set the contract stops on StopAt, the last billed day.
type window struct {
	Start  time.Time
	End    time.Time
	Final  bool
	StopAt time.Time
}

// componentBill is what billing one component contributed to an invoice.
type componentBill struct {
	Line  *invoicedomain.InvoiceLine
	Posts []*ledgerdomain.GeneralLedgerPost
}

// billComponent invoices comp for its share of w and moves its pointers.
func (e *Engine) billComponent(
	inv *invoicedomain.Invoice,
	contract *contractdomain.Contract,
	period calendar.Period,
	w window,
	comp *contractdomain.Component,
	cat Catalog,
) (*componentBill, error) {
	if comp.DateNextProlongation == nil {
		return nil, nil
	}
	if err := comp.ValidatePricing(); err != nil {
		return nil, fmt.Errorf("component %s: %w", comp.ID, billingdomain.ErrMissingPricing)
	}
	base, err := cat.baseComponent(comp.BaseComponentID)
	if err != nil {
		return nil, fmt.Errorf("component %s base component: %w", comp.ID, err)
	}

	start := calendar.Truncate(*comp.DateNextProlongation)
	rate, err := e.refreshVAT(contract, comp, cat, start)
	if err != nil {
		return nil, fmt.Errorf("component %s vat rate: %w", comp.ID, err)
	}

	end := w.End
	retire := w.Final
	if w.Final {
		stop := w.StopAt
		if comp.EndDate != nil && comp.EndDate.Before(stop) {
			stop = *comp.EndDate
		}
		end = calendar.AddDays(stop, 1)
	} else if comp.EndDate != nil && calendar.AddDays(*comp.EndDate, 1).Before(w.End) {
		end = calendar.AddDays(*comp.EndDate, 1)
		retire = true
	} else if comp.EndDate != nil && calendar.AddDays(*comp.EndDate, 1).Equal(w.End) {
		retire = true
	}

	var bill *componentBill
	if start.Before(end) {
		amounts, err := e.amountsFor(contract, period, comp, start, end, w)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", comp.ID, err)
		}
		line := e.NewInvoiceLine(LineInput{
			Invoice:       inv,
			Contract:      contract,
			Component:     comp,
			BaseComponent: base,
			VATRate:       rate,
			Amounts:       amounts,
			Start:         start,
			End:           end,
			Kind:          invoicedomain.LineKindRegular,
		})
		bill = &componentBill{Line: line, Posts: e.LinePosts(inv, line)}
	} else {
		retire = true
	}

	startCopy := start
	comp.DatePrevProlongation = &startCopy
	if retire {
		comp.DateNextProlongation = nil
		baseAmt, vatAmt, totalAmt := comp.Contribution()
		contract.ApplyDelta(baseAmt.Neg(), vatAmt.Neg(), totalAmt.Neg())
	} else {
		next := w.End
		comp.DateNextProlongation = &next
	}
	return bill, nil
}

// amountsFor returns the full amounts when the slice is exactly the contract
// period and prorates everything else from the contract start.
func (e *Engine) amountsFor(
	contract *contractdomain.Contract,
	period calendar.Period,
	comp *contractdomain.Component,
	start, end time.Time,
	w window,
) (proration.Amounts, error) {
	full := comp.Pricing()
	mode := contract.ProrationMode()
	if mode == proration.PerPeriod && start.Equal(w.Start) && end.Equal(w.End) {
		return full, nil
	}
	amounts, err := e.calc.AmountsBetween(full, mode, period, contract.StartDate, start, end)
	if err != nil {
		if errors.Is(err, proration.ErrZeroLengthPeriod) {
			return proration.Amounts{}, billingdomain.ErrZeroLengthPeriod
		}
		return proration.Amounts{}, err
	}
	return amounts, nil
}

// refreshVAT moves comp off a VAT rate that closed before start onto its
// successor and drops VAT left behind by a withdrawn rate. Aggregate changes
// go through ApplyDelta.
func (e *Engine) refreshVAT(
	contract *contractdomain.Contract,
	comp *contractdomain.Component,
	cat Catalog,
	start time.Time,
) (*catalogdomain.VATRate, error) {
	if comp.VATRateID == nil {
		if !comp.VATAmount.IsZero() {
			residue := comp.VATAmount
			comp.VATAmount = decimal.Zero
			comp.TotalAmount = comp.TotalAmount.Sub(residue)
			contract.ApplyDelta(decimal.Zero, residue.Neg(), residue.Neg())
		}
		return nil, nil
	}

	current, err := cat.vatRate(comp.VATRateID)
	if err != nil {
		return nil, err
	}
	rate := current
	seen := map[snowflake.ID]bool{rate.ID: true}
	for rate.ClosedBefore(start) && rate.SuccessorID != nil {
		next, err := cat.vatRate(rate.SuccessorID)
		if err != nil {
			return nil, err
		}
		if seen[next.ID] {
			break
		}
		seen[next.ID] = true
		rate = next
	}
	if rate.ID == current.ID {
		return rate, nil
	}

	id := rate.ID
	comp.VATRateID = &id
	if rate.Percentage.Equal(current.Percentage) {
		return rate, nil
	}
	updated := rate.Apply(comp.Net(), e.cfg.Places)
	delta := updated.Sub(comp.VATAmount)
	comp.VATAmount = updated
	comp.TotalAmount = comp.TotalAmount.Add(delta)
	contract.ApplyDelta(decimal.Zero, delta, delta)
	return rate, nil
}
