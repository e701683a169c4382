package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
	"github.com/smallbiznis/invoiceengine/internal/billing/proration"
	catalogdomain "github.com/smallbiznis/invoiceengine/internal/catalog/domain"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/invoiceengine/internal/ledger/domain"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
	"gorm.io/datatypes"
)

var hundred = decimal.NewFromInt(100)

// NewInvoice opens an invoice for contract with the next number of the tenant sequence.
func (e *Engine) NewInvoice(
	tenant *tenantdomain.Tenant,
	contract *contractdomain.Contract,
	contractType *catalogdomain.ContractType,
	date time.Time,
	kind invoicedomain.InvoiceKind,
) *invoicedomain.Invoice {
	date = calendar.Truncate(date)
	number := tenant.NextInvoiceNumber()

	description := e.cfg.InvoiceDescription
	if kind == invoicedomain.InvoiceKindCorrection {
		description = e.cfg.CorrectionDescription
	}

	inv := &invoicedomain.Invoice{
		ID:                 e.genID.Generate(),
		TenantID:           tenant.ID,
		ContractID:         contract.ID,
		InvoiceNumber:      number,
		Kind:               kind,
		Description:        fmt.Sprintf("%s %d", description, number),
		InternalCustomerID: contract.InternalCustomerID,
		ExternalCustomerID: contract.ExternalCustomerID,
		Date:               date,
		ExpirationDate:     calendar.AddDays(date, tenant.DaysUntilInvoiceExpiration),
		BaseAmount:         decimal.Zero,
		VATAmount:          decimal.Zero,
		TotalAmount:        decimal.Zero,
		Balance:            decimal.Zero,
		Metadata: datatypes.JSONMap{
			"contract_id": contract.ID.String(),
			"kind":        string(kind),
		},
	}
	if contractType != nil {
		inv.GeneralLedgerAccount = contractType.GeneralLedgerDebit
	}
	return inv
}

// LineInput describes one billed slice of a component.
type LineInput struct {
	Invoice       *invoicedomain.Invoice
	Contract      *contractdomain.Contract
	Component     *contractdomain.Component
	BaseComponent *catalogdomain.BaseComponent
	VATRate       *catalogdomain.VATRate
	Amounts       proration.Amounts
	Start         time.Time
	End           time.Time
	Kind          invoicedomain.LineKind
}

// NewInvoiceLine books amounts onto the invoice and the contract balance.
func (e *Engine) NewInvoiceLine(in LineInput) *invoicedomain.InvoiceLine {
	inv, contract, comp := in.Invoice, in.Contract, in.Component
	net := in.Amounts.Net()
	vat := in.Amounts.VAT
	total := net.Add(vat)

	line := &invoicedomain.InvoiceLine{
		ID:                              e.genID.Generate(),
		TenantID:                        inv.TenantID,
		InvoiceID:                       inv.ID,
		ComponentID:                     comp.ID,
		Kind:                            in.Kind,
		Description:                     lineDescription(in.BaseComponent, comp),
		InvoiceDate:                     inv.Date,
		PeriodStart:                     calendar.Truncate(in.Start),
		PeriodEnd:                       calendar.Truncate(in.End),
		BaseAmount:                      net,
		VATAmount:                       vat,
		TotalAmount:                     total,
		UnitID:                          comp.UnitID,
		GeneralLedgerDimensionContract1: contract.GeneralLedgerDimensionContract1,
		GeneralLedgerDimensionContract2: contract.GeneralLedgerDimensionContract2,
	}
	if comp.IsUnitPriced() && in.Kind != invoicedomain.LineKindReversal {
		unit := in.Amounts.Unit
		units := in.Amounts.Units
		line.UnitPrice = &unit
		line.NumberOfUnits = &units
	}
	if in.BaseComponent != nil {
		line.GeneralLedgerAccount = in.BaseComponent.GeneralLedgerCredit
		line.GeneralLedgerDimensionComponent = in.BaseComponent.GeneralLedgerDimension
		if line.UnitID == nil {
			line.UnitID = in.BaseComponent.UnitID
		}
	}
	if in.VATRate != nil {
		vatType := in.VATRate.Type
		rateID := in.VATRate.ID
		line.VATType = &vatType
		line.VATRateID = &rateID
		line.GeneralLedgerAccountVAT = in.VATRate.GeneralLedgerAccount
		line.GeneralLedgerDimensionVAT = in.VATRate.GeneralLedgerDimension
	}

	inv.BaseAmount = inv.BaseAmount.Add(net)
	inv.VATAmount = inv.VATAmount.Add(vat)
	inv.TotalAmount = inv.TotalAmount.Add(total)
	inv.Balance = inv.Balance.Add(total)
	contract.Balance = contract.Balance.Add(total)
	return line
}

func lineDescription(base *catalogdomain.BaseComponent, comp *contractdomain.Component) string {
	parts := make([]string, 0, 2)
	if base != nil {
		if d := strings.TrimSpace(base.Description); d != "" {
			parts = append(parts, d)
		} else if base.Code != "" {
			parts = append(parts, base.Code)
		}
	}
	if d := strings.TrimSpace(comp.Description); d != "" {
		parts = append(parts, d)
	}
	return strings.Join(parts, " - ")
}

// LinePosts credits proceeds and, for lines carrying a VAT type, VAT.
func (e *Engine) LinePosts(inv *invoicedomain.Invoice, line *invoicedomain.InvoiceLine) []*ledgerdomain.GeneralLedgerPost {
	posts := make([]*ledgerdomain.GeneralLedgerPost, 0, 2)

	if proceeds := line.Net(); !proceeds.IsZero() {
		post := e.newPost(inv, ledgerdomain.PostKindProceeds, e.cfg.ProceedsPostDescription+" "+line.Description)
		post.InvoiceLineID = &line.ID
		post.GeneralLedgerAccount = line.GeneralLedgerAccount
		post.GeneralLedgerDimensionComponent = line.GeneralLedgerDimensionComponent
		post.GeneralLedgerDimensionContract1 = line.GeneralLedgerDimensionContract1
		post.GeneralLedgerDimensionContract2 = line.GeneralLedgerDimensionContract2
		credit(post, proceeds)
		posts = append(posts, post)
	}

	// A VAT-typed line always gets its VAT post, zero-rated ones included.
	if line.VATType != nil {
		post := e.newPost(inv, ledgerdomain.PostKindVAT, e.cfg.VATPostDescription+" "+line.Description)
		post.InvoiceLineID = &line.ID
		post.GeneralLedgerAccount = line.GeneralLedgerAccountVAT
		post.GeneralLedgerDimensionVAT = line.GeneralLedgerDimensionVAT
		post.GeneralLedgerDimensionContract1 = line.GeneralLedgerDimensionContract1
		post.GeneralLedgerDimensionContract2 = line.GeneralLedgerDimensionContract2
		credit(post, line.VATAmount)
		posts = append(posts, post)
	}
	return posts
}

// DebtorPost debits the receivable account for the invoice total.
func (e *Engine) DebtorPost(inv *invoicedomain.Invoice, contract *contractdomain.Contract) *ledgerdomain.GeneralLedgerPost {
	post := e.newPost(inv, ledgerdomain.PostKindDebtor, fmt.Sprintf("%s %d", e.cfg.DebtorPostDescription, inv.InvoiceNumber))
	post.GeneralLedgerAccount = inv.GeneralLedgerAccount
	post.GeneralLedgerDimensionContract1 = contract.GeneralLedgerDimensionContract1
	post.GeneralLedgerDimensionContract2 = contract.GeneralLedgerDimensionContract2
	credit(post, inv.TotalAmount.Neg())
	return post
}

func (e *Engine) newPost(inv *invoicedomain.Invoice, kind ledgerdomain.PostKind, description string) *ledgerdomain.GeneralLedgerPost {
	return &ledgerdomain.GeneralLedgerPost{
		ID:            e.genID.Generate(),
		TenantID:      inv.TenantID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Kind:          kind,
		Date:          inv.Date,
		Description:   strings.TrimSpace(description),
		AmountDebit:   decimal.Zero,
		AmountCredit:  decimal.Zero,
	}
}

// credit books amount on the credit side; negative amounts land on the debit side.
func credit(post *ledgerdomain.GeneralLedgerPost, amount decimal.Decimal) {
	if amount.IsNegative() {
		post.AmountDebit = amount.Neg()
		post.AmountCredit = decimal.Zero
		return
	}
	post.AmountDebit = decimal.Zero
	post.AmountCredit = amount
}

// Collections splits the invoice total over the persons paying on its date.
//
// Each share is percentage/100 of the total rounded to cents; the last payer
// absorbs the rounding remainder so the shares add up to the total.
func (e *Engine) Collections(inv *invoicedomain.Invoice, persons []*contractdomain.ContractPerson) []*invoicedomain.Collection {
	payers := make([]*contractdomain.ContractPerson, 0, len(persons))
	for _, p := range persons {
		if p != nil && p.ActiveOn(inv.Date) {
			payers = append(payers, p)
		}
	}
	if len(payers) == 0 {
		return nil
	}

	out := make([]*invoicedomain.Collection, 0, len(payers))
	allocated := decimal.Zero
	pctSum := decimal.Zero
	for _, p := range payers {
		pctSum = pctSum.Add(p.PercentageOfTotal)
	}
	for i, p := range payers {
		amount := inv.TotalAmount.Mul(p.PercentageOfTotal).Div(hundred).Round(e.cfg.Places)
		if i == len(payers)-1 && pctSum.Equal(hundred) {
			amount = inv.TotalAmount.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		out = append(out, &invoicedomain.Collection{
			ID:               e.genID.Generate(),
			TenantID:         inv.TenantID,
			InvoiceID:        inv.ID,
			ContractPersonID: p.ID,
			InvoiceNumber:    inv.InvoiceNumber,
			Date:             inv.Date,
			Name:             p.Name,
			Address:          p.Address,
			City:             p.City,
			Email:            p.Email,
			PaymentMethod:    string(p.PaymentMethod),
			PaymentDay:       p.PaymentDay,
			IBAN:             p.IBAN,
			Mandate:          p.Mandate,
			Amount:           amount,
		})
	}
	return out
}
