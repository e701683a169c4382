package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	"github.com/smallbiznis/invoiceengine/internal/store"
	"go.uber.org/zap"
)

// AddComponent attaches a priced component to a contract.
//
// On an active contract the component is billed from its start date by the
// next run, catching up any period already invoiced. When it takes over from
// an active component of the same base component that was invoiced past the
// new start date, a correction invoice settles the overlap right away.
func (s *Service) AddComponent(ctx context.Context, contractID snowflake.ID, req contractdomain.ComponentRequest) (*contractdomain.ComponentResult, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	comp, err := s.newComponent(tenantID, contractID, req)
	if err != nil {
		return nil, err
	}

	result := &contractdomain.ComponentResult{Component: comp}
	var correction *billingdomain.CorrectionResult
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		contract, err := s.loadContract(ctx, tx, tenantID, contractID)
		if err != nil {
			return err
		}
		if contract.IsClosed() {
			return contractdomain.ErrInvalidStatus
		}
		if comp.StartDate.Before(calendar.Truncate(contract.StartDate)) {
			return contractdomain.ErrInvalidDateRange
		}
		if err := s.priceComponent(ctx, tx, comp); err != nil {
			return err
		}

		existing, err := tx.ListComponents(ctx, tenantID, contractID)
		if err != nil {
			return err
		}
		if contract.Status == contractdomain.ContractStatusActive {
			next := comp.StartDate
			comp.DateNextProlongation = &next
		}
		base, vat, total := comp.Contribution()
		contract.ApplyDelta(base, vat, total)
		if err := tx.CreateComponent(ctx, comp); err != nil {
			return err
		}

		old := replacedComponent(existing, comp)
		if old == nil || contract.Status != contractdomain.ContractStatusActive {
			return tx.SaveContracts(ctx, contract)
		}
		result.Replaced = old

		until, err := s.corrector.InvoicedUntil(ctx, tx, tenantID, old.ID)
		if err != nil {
			return err
		}
		if until == nil || !until.After(comp.StartDate) {
			// The old component is billed up to the day before the new start.
			end := calendar.AddDays(comp.StartDate, -1)
			id := comp.ID
			old.EndDate = &end
			old.ReplacedByID = &id
			if err := tx.SaveComponents(ctx, old); err != nil {
				return err
			}
			return tx.SaveContracts(ctx, contract)
		}

		correction, err = s.corrector.Correct(ctx, tx, billingdomain.CorrectionRequest{
			Contract: contract,
			Items: []billingdomain.CorrectionItem{{
				Component:   old,
				Cutover:     comp.StartDate,
				Replacement: comp,
				Retire:      true,
			}},
			Reason: billingdomain.CorrectionReasonReplacement,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"contract_id": contractID.String(),
		"start_date":  comp.StartDate.Format(time.DateOnly),
		"total":       comp.TotalAmount.String(),
	}
	if result.Replaced != nil {
		metadata["replaced_id"] = result.Replaced.ID.String()
	}
	if correction != nil {
		id := correction.Invoice.ID
		result.CorrectionInvoice = &id
		metadata["correction_invoice_id"] = id.String()
	}
	s.audit(ctx, tenantID, "component.create", "component", comp.ID, metadata)
	s.corrector.Committed(ctx, correction)
	return result, nil
}

// replacedComponent finds the active component of the same base component
// that comp takes over from.
func replacedComponent(existing []*contractdomain.Component, comp *contractdomain.Component) *contractdomain.Component {
	var found *contractdomain.Component
	for _, c := range existing {
		if c.BaseComponentID != comp.BaseComponentID || c.ReplacedByID != nil {
			continue
		}
		if c.DateNextProlongation == nil {
			continue
		}
		if !c.StartDate.Before(comp.StartDate) {
			continue
		}
		if c.EndDate != nil && c.EndDate.Before(comp.StartDate) {
			continue
		}
		if found == nil || c.StartDate.After(found.StartDate) {
			found = c
		}
	}
	return found
}

// UpdateComponent edits a component that has not been invoiced yet.
func (s *Service) UpdateComponent(ctx context.Context, id snowflake.ID, req contractdomain.ComponentRequest) (*contractdomain.Component, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}

	var comp *contractdomain.Component
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		current, err := tx.GetComponent(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current == nil {
			return contractdomain.ErrNotFound
		}
		if current.IsBilled() {
			return contractdomain.ErrAlreadyBilled
		}
		contract, err := s.loadContract(ctx, tx, tenantID, current.ContractID)
		if err != nil {
			return err
		}
		if contract.IsClosed() {
			return contractdomain.ErrInvalidStatus
		}

		comp, err = s.newComponent(tenantID, current.ContractID, req)
		if err != nil {
			return err
		}
		comp.ID = current.ID
		comp.CreatedAt = current.CreatedAt
		if comp.StartDate.Before(calendar.Truncate(contract.StartDate)) {
			return contractdomain.ErrInvalidDateRange
		}
		if err := s.priceComponent(ctx, tx, comp); err != nil {
			return err
		}
		if current.DateNextProlongation != nil {
			next := comp.StartDate
			comp.DateNextProlongation = &next
		}

		base, vat, total := current.Contribution()
		contract.ApplyDelta(base.Neg(), vat.Neg(), total.Neg())
		base, vat, total = comp.Contribution()
		contract.ApplyDelta(base, vat, total)

		if err := tx.SaveComponents(ctx, comp); err != nil {
			return err
		}
		return tx.SaveContracts(ctx, contract)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, tenantID, "component.update", "component", comp.ID, map[string]any{
		"total": comp.TotalAmount.String(),
	})
	return comp, nil
}

// DeleteComponent removes a component that has not been invoiced yet.
func (s *Service) DeleteComponent(ctx context.Context, id snowflake.ID) error {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return err
	}
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		comp, err := tx.GetComponent(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if comp == nil {
			return contractdomain.ErrNotFound
		}
		if comp.IsBilled() {
			return contractdomain.ErrAlreadyBilled
		}
		contract, err := s.loadContract(ctx, tx, tenantID, comp.ContractID)
		if err != nil {
			return err
		}
		if contract.IsClosed() {
			return contractdomain.ErrInvalidStatus
		}
		base, vat, total := comp.Contribution()
		contract.ApplyDelta(base.Neg(), vat.Neg(), total.Neg())
		if err := tx.DeleteComponent(ctx, tenantID, id); err != nil {
			return err
		}
		return tx.SaveContracts(ctx, contract)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, tenantID, "component.delete", "component", id, nil)
	return nil
}

func (s *Service) ListComponents(ctx context.Context, contractID snowflake.ID) ([]*contractdomain.Component, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	contract, err := s.store.GetContract(ctx, tenantID, contractID)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, contractdomain.ErrNotFound
	}
	return s.store.ListComponents(ctx, tenantID, contractID)
}

func (s *Service) newComponent(tenantID, contractID snowflake.ID, req contractdomain.ComponentRequest) (*contractdomain.Component, error) {
	if err := validate.Struct(req); err != nil {
		return nil, contractdomain.ErrInvalidRequest
	}
	start := calendar.Truncate(req.StartDate)
	end, err := endDate(start, req.EndDate)
	if err != nil {
		return nil, err
	}
	comp := &contractdomain.Component{
		ID:              s.genID.Generate(),
		TenantID:        tenantID,
		ContractID:      contractID,
		BaseComponentID: req.BaseComponentID,
		VATRateID:       req.VATRateID,
		Description:     strings.TrimSpace(req.Description),
		StartDate:       start,
		EndDate:         end,
		BaseAmount:      req.BaseAmount,
		UnitAmount:      req.UnitAmount,
		NumberOfUnits:   req.NumberOfUnits,
		UnitID:          req.UnitID,
	}
	if err := comp.ValidatePricing(); err != nil {
		return nil, err
	}
	return comp, nil
}

// priceComponent checks the catalog references of comp and sets its VAT and total.
func (s *Service) priceComponent(ctx context.Context, tx store.Tx, comp *contractdomain.Component) error {
	base, err := tx.GetBaseComponent(ctx, comp.TenantID, comp.BaseComponentID)
	if err != nil {
		return err
	}
	if base == nil {
		return contractdomain.ErrNotFound
	}
	if comp.UnitID == nil {
		comp.UnitID = base.UnitID
	}

	net := comp.Net()
	comp.VATAmount = decimal.Zero
	if comp.VATRateID != nil {
		rate, err := tx.GetVATRate(ctx, comp.TenantID, *comp.VATRateID)
		if err != nil {
			return err
		}
		if rate == nil {
			return contractdomain.ErrNotFound
		}
		if rate.ClosedBefore(comp.StartDate) {
			s.log.Debug("vat rate outside component start",
				zap.String("vat_rate_id", rate.ID.String()),
				zap.String("start_date", comp.StartDate.Format(time.DateOnly)),
			)
			return contractdomain.ErrVATRateNotApplicable
		}
		comp.VATAmount = rate.Apply(net, s.places())
	}
	comp.TotalAmount = net.Add(comp.VATAmount)
	return nil
}
