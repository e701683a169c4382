package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/invoiceengine/internal/catalog/domain"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	"github.com/smallbiznis/invoiceengine/internal/store"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

func validPercentage(p decimal.Decimal) bool {
	return !p.IsNegative() && !p.GreaterThan(hundred)
}

// CreateVATRate adds a rate and closes the open rate of the same type on the
// new start date. With LinkPredecessor the closed rate points at the new one
// and components billed under the old rate past the start date are corrected
// in the same transaction.
func (s *Service) CreateVATRate(ctx context.Context, req catalogdomain.CreateVATRateRequest) (*catalogdomain.VATRate, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, catalogdomain.ErrInvalidRequest
	}
	if !validPercentage(req.Percentage) {
		return nil, catalogdomain.ErrInvalidPercentage
	}
	start := calendar.Truncate(req.StartDate)
	var end *time.Time
	if req.EndDate != nil {
		e := calendar.Truncate(*req.EndDate)
		if !e.After(start) {
			return nil, catalogdomain.ErrInvalidDateRange
		}
		end = &e
	}

	rate := &catalogdomain.VATRate{
		ID:                     s.genID.Generate(),
		TenantID:               tenantID,
		Type:                   req.Type,
		Description:            strings.TrimSpace(req.Description),
		StartDate:              start,
		EndDate:                end,
		Percentage:             req.Percentage,
		GeneralLedgerAccount:   strings.TrimSpace(req.GeneralLedgerAccount),
		GeneralLedgerDimension: strings.TrimSpace(req.GeneralLedgerDimension),
	}

	var (
		closed      *catalogdomain.VATRate
		corrections []*billingdomain.CorrectionResult
	)
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		open, err := tx.OpenVATRate(ctx, tenantID, req.Type)
		if err != nil {
			return err
		}
		if open != nil && !start.After(calendar.Truncate(open.StartDate)) {
			return catalogdomain.ErrInvalidDateRange
		}
		if err := tx.CreateVATRate(ctx, rate); err != nil {
			return err
		}
		if open == nil {
			return nil
		}

		open.EndDate = &start
		if req.LinkPredecessor {
			id := rate.ID
			open.SuccessorID = &id
		}
		if err := tx.SaveVATRate(ctx, open); err != nil {
			return err
		}
		closed = open

		if !req.LinkPredecessor || open.Percentage.Equal(rate.Percentage) {
			return nil
		}
		corrections, err = s.correctVATSwitch(ctx, tx, open, rate)
		return err
	})
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"type":       rate.Type,
		"start_date": start.Format(time.DateOnly),
		"percentage": rate.Percentage.String(),
	}
	if closed != nil {
		metadata["closed_rate_id"] = closed.ID.String()
	}
	s.audit(ctx, tenantID, "vat_rate.create", "vat_rate", rate.ID, metadata)
	for _, res := range corrections {
		s.corrector.Committed(ctx, res)
	}
	return rate, nil
}

// correctVATSwitch moves every component of from onto to. Components billed
// past the switch get one correction invoice per contract that reverses the
// old VAT for those days and rebills them at the new rate.
func (s *Service) correctVATSwitch(ctx context.Context, tx store.Tx, from, to *catalogdomain.VATRate) ([]*billingdomain.CorrectionResult, error) {
	components, err := tx.ComponentsByVATRate(ctx, from.TenantID, from.ID)
	if err != nil {
		return nil, err
	}
	switchDay := calendar.Truncate(to.StartDate)

	items := make(map[snowflake.ID][]billingdomain.CorrectionItem)
	contracts := make(map[snowflake.ID]*contractdomain.Contract)
	for _, comp := range components {
		until, err := s.corrector.InvoicedUntil(ctx, tx, comp.TenantID, comp.ID)
		if err != nil {
			return nil, err
		}
		if until == nil || !until.After(switchDay) {
			continue
		}
		contract, ok := contracts[comp.ContractID]
		if !ok {
			contract, err = tx.GetContract(ctx, comp.TenantID, comp.ContractID)
			if err != nil {
				return nil, err
			}
			if contract == nil {
				continue
			}
			contracts[comp.ContractID] = contract
		}

		s.switchComponentVAT(contract, comp, to)

		cutover := switchDay
		if start := calendar.Truncate(comp.StartDate); start.After(cutover) {
			cutover = start
		}
		items[contract.ID] = append(items[contract.ID], billingdomain.CorrectionItem{
			Component:   comp,
			Cutover:     cutover,
			Replacement: comp,
		})
	}

	ids := make([]snowflake.ID, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	results := make([]*billingdomain.CorrectionResult, 0, len(ids))
	for _, id := range ids {
		res, err := s.corrector.Correct(ctx, tx, billingdomain.CorrectionRequest{
			Contract: contracts[id],
			Items:    items[id],
			Reason:   billingdomain.CorrectionReasonVATChange,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	s.log.Info("vat switch corrected",
		zap.String("from_rate_id", from.ID.String()),
		zap.String("to_rate_id", to.ID.String()),
		zap.Int("contracts", len(results)),
	)
	return results, nil
}

// switchComponentVAT recomputes comp's VAT under rate. Retired components no
// longer count towards the contract aggregates.
func (s *Service) switchComponentVAT(contract *contractdomain.Contract, comp *contractdomain.Component, rate *catalogdomain.VATRate) {
	id := rate.ID
	comp.VATRateID = &id
	updated := rate.Apply(comp.Net(), s.places())
	delta := updated.Sub(comp.VATAmount)
	comp.VATAmount = updated
	comp.TotalAmount = comp.TotalAmount.Add(delta)
	if comp.DateNextProlongation != nil {
		contract.ApplyDelta(decimal.Zero, delta, delta)
	}
}

// UpdateVATRate edits a rate nothing has been billed with yet. Percentage
// changes flow into the VAT of the referencing components.
func (s *Service) UpdateVATRate(ctx context.Context, id snowflake.ID, req catalogdomain.UpdateVATRateRequest) (*catalogdomain.VATRate, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, catalogdomain.ErrInvalidRequest
	}
	if req.Percentage != nil && !validPercentage(*req.Percentage) {
		return nil, catalogdomain.ErrInvalidPercentage
	}

	var rate *catalogdomain.VATRate
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		rate, err = tx.GetVATRate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if rate == nil {
			return catalogdomain.ErrNotFound
		}
		usage, err := tx.VATRateUsage(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if usage.Billed > 0 {
			return catalogdomain.ErrInUse
		}

		if req.Description != nil {
			rate.Description = strings.TrimSpace(*req.Description)
		}
		if req.GeneralLedgerAccount != nil {
			rate.GeneralLedgerAccount = strings.TrimSpace(*req.GeneralLedgerAccount)
		}
		if req.GeneralLedgerDimension != nil {
			rate.GeneralLedgerDimension = strings.TrimSpace(*req.GeneralLedgerDimension)
		}
		if req.EndDate != nil {
			end := calendar.Truncate(*req.EndDate)
			if !end.After(calendar.Truncate(rate.StartDate)) {
				return catalogdomain.ErrInvalidDateRange
			}
			rate.EndDate = &end
		}

		if req.Percentage != nil && !req.Percentage.Equal(rate.Percentage) {
			rate.Percentage = *req.Percentage
			if err := s.repriceComponents(ctx, tx, rate); err != nil {
				return err
			}
		}
		return tx.SaveVATRate(ctx, rate)
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, tenantID, "vat_rate.update", "vat_rate", rate.ID, map[string]any{
		"percentage": rate.Percentage.String(),
	})
	return rate, nil
}

// repriceComponents recomputes VAT on components referencing rate.
func (s *Service) repriceComponents(ctx context.Context, tx store.Tx, rate *catalogdomain.VATRate) error {
	return s.rewriteComponentVAT(ctx, tx, rate, func(contract *contractdomain.Contract, comp *contractdomain.Component) {
		s.switchComponentVAT(contract, comp, rate)
	})
}

// DeleteVATRate removes a rate nothing has been billed with. Referencing
// components lose their VAT.
func (s *Service) DeleteVATRate(ctx context.Context, id snowflake.ID) error {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return err
	}
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		rate, err := tx.GetVATRate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if rate == nil {
			return catalogdomain.ErrNotFound
		}
		usage, err := tx.VATRateUsage(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if usage.Billed > 0 {
			return catalogdomain.ErrInUse
		}

		err = s.rewriteComponentVAT(ctx, tx, rate, func(contract *contractdomain.Contract, comp *contractdomain.Component) {
			residue := comp.VATAmount
			comp.VATRateID = nil
			comp.VATAmount = decimal.Zero
			comp.TotalAmount = comp.TotalAmount.Sub(residue)
			contract.ApplyDelta(decimal.Zero, residue.Neg(), residue.Neg())
		})
		if err != nil {
			return err
		}

		siblings, err := tx.ListVATRates(ctx, tenantID, &rate.Type)
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			if sibling.SuccessorID != nil && *sibling.SuccessorID == rate.ID {
				sibling.SuccessorID = nil
				if err := tx.SaveVATRate(ctx, sibling); err != nil {
					return err
				}
			}
		}
		return tx.DeleteVATRate(ctx, tenantID, id)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, tenantID, "vat_rate.delete", "vat_rate", id, nil)
	return nil
}

// rewriteComponentVAT applies fn to every component referencing rate and
// saves the components with their contracts.
func (s *Service) rewriteComponentVAT(
	ctx context.Context,
	tx store.Tx,
	rate *catalogdomain.VATRate,
	fn func(contract *contractdomain.Contract, comp *contractdomain.Component),
) error {
	components, err := tx.ComponentsByVATRate(ctx, rate.TenantID, rate.ID)
	if err != nil {
		return err
	}
	if len(components) == 0 {
		return nil
	}
	contracts := make(map[snowflake.ID]*contractdomain.Contract)
	ordered := make([]*contractdomain.Contract, 0)
	for _, comp := range components {
		contract, ok := contracts[comp.ContractID]
		if !ok {
			contract, err = tx.GetContract(ctx, rate.TenantID, comp.ContractID)
			if err != nil {
				return err
			}
			if contract == nil {
				return catalogdomain.ErrNotFound
			}
			contracts[comp.ContractID] = contract
			ordered = append(ordered, contract)
		}
		fn(contract, comp)
	}
	if err := tx.SaveComponents(ctx, components...); err != nil {
		return err
	}
	return tx.SaveContracts(ctx, ordered...)
}

func (s *Service) ListVATRates(ctx context.Context, vatType *int) ([]*catalogdomain.VATRate, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListVATRates(ctx, tenantID, vatType)
}
