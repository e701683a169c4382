package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	"github.com/smallbiznis/invoiceengine/internal/store"
)

// DeactivateContract ends an active contract on endDate, the last day billed.
//
// Components invoiced beyond endDate are credited on one correction invoice.
// Components with days left to bill keep the contract active until the next
// run invoices its final prorated period.
func (s *Service) DeactivateContract(ctx context.Context, id snowflake.ID, endDate time.Time) (*contractdomain.DeactivationResult, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	end := calendar.Truncate(endDate)

	result := &contractdomain.DeactivationResult{}
	var correction *billingdomain.CorrectionResult
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		contract, err := s.loadContract(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if contract.Status != contractdomain.ContractStatusActive {
			return contractdomain.ErrInvalidStatus
		}
		if end.Before(calendar.Truncate(contract.StartDate)) {
			return contractdomain.ErrInvalidDateRange
		}
		components, err := tx.ListComponents(ctx, tenantID, id)
		if err != nil {
			return err
		}
		contract.EndDate = &end

		var (
			items   []billingdomain.CorrectionItem
			changed []*contractdomain.Component
			pending bool
		)
		for _, comp := range components {
			if comp.DateNextProlongation == nil {
				continue
			}
			over, err := s.invoicedPast(ctx, tx, comp, end)
			if err != nil {
				return err
			}
			switch {
			case over:
				items = append(items, billingdomain.CorrectionItem{
					Component: comp,
					Cutover:   calendar.AddDays(end, 1),
					Retire:    true,
				})
			case comp.DateNextProlongation.After(end):
				retireUnbilled(contract, comp, end)
				changed = append(changed, comp)
			default:
				if comp.EndDate == nil || comp.EndDate.After(end) {
					comp.EndDate = &end
				}
				changed = append(changed, comp)
				pending = true
			}
			result.Components = append(result.Components, comp)
		}

		if err := tx.SaveComponents(ctx, changed...); err != nil {
			return err
		}
		if len(items) > 0 {
			correction, err = s.corrector.Correct(ctx, tx, billingdomain.CorrectionRequest{
				Contract:    contract,
				Items:       items,
				Reason:      billingdomain.CorrectionReasonDeactivation,
				EndContract: !pending,
			})
			result.Contract = contract
			return err
		}
		if !pending {
			terminate(contract, end)
		}
		result.Contract = contract
		return tx.SaveContracts(ctx, contract)
	})
	if err != nil {
		return nil, err
	}

	s.finishDeactivation(ctx, tenantID, "contract.deactivate", "contract", id, end, result, correction)
	return result, nil
}

// DeactivateComponent stops billing one component after endDate.
func (s *Service) DeactivateComponent(ctx context.Context, id snowflake.ID, endDate time.Time) (*contractdomain.DeactivationResult, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	end := calendar.Truncate(endDate)

	result := &contractdomain.DeactivationResult{}
	var correction *billingdomain.CorrectionResult
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		comp, err := tx.GetComponent(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if comp == nil {
			return contractdomain.ErrNotFound
		}
		if comp.DateNextProlongation == nil {
			return contractdomain.ErrInvalidStatus
		}
		if end.Before(calendar.Truncate(comp.StartDate)) {
			return contractdomain.ErrInvalidDateRange
		}
		contract, err := s.loadContract(ctx, tx, tenantID, comp.ContractID)
		if err != nil {
			return err
		}
		if contract.Status != contractdomain.ContractStatusActive {
			return contractdomain.ErrInvalidStatus
		}
		result.Contract = contract
		result.Components = []*contractdomain.Component{comp}

		over, err := s.invoicedPast(ctx, tx, comp, end)
		if err != nil {
			return err
		}
		if over {
			correction, err = s.corrector.Correct(ctx, tx, billingdomain.CorrectionRequest{
				Contract: contract,
				Items: []billingdomain.CorrectionItem{{
					Component: comp,
					Cutover:   calendar.AddDays(end, 1),
					Retire:    true,
				}},
				Reason: billingdomain.CorrectionReasonDeactivation,
			})
			return err
		}

		if comp.DateNextProlongation.After(end) {
			retireUnbilled(contract, comp, end)
		} else {
			comp.EndDate = &end
		}
		if err := tx.SaveComponents(ctx, comp); err != nil {
			return err
		}
		return tx.SaveContracts(ctx, contract)
	})
	if err != nil {
		return nil, err
	}

	s.finishDeactivation(ctx, tenantID, "component.deactivate", "component", id, end, result, correction)
	return result, nil
}

// invoicedPast reports whether comp has been billed for days after end.
func (s *Service) invoicedPast(ctx context.Context, tx store.Tx, comp *contractdomain.Component, end time.Time) (bool, error) {
	until, err := s.corrector.InvoicedUntil(ctx, tx, comp.TenantID, comp.ID)
	if err != nil {
		return false, err
	}
	return until != nil && until.After(calendar.AddDays(end, 1)), nil
}

// retireUnbilled drops a component whose billing would only start after end.
// One starting after end keeps EndDate the day before its start.
func retireUnbilled(contract *contractdomain.Contract, comp *contractdomain.Component, end time.Time) {
	stop := end
	if start := calendar.Truncate(comp.StartDate); stop.Before(start) {
		stop = calendar.AddDays(start, -1)
	}
	base, vat, total := comp.Contribution()
	contract.ApplyDelta(base.Neg(), vat.Neg(), total.Neg())
	comp.EndDate = &stop
	comp.DatePrevProlongation = &stop
	comp.DateNextProlongation = nil
}

func terminate(contract *contractdomain.Contract, end time.Time) {
	contract.Status = contractdomain.ContractStatusTerminated
	contract.DatePrevProlongation = &end
	contract.DateNextProlongation = nil
}

func (s *Service) finishDeactivation(
	ctx context.Context,
	tenantID snowflake.ID,
	action, targetType string,
	id snowflake.ID,
	end time.Time,
	result *contractdomain.DeactivationResult,
	correction *billingdomain.CorrectionResult,
) {
	metadata := map[string]any{
		"end_date": end.Format(time.DateOnly),
		"status":   string(result.Contract.Status),
	}
	if correction != nil {
		invoiceID := correction.Invoice.ID
		result.CorrectionInvoice = &invoiceID
		metadata["correction_invoice_id"] = invoiceID.String()
	}
	s.audit(ctx, tenantID, action, targetType, id, metadata)
	s.corrector.Committed(ctx, correction)
}
