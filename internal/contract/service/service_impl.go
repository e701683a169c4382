package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/invoiceengine/internal/audit/domain"
	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	"github.com/smallbiznis/invoiceengine/internal/config"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	"github.com/smallbiznis/invoiceengine/internal/store"
	"github.com/smallbiznis/invoiceengine/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var validate = validator.New()

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	Store         store.Store
	Log           *zap.Logger
	GenID         *snowflake.Node
	Corrector     billingdomain.Corrector
	BillingConfig *config.BillingConfigHolder `optional:"true"`
	AuditSvc      auditdomain.Service         `optional:"true"`
}

type Service struct {
	store      store.Store
	log        *zap.Logger
	genID      *snowflake.Node
	corrector  billingdomain.Corrector
	billingCfg *config.BillingConfigHolder
	auditSvc   auditdomain.Service
}

func NewService(p Params) contractdomain.Service {
	return &Service{
		store:      p.Store,
		log:        p.Log.Named("contract.service"),
		genID:      p.GenID,
		corrector:  p.Corrector,
		billingCfg: p.BillingConfig,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) CreateContract(ctx context.Context, req contractdomain.CreateContractRequest) (*contractdomain.Contract, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, contractdomain.ErrInvalidRequest
	}
	if _, err := calendar.ParsePeriod(req.InvoicingPeriod, req.InvoicingAmountOfDays); err != nil {
		return nil, contractdomain.ErrInvalidRequest
	}
	start := calendar.Truncate(req.StartDate)
	end, err := endDate(start, req.EndDate)
	if err != nil {
		return nil, err
	}
	pricing := req.PricingType
	if pricing == "" {
		pricing = contractdomain.PricingPerPeriod
	}

	contract := &contractdomain.Contract{
		ID:                              s.genID.Generate(),
		TenantID:                        tenantID,
		ContractTypeID:                  req.ContractTypeID,
		Status:                          contractdomain.ContractStatusDraft,
		Description:                     strings.TrimSpace(req.Description),
		InternalCustomerID:              strings.TrimSpace(req.InternalCustomerID),
		ExternalCustomerID:              strings.TrimSpace(req.ExternalCustomerID),
		InvoicingPeriod:                 strings.ToUpper(req.InvoicingPeriod),
		InvoicingAmountOfDays:           req.InvoicingAmountOfDays,
		PricingType:                     pricing,
		StartDate:                       start,
		EndDate:                         end,
		GeneralLedgerDimensionContract1: strings.TrimSpace(req.GeneralLedgerDimensionContract1),
		GeneralLedgerDimensionContract2: strings.TrimSpace(req.GeneralLedgerDimensionContract2),
	}

	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		ct, err := tx.GetContractType(ctx, tenantID, req.ContractTypeID)
		if err != nil {
			return err
		}
		if ct == nil {
			return contractdomain.ErrNotFound
		}
		tenant, err := tx.LockTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return contractdomain.ErrInvalidTenant
		}
		if err := tx.CreateContract(ctx, contract); err != nil {
			return err
		}
		tenant.NumberOfContracts++
		return tx.SaveTenant(ctx, tenant)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, tenantID, "contract.create", "contract", contract.ID, map[string]any{
		"contract_type_id": contract.ContractTypeID.String(),
		"invoicing_period": contract.InvoicingPeriod,
		"start_date":       contract.StartDate.Format(time.DateOnly),
	})
	return contract, nil
}

// UpdateContract edits a contract that has not been invoiced yet.
func (s *Service) UpdateContract(ctx context.Context, id snowflake.ID, req contractdomain.UpdateContractRequest) (*contractdomain.Contract, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, contractdomain.ErrInvalidRequest
	}

	var contract *contractdomain.Contract
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		contract, err = s.loadContract(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if contract.IsBilled() {
			return contractdomain.ErrAlreadyBilled
		}
		if contract.IsClosed() {
			return contractdomain.ErrInvalidStatus
		}

		if req.Description != nil {
			contract.Description = strings.TrimSpace(*req.Description)
		}
		if req.InternalCustomerID != nil {
			contract.InternalCustomerID = strings.TrimSpace(*req.InternalCustomerID)
		}
		if req.ExternalCustomerID != nil {
			contract.ExternalCustomerID = strings.TrimSpace(*req.ExternalCustomerID)
		}
		if req.GeneralLedgerDimensionContract1 != nil {
			contract.GeneralLedgerDimensionContract1 = strings.TrimSpace(*req.GeneralLedgerDimensionContract1)
		}
		if req.GeneralLedgerDimensionContract2 != nil {
			contract.GeneralLedgerDimensionContract2 = strings.TrimSpace(*req.GeneralLedgerDimensionContract2)
		}
		if req.InvoicingPeriod != nil {
			contract.InvoicingPeriod = strings.ToUpper(*req.InvoicingPeriod)
		}
		if req.InvoicingAmountOfDays != nil {
			contract.InvoicingAmountOfDays = req.InvoicingAmountOfDays
		}
		if _, err := contract.Period(); err != nil {
			return contractdomain.ErrInvalidRequest
		}
		if req.StartDate != nil {
			contract.StartDate = calendar.Truncate(*req.StartDate)
		}
		if req.EndDate != nil {
			contract.EndDate = req.EndDate
		}
		end, err := endDate(contract.StartDate, contract.EndDate)
		if err != nil {
			return err
		}
		contract.EndDate = end

		if contract.Status == contractdomain.ContractStatusActive {
			start := contract.StartDate
			contract.DateNextProlongation = &start
		}
		return tx.SaveContracts(ctx, contract)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, tenantID, "contract.update", "contract", contract.ID, nil)
	return contract, nil
}

// DeleteContract removes an uninvoiced contract with its components and persons.
func (s *Service) DeleteContract(ctx context.Context, id snowflake.ID) error {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return err
	}
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		contract, err := s.loadContract(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if contract.IsBilled() {
			return contractdomain.ErrAlreadyBilled
		}
		components, err := tx.ListComponents(ctx, tenantID, id)
		if err != nil {
			return err
		}
		for _, comp := range components {
			if err := tx.DeleteComponent(ctx, tenantID, comp.ID); err != nil {
				return err
			}
		}
		if err := tx.ReplacePersons(ctx, tenantID, id, nil); err != nil {
			return err
		}
		if err := tx.DeleteContract(ctx, tenantID, id); err != nil {
			return err
		}

		tenant, err := tx.LockTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return contractdomain.ErrInvalidTenant
		}
		if tenant.NumberOfContracts > 0 {
			tenant.NumberOfContracts--
		}
		return tx.SaveTenant(ctx, tenant)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, tenantID, "contract.delete", "contract", id, nil)
	return nil
}

func (s *Service) GetContract(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	contract, err := s.store.GetContract(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, contractdomain.ErrNotFound
	}
	return contract, nil
}

// SetContractPersons replaces the payers of a contract. Once the contract is
// active the payers on its next invoice date must still cover 100%.
func (s *Service) SetContractPersons(ctx context.Context, contractID snowflake.ID, reqs []contractdomain.ContractPersonRequest) ([]*contractdomain.ContractPerson, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}

	persons := make([]*contractdomain.ContractPerson, 0, len(reqs))
	for _, req := range reqs {
		req.Name = strings.TrimSpace(req.Name)
		if err := validate.Struct(req); err != nil {
			return nil, contractdomain.ErrInvalidRequest
		}
		if !req.PercentageOfTotal.IsPositive() || req.PercentageOfTotal.GreaterThan(hundred) {
			return nil, contractdomain.ErrInvalidPercentage
		}
		if req.PaymentMethod == contractdomain.PaymentMethodDirectDebit &&
			(strings.TrimSpace(req.IBAN) == "" || strings.TrimSpace(req.Mandate) == "") {
			return nil, contractdomain.ErrMissingMandate
		}
		start := calendar.Truncate(req.StartDate)
		end, err := endDate(start, req.EndDate)
		if err != nil {
			return nil, err
		}
		persons = append(persons, &contractdomain.ContractPerson{
			ID:                s.genID.Generate(),
			TenantID:          tenantID,
			ContractID:        contractID,
			Type:              strings.TrimSpace(req.Type),
			StartDate:         start,
			EndDate:           end,
			Name:              req.Name,
			Address:           strings.TrimSpace(req.Address),
			City:              strings.TrimSpace(req.City),
			Email:             strings.TrimSpace(req.Email),
			Phone:             strings.TrimSpace(req.Phone),
			PaymentMethod:     req.PaymentMethod,
			IBAN:              strings.ReplaceAll(strings.ToUpper(req.IBAN), " ", ""),
			Mandate:           strings.TrimSpace(req.Mandate),
			PercentageOfTotal: req.PercentageOfTotal,
			PaymentDay:        req.PaymentDay,
		})
	}

	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		contract, err := s.loadContract(ctx, tx, tenantID, contractID)
		if err != nil {
			return err
		}
		switch {
		case contract.IsClosed():
			return contractdomain.ErrInvalidStatus
		case contract.Status == contractdomain.ContractStatusActive:
			day := calendar.Truncate(contract.StartDate)
			if contract.DateNextProlongation != nil {
				day = *contract.DateNextProlongation
			}
			if err := coversWhole(persons, day); err != nil {
				return err
			}
		}
		return tx.ReplacePersons(ctx, tenantID, contractID, persons)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, tenantID, "contract.persons.set", "contract", contractID, map[string]any{
		"persons": len(persons),
	})
	return persons, nil
}

// ActivateContract starts billing a draft contract from its start date.
func (s *Service) ActivateContract(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}

	var contract *contractdomain.Contract
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		contract, err = s.loadContract(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if contract.Status != contractdomain.ContractStatusDraft {
			return contractdomain.ErrInvalidStatus
		}
		if _, err := contract.Period(); err != nil {
			return contractdomain.ErrInvalidRequest
		}
		components, err := tx.ListComponents(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if len(components) == 0 {
			return contractdomain.ErrNoComponents
		}
		persons, err := tx.ListPersons(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if len(persons) == 0 {
			return contractdomain.ErrNoPersons
		}
		start := calendar.Truncate(contract.StartDate)
		if err := coversWhole(persons, start); err != nil {
			return err
		}

		contract.Status = contractdomain.ContractStatusActive
		contract.DateNextProlongation = &start
		for _, comp := range components {
			next := calendar.Truncate(comp.StartDate)
			comp.DateNextProlongation = &next
		}
		if err := tx.SaveComponents(ctx, components...); err != nil {
			return err
		}
		return tx.SaveContracts(ctx, contract)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, tenantID, "contract.activate", "contract", contract.ID, map[string]any{
		"start_date": contract.StartDate.Format(time.DateOnly),
	})
	return contract, nil
}

// ArchiveContract moves an ended or terminated contract to Historic. A
// historic contract keeps its invoices but accepts no further changes.
func (s *Service) ArchiveContract(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}

	var contract *contractdomain.Contract
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		contract, err = s.loadContract(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		switch contract.Status {
		case contractdomain.ContractStatusEnded, contractdomain.ContractStatusTerminated:
		default:
			return contractdomain.ErrInvalidStatus
		}
		contract.Status = contractdomain.ContractStatusHistoric
		contract.DateNextProlongation = nil
		return tx.SaveContracts(ctx, contract)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, tenantID, "contract.archive", "contract", contract.ID, nil)
	return contract, nil
}

// coversWhole checks that the persons paying on day split the invoice fully.
func coversWhole(persons []*contractdomain.ContractPerson, day time.Time) error {
	sum := decimal.Zero
	for _, p := range persons {
		if p.ActiveOn(day) {
			sum = sum.Add(p.PercentageOfTotal)
		}
	}
	if !sum.Equal(hundred) {
		return contractdomain.ErrInvalidPercentage
	}
	return nil
}

func (s *Service) loadContract(ctx context.Context, tx store.Tx, tenantID, id snowflake.ID) (*contractdomain.Contract, error) {
	contract, err := tx.GetContract(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, contractdomain.ErrNotFound
	}
	return contract, nil
}

// endDate truncates end and rejects one before start.
func endDate(start time.Time, end *time.Time) (*time.Time, error) {
	if end == nil {
		return nil, nil
	}
	e := calendar.Truncate(*end)
	if e.Before(start) {
		return nil, contractdomain.ErrInvalidDateRange
	}
	return &e, nil
}

func (s *Service) tenantID(ctx context.Context) (snowflake.ID, error) {
	id, ok := tenantctx.TenantID(ctx)
	if !ok {
		return 0, contractdomain.ErrInvalidTenant
	}
	return id, nil
}

func (s *Service) places() int32 {
	return s.billingCfg.Get().RoundingPlaces
}

func (s *Service) audit(ctx context.Context, tenantID snowflake.ID, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	target := targetID.String()
	if err := s.auditSvc.AuditLog(ctx, &tenantID, "", nil, action, targetType, &target, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
