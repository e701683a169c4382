package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	auditdomain "github.com/smallbiznis/invoiceengine/internal/audit/domain"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/invoiceengine/internal/catalog/domain"
	"github.com/smallbiznis/invoiceengine/internal/config"
	"github.com/smallbiznis/invoiceengine/internal/store"
	"github.com/smallbiznis/invoiceengine/pkg/db"
	"github.com/smallbiznis/invoiceengine/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var validate = validator.New()

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

func NewService(p Params) catalogdomain.Service {
	return &Service{
		store:      p.Store,
		log:        p.Log.Named("catalog.service"),
		genID:      p.GenID,
		corrector:  p.Corrector,
		billingCfg: p.BillingConfig,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) CreateContractType(ctx context.Context, req catalogdomain.ContractTypeRequest) (*catalogdomain.ContractType, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	req.Code = strings.TrimSpace(req.Code)
	if err := validate.Struct(req); err != nil {
		return nil, catalogdomain.ErrInvalidRequest
	}

	ct := &catalogdomain.ContractType{
		ID:                  s.genID.Generate(),
		TenantID:            tenantID,
		Code:                req.Code,
		Description:         strings.TrimSpace(req.Description),
		GeneralLedgerDebit:  strings.TrimSpace(req.GeneralLedgerDebit),
		GeneralLedgerCredit: strings.TrimSpace(req.GeneralLedgerCredit),
	}
	if err := s.store.CreateContractType(ctx, ct); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, catalogdomain.ErrDuplicateCode
		}
		return nil, err
	}
	s.audit(ctx, tenantID, "contract_type.create", "contract_type", ct.ID, map[string]any{"code": ct.Code})
	return ct, nil
}

// UpdateContractType edits GL accounts until a contract of the type is billed.
func (s *Service) UpdateContractType(ctx context.Context, id snowflake.ID, req catalogdomain.ContractTypeRequest) (*catalogdomain.ContractType, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	req.Code = strings.TrimSpace(req.Code)
	if err := validate.Struct(req); err != nil {
		return nil, catalogdomain.ErrInvalidRequest
	}

	var ct *catalogdomain.ContractType
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		ct, err = tx.GetContractType(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if ct == nil {
			return catalogdomain.ErrNotFound
		}
		usage, err := tx.ContractTypeUsage(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if usage.Billed > 0 {
			return catalogdomain.ErrInUse
		}
		ct.Code = req.Code
		ct.Description = strings.TrimSpace(req.Description)
		ct.GeneralLedgerDebit = strings.TrimSpace(req.GeneralLedgerDebit)
		ct.GeneralLedgerCredit = strings.TrimSpace(req.GeneralLedgerCredit)
		return tx.SaveContractType(ctx, ct)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, catalogdomain.ErrDuplicateCode
		}
		return nil, err
	}
	s.audit(ctx, tenantID, "contract_type.update", "contract_type", ct.ID, map[string]any{"code": ct.Code})
	return ct, nil
}

func (s *Service) DeleteContractType(ctx context.Context, id snowflake.ID) error {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return err
	}
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		ct, err := tx.GetContractType(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if ct == nil {
			return catalogdomain.ErrNotFound
		}
		usage, err := tx.ContractTypeUsage(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if usage.InUse() {
			return catalogdomain.ErrInUse
		}
		return tx.DeleteContractType(ctx, tenantID, id)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, tenantID, "contract_type.delete", "contract_type", id, nil)
	return nil
}

func (s *Service) CreateBaseComponent(ctx context.Context, req catalogdomain.BaseComponentRequest) (*catalogdomain.BaseComponent, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	req.Code = strings.TrimSpace(req.Code)
	if err := validate.Struct(req); err != nil {
		return nil, catalogdomain.ErrInvalidRequest
	}

	bc := &catalogdomain.BaseComponent{
		ID:       s.genID.Generate(),
		TenantID: tenantID,
	}
	applyBaseComponent(bc, req)
	if err := s.store.CreateBaseComponent(ctx, bc); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, catalogdomain.ErrDuplicateCode
		}
		return nil, err
	}
	s.audit(ctx, tenantID, "base_component.create", "base_component", bc.ID, map[string]any{"code": bc.Code})
	return bc, nil
}

func (s *Service) UpdateBaseComponent(ctx context.Context, id snowflake.ID, req catalogdomain.BaseComponentRequest) (*catalogdomain.BaseComponent, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	req.Code = strings.TrimSpace(req.Code)
	if err := validate.Struct(req); err != nil {
		return nil, catalogdomain.ErrInvalidRequest
	}

	var bc *catalogdomain.BaseComponent
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		bc, err = tx.GetBaseComponent(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if bc == nil {
			return catalogdomain.ErrNotFound
		}
		usage, err := tx.BaseComponentUsage(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if usage.Billed > 0 {
			return catalogdomain.ErrInUse
		}
		applyBaseComponent(bc, req)
		return tx.SaveBaseComponent(ctx, bc)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, catalogdomain.ErrDuplicateCode
		}
		return nil, err
	}
	s.audit(ctx, tenantID, "base_component.update", "base_component", bc.ID, map[string]any{"code": bc.Code})
	return bc, nil
}

func (s *Service) DeleteBaseComponent(ctx context.Context, id snowflake.ID) error {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return err
	}
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		bc, err := tx.GetBaseComponent(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if bc == nil {
			return catalogdomain.ErrNotFound
		}
		usage, err := tx.BaseComponentUsage(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if usage.InUse() {
			return catalogdomain.ErrInUse
		}
		return tx.DeleteBaseComponent(ctx, tenantID, id)
	})
	if err != nil {
		return err
	}
	s.audit(ctx, tenantID, "base_component.delete", "base_component", id, nil)
	return nil
}

func applyBaseComponent(bc *catalogdomain.BaseComponent, req catalogdomain.BaseComponentRequest) {
	bc.Code = req.Code
	bc.Description = strings.TrimSpace(req.Description)
	bc.GeneralLedgerDebit = strings.TrimSpace(req.GeneralLedgerDebit)
	bc.GeneralLedgerCredit = strings.TrimSpace(req.GeneralLedgerCredit)
	bc.GeneralLedgerDimension = strings.TrimSpace(req.GeneralLedgerDimension)
	bc.UnitID = req.UnitID
}

func (s *Service) tenantID(ctx context.Context) (snowflake.ID, error) {
	id, ok := tenantctx.TenantID(ctx)
	if !ok {
		return 0, catalogdomain.ErrInvalidTenant
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
