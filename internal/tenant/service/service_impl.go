package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	auditdomain "github.com/smallbiznis/invoiceengine/internal/audit/domain"
	"github.com/smallbiznis/invoiceengine/internal/config"
	"github.com/smallbiznis/invoiceengine/internal/store"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var validate = validator.New()

type Params struct {
	fx.In

	Store         store.Store
	Log           *zap.Logger
	GenID         *snowflake.Node
	BillingConfig *config.BillingConfigHolder `optional:"true"`
	AuditSvc      auditdomain.Service         `optional:"true"`
}

type Service struct {
	store      store.Store
	log        *zap.Logger
	genID      *snowflake.Node
	billingCfg *config.BillingConfigHolder
	auditSvc   auditdomain.Service
}

func NewService(p Params) tenantdomain.Service {
	return &Service{
		store:      p.Store,
		log:        p.Log.Named("tenant.service"),
		genID:      p.GenID,
		billingCfg: p.BillingConfig,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req tenantdomain.CreateRequest) (*tenantdomain.Tenant, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, tenantdomain.ErrInvalidName
	}
	if err := validate.Struct(req); err != nil {
		return nil, tenantdomain.ErrInvalidRequest
	}

	days := s.billingCfg.Get().DefaultInvoiceExpirationDays
	if req.DaysUntilInvoiceExpiration != nil {
		days = *req.DaysUntilInvoiceExpiration
	}

	tenant := &tenantdomain.Tenant{
		ID:                         s.genID.Generate(),
		Name:                       req.Name,
		DaysUntilInvoiceExpiration: days,
	}
	if err := s.store.CreateTenant(ctx, tenant); err != nil {
		return nil, err
	}

	s.audit(ctx, tenant.ID, "tenant.create", map[string]any{
		"name":                          tenant.Name,
		"days_until_invoice_expiration": tenant.DaysUntilInvoiceExpiration,
	})
	return tenant, nil
}

// Update locks the tenant row so a concurrent run cannot lose its invoice
// counter to this write.
func (s *Service) Update(ctx context.Context, req tenantdomain.UpdateRequest) (*tenantdomain.Tenant, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, tenantdomain.ErrInvalidName
		}
		req.Name = &name
	}
	if err := validate.Struct(req); err != nil {
		return nil, tenantdomain.ErrInvalidRequest
	}

	var updated *tenantdomain.Tenant
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		tenant, err := tx.LockTenant(ctx, req.ID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return tenantdomain.ErrNotFound
		}
		if req.Name != nil {
			tenant.Name = *req.Name
		}
		if req.DaysUntilInvoiceExpiration != nil {
			tenant.DaysUntilInvoiceExpiration = *req.DaysUntilInvoiceExpiration
		}
		updated = tenant
		return tx.SaveTenant(ctx, tenant)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, updated.ID, "tenant.update", map[string]any{
		"name":                          updated.Name,
		"days_until_invoice_expiration": updated.DaysUntilInvoiceExpiration,
	})
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*tenantdomain.Tenant, error) {
	if id == 0 {
		return nil, tenantdomain.ErrInvalidRequest
	}
	tenant, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, tenantdomain.ErrNotFound
	}
	return tenant, nil
}

func (s *Service) List(ctx context.Context) ([]*tenantdomain.Tenant, error) {
	return s.store.ListTenants(ctx)
}

func (s *Service) audit(ctx context.Context, tenantID snowflake.ID, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := tenantID.String()
	if err := s.auditSvc.AuditLog(ctx, &tenantID, "", nil, action, "tenant", &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
