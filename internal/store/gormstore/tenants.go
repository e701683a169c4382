package gormstore

import (
	"context"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
	"github.com/smallbiznis/invoiceengine/pkg/db/option"
)

func (s *Store) CreateTenant(ctx context.Context, tenant *tenantdomain.Tenant) error {
	return s.tenants.Insert(ctx, tenant)
}

func (s *Store) SaveTenant(ctx context.Context, tenant *tenantdomain.Tenant) error {
	return s.tenants.Save(ctx, tenant)
}

func (s *Store) GetTenant(ctx context.Context, id snowflake.ID) (*tenantdomain.Tenant, error) {
	return s.tenants.First(ctx, &tenantdomain.Tenant{ID: id})
}

func (s *Store) LockTenant(ctx context.Context, id snowflake.ID) (*tenantdomain.Tenant, error) {
	return s.tenants.Lock(ctx, &tenantdomain.Tenant{ID: id})
}

func (s *Store) ListTenants(ctx context.Context) ([]*tenantdomain.Tenant, error) {
	return s.tenants.Find(ctx, &tenantdomain.Tenant{}, option.OrderBy("id"))
}
