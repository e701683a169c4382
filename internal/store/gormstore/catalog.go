package gormstore

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/invoiceengine/internal/catalog/domain"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	"github.com/smallbiznis/invoiceengine/internal/store"
	"github.com/smallbiznis/invoiceengine/pkg/db/option"
)

func (s *Store) CreateContractType(ctx context.Context, ct *catalogdomain.ContractType) error {
	return s.contractTypes.Insert(ctx, ct)
}

func (s *Store) SaveContractType(ctx context.Context, ct *catalogdomain.ContractType) error {
	return s.contractTypes.Save(ctx, ct)
}

func (s *Store) GetContractType(ctx context.Context, tenantID, id snowflake.ID) (*catalogdomain.ContractType, error) {
	return s.contractTypes.First(ctx, &catalogdomain.ContractType{ID: id, TenantID: tenantID})
}

func (s *Store) DeleteContractType(ctx context.Context, tenantID, id snowflake.ID) error {
	return s.contractTypes.Delete(ctx, tenantID, id)
}

func (s *Store) ContractTypeUsage(ctx context.Context, tenantID, id snowflake.ID) (store.Usage, error) {
	filter := &contractdomain.Contract{TenantID: tenantID, ContractTypeID: id}
	total, err := s.contracts.Count(ctx, filter)
	if err != nil {
		return store.Usage{}, err
	}
	billed, err := s.contracts.Count(ctx, filter, option.Where("date_prev_prolongation IS NOT NULL"))
	if err != nil {
		return store.Usage{}, err
	}
	return store.Usage{Total: total, Billed: billed}, nil
}

func (s *Store) CreateBaseComponent(ctx context.Context, bc *catalogdomain.BaseComponent) error {
	return s.baseComponents.Insert(ctx, bc)
}

func (s *Store) SaveBaseComponent(ctx context.Context, bc *catalogdomain.BaseComponent) error {
	return s.baseComponents.Save(ctx, bc)
}

func (s *Store) GetBaseComponent(ctx context.Context, tenantID, id snowflake.ID) (*catalogdomain.BaseComponent, error) {
	return s.baseComponents.First(ctx, &catalogdomain.BaseComponent{ID: id, TenantID: tenantID})
}

func (s *Store) DeleteBaseComponent(ctx context.Context, tenantID, id snowflake.ID) error {
	return s.baseComponents.Delete(ctx, tenantID, id)
}

func (s *Store) BaseComponentUsage(ctx context.Context, tenantID, id snowflake.ID) (store.Usage, error) {
	filter := &contractdomain.Component{TenantID: tenantID, BaseComponentID: id}
	total, err := s.components.Count(ctx, filter)
	if err != nil {
		return store.Usage{}, err
	}
	billed, err := s.components.Count(ctx, filter, option.Where("date_prev_prolongation IS NOT NULL"))
	if err != nil {
		return store.Usage{}, err
	}
	return store.Usage{Total: total, Billed: billed}, nil
}

func (s *Store) CreateVATRate(ctx context.Context, rate *catalogdomain.VATRate) error {
	return s.vatRates.Insert(ctx, rate)
}

func (s *Store) SaveVATRate(ctx context.Context, rate *catalogdomain.VATRate) error {
	return s.vatRates.Save(ctx, rate)
}

func (s *Store) GetVATRate(ctx context.Context, tenantID, id snowflake.ID) (*catalogdomain.VATRate, error) {
	return s.vatRates.First(ctx, &catalogdomain.VATRate{ID: id, TenantID: tenantID})
}

func (s *Store) DeleteVATRate(ctx context.Context, tenantID, id snowflake.ID) error {
	return s.vatRates.Delete(ctx, tenantID, id)
}

func (s *Store) OpenVATRate(ctx context.Context, tenantID snowflake.ID, vatType int) (*catalogdomain.VATRate, error) {
	return s.vatRates.First(ctx, &catalogdomain.VATRate{TenantID: tenantID},
		option.Where("type = ? AND end_date IS NULL", vatType),
		option.OrderBy("start_date desc"),
	)
}

func (s *Store) ListVATRates(ctx context.Context, tenantID snowflake.ID, vatType *int) ([]*catalogdomain.VATRate, error) {
	opts := []option.QueryOption{option.OrderBy("type, start_date")}
	if vatType != nil {
		opts = append(opts, option.Where("type = ?", *vatType))
	}
	return s.vatRates.Find(ctx, &catalogdomain.VATRate{TenantID: tenantID}, opts...)
}

// VATRateUsage counts referencing components in Total and lines billed with
// the rate in Billed.
func (s *Store) VATRateUsage(ctx context.Context, tenantID, id snowflake.ID) (store.Usage, error) {
	components, err := s.components.Count(ctx, &contractdomain.Component{TenantID: tenantID},
		option.Where("vat_rate_id = ?", id))
	if err != nil {
		return store.Usage{}, err
	}
	billed, err := s.lines.Count(ctx, &invoicedomain.InvoiceLine{TenantID: tenantID},
		option.Where("vat_rate_id = ?", id))
	if err != nil {
		return store.Usage{}, err
	}
	return store.Usage{Total: components + billed, Billed: billed}, nil
}

func (s *Store) LoadCatalog(ctx context.Context, tenantID snowflake.ID) (*store.Catalog, error) {
	types, err := s.contractTypes.Find(ctx, &catalogdomain.ContractType{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	bases, err := s.baseComponents.Find(ctx, &catalogdomain.BaseComponent{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	rates, err := s.vatRates.Find(ctx, &catalogdomain.VATRate{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return &store.Catalog{
		ContractTypes:  types,
		BaseComponents: bases,
		VATRates:       rates,
	}, nil
}
