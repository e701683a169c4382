package gormstore

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	"github.com/smallbiznis/invoiceengine/pkg/db/option"
)

func (s *Store) CreateContract(ctx context.Context, contract *contractdomain.Contract) error {
	return s.contracts.Insert(ctx, contract)
}

func (s *Store) SaveContracts(ctx context.Context, contracts ...*contractdomain.Contract) error {
	return s.contracts.Save(ctx, contracts...)
}

func (s *Store) GetContract(ctx context.Context, tenantID, id snowflake.ID) (*contractdomain.Contract, error) {
	return s.contracts.First(ctx, &contractdomain.Contract{ID: id, TenantID: tenantID})
}

func (s *Store) DeleteContract(ctx context.Context, tenantID, id snowflake.ID) error {
	return s.contracts.Delete(ctx, tenantID, id)
}

func (s *Store) DueContracts(ctx context.Context, tenantID snowflake.ID, asOf time.Time) ([]*contractdomain.Contract, error) {
	return s.contracts.Find(ctx,
		&contractdomain.Contract{TenantID: tenantID, Status: contractdomain.ContractStatusActive},
		option.Where("date_next_prolongation IS NOT NULL AND date_next_prolongation <= ?", asOf),
		option.OrderBy("id"),
	)
}

func (s *Store) CreateComponent(ctx context.Context, comp *contractdomain.Component) error {
	return s.components.Insert(ctx, comp)
}

func (s *Store) SaveComponents(ctx context.Context, comps ...*contractdomain.Component) error {
	return s.components.Save(ctx, comps...)
}

func (s *Store) GetComponent(ctx context.Context, tenantID, id snowflake.ID) (*contractdomain.Component, error) {
	return s.components.First(ctx, &contractdomain.Component{ID: id, TenantID: tenantID})
}

func (s *Store) DeleteComponent(ctx context.Context, tenantID, id snowflake.ID) error {
	return s.components.Delete(ctx, tenantID, id)
}

func (s *Store) ListComponents(ctx context.Context, tenantID snowflake.ID, contractIDs ...snowflake.ID) ([]*contractdomain.Component, error) {
	if len(contractIDs) == 0 {
		return nil, nil
	}
	return s.components.Find(ctx, &contractdomain.Component{TenantID: tenantID},
		option.Where("contract_id IN ?", contractIDs),
		option.OrderBy("contract_id, id"),
	)
}

func (s *Store) ComponentsByVATRate(ctx context.Context, tenantID, rateID snowflake.ID) ([]*contractdomain.Component, error) {
	return s.components.Find(ctx, &contractdomain.Component{TenantID: tenantID},
		option.Where("vat_rate_id = ?", rateID),
		option.OrderBy("contract_id, id"),
	)
}

func (s *Store) ReplacePersons(ctx context.Context, tenantID, contractID snowflake.ID, persons []*contractdomain.ContractPerson) error {
	if err := s.persons.DeleteWhere(ctx, &contractdomain.ContractPerson{TenantID: tenantID, ContractID: contractID}); err != nil {
		return err
	}
	return s.persons.Insert(ctx, persons...)
}

func (s *Store) ListPersons(ctx context.Context, tenantID snowflake.ID, contractIDs ...snowflake.ID) ([]*contractdomain.ContractPerson, error) {
	if len(contractIDs) == 0 {
		return nil, nil
	}
	return s.persons.Find(ctx, &contractdomain.ContractPerson{TenantID: tenantID},
		option.Where("contract_id IN ?", contractIDs),
		option.OrderBy("contract_id, id"),
	)
}
