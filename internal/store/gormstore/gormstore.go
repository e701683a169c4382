// Package gormstore implements store.Store on gorm for postgres, mysql and sqlite.
package gormstore

import (
	"context"

	catalogdomain "github.com/smallbiznis/invoiceengine/internal/catalog/domain"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/invoiceengine/internal/ledger/domain"
	"github.com/smallbiznis/invoiceengine/internal/store"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
	"github.com/smallbiznis/invoiceengine/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("store",
	fx.Provide(Provide),
)

// Store keeps one generic repository per table, all bound to the same handle.
type Store struct {
	db *gorm.DB

	tenants        repository.Repository[tenantdomain.Tenant]
	contractTypes  repository.Repository[catalogdomain.ContractType]
	baseComponents repository.Repository[catalogdomain.BaseComponent]
	vatRates       repository.Repository[catalogdomain.VATRate]
	contracts      repository.Repository[contractdomain.Contract]
	components     repository.Repository[contractdomain.Component]
	persons        repository.Repository[contractdomain.ContractPerson]
	invoices       repository.Repository[invoicedomain.Invoice]
	lines          repository.Repository[invoicedomain.InvoiceLine]
	posts          repository.Repository[ledgerdomain.GeneralLedgerPost]
	collections    repository.Repository[invoicedomain.Collection]
}

func Provide(db *gorm.DB) store.Store {
	return New(db)
}

func New(db *gorm.DB) *Store {
	return &Store{
		db:             db,
		tenants:        repository.For[tenantdomain.Tenant](db),
		contractTypes:  repository.For[catalogdomain.ContractType](db),
		baseComponents: repository.For[catalogdomain.BaseComponent](db),
		vatRates:       repository.For[catalogdomain.VATRate](db),
		contracts:      repository.For[contractdomain.Contract](db),
		components:     repository.For[contractdomain.Component](db),
		persons:        repository.For[contractdomain.ContractPerson](db),
		invoices:       repository.For[invoicedomain.Invoice](db),
		lines:          repository.For[invoicedomain.InvoiceLine](db),
		posts:          repository.For[ledgerdomain.GeneralLedgerPost](db),
		collections:    repository.For[invoicedomain.Collection](db),
	}
}

func (s *Store) withTx(tx *gorm.DB) *Store {
	return &Store{
		db:             tx,
		tenants:        s.tenants.WithTx(tx),
		contractTypes:  s.contractTypes.WithTx(tx),
		baseComponents: s.baseComponents.WithTx(tx),
		vatRates:       s.vatRates.WithTx(tx),
		contracts:      s.contracts.WithTx(tx),
		components:     s.components.WithTx(tx),
		persons:        s.persons.WithTx(tx),
		invoices:       s.invoices.WithTx(tx),
		lines:          s.lines.WithTx(tx),
		posts:          s.posts.WithTx(tx),
		collections:    s.collections.WithTx(tx),
	}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.withTx(tx))
	})
}

var _ store.Store = (*Store)(nil)
