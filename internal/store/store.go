// Package store declares the storage collaborator the billing services run
// against. Every method is scoped to one tenant; lookups of another tenant's
// rows return nil without error, exactly as for missing rows.
package store

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/invoiceengine/internal/catalog/domain"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/invoiceengine/internal/ledger/domain"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
)

type TenantStore interface {
	CreateTenant(ctx context.Context, tenant *tenantdomain.Tenant) error
	SaveTenant(ctx context.Context, tenant *tenantdomain.Tenant) error
	GetTenant(ctx context.Context, id snowflake.ID) (*tenantdomain.Tenant, error)
	// LockTenant reads the tenant holding its row lock until the transaction
	// ends. The lock serializes invoice number allocation.
	LockTenant(ctx context.Context, id snowflake.ID) (*tenantdomain.Tenant, error)
	ListTenants(ctx context.Context) ([]*tenantdomain.Tenant, error)
}

// Usage counts the rows referencing a catalog entry and how many of those
// have already been invoiced.
type Usage struct {
	Total  int64
	Billed int64
}

// InUse reports whether any row references the entry.
func (u Usage) InUse() bool { return u.Total > 0 }

// Catalog is every catalog row of one tenant.
type Catalog struct {
	ContractTypes  []*catalogdomain.ContractType
	BaseComponents []*catalogdomain.BaseComponent
	VATRates       []*catalogdomain.VATRate
}

type CatalogStore interface {
	CreateContractType(ctx context.Context, ct *catalogdomain.ContractType) error
	SaveContractType(ctx context.Context, ct *catalogdomain.ContractType) error
	GetContractType(ctx context.Context, tenantID, id snowflake.ID) (*catalogdomain.ContractType, error)
	DeleteContractType(ctx context.Context, tenantID, id snowflake.ID) error
	ContractTypeUsage(ctx context.Context, tenantID, id snowflake.ID) (Usage, error)

	CreateBaseComponent(ctx context.Context, bc *catalogdomain.BaseComponent) error
	SaveBaseComponent(ctx context.Context, bc *catalogdomain.BaseComponent) error
	GetBaseComponent(ctx context.Context, tenantID, id snowflake.ID) (*catalogdomain.BaseComponent, error)
	DeleteBaseComponent(ctx context.Context, tenantID, id snowflake.ID) error
	BaseComponentUsage(ctx context.Context, tenantID, id snowflake.ID) (Usage, error)

	CreateVATRate(ctx context.Context, rate *catalogdomain.VATRate) error
	SaveVATRate(ctx context.Context, rate *catalogdomain.VATRate) error
	GetVATRate(ctx context.Context, tenantID, id snowflake.ID) (*catalogdomain.VATRate, error)
	DeleteVATRate(ctx context.Context, tenantID, id snowflake.ID) error
	// OpenVATRate returns the rate of vatType without an end date, if any.
	OpenVATRate(ctx context.Context, tenantID snowflake.ID, vatType int) (*catalogdomain.VATRate, error)
	ListVATRates(ctx context.Context, tenantID snowflake.ID, vatType *int) ([]*catalogdomain.VATRate, error)
	VATRateUsage(ctx context.Context, tenantID, id snowflake.ID) (Usage, error)

	LoadCatalog(ctx context.Context, tenantID snowflake.ID) (*Catalog, error)
}

type ContractStore interface {
	CreateContract(ctx context.Context, contract *contractdomain.Contract) error
	SaveContracts(ctx context.Context, contracts ...*contractdomain.Contract) error
	GetContract(ctx context.Context, tenantID, id snowflake.ID) (*contractdomain.Contract, error)
	DeleteContract(ctx context.Context, tenantID, id snowflake.ID) error
	// DueContracts returns active contracts whose next prolongation date is
	// on or before asOf.
	DueContracts(ctx context.Context, tenantID snowflake.ID, asOf time.Time) ([]*contractdomain.Contract, error)

	CreateComponent(ctx context.Context, comp *contractdomain.Component) error
	SaveComponents(ctx context.Context, comps ...*contractdomain.Component) error
	GetComponent(ctx context.Context, tenantID, id snowflake.ID) (*contractdomain.Component, error)
	DeleteComponent(ctx context.Context, tenantID, id snowflake.ID) error
	ListComponents(ctx context.Context, tenantID snowflake.ID, contractIDs ...snowflake.ID) ([]*contractdomain.Component, error)
	ComponentsByVATRate(ctx context.Context, tenantID, rateID snowflake.ID) ([]*contractdomain.Component, error)

	ReplacePersons(ctx context.Context, tenantID, contractID snowflake.ID, persons []*contractdomain.ContractPerson) error
	ListPersons(ctx context.Context, tenantID snowflake.ID, contractIDs ...snowflake.ID) ([]*contractdomain.ContractPerson, error)
}

type InvoiceStore interface {
	CreateInvoices(ctx context.Context, invoices []*invoicedomain.Invoice) error
	CreateInvoiceLines(ctx context.Context, lines []*invoicedomain.InvoiceLine) error
	CreatePosts(ctx context.Context, posts []*ledgerdomain.GeneralLedgerPost) error
	CreateCollections(ctx context.Context, collections []*invoicedomain.Collection) error

	GetInvoice(ctx context.Context, tenantID, id snowflake.ID) (*invoicedomain.Invoice, error)
	ListInvoicesByContract(ctx context.Context, tenantID, contractID snowflake.ID) ([]*invoicedomain.Invoice, error)
	InvoicesByDate(ctx context.Context, tenantID snowflake.ID, date time.Time) ([]*invoicedomain.Invoice, error)
	InvoiceLines(ctx context.Context, tenantID, invoiceID snowflake.ID) ([]*invoicedomain.InvoiceLine, error)
	// InvoiceLinesForComponent returns every line ever billed for the
	// component, newest period first.
	InvoiceLinesForComponent(ctx context.Context, tenantID, componentID snowflake.ID) ([]*invoicedomain.InvoiceLine, error)
	CollectionsByDate(ctx context.Context, tenantID snowflake.ID, date time.Time) ([]*invoicedomain.Collection, error)
	PostsByInvoices(ctx context.Context, tenantID snowflake.ID, invoiceIDs ...snowflake.ID) ([]*ledgerdomain.GeneralLedgerPost, error)
}

// Tx is the store bound to one open transaction.
type Tx interface {
	TenantStore
	CatalogStore
	ContractStore
	InvoiceStore
}

type Store interface {
	Tx
	// Transaction runs fn in one transaction, committing when fn returns nil
	// and rolling back otherwise.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}
