// Package engine turns due contracts and their components into invoices,
// invoice lines, general ledger posts and collections.
//
// The engine works on records already loaded into memory and never touches
// storage; callers persist its output inside one transaction.
package engine

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/invoiceengine/internal/billing/domain"
	"github.com/smallbiznis/invoiceengine/internal/billing/proration"
	catalogdomain "github.com/smallbiznis/invoiceengine/internal/catalog/domain"
	contractdomain "github.com/smallbiznis/invoiceengine/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/invoiceengine/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/invoiceengine/internal/ledger/domain"
	tenantdomain "github.com/smallbiznis/invoiceengine/internal/tenant/domain"
)

// IDGenerator hands out row identifiers before rows are written.
type IDGenerator interface {
	Generate() snowflake.ID
}

// Config holds the wording and rounding used on generated records.
type Config struct {
	Places                  int32
	InvoiceDescription      string
	CorrectionDescription   string
	DebtorPostDescription   string
	ProceedsPostDescription string
	VATPostDescription      string
}

func DefaultConfig() Config {
	return Config{
		Places:                  proration.DefaultPlaces,
		InvoiceDescription:      "Invoice",
		CorrectionDescription:   "Correction invoice",
		DebtorPostDescription:   "Debtor",
		ProceedsPostDescription: "Proceeds",
		VATPostDescription:      "VAT",
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Places <= 0 {
		c.Places = defaults.Places
	}
	if c.InvoiceDescription == "" {
		c.InvoiceDescription = defaults.InvoiceDescription
	}
	if c.CorrectionDescription == "" {
		c.CorrectionDescription = defaults.CorrectionDescription
	}
	if c.DebtorPostDescription == "" {
		c.DebtorPostDescription = defaults.DebtorPostDescription
	}
	if c.ProceedsPostDescription == "" {
		c.ProceedsPostDescription = defaults.ProceedsPostDescription
	}
	if c.VATPostDescription == "" {
		c.VATPostDescription = defaults.VATPostDescription
	}
	return c
}

// Engine is stateless apart from its id source and configuration.
type Engine struct {
	genID IDGenerator
	calc  proration.Calculator
	cfg   Config
}

func New(genID IDGenerator, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		genID: genID,
		calc:  proration.New(cfg.Places),
		cfg:   cfg,
	}
}

// Catalog resolves catalog references of the records being billed.
type Catalog struct {
	ContractTypes  map[snowflake.ID]*catalogdomain.ContractType
	BaseComponents map[snowflake.ID]*catalogdomain.BaseComponent
	VATRates       map[snowflake.ID]*catalogdomain.VATRate
}

// NewCatalog indexes catalog rows by id.
func NewCatalog(types []*catalogdomain.ContractType, bases []*catalogdomain.BaseComponent, rates []*catalogdomain.VATRate) Catalog {
	cat := Catalog{
		ContractTypes:  make(map[snowflake.ID]*catalogdomain.ContractType, len(types)),
		BaseComponents: make(map[snowflake.ID]*catalogdomain.BaseComponent, len(bases)),
		VATRates:       make(map[snowflake.ID]*catalogdomain.VATRate, len(rates)),
	}
	for _, t := range types {
		cat.ContractTypes[t.ID] = t
	}
	for _, b := range bases {
		cat.BaseComponents[b.ID] = b
	}
	for _, r := range rates {
		cat.VATRates[r.ID] = r
	}
	return cat
}

func (c Catalog) contractType(id snowflake.ID) (*catalogdomain.ContractType, error) {
	t, ok := c.ContractTypes[id]
	if !ok || t == nil {
		return nil, billingdomain.ErrMissingCatalogEntry
	}
	return t, nil
}

func (c Catalog) baseComponent(id snowflake.ID) (*catalogdomain.BaseComponent, error) {
	b, ok := c.BaseComponents[id]
	if !ok || b == nil {
		return nil, billingdomain.ErrMissingCatalogEntry
	}
	return b, nil
}

func (c Catalog) vatRate(id *snowflake.ID) (*catalogdomain.VATRate, error) {
	if id == nil {
		return nil, nil
	}
	r, ok := c.VATRates[*id]
	if !ok || r == nil {
		return nil, billingdomain.ErrMissingCatalogEntry
	}
	return r, nil
}

// Batch is the working set of one tenant run.
type Batch struct {
	Tenant     *tenantdomain.Tenant
	Contracts  []*contractdomain.Contract
	Components map[snowflake.ID][]*contractdomain.Component
	Persons    map[snowflake.ID][]*contractdomain.ContractPerson
	Catalog    Catalog
}

// Output collects every row created by a run or correction.
type Output struct {
	Invoices    []*invoicedomain.Invoice
	Lines       []*invoicedomain.InvoiceLine
	Posts       []*ledgerdomain.GeneralLedgerPost
	Collections []*invoicedomain.Collection
}

func (o *Output) Append(other *Output) {
	if other == nil {
		return
	}
	o.Invoices = append(o.Invoices, other.Invoices...)
	o.Lines = append(o.Lines, other.Lines...)
	o.Posts = append(o.Posts, other.Posts...)
	o.Collections = append(o.Collections, other.Collections...)
}

// Run bills every due contract of the batch as of asOf.
func (e *Engine) Run(batch *Batch, asOf time.Time) (*Output, error) {
	out := &Output{}
	contracts := append([]*contractdomain.Contract(nil), batch.Contracts...)
	sort.Slice(contracts, func(i, j int) bool { return contracts[i].ID < contracts[j].ID })

	for _, contract := range contracts {
		res, err := e.BillContract(ContractInput{
			Tenant:     batch.Tenant,
			Contract:   contract,
			Components: batch.Components[contract.ID],
			Persons:    batch.Persons[contract.ID],
			Catalog:    batch.Catalog,
		}, asOf)
		if err != nil {
			return nil, err
		}
		out.Append(res)
	}
	return out, nil
}
