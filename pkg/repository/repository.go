// Package repository gives each table a typed gorm accessor. Reads filter on
// the non-zero fields of a query struct plus any extra options.
package repository

import (
	"context"

	"github.com/smallbiznis/invoiceengine/pkg/db/option"
	"gorm.io/gorm"
)

type Repository[T any] interface {
	WithTx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	// First returns nil without error when nothing matches.
	First(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	// Lock reads one row for update inside the current transaction.
	Lock(ctx context.Context, query *T) (*T, error)
	Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
	Insert(ctx context.Context, rows ...*T) error
	Save(ctx context.Context, rows ...*T) error
	// Delete removes the row id owned by tenantID.
	Delete(ctx context.Context, tenantID, id any) error
	// DeleteWhere removes every row matching query. An empty query is refused.
	DeleteWhere(ctx context.Context, query *T) error
}
