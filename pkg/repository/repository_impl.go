package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/invoiceengine/pkg/db"
	"github.com/smallbiznis/invoiceengine/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// insertBatch caps rows per INSERT. A catch-up run writes a line and up to two
// posts per component and period, which overruns driver parameter limits in
// one statement.
const insertBatch = 200

type table[T any] struct {
	db *gorm.DB
}

func For[T any](conn *gorm.DB) Repository[T] {
	return &table[T]{db: conn}
}

func (t *table[T]) WithTx(tx *gorm.DB) Repository[T] {
	return &table[T]{db: tx}
}

func (t *table[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var rows []*T
	if err := t.where(ctx, query, opts).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *table[T]) First(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	return first[T](t.where(ctx, query, opts))
}

func (t *table[T]) Lock(ctx context.Context, query *T) (*T, error) {
	stmt := t.where(ctx, query, nil)
	if db.SupportsRowLocks(t.db) {
		stmt = stmt.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	return first[T](stmt)
}

func (t *table[T]) Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error) {
	var n int64
	err := t.where(ctx, query, opts).Model(new(T)).Count(&n).Error
	return n, err
}

func (t *table[T]) Insert(ctx context.Context, rows ...*T) error {
	switch len(rows) {
	case 0:
		return nil
	case 1:
		return t.db.WithContext(ctx).Create(rows[0]).Error
	default:
		return t.db.WithContext(ctx).CreateInBatches(rows, insertBatch).Error
	}
}

func (t *table[T]) Save(ctx context.Context, rows ...*T) error {
	for _, row := range rows {
		if err := t.db.WithContext(ctx).Save(row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (t *table[T]) Delete(ctx context.Context, tenantID, id any) error {
	return t.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(new(T)).Error
}

// DeleteWhere relies on gorm refusing a DELETE without conditions, so a zero
// query fails with gorm.ErrMissingWhereClause.
func (t *table[T]) DeleteWhere(ctx context.Context, query *T) error {
	return t.db.WithContext(ctx).Where(query).Delete(new(T)).Error
}

func (t *table[T]) where(ctx context.Context, query *T, opts []option.QueryOption) *gorm.DB {
	stmt := t.db.WithContext(ctx).Where(query)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	return stmt
}

func first[T any](stmt *gorm.DB) (*T, error) {
	var row T
	if err := stmt.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
