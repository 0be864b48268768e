package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/consigna/pkg/db/option"
	"gorm.io/gorm"
)

type store[T any] struct {
	db        *gorm.DB
	keyColumn string
}

// ProvideStore returns a Repository whose rows are addressed by keyColumn.
func ProvideStore[T any](db *gorm.DB, keyColumn string) Repository[T] {
	if keyColumn == "" {
		keyColumn = "id"
	}
	return &store[T]{db: db, keyColumn: keyColumn}
}

func (r *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return r
	}
	return &store[T]{db: tx, keyColumn: r.keyColumn}
}

func (r *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var result []*T
	stmt := r.buildQuery(ctx, query, opts...)
	err := stmt.Find(&result).Error
	return result, err
}

func (r *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var result T
	stmt := r.buildQuery(ctx, query, opts...)
	err := stmt.First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *store[T]) Save(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Save(resource).Error
}

func (r *store[T]) Update(ctx context.Context, key string, values map[string]any) error {
	return r.db.WithContext(ctx).Model(new(T)).Where(r.keyColumn+" = ?", key).Updates(values).Error
}

func (r *store[T]) Count(ctx context.Context, query *T) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(new(T)).Where(query).Count(&count).Error
	return count, err
}

func (r *store[T]) buildQuery(ctx context.Context, filter *T, opts ...option.QueryOption) *gorm.DB {
	db := r.db.WithContext(ctx).Model(new(T))
	if filter != nil {
		db = db.Where(filter)
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		db = opt.Apply(db)
	}

	return db
}
