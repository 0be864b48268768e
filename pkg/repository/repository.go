package repository

import (
	"context"

	"github.com/smallbiznis/consigna/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic gorm-backed store for models addressed by a single string key.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Save(ctx context.Context, resource *T) error
	Update(ctx context.Context, key string, values map[string]any) error
	Count(ctx context.Context, query *T) (int64, error)
}
