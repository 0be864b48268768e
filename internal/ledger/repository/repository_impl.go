package repository

import (
	"context"

	"github.com/smallbiznis/consigna/internal/ledger/domain"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
	"github.com/smallbiznis/consigna/pkg/db/option"
	"github.com/smallbiznis/consigna/pkg/repository"
	"gorm.io/gorm"
)

const keyColumn = "document_number"

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record domain.Record) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, kind seqdomain.Kind, number string, opts ...option.QueryOption) (domain.Record, error) {
	opts = append([]option.QueryOption{option.Equal(keyColumn, number)}, opts...)
	switch kind {
	case seqdomain.KindCaution:
		return findOne[domain.Caution](ctx, db, opts)
	case seqdomain.KindConsignation:
		return findOne[domain.Consignation](ctx, db, opts)
	case seqdomain.KindDeconsignation:
		return findOne[domain.Deconsignation](ctx, db, opts)
	case seqdomain.KindRestitution:
		return findOne[domain.Restitution](ctx, db, opts)
	default:
		return nil, domain.ErrInvalidKind
	}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, kind seqdomain.Kind, opts ...option.QueryOption) ([]domain.Record, error) {
	switch kind {
	case seqdomain.KindCaution:
		return find[domain.Caution](ctx, db, opts)
	case seqdomain.KindConsignation:
		return find[domain.Consignation](ctx, db, opts)
	case seqdomain.KindDeconsignation:
		return find[domain.Deconsignation](ctx, db, opts)
	case seqdomain.KindRestitution:
		return find[domain.Restitution](ctx, db, opts)
	default:
		return nil, domain.ErrInvalidKind
	}
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, record domain.Record, values map[string]any) error {
	return db.WithContext(ctx).Model(record).Updates(values).Error
}

type recordPtr[T any] interface {
	*T
	domain.Record
}

func findOne[T any, P recordPtr[T]](ctx context.Context, db *gorm.DB, opts []option.QueryOption) (domain.Record, error) {
	row, err := repository.ProvideStore[T](db, keyColumn).FindOne(ctx, nil, opts...)
	if err != nil || row == nil {
		return nil, err
	}
	return P(row), nil
}

func find[T any, P recordPtr[T]](ctx context.Context, db *gorm.DB, opts []option.QueryOption) ([]domain.Record, error) {
	rows, err := repository.ProvideStore[T](db, keyColumn).Find(ctx, nil, opts...)
	if err != nil {
		return nil, err
	}
	records := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, P(row))
	}
	return records, nil
}
