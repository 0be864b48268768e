package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/consigna/internal/sequence/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Increment bumps the counter in place; the UPDATE holds the row lock until the
// surrounding transaction ends. It reports false when the row does not exist yet.
func (r *repo) Increment(ctx context.Context, db *gorm.DB, kind domain.Kind, siteCode, period string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE document_sequences SET last_value = last_value + 1, updated_at = ?
		 WHERE kind = ? AND site_code = ? AND period = ?`,
		now.UTC(),
		string(kind),
		siteCode,
		period,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, kind domain.Kind, siteCode, period string) (*domain.Counter, error) {
	var counters []domain.Counter
	err := db.WithContext(ctx).Raw(
		`SELECT kind, site_code, period, last_value, updated_at
		 FROM document_sequences WHERE kind = ? AND site_code = ? AND period = ?`,
		string(kind),
		siteCode,
		period,
	).Scan(&counters).Error
	if err != nil {
		return nil, err
	}
	if len(counters) == 0 {
		return nil, nil
	}
	return &counters[0], nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, counter *domain.Counter) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO document_sequences (kind, site_code, period, last_value, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(counter.Kind),
		counter.SiteCode,
		counter.Period,
		counter.LastValue,
		counter.UpdatedAt.UTC(),
	).Error
}

// LegacyNumbers lists document numbers written before the counter existed: rows created
// in [from, to) plus any row whose number already claims the period.
func (r *repo) LegacyNumbers(ctx context.Context, db *gorm.DB, kind domain.Kind, siteCode, periodPrefix string, from, to time.Time) ([]string, error) {
	var numbers []string
	err := db.WithContext(ctx).
		Table(kind.Table()).
		Where("site_code = ?", siteCode).
		Where("((created_at >= ? AND created_at < ?) OR document_number LIKE ?)", from.UTC(), to.UTC(), periodPrefix+"%").
		Pluck("document_number", &numbers).Error
	if err != nil {
		return nil, err
	}
	return numbers, nil
}
