package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/consigna/internal/balance/domain"
	ledgerdomain "github.com/smallbiznis/consigna/internal/ledger/domain"
	"github.com/smallbiznis/consigna/pkg/db/option"
	"github.com/smallbiznis/consigna/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) SumAmount(ctx context.Context, db *gorm.DB, table, clientCode, siteCode string) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	err := db.WithContext(ctx).
		Table(table).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("client_code = ? AND site_code = ? AND validation_status = ?", clientCode, siteCode, ledgerdomain.StatusValidated).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func (r *repo) SumPallets(ctx context.Context, db *gorm.DB, table, column, clientCode, siteCode string) (int64, error) {
	var row struct {
		Total int64 `gorm:"column:total"`
	}
	err := db.WithContext(ctx).
		Table(table).
		Select(fmt.Sprintf("COALESCE(SUM(%s), 0) AS total", column)).
		Where("client_code = ? AND site_code = ? AND validation_status = ?", clientCode, siteCode, ledgerdomain.StatusValidated).
		Scan(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Total, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, balance *domain.Balance) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_code"}, {Name: "site_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
		}).
		Create(balance).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, clientCode, siteCode string) (*domain.Balance, error) {
	var balances []domain.Balance
	err := db.WithContext(ctx).
		Where("client_code = ? AND site_code = ?", clientCode, siteCode).
		Limit(1).
		Find(&balances).Error
	if err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return nil, nil
	}
	return &balances[0], nil
}

// List pages by (client_code, site_code). The cursor id is "client|site".
func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListBalancesRequest, limit int) ([]*domain.Balance, error) {
	stmt := db.WithContext(ctx).Model(&domain.Balance{})
	stmt = option.Equal("client_code", req.ClientCode).Apply(stmt)
	stmt = option.Equal("site_code", req.SiteCode).Apply(stmt)

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, err
		}
		client, site, _ := strings.Cut(cursor.ID, "|")
		stmt = stmt.Where("((client_code > ?) OR (client_code = ? AND site_code > ?))", client, client, site)
	}

	var balances []*domain.Balance
	err := stmt.
		Order("client_code asc, site_code asc").
		Limit(limit + 1).
		Find(&balances).Error
	if err != nil {
		return nil, err
	}
	return balances, nil
}

// Keys lists every (client, site) pair appearing in the given tables.
func (r *repo) Keys(ctx context.Context, db *gorm.DB, tables []string) ([]domain.Key, error) {
	if len(tables) == 0 {
		return nil, nil
	}
	selects := make([]string, 0, len(tables))
	for _, table := range tables {
		selects = append(selects, fmt.Sprintf("SELECT client_code, site_code FROM %s", table))
	}

	var keys []domain.Key
	err := db.WithContext(ctx).Raw(
		"SELECT DISTINCT client_code, site_code FROM (" + strings.Join(selects, " UNION ") + ") AS balance_keys ORDER BY client_code, site_code",
	).Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}
