package repository

import (
	"context"

	"github.com/smallbiznis/consigna/internal/reference/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindSite(ctx context.Context, db *gorm.DB, code string) (*domain.Site, error) {
	var sites []domain.Site
	if err := db.WithContext(ctx).Where("code = ?", code).Limit(1).Find(&sites).Error; err != nil {
		return nil, err
	}
	if len(sites) == 0 {
		return nil, nil
	}
	return &sites[0], nil
}

func (r *repo) FindClient(ctx context.Context, db *gorm.DB, code string) (*domain.Client, error) {
	var clients []domain.Client
	if err := db.WithContext(ctx).Where("code = ?", code).Limit(1).Find(&clients).Error; err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return nil, nil
	}
	return &clients[0], nil
}

func (r *repo) ListSites(ctx context.Context, db *gorm.DB) ([]domain.Site, error) {
	var sites []domain.Site
	err := db.WithContext(ctx).Order("code").Find(&sites).Error
	return sites, err
}

func (r *repo) ListClients(ctx context.Context, db *gorm.DB) ([]domain.Client, error) {
	var clients []domain.Client
	err := db.WithContext(ctx).Order("name, code").Find(&clients).Error
	return clients, err
}

func (r *repo) UpsertSite(ctx context.Context, db *gorm.DB, site *domain.Site) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "address"}),
	}).Create(site).Error
}

func (r *repo) UpsertClient(ctx context.Context, db *gorm.DB, client *domain.Client) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "phone"}),
	}).Create(client).Error
}
