package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Service interface {
	FindSite(ctx context.Context, code string) (*Site, error)
	FindClient(ctx context.Context, code string) (*Client, error)
	ListSites(ctx context.Context) ([]Site, error)
	ListClients(ctx context.Context) ([]Client, error)
	UpsertSite(ctx context.Context, site Site) (*Site, error)
	UpsertClient(ctx context.Context, client Client) (*Client, error)
}

type Repository interface {
	FindSite(ctx context.Context, db *gorm.DB, code string) (*Site, error)
	FindClient(ctx context.Context, db *gorm.DB, code string) (*Client, error)
	ListSites(ctx context.Context, db *gorm.DB) ([]Site, error)
	ListClients(ctx context.Context, db *gorm.DB) ([]Client, error)
	UpsertSite(ctx context.Context, db *gorm.DB, site *Site) error
	UpsertClient(ctx context.Context, db *gorm.DB, client *Client) error
}

var (
	ErrSiteNotFound   = errors.New("site_not_found")
	ErrClientNotFound = errors.New("client_not_found")
	ErrInvalidSite    = errors.New("invalid_site")
	ErrInvalidClient  = errors.New("invalid_client")
)
