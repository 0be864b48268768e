package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/consigna/internal/reference/domain"
	"github.com/smallbiznis/consigna/internal/reference/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&domain.Site{}, &domain.Client{}))
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(Params{DB: setupTestDB(t), Log: zap.NewNop(), Repo: repository.Provide()}).(*Service)
}

func TestUpsertAndFindSite(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertSite(ctx, domain.Site{Code: "201", Name: "Rungis"})
	require.NoError(t, err)
	_, err = svc.UpsertSite(ctx, domain.Site{Code: "201", Name: "Rungis Nord", Address: "Quai 4"})
	require.NoError(t, err)

	site, err := svc.FindSite(ctx, " 201 ")
	require.NoError(t, err)
	assert.Equal(t, "Rungis Nord", site.Name)
	assert.Equal(t, "Quai 4", site.Address)

	sites, err := svc.ListSites(ctx)
	require.NoError(t, err)
	assert.Len(t, sites, 1)

	_, err = svc.FindSite(ctx, "999")
	assert.ErrorIs(t, err, domain.ErrSiteNotFound)
}

func TestUpsertSiteValidates(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.UpsertSite(context.Background(), domain.Site{Code: "20-1", Name: "x"})
	require.ErrorIs(t, err, domain.ErrInvalidSite)
	assert.Contains(t, err.Error(), "code:alphanum")

	_, err = svc.UpsertSite(context.Background(), domain.Site{Code: "201"})
	assert.ErrorIs(t, err, domain.ErrInvalidSite)
}

func TestUpsertAndFindClient(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertClient(ctx, domain.Client{Code: "C1", Name: "Transports Martin", Email: "contact@martin.example"})
	require.NoError(t, err)

	client, err := svc.FindClient(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "Transports Martin", client.Name)

	_, err = svc.UpsertClient(ctx, domain.Client{Code: "C2", Name: "Bad", Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidClient)

	_, err = svc.FindClient(ctx, "")
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
}
