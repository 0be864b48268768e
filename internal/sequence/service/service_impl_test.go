package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/consigna/internal/config"
	"github.com/smallbiznis/consigna/internal/sequence/domain"
	"github.com/smallbiznis/consigna/internal/sequence/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
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

	require.NoError(t, db.AutoMigrate(&domain.Counter{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB, log *zap.Logger) *Service {
	t.Helper()
	if log == nil {
		log = zap.NewNop()
	}
	return New(Params{
		DB:   db,
		Log:  log,
		Cfg:  config.Config{Timezone: "UTC"},
		Repo: repository.Provide(),
	}).(*Service)
}

func TestNextIsGaplessWithinMonth(t *testing.T) {
	svc := newTestService(t, setupTestDB(t), nil)
	ctx := context.Background()

	at := time.Date(2025, time.August, 9, 10, 0, 0, 0, time.UTC)
	for want := 1; want <= 7; want++ {
		n, err := svc.Next(ctx, domain.KindCaution, "201", at)
		require.NoError(t, err)
		assert.Equal(t, want, n.Seq)
		at = at.Add(time.Hour)
	}

	n, err := svc.Next(ctx, domain.KindCaution, "201", time.Date(2025, time.August, 9, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "CT201250809-0008", n.String())

	last, err := svc.Peek(ctx, domain.KindCaution, "201", at)
	require.NoError(t, err)
	assert.Equal(t, 8, last)
}

func TestNextResetsOnNewMonth(t *testing.T) {
	svc := newTestService(t, setupTestDB(t), nil)
	ctx := context.Background()

	endOfAugust := time.Date(2025, time.August, 31, 23, 59, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := svc.Next(ctx, domain.KindConsignation, "201", endOfAugust)
		require.NoError(t, err)
	}

	n, err := svc.Next(ctx, domain.KindConsignation, "201", endOfAugust.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n.Seq)
	assert.Equal(t, "CS201250901-0001", n.String())

	n, err = svc.Next(ctx, domain.KindConsignation, "201", endOfAugust)
	require.NoError(t, err)
	assert.Equal(t, 4, n.Seq, "august keeps counting independently")
}

func TestNextScopesByKindAndSite(t *testing.T) {
	svc := newTestService(t, setupTestDB(t), nil)
	ctx := context.Background()
	at := time.Date(2025, time.August, 9, 10, 0, 0, 0, time.UTC)

	a, err := svc.Next(ctx, domain.KindCaution, "201", at)
	require.NoError(t, err)
	b, err := svc.Next(ctx, domain.KindCaution, "202", at)
	require.NoError(t, err)
	c, err := svc.Next(ctx, domain.KindRestitution, "201", at)
	require.NoError(t, err)

	assert.Equal(t, "CT201250809-0001", a.String())
	assert.Equal(t, "CT202250809-0001", b.String())
	assert.Equal(t, "RC201250809-0001", c.String())
}

func TestNextUsesConfiguredLocation(t *testing.T) {
	svc := newTestService(t, setupTestDB(t), nil)
	svc.loc = time.FixedZone("UTC+7", 7*3600)

	n, err := svc.Next(context.Background(), domain.KindCaution, "201", time.Date(2025, time.August, 31, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "CT201250901-0001", n.String())
	assert.Equal(t, "202509", n.Period())
}

func TestNextSeedsFromLegacyDocumentsAndQuarantinesMalformed(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Exec(`CREATE TABLE cautions (
		document_number TEXT PRIMARY KEY,
		site_code TEXT NOT NULL,
		client_code TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`).Error)

	august := time.Date(2025, time.August, 5, 9, 0, 0, 0, time.UTC)
	rows := []struct {
		number string
		site   string
		at     time.Time
	}{
		{"CT201250801-0004", "201", time.Date(2025, time.August, 1, 8, 0, 0, 0, time.UTC)},
		{"CT201250805-0011", "201", august},
		{"CT201250805-11A", "201", august},
		{"CT201250705-0050", "201", august},
		{"CT202250805-0099", "202", august},
		{"CT201250731-0200", "201", time.Date(2025, time.July, 31, 8, 0, 0, 0, time.UTC)},
	}
	for _, row := range rows {
		require.NoError(t, db.Exec(
			`INSERT INTO cautions (document_number, site_code, client_code, created_at) VALUES (?, ?, ?, ?)`,
			row.number, row.site, "C1", row.at,
		).Error)
	}

	core, logs := observer.New(zap.WarnLevel)
	svc := newTestService(t, db, zap.New(core))

	n, err := svc.Next(context.Background(), domain.KindCaution, "201", august.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "CT201250806-0012", n.String())

	quarantined := logs.FilterMessage("quarantined document number").All()
	require.Len(t, quarantined, 2)
	values := []string{
		quarantined[0].ContextMap()["document_number"].(string),
		quarantined[1].ContextMap()["document_number"].(string),
	}
	sort.Strings(values)
	assert.Equal(t, []string{"CT201250705-0050", "CT201250805-11A"}, values)

	n, err = svc.Next(context.Background(), domain.KindCaution, "201", august)
	require.NoError(t, err)
	assert.Equal(t, 13, n.Seq)
}

func TestNextFailsWhenSequenceExhausted(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, nil)
	at := time.Date(2025, time.August, 9, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&domain.Counter{
		Kind:      domain.KindCaution,
		SiteCode:  "201",
		Period:    "202508",
		LastValue: domain.MaxSequence,
		UpdatedAt: at,
	}).Error)

	_, err := svc.Next(context.Background(), domain.KindCaution, "201", at)
	assert.ErrorIs(t, err, domain.ErrSequenceExhausted)

	last, err := svc.Peek(context.Background(), domain.KindCaution, "201", at)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxSequence, last, "failed reservation is rolled back")
}

func TestNextRejectsInvalidScope(t *testing.T) {
	svc := newTestService(t, setupTestDB(t), nil)
	at := time.Now()

	_, err := svc.Next(context.Background(), domain.Kind("refund"), "201", at)
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	_, err = svc.Next(context.Background(), domain.KindCaution, "20-1", at)
	assert.ErrorIs(t, err, domain.ErrInvalidSiteCode)

	_, err = svc.Peek(context.Background(), domain.KindCaution, "", at)
	assert.ErrorIs(t, err, domain.ErrInvalidSiteCode)
}

func TestNextConcurrentCallersGetDistinctNumbers(t *testing.T) {
	svc := newTestService(t, setupTestDB(t), nil)
	at := time.Date(2025, time.August, 9, 10, 0, 0, 0, time.UTC)

	const callers = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make([]int, 0, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := svc.Next(context.Background(), domain.KindDeconsignation, "201", at)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen = append(seen, n.Seq)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Ints(seen)
	want := make([]int, callers)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, seen)
}
