package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/consigna/internal/audit/domain"
	auditrepo "github.com/smallbiznis/consigna/internal/audit/repository"
	auditsvc "github.com/smallbiznis/consigna/internal/audit/service"
	balancedomain "github.com/smallbiznis/consigna/internal/balance/domain"
	balancerepo "github.com/smallbiznis/consigna/internal/balance/repository"
	balancesvc "github.com/smallbiznis/consigna/internal/balance/service"
	"github.com/smallbiznis/consigna/internal/clock"
	"github.com/smallbiznis/consigna/internal/config"
	"github.com/smallbiznis/consigna/internal/ledger/domain"
	"github.com/smallbiznis/consigna/internal/ledger/repository"
	"github.com/smallbiznis/consigna/internal/lock"
	obscontext "github.com/smallbiznis/consigna/internal/observability/context"
	refdomain "github.com/smallbiznis/consigna/internal/reference/domain"
	refrepo "github.com/smallbiznis/consigna/internal/reference/repository"
	refsvc "github.com/smallbiznis/consigna/internal/reference/service"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
	seqrepo "github.com/smallbiznis/consigna/internal/sequence/repository"
	seqsvc "github.com/smallbiznis/consigna/internal/sequence/service"
	validationsvc "github.com/smallbiznis/consigna/internal/validation/service"
	"github.com/smallbiznis/consigna/pkg/db/pagination"
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

	models := append(domain.Models(),
		&balancedomain.Balance{},
		&seqdomain.Counter{},
		&auditdomain.AuditLog{},
		&refdomain.Site{},
		&refdomain.Client{},
	)
	require.NoError(t, db.AutoMigrate(models...))
	return db
}

type testEnv struct {
	db      *gorm.DB
	svc     *Service
	balance balancedomain.Service
	clock   *clock.FakeClock
}

func newTestEnv(t *testing.T, policy config.DepositPolicy) testEnv {
	t.Helper()
	db := setupTestDB(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2025, time.August, 9, 10, 0, 0, 0, time.UTC))
	holder := config.NewStaticDepositPolicyHolder(policy)

	ledgerRepo := repository.Provide()
	balance := balancesvc.New(balancesvc.Params{
		DB:     db,
		Log:    log,
		Repo:   balancerepo.Provide(),
		Locker: lock.NewLocalLocker(),
		Policy: holder,
	})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	reference := refsvc.New(refsvc.Params{DB: db, Log: log, Repo: refrepo.Provide()})

	svc := New(Params{
		DB:     db,
		Log:    log,
		Clock:  clk,
		Policy: holder,
		Repo:   ledgerRepo,
		Sequence: seqsvc.New(seqsvc.Params{
			DB:   db,
			Log:  log,
			Cfg:  config.Config{Timezone: "UTC"},
			Repo: seqrepo.Provide(),
		}),
		Balance: balance,
		Coordinator: validationsvc.New(validationsvc.Params{
			DB:         db,
			Log:        log,
			Clock:      clk,
			Balance:    balance,
			LedgerRepo: ledgerRepo,
		}),
		Reference: reference,
		Audit:     auditsvc.NewService(auditsvc.Params{DB: db, Log: log, GenID: node, Repo: auditrepo.Provide()}),
	}).(*Service)

	ctx := context.Background()
	_, err = reference.UpsertSite(ctx, refdomain.Site{Code: "201", Name: "Rungis"})
	require.NoError(t, err)
	_, err = reference.UpsertClient(ctx, refdomain.Client{Code: "C1", Name: "Transports Martin"})
	require.NoError(t, err)

	return testEnv{db: db, svc: svc, balance: balance, clock: clk}
}

func actorCtx() context.Context {
	return obscontext.WithActor(context.Background(), "user", "frontoffice-1")
}

func balanceOf(t *testing.T, env testEnv) decimal.Decimal {
	t.Helper()
	value, err := env.balance.GetBalance(context.Background(), "C1", "201")
	require.NoError(t, err)
	return value
}

func TestCreateCautionNumbersAndDerivesPallets(t *testing.T) {
	env := newTestEnv(t, config.DefaultDepositPolicy())
	ctx := actorCtx()

	c, err := env.svc.CreateCaution(ctx, domain.CreateCautionRequest{
		SiteCode:   "201",
		ClientCode: "C1",
		Amount:     decimal.RequireFromString("550.00"),
		Validated:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "CT201250809-0001", c.DocumentNumber)
	assert.Equal(t, 5, c.PalletCount)
	assert.Equal(t, domain.StatusValidated, c.ValidationStatus)
	assert.Equal(t, "frontoffice-1", c.CreatedBy)
	require.NotNil(t, c.ValidatedAt)

	assert.True(t, balanceOf(t, env).Equal(decimal.NewFromInt(550)))

	var audits []auditdomain.AuditLog
	require.NoError(t, env.db.Where("action = ?", "caution.create").Find(&audits).Error)
	require.Len(t, audits, 1)
	require.NotNil(t, audits[0].TargetID)
	assert.Equal(t, "CT201250809-0001", *audits[0].TargetID)
}

func TestCreateNotValidatedCautionLeavesBalance(t *testing.T) {
	env := newTestEnv(t, config.DefaultDepositPolicy())

	c, err := env.svc.CreateCaution(actorCtx(), domain.CreateCautionRequest{SiteCode: "201", ClientCode: "C1", Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotValidated, c.ValidationStatus)
	assert.Nil(t, c.ValidatedAt)

	_, err = env.balance.Get(context.Background(), "C1", "201")
	assert.ErrorIs(t, err, balancedomain.ErrNotFound)
}

func TestExampleScenarioThroughLedger(t *testing.T) {
	env := newTestEnv(t, config.DefaultDepositPolicy())
	ctx := actorCtx()

	_, err := env.svc.CreateCaution(ctx, domain.CreateCautionRequest{SiteCode: "201", ClientCode: "C1", Amount: decimal.NewFromInt(500), Validated: true})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, env).Equal(decimal.NewFromInt(500)))

	cs, err := env.svc.CreateConsignation(ctx, domain.CreateConsignationRequest{SiteCode: "201", ClientCode: "C1", Pallets: 3})
	require.NoError(t, err)
	assert.Equal(t, "CS201250809-0001", cs.DocumentNumber)
	assert.Equal(t, domain.StatusNotValidated, cs.ValidationStatus)
	assert.True(t, balanceOf(t, env).Equal(decimal.NewFromInt(500)))

	validated, err := env.svc.Validate(ctx, seqdomain.KindConsignation, cs.DocumentNumber, "backoffice-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusValidated, validated.Status())
	assert.Equal(t, "backoffice-1", validated.Header().ValidatedBy)
	assert.True(t, balanceOf(t, env).Equal(decimal.NewFromInt(200)))

	_, err = env.svc.CreateRestitution(ctx, domain.CreateRestitutionRequest{SiteCode: "201", ClientCode: "C1", Amount: decimal.NewFromInt(150), Validated: true})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, env).Equal(decimal.NewFromInt(50)))

	total, err := env.balance.Recalculate(context.Background(), "C1", "201")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(50)))

	_, err = env.svc.Invalidate(ctx, seqdomain.KindConsignation, cs.DocumentNumber, "backoffice-1")
	require.NoError(t, err)
	assert.True(t, balanceOf(t, env).Equal(decimal.NewFromInt(350)))

	var actions []string
	require.NoError(t, env.db.Model(&auditdomain.AuditLog{}).Order("created_at, id").Pluck("action", &actions).Error)
	assert.Contains(t, actions, "consignation.validate")
	assert.Contains(t, actions, "consignation.invalidate")
}

func TestDeconsignationNeedsValidation(t *testing.T) {
	env := newTestEnv(t, config.DefaultDepositPolicy())
	ctx := actorCtx()

	d, err := env.svc.CreateDeconsignation(ctx, domain.CreateDeconsignationRequest{SiteCode: "201", ClientCode: "C1", Pallets: 2})
	require.NoError(t, err)
	assert.Equal(t, "DC201250809-0001", d.DocumentNumber)

	_, err = env.svc.Validate(ctx, seqdomain.KindDeconsignation, d.DocumentNumber, "backoffice-1")
	require.NoError(t, err)
	assert.True(t, balanceOf(t, env).Equal(decimal.NewFromInt(200)))
}

func TestCreateRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, config.DefaultDepositPolicy())
	ctx := actorCtx()

	_, err := env.svc.CreateCaution(ctx, domain.CreateCautionRequest{SiteCode: "201", ClientCode: "C1", Amount: decimal.Zero})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = env.svc.CreateConsignation(ctx, domain.CreateConsignationRequest{SiteCode: "201", ClientCode: "C1", Pallets: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidPallets)
	_, err = env.svc.CreateConsignation(ctx, domain.CreateConsignationRequest{SiteCode: "2-01", ClientCode: "C1", Pallets: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidSiteCode)
	_, err = env.svc.CreateRestitution(ctx, domain.CreateRestitutionRequest{SiteCode: "201", ClientCode: " ", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidClientCode)
	_, err = env.svc.CreateCaution(ctx, domain.CreateCautionRequest{SiteCode: "999", ClientCode: "C1", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrUnknownSite)
	_, err = env.svc.CreateCaution(ctx, domain.CreateCautionRequest{SiteCode: "201", ClientCode: "C404", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrUnknownClient)
}

func TestAmountsRoundingToZeroAreRejected(t *testing.T) {
	env := newTestEnv(t, config.DefaultDepositPolicy())
	ctx := actorCtx()
	subCent := decimal.RequireFromString("0.004")

	_, err := env.svc.CreateCaution(ctx, domain.CreateCautionRequest{SiteCode: "201", ClientCode: "C1", Amount: subCent, Validated: true})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = env.svc.CreateRestitution(ctx, domain.CreateRestitutionRequest{SiteCode: "201", ClientCode: "C1", Amount: subCent})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	c, err := env.svc.CreateCaution(ctx, domain.CreateCautionRequest{SiteCode: "201", ClientCode: "C1", Amount: decimal.RequireFromString("0.005")})
	require.NoError(t, err)
	assert.Equal(t, "0.01", c.Amount.StringFixed(2))

	_, err = env.svc.UpdateCaution(ctx, c.DocumentNumber, domain.UpdateRequest{Amount: &subCent})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	var count int64
	require.NoError(t, env.db.Model(&domain.Caution{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpdateCautionAmountRecomputesPallets(t *testing.T) {
	env := newTestEnv(t, config.DefaultDepositPolicy())
	ctx := actorCtx()

	c, err := env.svc.CreateCaution(ctx, domain.CreateCautionRequest{SiteCode: "201", ClientCode: "C1", Amount: decimal.NewFromInt(500), Validated: true})
	require.NoError(t, err)

	amount := decimal.RequireFromString("799.99")
	updated, err := env.svc.UpdateCaution(ctx, c.DocumentNumber, domain.UpdateRequest{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.PalletCount)
	assert.True(t, balanceOf(t, env).Equal(amount))

	notes := "deposit moved to dock 4"
	updated, err = env.svc.UpdateCaution(ctx, c.DocumentNumber, domain.UpdateRequest{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.PalletCount)
	assert.Equal(t, notes, updated.Notes)

	stored, err := env.svc.Get(context.Background(), seqdomain.KindCaution, c.DocumentNumber)
	require.NoError(t, err)
	caution := stored.(*domain.Caution)
	assert.Equal(t, 7, caution.PalletCount)
	assert.Equal(t, notes, caution.Notes)
}

func TestUpdateStatusTriggersRecompute(t *testing.T) {
	env := newTestEnv(t, config.DefaultDepositPolicy())
	ctx := actorCtx()

	r, err := env.svc.CreateCaution(ctx, domain.CreateCautionRequest{SiteCode: "201", ClientCode: "C1", Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)

	status := domain.StatusValidated
	_, err = env.svc.UpdateCaution(ctx, r.DocumentNumber, domain.UpdateRequest{Status: &status})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, env).Equal(decimal.NewFromInt(300)))
}

func TestUpdateRejectsFieldsOfOtherKinds(t *testing.T) {
	env := newTestEnv(t, config.DefaultDepositPolicy())
	ctx := actorCtx()

	cs, err := env.svc.CreateConsignation(ctx, domain.CreateConsignationRequest{SiteCode: "201", ClientCode: "C1", Pallets: 2})
	require.NoError(t, err)

	amount := decimal.NewFromInt(10)
	_, err = env.svc.UpdateConsignation(ctx, cs.DocumentNumber, domain.UpdateRequest{Amount: &amount})
	assert.ErrorIs(t, err, domain.ErrFieldNotApplicable)

	pallets := 0
	_, err = env.svc.UpdateConsignation(ctx, cs.DocumentNumber, domain.UpdateRequest{Pallets: &pallets})
	assert.ErrorIs(t, err, domain.ErrInvalidPallets)

	pallets = 4
	updated, err := env.svc.UpdateConsignation(ctx, cs.DocumentNumber, domain.UpdateRequest{Pallets: &pallets})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.PalletToConsign)

	_, err = env.svc.UpdateRestitution(ctx, "RC201250809-0042", domain.UpdateRequest{Amount: &amount})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	env := newTestEnv(t, config.DefaultDepositPolicy())

	// a counter that lags behind an already stored document
	require.NoError(t, env.db.Create(&seqdomain.Counter{
		Kind: seqdomain.KindCaution, SiteCode: "201", Period: "202508", UpdatedAt: env.clock.Now(),
	}).Error)
	require.NoError(t, env.db.Create(&domain.Caution{Document: domain.Document{
		DocumentNumber:   "CT201250809-0001",
		SiteCode:         "201",
		ClientCode:       "C1",
		ValidationStatus: domain.StatusNotValidated,
		CreatedAt:        env.clock.Now(),
		UpdatedAt:        env.clock.Now(),
	}, Amount: decimal.NewFromInt(100), PalletCount: 1}).Error)

	c, err := env.svc.CreateCaution(actorCtx(), domain.CreateCautionRequest{SiteCode: "201", ClientCode: "C1", Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)
	assert.Equal(t, "CT201250809-0002", c.DocumentNumber)
}

func TestCreateGivesUpAfterMaxAttempts(t *testing.T) {
	policy := config.DefaultDepositPolicy()
	policy.SequenceMaxAttempts = 2
	env := newTestEnv(t, policy)

	require.NoError(t, env.db.Create(&seqdomain.Counter{
		Kind: seqdomain.KindRestitution, SiteCode: "201", Period: "202508", UpdatedAt: env.clock.Now(),
	}).Error)
	for i := 1; i <= 2; i++ {
		require.NoError(t, env.db.Create(&domain.Restitution{Document: domain.Document{
			DocumentNumber:   fmt.Sprintf("RC201250809-%04d", i),
			SiteCode:         "201",
			ClientCode:       "C1",
			ValidationStatus: domain.StatusNotValidated,
			CreatedAt:        env.clock.Now(),
			UpdatedAt:        env.clock.Now(),
		}, Amount: decimal.NewFromInt(10)}).Error)
	}

	r, err := env.svc.CreateRestitution(actorCtx(), domain.CreateRestitutionRequest{SiteCode: "201", ClientCode: "C1", Amount: decimal.NewFromInt(10)})
	assert.Nil(t, r)
	assert.ErrorIs(t, err, domain.ErrSequenceCollision)
}

func TestValidateRequiresActor(t *testing.T) {
	env := newTestEnv(t, config.DefaultDepositPolicy())

	cs, err := env.svc.CreateConsignation(actorCtx(), domain.CreateConsignationRequest{SiteCode: "201", ClientCode: "C1", Pallets: 1})
	require.NoError(t, err)

	_, err = env.svc.Validate(context.Background(), seqdomain.KindConsignation, cs.DocumentNumber, "")
	assert.ErrorIs(t, err, domain.ErrInvalidActor)

	// falls back to the actor on the context
	rec, err := env.svc.Validate(actorCtx(), seqdomain.KindConsignation, cs.DocumentNumber, "")
	require.NoError(t, err)
	assert.Equal(t, "frontoffice-1", rec.Header().ValidatedBy)
}

func TestFindByClientSiteAndList(t *testing.T) {
	env := newTestEnv(t, config.DefaultDepositPolicy())
	ctx := actorCtx()

	for i := 0; i < 5; i++ {
		_, err := env.svc.CreateCaution(ctx, domain.CreateCautionRequest{
			SiteCode:   "201",
			ClientCode: "C1",
			Amount:     decimal.NewFromInt(int64(100 * (i + 1))),
			Validated:  i%2 == 0,
		})
		require.NoError(t, err)
		env.clock.Advance(time.Minute)
	}

	all, err := env.svc.FindByClientSite(context.Background(), seqdomain.KindCaution, "C1", "201", nil)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "CT201250809-0001", all[0].Key())

	validated := domain.StatusValidated
	only, err := env.svc.FindByClientSite(context.Background(), seqdomain.KindCaution, "C1", "201", &validated)
	require.NoError(t, err)
	assert.Len(t, only, 3)

	page, err := env.svc.List(context.Background(), seqdomain.KindCaution, domain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		ClientCode: "C1",
	})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "CT201250809-0005", page.Records[0].Key())

	next, err := env.svc.List(context.Background(), seqdomain.KindCaution, domain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken},
		ClientCode: "C1",
	})
	require.NoError(t, err)
	require.Len(t, next.Records, 2)
	assert.Equal(t, "CT201250809-0003", next.Records[0].Key())

	_, err = env.svc.Get(context.Background(), seqdomain.KindCaution, "CT201250809-0099")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.svc.Get(context.Background(), seqdomain.Kind("pallet"), "x")
	assert.ErrorIs(t, err, domain.ErrInvalidKind)
}
