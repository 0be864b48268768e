package authorization

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/consigna/internal/audit/domain"
	auditrepo "github.com/smallbiznis/consigna/internal/audit/repository"
	auditsvc "github.com/smallbiznis/consigna/internal/audit/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	audit := auditsvc.NewService(auditsvc.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
	})

	return NewService(Params{DB: db, Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: audit}), db
}

func TestAuthorizeRoleSeparation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		role    string
		object  string
		action  string
		allowed bool
	}{
		{RoleFrontOffice, ObjectLedger, ActionLedgerCreate, true},
		{RoleFrontOffice, ObjectLedger, ActionLedgerView, true},
		{RoleFrontOffice, ObjectLedger, ActionLedgerValidate, false},
		{RoleFrontOffice, ObjectReconcile, ActionReconcileRun, false},
		{RoleBackOffice, ObjectLedger, ActionLedgerValidate, true},
		{RoleBackOffice, ObjectLedger, ActionLedgerInvalidate, true},
		{RoleBackOffice, ObjectBalance, ActionBalanceRecalculate, true},
		{RoleBackOffice, ObjectAuditLog, ActionAuditLogView, true},
		{RoleAuditor, ObjectBalance, ActionBalanceView, true},
		{RoleAuditor, ObjectAuditLog, ActionAuditLogView, true},
		{RoleAuditor, ObjectLedger, ActionLedgerCreate, false},
	}
	for _, tc := range cases {
		t.Run(tc.role+"/"+tc.action, func(t *testing.T) {
			err := svc.Authorize(ctx, "agent-7", tc.role, tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestAuthorizeFollowsRoleChanges(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, "agent-7", RoleBackOffice, ObjectLedger, ActionLedgerValidate))
	assert.ErrorIs(t, svc.Authorize(ctx, "agent-7", RoleFrontOffice, ObjectLedger, ActionLedgerValidate), ErrForbidden)
}

func TestAuthorizeSystemActor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, RoleSystem, "", ObjectReconcile, ActionReconcileRun))
	assert.ErrorIs(t, svc.Authorize(ctx, RoleSystem, "", ObjectLedger, ActionLedgerValidate), ErrForbidden)
}

func TestAuthorizeRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, " ", RoleAuditor, ObjectLedger, ActionLedgerView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "agent-7", "owner", ObjectLedger, ActionLedgerView), ErrInvalidRole)
	assert.ErrorIs(t, svc.Authorize(ctx, "agent-7", RoleAuditor, "", ActionLedgerView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "agent-7", RoleAuditor, ObjectLedger, ""), ErrInvalidAction)
}

func TestAuthorizeAuditsDecisions(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_ = svc.Authorize(ctx, "agent-7", RoleAuditor, ObjectLedger, ActionLedgerCreate)
	require.NoError(t, svc.Authorize(ctx, "agent-8", RoleBackOffice, ObjectReconcile, ActionReconcileRun))
	require.NoError(t, svc.Authorize(ctx, "agent-8", RoleBackOffice, ObjectLedger, ActionLedgerView))

	var actions []string
	require.NoError(t, db.Model(&auditdomain.AuditLog{}).Order("id asc").Pluck("action", &actions).Error)
	assert.Equal(t, []string{"authorization.denied", "authorization.granted"}, actions)
}
