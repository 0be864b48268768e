package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/consigna/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	RoleFrontOffice = "front_office"
	RoleBackOffice  = "back_office"
	RoleAuditor     = "auditor"
	RoleSystem      = "system"
)

const (
	ObjectLedger    = "ledger"
	ObjectBalance   = "balance"
	ObjectAuditLog  = "audit_log"
	ObjectReconcile = "reconcile"
	ObjectReference = "reference"
)

const (
	ActionLedgerView       = "ledger.view"
	ActionLedgerCreate     = "ledger.create"
	ActionLedgerUpdate     = "ledger.update"
	ActionLedgerValidate   = "ledger.validate"
	ActionLedgerInvalidate = "ledger.invalidate"

	ActionBalanceView        = "balance.view"
	ActionBalanceExport      = "balance.export"
	ActionBalanceRecalculate = "balance.recalculate"

	ActionAuditLogView = "audit_log.view"

	ActionReconcileRun = "reconcile.run"

	ActionReferenceView   = "reference.view"
	ActionReferenceManage = "reference.manage"
)

var knownRoles = map[string]struct{}{
	RoleFrontOffice: {},
	RoleBackOffice:  {},
	RoleAuditor:     {},
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

// Authorize checks actor against the casbin policy. The role comes from the upstream
// gateway and replaces whatever role the actor was linked to before.
func (s *ServiceImpl) Authorize(ctx context.Context, actor string, role string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, err := resolveActor(actor, role)
	if err != nil {
		s.auditDenied(ctx, actor, role, object, action)
		return err
	}

	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("role", roleName),
			zap.String("action", action),
		)
		s.auditDenied(ctx, actor, role, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actor, role, object, action)
	}
	return nil
}

func resolveActor(actor string, role string) (string, string, error) {
	if actor == RoleSystem {
		return actor, "role:" + RoleSystem, nil
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if _, ok := knownRoles[role]; !ok {
		return "", "", ErrInvalidRole
	}
	return fmt.Sprintf("user:%s", actor), fmt.Sprintf("role:%s", role), nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor, role, object, action string) {
	s.audit(ctx, "authorization.denied", actor, role, object, action)
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actor, role, object, action string) {
	s.audit(ctx, "authorization.granted", actor, role, object, action)
}

func (s *ServiceImpl) audit(ctx context.Context, auditAction, actor, role, object, action string) {
	if s.auditSvc == nil {
		return
	}
	actorType := string(auditdomain.ActorTypeUser)
	if actor == RoleSystem {
		actorType = string(auditdomain.ActorTypeSystem)
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actorType, &actor, auditAction, "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"role":   role,
	})
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionReconcileRun, ActionBalanceRecalculate:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	view := [][]string{
		{ObjectLedger, ActionLedgerView},
		{ObjectBalance, ActionBalanceView},
		{ObjectBalance, ActionBalanceExport},
		{ObjectReference, ActionReferenceView},
	}

	var policies [][]string
	for _, role := range []string{RoleFrontOffice, RoleBackOffice, RoleAuditor, RoleSystem} {
		for _, p := range view {
			policies = append(policies, []string{"role:" + role, p[0], p[1]})
		}
	}
	policies = append(policies,
		// front office enters documents
		[]string{"role:front_office", ObjectLedger, ActionLedgerCreate},
		[]string{"role:front_office", ObjectLedger, ActionLedgerUpdate},

		// back office checks them
		[]string{"role:back_office", ObjectLedger, ActionLedgerCreate},
		[]string{"role:back_office", ObjectLedger, ActionLedgerUpdate},
		[]string{"role:back_office", ObjectLedger, ActionLedgerValidate},
		[]string{"role:back_office", ObjectLedger, ActionLedgerInvalidate},
		[]string{"role:back_office", ObjectBalance, ActionBalanceRecalculate},
		[]string{"role:back_office", ObjectReconcile, ActionReconcileRun},
		[]string{"role:back_office", ObjectAuditLog, ActionAuditLogView},
		[]string{"role:back_office", ObjectReference, ActionReferenceManage},

		[]string{"role:auditor", ObjectAuditLog, ActionAuditLogView},

		// background jobs
		[]string{"role:system", ObjectBalance, ActionBalanceRecalculate},
		[]string{"role:system", ObjectReconcile, ActionReconcileRun},
	)

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
