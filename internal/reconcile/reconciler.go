package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/consigna/internal/audit/domain"
	"github.com/smallbiznis/consigna/internal/authorization"
	balancedomain "github.com/smallbiznis/consigna/internal/balance/domain"
	"github.com/smallbiznis/consigna/internal/clock"
	"github.com/smallbiznis/consigna/internal/config"
	obscontext "github.com/smallbiznis/consigna/internal/observability/context"
	obsmetrics "github.com/smallbiznis/consigna/internal/observability/metrics"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const jobName = "balance_reconcile"

var ErrInvalidConfig = errors.New("invalid_reconciler_config")

// Report summarizes one reconciliation pass.
type Report struct {
	RunID     string        `json:"run_id"`
	Processed int           `json:"processed"`
	Drifted   int           `json:"drifted"`
	Failed    int           `json:"failed"`
	Drifts    []Drift       `json:"drifts,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Drift is a stored balance that did not match the ledgers.
type Drift struct {
	ClientCode string          `json:"client_code"`
	SiteCode   string          `json:"site_code"`
	Stored     decimal.Decimal `json:"stored"`
	Computed   decimal.Decimal `json:"computed"`
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Balance    balancedomain.Service
	Repo       balancedomain.Repository
	Policy     *config.DepositPolicyHolder
	AuditSvc   auditdomain.Service
	AuthzSvc   authorization.Service `optional:"true"`
	GenID      *snowflake.Node
	Clock      clock.Clock           `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

type Reconciler struct {
	db         *gorm.DB
	log        *zap.Logger
	balance    balancedomain.Service
	repo       balancedomain.Repository
	policy     *config.DepositPolicyHolder
	auditSvc   auditdomain.Service
	authzSvc   authorization.Service
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
	jobs       *obsmetrics.JobMetrics
}

func New(p Params) (*Reconciler, error) {
	if p.DB == nil || p.Log == nil || p.Balance == nil || p.Repo == nil || p.Policy == nil || p.AuditSvc == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Reconciler{
		db:         p.DB,
		log:        p.Log.Named("reconcile").With(zap.String("component", "reconciler")),
		balance:    p.Balance,
		repo:       p.Repo,
		policy:     p.Policy,
		auditSvc:   p.AuditSvc,
		authzSvc:   p.AuthzSvc,
		genID:      p.GenID,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
		jobs:       obsmetrics.Jobs(),
	}, nil
}

// RunOnce recalculates every (client, site) pair found in the ledgers or the balance
// table. A failing pair is counted and logged; the pass goes on with the next one.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	start := r.clock.Now()
	ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "reconciler")
	ctx = balancedomain.WithTrigger(ctx, balancedomain.TriggerReconcile)
	run := &jobRun{job: jobName, runID: r.genID.Generate().String(), startedAt: start}
	report := Report{RunID: run.runID}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if r.authzSvc != nil {
		if err := r.authzSvc.Authorize(ctx, authorization.RoleSystem, "", authorization.ObjectReconcile, authorization.ActionReconcileRun); err != nil {
			return report, err
		}
	}

	r.logJobStart(ctx, run)
	r.jobs.IncRun(jobName)

	keys, err := r.repo.Keys(ctx, r.db, r.tables(ctx))
	if err != nil {
		r.jobs.IncError(jobName, err)
		r.logJobError(ctx, run, "failed to list balance keys", err)
		r.logJobFinish(ctx, run)
		return report, err
	}

	batch := r.policy.Get().ReconcileBatchSize
	if batch <= 0 {
		batch = len(keys)
	}
	var jobErr error
	for i, key := range keys {
		if i > 0 && batch > 0 && i%batch == 0 {
			r.log.Debug("reconcile batch done", zap.String("run_id", run.runID), zap.Int("done", i))
		}
		if err := ctx.Err(); err != nil {
			jobErr = errors.Join(jobErr, err)
			break
		}

		drift, err := r.reconcileKey(ctx, key)
		report.Processed++
		if err != nil {
			report.Failed++
			jobErr = errors.Join(jobErr, err)
			r.jobs.IncError(jobName, err)
			r.logJobError(ctx, run, "balance reconcile failed", err,
				zap.String("client_code", key.ClientCode),
				zap.String("site_code", key.SiteCode),
			)
			continue
		}
		if drift != nil {
			report.Drifted++
			report.Drifts = append(report.Drifts, *drift)
			r.log.Warn("balance drift corrected",
				zap.String("run_id", run.runID),
				zap.String("client_code", drift.ClientCode),
				zap.String("site_code", drift.SiteCode),
				zap.String("stored", drift.Stored.StringFixed(2)),
				zap.String("computed", drift.Computed.StringFixed(2)),
			)
		}
	}

	report.Duration = r.clock.Now().Sub(start)
	run.processedCount = report.Processed
	run.errorCount = report.Failed
	r.jobs.AddProcessed(jobName, report.Processed)
	r.jobs.AddDrifted(jobName, report.Drifted)
	r.jobs.ObserveDuration(jobName, report.Duration)
	r.obsMetrics.RecordBalanceDrift(ctx, report.Drifted)
	r.logJobFinish(ctx, run)

	targetID := run.runID
	if err := r.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeSystem), nil, "balance.reconcile", "balance", &targetID, map[string]any{
		"processed": report.Processed,
		"drifted":   report.Drifted,
		"failed":    report.Failed,
	}); err != nil {
		jobErr = errors.Join(jobErr, err)
	}

	return report, jobErr
}

func (r *Reconciler) reconcileKey(ctx context.Context, key balancedomain.Key) (*Drift, error) {
	stored, err := r.repo.Get(ctx, r.db, key.ClientCode, key.SiteCode)
	if err != nil {
		return nil, err
	}
	computed, err := r.balance.Recalculate(ctx, key.ClientCode, key.SiteCode)
	if err != nil {
		return nil, err
	}

	previous := decimal.Zero
	if stored != nil {
		previous = stored.Balance
	}
	if previous.Equal(computed) {
		return nil, nil
	}
	return &Drift{
		ClientCode: key.ClientCode,
		SiteCode:   key.SiteCode,
		Stored:     previous,
		Computed:   computed,
	}, nil
}

// tables lists the ledgers present in the schema plus the balance table.
func (r *Reconciler) tables(ctx context.Context) []string {
	migrator := r.db.WithContext(ctx).Migrator()
	tables := make([]string, 0, len(seqdomain.Kinds())+1)
	for _, kind := range seqdomain.Kinds() {
		if migrator.HasTable(kind.Table()) {
			tables = append(tables, kind.Table())
		}
	}
	if migrator.HasTable(balancedomain.Balance{}.TableName()) {
		tables = append(tables, balancedomain.Balance{}.TableName())
	}
	return tables
}

// RunForever reconciles on the policy interval until ctx is cancelled. The interval is
// read before each wait so a reloaded policy applies from the next tick.
func (r *Reconciler) RunForever(ctx context.Context) {
	for {
		policy := r.policy.Get()
		if policy.ReconcileEnabled {
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Warn("reconcile run failed", zap.Error(err))
			}
		}

		interval := policy.ReconcileInterval
		if interval <= 0 {
			interval = config.DefaultDepositPolicy().ReconcileInterval
		}
		nextRun := time.Now().Add(interval)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if lag := time.Since(nextRun); lag > 0 {
			r.jobs.ObserveRunLoopLag(lag)
		}
	}
}
