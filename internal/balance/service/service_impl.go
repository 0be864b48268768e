package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/consigna/internal/balance/domain"
	"github.com/smallbiznis/consigna/internal/config"
	ledgerdomain "github.com/smallbiznis/consigna/internal/ledger/domain"
	"github.com/smallbiznis/consigna/internal/lock"
	obslogger "github.com/smallbiznis/consigna/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/consigna/internal/observability/metrics"
	"github.com/smallbiznis/consigna/internal/observability/tracing"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
	"github.com/smallbiznis/consigna/pkg/db"
	"github.com/smallbiznis/consigna/pkg/db/pagination"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       domain.Repository
	Locker     lock.Locker
	Policy     *config.DepositPolicyHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	locker     lock.Locker
	policy     *config.DepositPolicyHolder
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("balance.service"),
		repo:       p.Repo,
		locker:     p.Locker,
		policy:     p.Policy,
		obsMetrics: p.ObsMetrics,
	}
}

// source sums one ledger for a balance. Money sources return the amount, pallet
// sources the pallet count.
type source struct {
	kind   seqdomain.Kind
	column string
	money  bool
}

var sources = []source{
	{kind: seqdomain.KindCaution, column: "amount", money: true},
	{kind: seqdomain.KindConsignation, column: "pallet_to_consign"},
	{kind: seqdomain.KindDeconsignation, column: "pallet_deconsigned"},
	{kind: seqdomain.KindRestitution, column: "amount", money: true},
}

func (s *Service) Recalculate(ctx context.Context, clientCode, siteCode string) (decimal.Decimal, error) {
	clientCode, siteCode, err := normalizeKey(clientCode, siteCode)
	if err != nil {
		return decimal.Zero, err
	}

	unlock, err := s.Lock(ctx, clientCode, siteCode)
	if err != nil {
		return decimal.Zero, err
	}
	defer unlock()

	var total decimal.Decimal
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		total, txErr = s.RecalculateTx(ctx, tx, clientCode, siteCode)
		return txErr
	})
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Service) RecalculateTx(ctx context.Context, tx *gorm.DB, clientCode, siteCode string) (decimal.Decimal, error) {
	clientCode, siteCode, err := normalizeKey(clientCode, siteCode)
	if err != nil {
		return decimal.Zero, err
	}
	if tx == nil {
		tx = s.db
	}

	ctx, span := tracing.Tracer("balance").Start(ctx, "balance.recalculate")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("client_code", clientCode),
		attribute.String("site_code", siteCode),
	)...)

	trigger := domain.TriggerFromContext(ctx)
	breakdown, err := s.Compute(ctx, tx, clientCode, siteCode)
	if err != nil {
		s.obsMetrics.RecordRecalculation(ctx, trigger, "error")
		return decimal.Zero, err
	}
	span.SetAttributes(tracing.SafeAttributes(attribute.Int("balance.fallbacks", len(breakdown.Skipped())))...)

	row := &domain.Balance{
		ClientCode: clientCode,
		SiteCode:   siteCode,
		Balance:    breakdown.Total,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, tx, row); err != nil {
		s.obsMetrics.RecordRecalculation(ctx, trigger, "persistence_error")
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "persist balance")
		obslogger.WithBalanceKey(obslogger.WithContext(ctx, s.log), clientCode, siteCode).
			Error("failed to persist balance", zap.String("trigger", trigger), zap.Error(err))
		return decimal.Zero, &domain.PersistenceError{ClientCode: clientCode, SiteCode: siteCode, Err: err}
	}

	s.obsMetrics.RecordRecalculation(ctx, trigger, "ok")
	obslogger.WithBalanceKey(obslogger.WithContext(ctx, s.log), clientCode, siteCode).
		Debug("balance recalculated",
			zap.String("trigger", trigger),
			zap.String("balance", breakdown.Total.StringFixed(2)),
		)
	return breakdown.Total, nil
}

// Compute sums each ledger independently. A ledger that is disabled, absent or whose
// query fails contributes zero and is reported as not present; its failure is rolled
// back to a savepoint so the surrounding transaction stays usable.
func (s *Service) Compute(ctx context.Context, tx *gorm.DB, clientCode, siteCode string) (domain.Breakdown, error) {
	clientCode, siteCode, err := normalizeKey(clientCode, siteCode)
	if err != nil {
		return domain.Breakdown{}, err
	}
	if tx == nil {
		tx = s.db
	}
	tx = tx.WithContext(ctx)

	policy := s.policy.Get()
	log := obslogger.WithBalanceKey(obslogger.WithContext(ctx, s.log), clientCode, siteCode)

	sums := make(map[seqdomain.Kind]domain.Sum, len(sources))
	for _, src := range sources {
		sum := s.sum(ctx, tx, policy, src, clientCode, siteCode)
		if !sum.Present {
			log.Warn("ledger skipped in balance computation",
				zap.String("ledger", src.kind.Table()),
				zap.String("reason", sum.Reason),
			)
			s.obsMetrics.RecordSubLedgerFallback(ctx, src.kind.Table(), sum.Reason)
		}
		sums[src.kind] = sum
	}

	b := domain.Breakdown{
		Key:             domain.Key{ClientCode: clientCode, SiteCode: siteCode},
		Cautions:        sums[seqdomain.KindCaution],
		Consignations:   sums[seqdomain.KindConsignation],
		Deconsignations: sums[seqdomain.KindDeconsignation],
		Restitutions:    sums[seqdomain.KindRestitution],
	}
	b.Total = b.Cautions.Value.
		Sub(b.Consignations.Value).
		Add(b.Deconsignations.Value).
		Sub(b.Restitutions.Value)
	return b, nil
}

func (s *Service) sum(ctx context.Context, tx *gorm.DB, policy config.DepositPolicy, src source, clientCode, siteCode string) domain.Sum {
	table := src.kind.Table()
	if policy.LedgerDisabled(table) || policy.LedgerDisabled(string(src.kind)) {
		return domain.Sum{Value: decimal.Zero, Reason: domain.SkipDisabled}
	}
	if !tx.Migrator().HasTable(table) {
		return domain.Sum{Value: decimal.Zero, Reason: domain.SkipMissingTable}
	}

	var value decimal.Decimal
	err := tx.Transaction(func(sp *gorm.DB) error {
		if src.money {
			amount, err := s.repo.SumAmount(ctx, sp, table, clientCode, siteCode)
			value = amount
			return err
		}
		pallets, err := s.repo.SumPallets(ctx, sp, table, src.column, clientCode, siteCode)
		value = decimal.NewFromInt(pallets).Mul(ledgerdomain.PalletUnitValue)
		return err
	})
	if err != nil {
		reason := domain.SkipQueryError
		// the table can vanish between the schema check and the query
		if db.IsMissingTableErr(err) {
			reason = domain.SkipMissingTable
		}
		obslogger.WithContext(ctx, s.log).Warn("ledger sum failed",
			zap.String("ledger", table),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return domain.Sum{Value: decimal.Zero, Reason: reason}
	}
	return domain.Sum{Value: value, Present: true}
}

func (s *Service) GetBalance(ctx context.Context, clientCode, siteCode string) (decimal.Decimal, error) {
	b, err := s.Get(ctx, clientCode, siteCode)
	if errors.Is(err, domain.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return b.Balance, nil
}

func (s *Service) Get(ctx context.Context, clientCode, siteCode string) (domain.Balance, error) {
	clientCode, siteCode, err := normalizeKey(clientCode, siteCode)
	if err != nil {
		return domain.Balance{}, err
	}
	b, err := s.repo.Get(ctx, s.db, clientCode, siteCode)
	if err != nil {
		return domain.Balance{}, err
	}
	if b == nil {
		return domain.Balance{}, domain.ErrNotFound
	}
	return *b, nil
}

func (s *Service) List(ctx context.Context, req domain.ListBalancesRequest) (domain.ListBalancesResponse, error) {
	req.ClientCode = strings.TrimSpace(req.ClientCode)
	req.SiteCode = strings.TrimSpace(req.SiteCode)
	limit := pagination.Normalize(req.PageSize)

	rows, err := s.repo.List(ctx, s.db, req, limit)
	if err != nil {
		return domain.ListBalancesResponse{}, err
	}

	info := pagination.BuildCursorPageInfo(rows, limit, func(b *domain.Balance) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: b.ClientCode + "|" + b.SiteCode})
		return token
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]domain.Balance, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return domain.ListBalancesResponse{PageInfo: *info, Balances: out}, nil
}

func (s *Service) Lock(ctx context.Context, clientCode, siteCode string) (func(), error) {
	clientCode, siteCode, err := normalizeKey(clientCode, siteCode)
	if err != nil {
		return nil, err
	}
	policy := s.policy.Get()

	waitCtx, cancel := context.WithTimeout(ctx, policy.LockWait)
	defer cancel()

	start := time.Now()
	lease, err := s.locker.Obtain(waitCtx, lock.BalanceKey(clientCode, siteCode), policy.LockTTL)
	s.obsMetrics.ObserveLockWait(ctx, time.Since(start))
	if err != nil {
		if errors.Is(err, lock.ErrNotObtained) {
			return nil, errors.Join(domain.ErrLockTimeout, err)
		}
		return nil, err
	}

	releaseCtx := context.WithoutCancel(ctx)
	return func() {
		if err := lease.Release(releaseCtx); err != nil {
			obslogger.WithContext(ctx, s.log).Warn("failed to release balance lock",
				zap.String("client_code", clientCode),
				zap.String("site_code", siteCode),
				zap.Error(err),
			)
		}
	}, nil
}

func normalizeKey(clientCode, siteCode string) (string, string, error) {
	clientCode = strings.TrimSpace(clientCode)
	siteCode = strings.TrimSpace(siteCode)
	if clientCode == "" {
		return "", "", domain.ErrInvalidClientCode
	}
	if siteCode == "" {
		return "", "", domain.ErrInvalidSiteCode
	}
	return clientCode, siteCode, nil
}
