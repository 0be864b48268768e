package service

import (
	"context"
	"fmt"
	"strings"

	balancedomain "github.com/smallbiznis/consigna/internal/balance/domain"
	"github.com/smallbiznis/consigna/internal/clock"
	ledgerdomain "github.com/smallbiznis/consigna/internal/ledger/domain"
	obslogger "github.com/smallbiznis/consigna/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/consigna/internal/observability/metrics"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
	"github.com/smallbiznis/consigna/internal/validation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Balance    balancedomain.Service
	LedgerRepo ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	balance    balancedomain.Service
	ledgerRepo ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Coordinator {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("validation.service"),
		clock:      clk,
		balance:    p.Balance,
		ledgerRepo: p.LedgerRepo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) OnCreate(ctx context.Context, tx *gorm.DB, record ledgerdomain.Record) error {
	if record == nil {
		return domain.ErrNilRecord
	}
	switch record.Kind() {
	case seqdomain.KindCaution, seqdomain.KindRestitution:
	default:
		// pallet movements only move the balance through a status transition
		return nil
	}
	if record.Status() != ledgerdomain.StatusValidated {
		return nil
	}
	return s.recompute(balancedomain.WithTrigger(ctx, balancedomain.TriggerCreate), tx, record)
}

func (s *Service) OnUpdate(ctx context.Context, tx *gorm.DB, record ledgerdomain.Record, previous ledgerdomain.ValidationStatus) error {
	if record == nil {
		return domain.ErrNilRecord
	}
	current := record.Status()
	if current == previous && current != ledgerdomain.StatusValidated {
		return nil
	}
	trigger := balancedomain.TriggerFromContext(ctx)
	if trigger == balancedomain.TriggerManual {
		trigger = balancedomain.TriggerUpdate
	}
	return s.recompute(balancedomain.WithTrigger(ctx, trigger), tx, record)
}

func (s *Service) Transition(ctx context.Context, tx *gorm.DB, record ledgerdomain.Record, target ledgerdomain.ValidationStatus, actor string) error {
	if record == nil {
		return domain.ErrNilRecord
	}
	if !target.Valid() {
		return ledgerdomain.ErrInvalidStatus
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ledgerdomain.ErrInvalidActor
	}

	if tx != nil {
		return s.transition(ctx, tx, record, target, actor)
	}

	client, site := record.BalanceKey()
	unlock, err := s.balance.Lock(ctx, client, site)
	if err != nil {
		return err
	}
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.transition(ctx, tx, record, target, actor)
	})
}

func (s *Service) transition(ctx context.Context, tx *gorm.DB, record ledgerdomain.Record, target ledgerdomain.ValidationStatus, actor string) error {
	previous := record.Status()
	snapshot := *record.Header()

	record.SetStatus(target, actor, s.clock.Now())
	header := record.Header()
	values := map[string]any{
		"validation_status": header.ValidationStatus,
		"validated_at":      header.ValidatedAt,
		"validated_by":      header.ValidatedBy,
		"updated_at":        header.UpdatedAt,
	}
	if err := s.ledgerRepo.Update(ctx, tx, record, values); err != nil {
		*record.Header() = snapshot
		return fmt.Errorf("persist %s status: %w", record.Kind(), err)
	}

	s.obsMetrics.RecordTransition(ctx, string(record.Kind()), previous.String(), target.String())
	obslogger.WithContext(ctx, s.log).Info("validation status changed",
		zap.String("kind", string(record.Kind())),
		zap.String("document_number", record.Key()),
		zap.String("from", previous.String()),
		zap.String("to", target.String()),
	)

	if err := s.OnUpdate(balancedomain.WithTrigger(ctx, balancedomain.TriggerTransition), tx, record, previous); err != nil {
		*record.Header() = snapshot
		return err
	}
	return nil
}

func (s *Service) recompute(ctx context.Context, tx *gorm.DB, record ledgerdomain.Record) error {
	client, site := record.BalanceKey()
	log := obslogger.WithBalanceKey(obslogger.WithContext(ctx, s.log), client, site).With(
		zap.String("kind", string(record.Kind())),
		zap.String("document_number", record.Key()),
		zap.String("trigger", balancedomain.TriggerFromContext(ctx)),
	)

	if tx != nil {
		if _, err := s.balance.RecalculateTx(ctx, tx, client, site); err != nil {
			log.Error("balance recompute failed, rolling back write", zap.Error(err))
			return err
		}
		return nil
	}

	if _, err := s.balance.Recalculate(ctx, client, site); err != nil {
		log.Error("balance recompute failed after committed write", zap.Error(err))
		return err
	}
	return nil
}
