package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/consigna/internal/config"
	obslogger "github.com/smallbiznis/consigna/internal/observability/logger"
	"github.com/smallbiznis/consigna/internal/sequence/domain"
	"github.com/smallbiznis/consigna/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Seeding races are settled by the counter's primary key; the loser retries the
// increment path a bounded number of times.
const maxReserveAttempts = 3

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Cfg  config.Config
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	loc  *time.Location
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("sequence.service"),
		loc:  p.Cfg.Location(),
		repo: p.Repo,
	}
}

func (s *Service) Next(ctx context.Context, kind domain.Kind, siteCode string, at time.Time) (domain.DocumentNumber, error) {
	siteCode = strings.TrimSpace(siteCode)
	if err := validateScope(kind, siteCode); err != nil {
		return domain.DocumentNumber{}, err
	}
	local := at.In(s.loc)
	period := domain.Period(local)

	var value int
	var err error
	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var reserveErr error
			value, reserveErr = s.reserve(ctx, tx, kind, siteCode, local)
			return reserveErr
		})
		if err == nil || !db.IsDuplicateKeyErr(err) {
			break
		}
		s.log.Debug("sequence seed lost race, retrying",
			zap.String("kind", string(kind)),
			zap.String("site_code", siteCode),
			zap.String("period", period),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.DocumentNumber{}, fmt.Errorf("%w: %s/%s/%s", domain.ErrSequenceContended, kind, siteCode, period)
		}
		return domain.DocumentNumber{}, err
	}

	return domain.DocumentNumber{
		Kind:     kind,
		SiteCode: siteCode,
		Date:     time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc),
		Seq:      value,
	}, nil
}

func (s *Service) reserve(ctx context.Context, tx *gorm.DB, kind domain.Kind, siteCode string, local time.Time) (int, error) {
	period := domain.Period(local)
	now := time.Now().UTC()

	found, err := s.repo.Increment(ctx, tx, kind, siteCode, period, now)
	if err != nil {
		return 0, fmt.Errorf("increment sequence: %w", err)
	}

	var value int
	if found {
		counter, err := s.repo.Get(ctx, tx, kind, siteCode, period)
		if err != nil {
			return 0, fmt.Errorf("read sequence: %w", err)
		}
		if counter == nil {
			return 0, fmt.Errorf("read sequence: counter %s/%s/%s vanished", kind, siteCode, period)
		}
		value = counter.LastValue
	} else {
		seed, err := s.legacyMax(ctx, tx, kind, siteCode, local)
		if err != nil {
			return 0, err
		}
		value = seed + 1
		if err := s.repo.Insert(ctx, tx, &domain.Counter{
			Kind:      kind,
			SiteCode:  siteCode,
			Period:    period,
			LastValue: value,
			UpdatedAt: now,
		}); err != nil {
			return 0, fmt.Errorf("seed sequence: %w", err)
		}
	}

	if value > domain.MaxSequence {
		return 0, fmt.Errorf("%w: %s/%s/%s", domain.ErrSequenceExhausted, kind, siteCode, period)
	}
	return value, nil
}

// legacyMax returns the highest well-formed sequence already stored for the scope.
// Numbers that do not parse, or that belong to another kind, site or month, are
// quarantined: logged and left out so they can neither reset nor inflate the counter.
func (s *Service) legacyMax(ctx context.Context, tx *gorm.DB, kind domain.Kind, siteCode string, local time.Time) (int, error) {
	if !tx.Migrator().HasTable(kind.Table()) {
		return 0, nil
	}
	from, to := domain.MonthBounds(local)
	periodPrefix := kind.Prefix() + siteCode + local.Format("0601")

	numbers, err := s.repo.LegacyNumbers(ctx, tx, kind, siteCode, periodPrefix, from, to)
	if err != nil {
		return 0, fmt.Errorf("scan legacy numbers: %w", err)
	}

	period := domain.Period(local)
	log := obslogger.WithContext(ctx, s.log)
	highest := 0
	for _, number := range numbers {
		parsed, err := domain.ParseFor(kind, siteCode, number)
		if err == nil && parsed.Period() != period {
			err = fmt.Errorf("%w: %q dated outside %s", domain.ErrMalformedNumber, number, period)
		}
		if err != nil {
			log.Warn("quarantined document number",
				zap.String("kind", string(kind)),
				zap.String("site_code", siteCode),
				zap.String("period", period),
				zap.String("document_number", number),
				zap.Error(err),
			)
			continue
		}
		if parsed.Seq > highest {
			highest = parsed.Seq
		}
	}
	if highest > 0 {
		log.Info("sequence seeded from existing documents",
			zap.String("kind", string(kind)),
			zap.String("site_code", siteCode),
			zap.String("period", period),
			zap.Int("last_value", highest),
		)
	}
	return highest, nil
}

func (s *Service) Peek(ctx context.Context, kind domain.Kind, siteCode string, at time.Time) (int, error) {
	siteCode = strings.TrimSpace(siteCode)
	if err := validateScope(kind, siteCode); err != nil {
		return 0, err
	}
	counter, err := s.repo.Get(ctx, s.db, kind, siteCode, domain.Period(at.In(s.loc)))
	if err != nil {
		return 0, err
	}
	if counter == nil {
		return 0, nil
	}
	return counter.LastValue, nil
}

func validateScope(kind domain.Kind, siteCode string) error {
	if !kind.Valid() {
		return domain.ErrInvalidKind
	}
	if !domain.ValidSiteCode(siteCode) {
		return domain.ErrInvalidSiteCode
	}
	return nil
}

