package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/consigna/internal/audit/domain"
	balancedomain "github.com/smallbiznis/consigna/internal/balance/domain"
	"github.com/smallbiznis/consigna/internal/clock"
	"github.com/smallbiznis/consigna/internal/config"
	"github.com/smallbiznis/consigna/internal/ledger/domain"
	obscontext "github.com/smallbiznis/consigna/internal/observability/context"
	obslogger "github.com/smallbiznis/consigna/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/consigna/internal/observability/metrics"
	"github.com/smallbiznis/consigna/internal/observability/tracing"
	refdomain "github.com/smallbiznis/consigna/internal/reference/domain"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
	validationdomain "github.com/smallbiznis/consigna/internal/validation/domain"
	"github.com/smallbiznis/consigna/pkg/db"
	"github.com/smallbiznis/consigna/pkg/db/option"
	"github.com/smallbiznis/consigna/pkg/db/pagination"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const systemActor = "system"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Policy      *config.DepositPolicyHolder
	Repo        domain.Repository
	Sequence    seqdomain.Service
	Balance     balancedomain.Service
	Coordinator validationdomain.Coordinator
	Reference   refdomain.Service
	Audit       auditdomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	policy      *config.DepositPolicyHolder
	repo        domain.Repository
	sequence    seqdomain.Service
	balance     balancedomain.Service
	coordinator validationdomain.Coordinator
	reference   refdomain.Service
	audit       auditdomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		clock:       clk,
		policy:      p.Policy,
		repo:        p.Repo,
		sequence:    p.Sequence,
		balance:     p.Balance,
		coordinator: p.Coordinator,
		reference:   p.Reference,
		audit:       p.Audit,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) CreateCaution(ctx context.Context, req domain.CreateCautionRequest) (*domain.Caution, error) {
	amount, err := roundAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	header, err := newHeader(req.ClientCode, req.SiteCode, req.Notes)
	if err != nil {
		return nil, err
	}
	record := &domain.Caution{Document: header}
	record.SetAmount(amount)

	if err := s.create(ctx, record, req.Validated, map[string]any{
		"amount":       record.Amount.StringFixed(2),
		"pallet_count": record.PalletCount,
	}); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) CreateConsignation(ctx context.Context, req domain.CreateConsignationRequest) (*domain.Consignation, error) {
	if req.Pallets <= 0 {
		return nil, domain.ErrInvalidPallets
	}
	header, err := newHeader(req.ClientCode, req.SiteCode, req.Notes)
	if err != nil {
		return nil, err
	}
	record := &domain.Consignation{Document: header, PalletToConsign: req.Pallets}

	if err := s.create(ctx, record, false, map[string]any{"pallets": req.Pallets}); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) CreateDeconsignation(ctx context.Context, req domain.CreateDeconsignationRequest) (*domain.Deconsignation, error) {
	if req.Pallets <= 0 {
		return nil, domain.ErrInvalidPallets
	}
	header, err := newHeader(req.ClientCode, req.SiteCode, req.Notes)
	if err != nil {
		return nil, err
	}
	record := &domain.Deconsignation{Document: header, PalletDeconsigned: req.Pallets}

	if err := s.create(ctx, record, false, map[string]any{"pallets": req.Pallets}); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) CreateRestitution(ctx context.Context, req domain.CreateRestitutionRequest) (*domain.Restitution, error) {
	amount, err := roundAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	header, err := newHeader(req.ClientCode, req.SiteCode, req.Notes)
	if err != nil {
		return nil, err
	}
	record := &domain.Restitution{Document: header, Amount: amount}

	if err := s.create(ctx, record, req.Validated, map[string]any{
		"amount": record.Amount.StringFixed(2),
	}); err != nil {
		return nil, err
	}
	return record, nil
}

func newHeader(clientCode, siteCode, notes string) (domain.Document, error) {
	clientCode = strings.TrimSpace(clientCode)
	siteCode = strings.TrimSpace(siteCode)
	if !seqdomain.ValidSiteCode(siteCode) {
		return domain.Document{}, domain.ErrInvalidSiteCode
	}
	if clientCode == "" || len(clientCode) > 32 {
		return domain.Document{}, domain.ErrInvalidClientCode
	}
	return domain.Document{
		SiteCode:         siteCode,
		ClientCode:       clientCode,
		ValidationStatus: domain.StatusNotValidated,
		Notes:            strings.TrimSpace(notes),
	}, nil
}

// create numbers and inserts record under the balance lock. The number is reserved in
// its own transaction; an insert that collides with an existing document is retried
// with a fresh number.
func (s *Service) create(ctx context.Context, record domain.Record, validated bool, metadata map[string]any) error {
	kind := record.Kind()
	clientCode, siteCode := record.BalanceKey()

	ctx, span := tracing.Tracer("ledger").Start(ctx, "ledger.create")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("ledger.kind", string(kind)),
		attribute.String("client_code", clientCode),
		attribute.String("site_code", siteCode),
	)...)

	if err := s.checkReferences(ctx, clientCode, siteCode); err != nil {
		return err
	}

	unlock, err := s.balance.Lock(ctx, clientCode, siteCode)
	if err != nil {
		return err
	}
	defer unlock()

	actor := actorFromContext(ctx)
	header := record.Header()
	header.CreatedBy = actor

	log := obslogger.WithBalanceKey(obslogger.WithContext(ctx, s.log), clientCode, siteCode).
		With(zap.String("kind", string(kind)))
	attempts := s.policy.Get().SequenceMaxAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		now := s.clock.Now()
		number, err := s.sequence.Next(ctx, kind, siteCode, now)
		if err != nil {
			return err
		}

		header.DocumentNumber = number.String()
		header.CreatedAt = now
		header.UpdatedAt = now
		if validated {
			record.SetStatus(domain.StatusValidated, actor, now)
		} else {
			record.SetStatus(domain.StatusNotValidated, "", now)
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.Insert(ctx, tx, record); err != nil {
				return err
			}
			if err := s.auditTx(ctx, tx, record, "create", metadata); err != nil {
				return err
			}
			return s.coordinator.OnCreate(ctx, tx, record)
		})
		if err == nil {
			s.obsMetrics.RecordDocument(ctx, string(kind))
			log.Info("document created",
				zap.String("document_number", header.DocumentNumber),
				zap.String("status", header.ValidationStatus.String()),
			)
			return nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return fmt.Errorf("create %s: %w", kind, err)
		}

		s.obsMetrics.RecordSequenceCollision(ctx, string(kind))
		log.Warn("document number collision, retrying",
			zap.String("document_number", header.DocumentNumber),
			zap.Int("attempt", attempt),
		)
	}

	header.DocumentNumber = ""
	return domain.ErrSequenceCollision
}

func (s *Service) checkReferences(ctx context.Context, clientCode, siteCode string) error {
	if _, err := s.reference.FindSite(ctx, siteCode); err != nil {
		if errors.Is(err, refdomain.ErrSiteNotFound) {
			return domain.ErrUnknownSite
		}
		return err
	}
	if _, err := s.reference.FindClient(ctx, clientCode); err != nil {
		if errors.Is(err, refdomain.ErrClientNotFound) {
			return domain.ErrUnknownClient
		}
		return err
	}
	return nil
}

func (s *Service) UpdateCaution(ctx context.Context, number string, req domain.UpdateRequest) (*domain.Caution, error) {
	record, err := s.update(ctx, seqdomain.KindCaution, number, req)
	if err != nil {
		return nil, err
	}
	return record.(*domain.Caution), nil
}

func (s *Service) UpdateConsignation(ctx context.Context, number string, req domain.UpdateRequest) (*domain.Consignation, error) {
	record, err := s.update(ctx, seqdomain.KindConsignation, number, req)
	if err != nil {
		return nil, err
	}
	return record.(*domain.Consignation), nil
}

func (s *Service) UpdateDeconsignation(ctx context.Context, number string, req domain.UpdateRequest) (*domain.Deconsignation, error) {
	record, err := s.update(ctx, seqdomain.KindDeconsignation, number, req)
	if err != nil {
		return nil, err
	}
	return record.(*domain.Deconsignation), nil
}

func (s *Service) UpdateRestitution(ctx context.Context, number string, req domain.UpdateRequest) (*domain.Restitution, error) {
	record, err := s.update(ctx, seqdomain.KindRestitution, number, req)
	if err != nil {
		return nil, err
	}
	return record.(*domain.Restitution), nil
}

// roundAmount rounds to cents; an amount that rounds to zero is rejected.
func roundAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	rounded := amount.Round(2)
	if !rounded.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	return rounded, nil
}

func validateUpdate(kind seqdomain.Kind, req domain.UpdateRequest) error {
	moneyKind := kind == seqdomain.KindCaution || kind == seqdomain.KindRestitution
	if req.Amount != nil {
		if !moneyKind {
			return fmt.Errorf("%w: amount", domain.ErrFieldNotApplicable)
		}
		if _, err := roundAmount(*req.Amount); err != nil {
			return err
		}
	}
	if req.Pallets != nil {
		if moneyKind {
			return fmt.Errorf("%w: pallets", domain.ErrFieldNotApplicable)
		}
		if *req.Pallets <= 0 {
			return domain.ErrInvalidPallets
		}
	}
	if req.Status != nil && !req.Status.Valid() {
		return domain.ErrInvalidStatus
	}
	return nil
}

func (s *Service) update(ctx context.Context, kind seqdomain.Kind, number string, req domain.UpdateRequest) (domain.Record, error) {
	if err := validateUpdate(kind, req); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, kind, number)
	if err != nil {
		return nil, err
	}

	clientCode, siteCode := current.BalanceKey()
	unlock, err := s.balance.Lock(ctx, clientCode, siteCode)
	if err != nil {
		return nil, err
	}
	defer unlock()

	actor := actorFromContext(ctx)
	ctx = balancedomain.WithTrigger(ctx, balancedomain.TriggerUpdate)

	var updated domain.Record
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindByNumber(ctx, tx, kind, current.Key(), option.ForUpdate())
		if err != nil {
			return err
		}
		if record == nil {
			return domain.ErrNotFound
		}

		previous := record.Status()
		now := s.clock.Now()
		values, changes := applyUpdate(record, req)
		if req.Status != nil && *req.Status != previous {
			record.SetStatus(*req.Status, actor, now)
			header := record.Header()
			values["validation_status"] = header.ValidationStatus
			values["validated_at"] = header.ValidatedAt
			values["validated_by"] = header.ValidatedBy
			changes["status"] = header.ValidationStatus.String()
		}
		if len(values) == 0 && req.Status == nil {
			updated = record
			return nil
		}
		record.Header().UpdatedAt = now
		values["updated_at"] = now

		if err := s.repo.Update(ctx, tx, record, values); err != nil {
			return err
		}
		if err := s.auditTx(ctx, tx, record, "update", changes); err != nil {
			return err
		}
		if err := s.coordinator.OnUpdate(ctx, tx, record, previous); err != nil {
			return err
		}
		updated = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// applyUpdate mutates record with the requested field changes and returns the column
// values to persist together with an audit summary.
func applyUpdate(record domain.Record, req domain.UpdateRequest) (map[string]any, map[string]any) {
	values := map[string]any{}
	changes := map[string]any{}

	switch r := record.(type) {
	case *domain.Caution:
		if req.Amount != nil {
			r.SetAmount(req.Amount.Round(2))
			values["amount"] = r.Amount
			values["pallet_count"] = r.PalletCount
			changes["amount"] = r.Amount.StringFixed(2)
		}
	case *domain.Restitution:
		if req.Amount != nil {
			r.Amount = req.Amount.Round(2)
			values["amount"] = r.Amount
			changes["amount"] = r.Amount.StringFixed(2)
		}
	case *domain.Consignation:
		if req.Pallets != nil {
			r.PalletToConsign = *req.Pallets
			values["pallet_to_consign"] = r.PalletToConsign
			changes["pallets"] = r.PalletToConsign
		}
	case *domain.Deconsignation:
		if req.Pallets != nil {
			r.PalletDeconsigned = *req.Pallets
			values["pallet_deconsigned"] = r.PalletDeconsigned
			changes["pallets"] = r.PalletDeconsigned
		}
	}

	if req.Notes != nil {
		notes := strings.TrimSpace(*req.Notes)
		record.Header().Notes = notes
		values["notes"] = notes
		changes["notes"] = true
	}
	return values, changes
}

func (s *Service) Validate(ctx context.Context, kind seqdomain.Kind, number, actor string) (domain.Record, error) {
	return s.transition(ctx, kind, number, domain.StatusValidated, actor)
}

func (s *Service) Invalidate(ctx context.Context, kind seqdomain.Kind, number, actor string) (domain.Record, error) {
	return s.transition(ctx, kind, number, domain.StatusNotValidated, actor)
}

func (s *Service) transition(ctx context.Context, kind seqdomain.Kind, number string, target domain.ValidationStatus, actor string) (domain.Record, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		_, actor = obscontext.ActorFromContext(ctx)
	}
	if actor == "" {
		return nil, domain.ErrInvalidActor
	}

	current, err := s.Get(ctx, kind, number)
	if err != nil {
		return nil, err
	}
	clientCode, siteCode := current.BalanceKey()
	unlock, err := s.balance.Lock(ctx, clientCode, siteCode)
	if err != nil {
		return nil, err
	}
	defer unlock()

	action := "validate"
	if target == domain.StatusNotValidated {
		action = "invalidate"
	}

	var out domain.Record
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindByNumber(ctx, tx, kind, current.Key(), option.ForUpdate())
		if err != nil {
			return err
		}
		if record == nil {
			return domain.ErrNotFound
		}
		previous := record.Status()
		if err := s.coordinator.Transition(ctx, tx, record, target, actor); err != nil {
			return err
		}
		if err := s.auditTx(ctx, tx, record, action, map[string]any{
			"from": previous.String(),
			"to":   target.String(),
		}); err != nil {
			return err
		}
		out = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, kind seqdomain.Kind, number string) (domain.Record, error) {
	if !kind.Valid() {
		return nil, domain.ErrInvalidKind
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, domain.ErrNotFound
	}
	record, err := s.repo.FindByNumber(ctx, s.db, kind, number)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

func (s *Service) FindByClientSite(ctx context.Context, kind seqdomain.Kind, clientCode, siteCode string, status *domain.ValidationStatus) ([]domain.Record, error) {
	if !kind.Valid() {
		return nil, domain.ErrInvalidKind
	}
	clientCode = strings.TrimSpace(clientCode)
	siteCode = strings.TrimSpace(siteCode)
	if clientCode == "" {
		return nil, domain.ErrInvalidClientCode
	}
	if siteCode == "" {
		return nil, domain.ErrInvalidSiteCode
	}

	opts := []option.QueryOption{
		option.Equal("client_code", clientCode),
		option.Equal("site_code", siteCode),
	}
	if status != nil {
		if !status.Valid() {
			return nil, domain.ErrInvalidStatus
		}
		opts = append(opts, option.Equal("validation_status", *status))
	}
	opts = append(opts, option.OrderBy("created_at asc, document_number asc"))
	return s.repo.Find(ctx, s.db, kind, opts...)
}

func (s *Service) List(ctx context.Context, kind seqdomain.Kind, req domain.ListRequest) (domain.ListResponse, error) {
	if !kind.Valid() {
		return domain.ListResponse{}, domain.ErrInvalidKind
	}
	opts := []option.QueryOption{
		option.Equal("client_code", strings.TrimSpace(req.ClientCode)),
		option.Equal("site_code", strings.TrimSpace(req.SiteCode)),
		option.CreatedBetween(req.CreatedFrom, req.CreatedTo),
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return domain.ListResponse{}, domain.ErrInvalidStatus
		}
		opts = append(opts, option.Equal("validation_status", *req.Status))
	}
	opts = append(opts, option.ApplyPagination(req.Pagination, "document_number"))

	records, err := s.repo.Find(ctx, s.db, kind, opts...)
	if err != nil {
		return domain.ListResponse{}, err
	}

	limit := pagination.Normalize(req.PageSize)
	resp := domain.ListResponse{}
	if len(records) > limit {
		records = records[:limit]
		last := records[len(records)-1].Header()
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.DocumentNumber,
			CreatedAt: last.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return domain.ListResponse{}, err
		}
		resp.HasMore = true
		resp.NextPageToken = token
	}
	resp.Records = records
	return resp, nil
}

func (s *Service) auditTx(ctx context.Context, tx *gorm.DB, record domain.Record, action string, metadata map[string]any) error {
	if s.audit == nil {
		return nil
	}
	kind := string(record.Kind())
	number := record.Key()
	clientCode, siteCode := record.BalanceKey()

	payload := map[string]any{
		"client_code": clientCode,
		"site_code":   siteCode,
		"status":      record.Status().String(),
	}
	for k, v := range metadata {
		payload[k] = v
	}
	return s.audit.AuditLogTx(ctx, tx, "", nil, kind+"."+action, kind, &number, payload)
}

func actorFromContext(ctx context.Context) string {
	if _, id := obscontext.ActorFromContext(ctx); id != "" {
		return id
	}
	return systemActor
}
