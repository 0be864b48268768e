package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/consigna/internal/reference/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("reference.service"),
		repo: p.Repo,
	}
}

func (s *Service) FindSite(ctx context.Context, code string) (*domain.Site, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrSiteNotFound
	}
	site, err := s.repo.FindSite(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, domain.ErrSiteNotFound
	}
	return site, nil
}

func (s *Service) FindClient(ctx context.Context, code string) (*domain.Client, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrClientNotFound
	}
	client, err := s.repo.FindClient(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, domain.ErrClientNotFound
	}
	return client, nil
}

func (s *Service) ListSites(ctx context.Context) ([]domain.Site, error) {
	return s.repo.ListSites(ctx, s.db)
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.repo.ListClients(ctx, s.db)
}

func (s *Service) UpsertSite(ctx context.Context, site domain.Site) (*domain.Site, error) {
	site.Code = strings.TrimSpace(site.Code)
	site.Name = strings.TrimSpace(site.Name)
	site.Address = strings.TrimSpace(site.Address)
	if err := validatorInstance().StructCtx(ctx, site); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidSite, fieldList(err))
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.UpsertSite(ctx, s.db, &site); err != nil {
		return nil, err
	}
	s.log.Info("site saved", zap.String("site_code", site.Code))
	return &site, nil
}

func (s *Service) UpsertClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	client.Code = strings.TrimSpace(client.Code)
	client.Name = strings.TrimSpace(client.Name)
	client.Email = strings.TrimSpace(client.Email)
	client.Phone = strings.TrimSpace(client.Phone)
	if err := validatorInstance().StructCtx(ctx, client); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidClient, fieldList(err))
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.UpsertClient(ctx, s.db, &client); err != nil {
		return nil, err
	}
	s.log.Info("client saved", zap.String("client_code", client.Code))
	return &client, nil
}

// fieldList names the fields that failed validation without echoing their values.
func fieldList(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+":"+fe.Tag())
	}
	return strings.Join(fields, ",")
}
