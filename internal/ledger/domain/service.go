package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
	"github.com/smallbiznis/consigna/pkg/db/option"
	"github.com/smallbiznis/consigna/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateCautionRequest struct {
	SiteCode   string
	ClientCode string
	Amount     decimal.Decimal
	// Validated creates the caution directly in VALIDATED state.
	Validated bool
	Notes     string
}

type CreateConsignationRequest struct {
	SiteCode   string
	ClientCode string
	Pallets    int
	Notes      string
}

type CreateDeconsignationRequest struct {
	SiteCode   string
	ClientCode string
	Pallets    int
	Notes      string
}

type CreateRestitutionRequest struct {
	SiteCode   string
	ClientCode string
	Amount     decimal.Decimal
	Validated  bool
	Notes      string
}

// UpdateRequest carries optional changes. Amount applies to cautions and restitutions,
// Pallets to consignations and deconsignations.
type UpdateRequest struct {
	Amount  *decimal.Decimal
	Pallets *int
	Notes   *string
	Status  *ValidationStatus
}

type ListRequest struct {
	pagination.Pagination
	ClientCode  string
	SiteCode    string
	Status      *ValidationStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	Records []Record `json:"records"`
}

type Service interface {
	CreateCaution(ctx context.Context, req CreateCautionRequest) (*Caution, error)
	CreateConsignation(ctx context.Context, req CreateConsignationRequest) (*Consignation, error)
	CreateDeconsignation(ctx context.Context, req CreateDeconsignationRequest) (*Deconsignation, error)
	CreateRestitution(ctx context.Context, req CreateRestitutionRequest) (*Restitution, error)

	UpdateCaution(ctx context.Context, number string, req UpdateRequest) (*Caution, error)
	UpdateConsignation(ctx context.Context, number string, req UpdateRequest) (*Consignation, error)
	UpdateDeconsignation(ctx context.Context, number string, req UpdateRequest) (*Deconsignation, error)
	UpdateRestitution(ctx context.Context, number string, req UpdateRequest) (*Restitution, error)

	Validate(ctx context.Context, kind seqdomain.Kind, number, actor string) (Record, error)
	Invalidate(ctx context.Context, kind seqdomain.Kind, number, actor string) (Record, error)

	Get(ctx context.Context, kind seqdomain.Kind, number string) (Record, error)
	FindByClientSite(ctx context.Context, kind seqdomain.Kind, clientCode, siteCode string, status *ValidationStatus) ([]Record, error)
	List(ctx context.Context, kind seqdomain.Kind, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidKind        = seqdomain.ErrInvalidKind
	ErrInvalidSiteCode    = errors.New("invalid_site_code")
	ErrInvalidClientCode  = errors.New("invalid_client_code")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidPallets     = errors.New("invalid_pallets")
	ErrInvalidStatus      = errors.New("invalid_validation_status")
	ErrInvalidActor       = errors.New("invalid_actor")
	ErrFieldNotApplicable = errors.New("field_not_applicable")
	ErrUnknownSite        = errors.New("unknown_site")
	ErrUnknownClient      = errors.New("unknown_client")
	ErrNotFound           = errors.New("not_found")
	ErrSequenceCollision  = errors.New("sequence_collision")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record Record) error
	// FindByNumber returns nil, nil when the document does not exist.
	FindByNumber(ctx context.Context, db *gorm.DB, kind seqdomain.Kind, number string, opts ...option.QueryOption) (Record, error)
	Find(ctx context.Context, db *gorm.DB, kind seqdomain.Kind, opts ...option.QueryOption) ([]Record, error)
	Update(ctx context.Context, db *gorm.DB, record Record, values map[string]any) error
}
