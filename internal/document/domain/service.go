package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
)

// VoucherData is everything printed on a document voucher.
type VoucherData struct {
	Kind           seqdomain.Kind  `json:"kind"`
	DocumentNumber string          `json:"document_number"`
	Title          string          `json:"title"`
	Date           time.Time       `json:"date"`
	Status         string          `json:"status"`
	ClientCode     string          `json:"client_code"`
	ClientName     string          `json:"client_name"`
	SiteCode       string          `json:"site_code"`
	SiteName       string          `json:"site_name"`
	Amount         decimal.Decimal `json:"amount"`
	Pallets        int             `json:"pallets"`
	Contribution   decimal.Decimal `json:"contribution"`
	BalanceBefore  decimal.Decimal `json:"balance_before"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	// Projected is set when the document is not validated yet: BalanceAfter is then what
	// the balance will be once it is.
	Projected   bool       `json:"projected"`
	CreatedBy   string     `json:"created_by,omitempty"`
	ValidatedBy string     `json:"validated_by,omitempty"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type BalanceExportFilter struct {
	ClientCode string
	SiteCode   string
}

// BalanceRow is one line of the balance export.
type BalanceRow struct {
	ClientCode string
	ClientName string
	SiteCode   string
	SiteName   string
	Balance    decimal.Decimal
	Pallets    int
	UpdatedAt  time.Time
}

type Service interface {
	Voucher(ctx context.Context, kind seqdomain.Kind, number string) (VoucherData, error)
	RenderVoucherPDF(ctx context.Context, kind seqdomain.Kind, number string) ([]byte, error)
	ExportBalancesXLSX(ctx context.Context, filter BalanceExportFilter) ([]byte, error)
}

var (
	ErrRenderFailed = errors.New("document_render_failed")
)
