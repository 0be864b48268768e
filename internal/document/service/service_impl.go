package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	balancedomain "github.com/smallbiznis/consigna/internal/balance/domain"
	"github.com/smallbiznis/consigna/internal/document/domain"
	"github.com/smallbiznis/consigna/internal/document/render"
	ledgerdomain "github.com/smallbiznis/consigna/internal/ledger/domain"
	obslogger "github.com/smallbiznis/consigna/internal/observability/logger"
	refdomain "github.com/smallbiznis/consigna/internal/reference/domain"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
	"github.com/smallbiznis/consigna/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var titles = map[seqdomain.Kind]string{
	seqdomain.KindCaution:        "Deposit receipt",
	seqdomain.KindConsignation:   "Consignation voucher",
	seqdomain.KindDeconsignation: "Deconsignation voucher",
	seqdomain.KindRestitution:    "Restitution voucher",
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Ledger    ledgerdomain.Service
	Balance   balancedomain.Service
	Reference refdomain.Service
}

type Service struct {
	log       *zap.Logger
	ledger    ledgerdomain.Service
	balance   balancedomain.Service
	reference refdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("document.service"),
		ledger:    p.Ledger,
		balance:   p.Balance,
		reference: p.Reference,
	}
}

// Voucher reads the document and the current balance. A validated document is already
// part of the stored balance, so the balance before it is the current one minus its
// contribution; an unvalidated one is projected on top of the current balance.
func (s *Service) Voucher(ctx context.Context, kind seqdomain.Kind, number string) (domain.VoucherData, error) {
	record, err := s.ledger.Get(ctx, kind, number)
	if err != nil {
		return domain.VoucherData{}, err
	}
	header := record.Header()

	current, err := s.balance.GetBalance(ctx, header.ClientCode, header.SiteCode)
	if err != nil {
		return domain.VoucherData{}, err
	}

	v := domain.VoucherData{
		Kind:           kind,
		DocumentNumber: header.DocumentNumber,
		Title:          titles[kind],
		Date:           header.CreatedAt,
		Status:         header.ValidationStatus.String(),
		ClientCode:     header.ClientCode,
		SiteCode:       header.SiteCode,
		Contribution:   record.Contribution(),
		CreatedBy:      header.CreatedBy,
		ValidatedBy:    header.ValidatedBy,
		ValidatedAt:    header.ValidatedAt,
		Notes:          header.Notes,
	}
	switch r := record.(type) {
	case *ledgerdomain.Caution:
		v.Amount = r.Amount
		v.Pallets = r.PalletCount
	case *ledgerdomain.Restitution:
		v.Amount = r.Amount
	case *ledgerdomain.Consignation:
		v.Pallets = r.PalletToConsign
	case *ledgerdomain.Deconsignation:
		v.Pallets = r.PalletDeconsigned
	}

	if record.Status() == ledgerdomain.StatusValidated {
		v.BalanceBefore = current.Sub(v.Contribution)
		v.BalanceAfter = current
	} else {
		v.BalanceBefore = current
		v.BalanceAfter = current.Add(v.Contribution)
		v.Projected = true
	}

	v.ClientName, v.SiteName = s.names(ctx, header.ClientCode, header.SiteCode)
	return v, nil
}

func (s *Service) RenderVoucherPDF(ctx context.Context, kind seqdomain.Kind, number string) ([]byte, error) {
	v, err := s.Voucher(ctx, kind, number)
	if err != nil {
		return nil, err
	}
	out, err := render.VoucherPDF(v)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Error("failed to render voucher",
			zap.String("document_number", v.DocumentNumber),
			zap.Error(err),
		)
		return nil, err
	}
	return out, nil
}

func (s *Service) ExportBalancesXLSX(ctx context.Context, filter domain.BalanceExportFilter) ([]byte, error) {
	req := balancedomain.ListBalancesRequest{
		Pagination: pagination.Pagination{PageSize: pagination.MaxPageSize},
		ClientCode: strings.TrimSpace(filter.ClientCode),
		SiteCode:   strings.TrimSpace(filter.SiteCode),
	}

	var rows []domain.BalanceRow
	for {
		page, err := s.balance.List(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, b := range page.Balances {
			clientName, siteName := s.names(ctx, b.ClientCode, b.SiteCode)
			rows = append(rows, domain.BalanceRow{
				ClientCode: b.ClientCode,
				ClientName: clientName,
				SiteCode:   b.SiteCode,
				SiteName:   siteName,
				Balance:    b.Balance,
				Pallets:    ledgerdomain.PalletsForAmount(b.Balance),
				UpdatedAt:  b.UpdatedAt,
			})
		}
		if !page.HasMore || page.NextPageToken == "" {
			break
		}
		req.PageToken = page.NextPageToken
	}

	start := time.Now()
	out, err := render.BalancesXLSX(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRenderFailed, err)
	}
	obslogger.WithContext(ctx, s.log).Info("balances exported",
		zap.Int("rows", len(rows)),
		zap.Duration("render", time.Since(start)),
	)
	return out, nil
}

// names resolves display names. Missing reference rows print as blanks.
func (s *Service) names(ctx context.Context, clientCode, siteCode string) (string, string) {
	var clientName, siteName string
	if client, err := s.reference.FindClient(ctx, clientCode); err == nil {
		clientName = client.Name
	} else if !errors.Is(err, refdomain.ErrClientNotFound) {
		s.log.Warn("client lookup failed", zap.String("client_code", clientCode), zap.Error(err))
	}
	if site, err := s.reference.FindSite(ctx, siteCode); err == nil {
		siteName = site.Name
	} else if !errors.Is(err, refdomain.ErrSiteNotFound) {
		s.log.Warn("site lookup failed", zap.String("site_code", siteCode), zap.Error(err))
	}
	return clientName, siteName
}
