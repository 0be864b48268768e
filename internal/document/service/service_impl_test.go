package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	balancedomain "github.com/smallbiznis/consigna/internal/balance/domain"
	"github.com/smallbiznis/consigna/internal/document/domain"
	ledgerdomain "github.com/smallbiznis/consigna/internal/ledger/domain"
	refdomain "github.com/smallbiznis/consigna/internal/reference/domain"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type stubLedger struct {
	ledgerdomain.Service
	records map[string]ledgerdomain.Record
}

func (l *stubLedger) Get(_ context.Context, _ seqdomain.Kind, number string) (ledgerdomain.Record, error) {
	r, ok := l.records[number]
	if !ok {
		return nil, ledgerdomain.ErrNotFound
	}
	return r, nil
}

type stubBalance struct {
	balancedomain.Service
	current  decimal.Decimal
	balances []balancedomain.Balance
	pageSize int
}

func (b *stubBalance) GetBalance(context.Context, string, string) (decimal.Decimal, error) {
	return b.current, nil
}

func (b *stubBalance) List(_ context.Context, req balancedomain.ListBalancesRequest) (balancedomain.ListBalancesResponse, error) {
	start := 0
	if req.PageToken != "" {
		for i, item := range b.balances {
			if item.ClientCode == req.PageToken {
				start = i
			}
		}
	}
	end := start + b.pageSize
	resp := balancedomain.ListBalancesResponse{}
	if end < len(b.balances) {
		resp.HasMore = true
		resp.NextPageToken = b.balances[end].ClientCode
	} else {
		end = len(b.balances)
	}
	resp.Balances = b.balances[start:end]
	return resp, nil
}

type stubReference struct {
	refdomain.Service
}

func (stubReference) FindClient(_ context.Context, code string) (*refdomain.Client, error) {
	if code == "C1" {
		return &refdomain.Client{Code: "C1", Name: "Transports Martin"}, nil
	}
	return nil, refdomain.ErrClientNotFound
}

func (stubReference) FindSite(_ context.Context, code string) (*refdomain.Site, error) {
	if code == "201" {
		return &refdomain.Site{Code: "201", Name: "Rungis"}, nil
	}
	return nil, refdomain.ErrSiteNotFound
}

func newCaution(number string, amount int64, status ledgerdomain.ValidationStatus) *ledgerdomain.Caution {
	c := &ledgerdomain.Caution{Document: ledgerdomain.Document{
		DocumentNumber:   number,
		SiteCode:         "201",
		ClientCode:       "C1",
		ValidationStatus: status,
		CreatedAt:        time.Date(2025, time.August, 9, 10, 0, 0, 0, time.UTC),
	}}
	c.SetAmount(decimal.NewFromInt(amount))
	return c
}

func newService(ledger *stubLedger, balance *stubBalance) *Service {
	return New(Params{
		Log:       zap.NewNop(),
		Ledger:    ledger,
		Balance:   balance,
		Reference: stubReference{},
	}).(*Service)
}

func TestVoucherValidatedCautionIsAlreadyInBalance(t *testing.T) {
	ledger := &stubLedger{records: map[string]ledgerdomain.Record{
		"CT201250809-0001": newCaution("CT201250809-0001", 500, ledgerdomain.StatusValidated),
	}}
	svc := newService(ledger, &stubBalance{current: decimal.NewFromInt(650)})

	v, err := svc.Voucher(context.Background(), seqdomain.KindCaution, "CT201250809-0001")
	require.NoError(t, err)

	assert.Equal(t, "Deposit receipt", v.Title)
	assert.Equal(t, "Transports Martin", v.ClientName)
	assert.Equal(t, "Rungis", v.SiteName)
	assert.Equal(t, 5, v.Pallets)
	assert.False(t, v.Projected)
	assert.True(t, v.BalanceBefore.Equal(decimal.NewFromInt(150)))
	assert.True(t, v.BalanceAfter.Equal(decimal.NewFromInt(650)))
}

func TestVoucherPendingConsignationIsProjected(t *testing.T) {
	consigned := &ledgerdomain.Consignation{
		Document: ledgerdomain.Document{
			DocumentNumber:   "CS201250809-0001",
			SiteCode:         "201",
			ClientCode:       "C9",
			ValidationStatus: ledgerdomain.StatusNotValidated,
		},
		PalletToConsign: 3,
	}
	ledger := &stubLedger{records: map[string]ledgerdomain.Record{consigned.DocumentNumber: consigned}}
	svc := newService(ledger, &stubBalance{current: decimal.NewFromInt(500)})

	v, err := svc.Voucher(context.Background(), seqdomain.KindConsignation, consigned.DocumentNumber)
	require.NoError(t, err)

	assert.True(t, v.Projected)
	assert.Empty(t, v.ClientName)
	assert.Equal(t, 3, v.Pallets)
	assert.True(t, v.BalanceBefore.Equal(decimal.NewFromInt(500)))
	assert.True(t, v.BalanceAfter.Equal(decimal.NewFromInt(200)))
}

func TestVoucherUnknownDocument(t *testing.T) {
	svc := newService(&stubLedger{}, &stubBalance{})
	_, err := svc.Voucher(context.Background(), seqdomain.KindCaution, "CT201250809-0042")
	assert.ErrorIs(t, err, ledgerdomain.ErrNotFound)
}

func TestRenderVoucherPDF(t *testing.T) {
	ledger := &stubLedger{records: map[string]ledgerdomain.Record{
		"CT201250809-0001": newCaution("CT201250809-0001", 500, ledgerdomain.StatusNotValidated),
	}}
	svc := newService(ledger, &stubBalance{})

	out, err := svc.RenderVoucherPDF(context.Background(), seqdomain.KindCaution, "CT201250809-0001")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestExportBalancesWalksAllPages(t *testing.T) {
	balance := &stubBalance{
		pageSize: 2,
		balances: []balancedomain.Balance{
			{ClientCode: "C1", SiteCode: "201", Balance: decimal.NewFromInt(350)},
			{ClientCode: "C2", SiteCode: "201", Balance: decimal.NewFromInt(-120)},
			{ClientCode: "C3", SiteCode: "202", Balance: decimal.NewFromInt(1000)},
		},
	}
	svc := newService(&stubLedger{}, balance)

	out, err := svc.ExportBalancesXLSX(context.Background(), domain.BalanceExportFilter{})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Balances")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "C1", rows[1][0])
	assert.Equal(t, "Transports Martin", rows[1][1])
	assert.Equal(t, "C3", rows[3][0])
}
