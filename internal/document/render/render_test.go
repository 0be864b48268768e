package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/consigna/internal/document/domain"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestVoucherPDF(t *testing.T) {
	out, err := VoucherPDF(domain.VoucherData{
		Kind:           seqdomain.KindConsignation,
		DocumentNumber: "CS201250809-0003",
		Title:          "Consignation voucher",
		Date:           time.Date(2025, time.August, 9, 10, 0, 0, 0, time.UTC),
		Status:         "NOT_VALIDATED",
		ClientCode:     "C1",
		SiteCode:       "201",
		Pallets:        3,
		Contribution:   decimal.NewFromInt(-300),
		BalanceBefore:  decimal.NewFromInt(500),
		BalanceAfter:   decimal.NewFromInt(200),
		Projected:      true,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestBalancesXLSX(t *testing.T) {
	out, err := BalancesXLSX([]domain.BalanceRow{
		{ClientCode: "C1", ClientName: "Transports Martin", SiteCode: "201", SiteName: "Rungis", Balance: decimal.RequireFromString("50.00"), Pallets: 0, UpdatedAt: time.Date(2025, time.August, 9, 10, 0, 0, 0, time.UTC)},
		{ClientCode: "C2", SiteCode: "201", Balance: decimal.NewFromInt(1200), Pallets: 12},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(BalanceSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Client", rows[0][0])
	assert.Equal(t, "Transports Martin", rows[1][1])
	assert.Equal(t, "50", rows[1][4])
	assert.Equal(t, "12", rows[2][5])
	assert.Equal(t, "2025-08-09T10:00:00Z", rows[1][6])
}
