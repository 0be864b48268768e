package render

import (
	"fmt"
	"time"

	"github.com/smallbiznis/consigna/internal/document/domain"
	"github.com/xuri/excelize/v2"
)

const BalanceSheet = "Balances"

var balanceHeadings = []string{"Client", "Client name", "Site", "Site name", "Balance", "Pallets", "Updated at"}

// BalancesXLSX writes rows into a single-sheet workbook with a bold header line.
func BalancesXLSX(rows []domain.BalanceRow) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", BalanceSheet); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	for i, heading := range balanceHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(BalanceSheet, cell, heading); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(BalanceSheet, "A1", "G1", bold); err != nil {
		return nil, err
	}

	for i, row := range rows {
		rowNo := i + 2
		balance, _ := row.Balance.Float64()
		values := []any{
			row.ClientCode,
			row.ClientName,
			row.SiteCode,
			row.SiteName,
			balance,
			row.Pallets,
			row.UpdatedAt.UTC().Format(time.RFC3339),
		}
		for j, value := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, rowNo)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(BalanceSheet, cell, value); err != nil {
				return nil, fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}
	if err := f.SetColWidth(BalanceSheet, "A", "G", 18); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
