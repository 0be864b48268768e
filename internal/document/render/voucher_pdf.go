package render

import (
	"fmt"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/consigna/internal/document/domain"
	seqdomain "github.com/smallbiznis/consigna/internal/sequence/domain"
)

const dateLayout = "02/01/2006"

// VoucherPDF lays out a single ledger document on one A4 page.
func VoucherPDF(v domain.VoucherData) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} / {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, v.Title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		col.New(4).Add(
			text.New(v.DocumentNumber, props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(v.Date.Format(dateLayout), props.Text{Top: 5, Align: align.Right}),
			text.New(v.Status, props.Text{Top: 10, Align: align.Right, Size: 8}),
		),
	)
	m.AddRow(2, line.NewCol(12))

	m.AddRow(25,
		col.New(6).Add(
			text.New("Client", props.Text{Style: fontstyle.Bold}),
			text.New(v.ClientCode, props.Text{Top: 5}),
			text.New(v.ClientName, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Site", props.Text{Style: fontstyle.Bold}),
			text.New(v.SiteCode, props.Text{Top: 5}),
			text.New(v.SiteName, props.Text{Top: 10}),
		),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Value", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range lines(v) {
		m.AddRow(8,
			text.NewCol(8, item[0], props.Text{Size: 9}),
			text.NewCol(4, item[1], props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(2, line.NewCol(12))

	afterLabel := "Balance after"
	if v.Projected {
		afterLabel = "Balance after validation (projected)"
	}
	m.AddRow(8,
		col.New(6),
		text.NewCol(4, "Balance before", props.Text{Size: 9}),
		text.NewCol(2, money(v.BalanceBefore.StringFixed(2)), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(6),
		text.NewCol(4, afterLabel, props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, money(v.BalanceAfter.StringFixed(2)), props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)

	if v.Notes != "" {
		m.AddRow(20, text.NewCol(12, v.Notes, props.Text{Size: 8, Top: 5}))
	}

	m.AddRow(30,
		col.New(6).Add(
			text.New("Issued by", props.Text{Size: 8, Style: fontstyle.Bold, Top: 10}),
			text.New(v.CreatedBy, props.Text{Size: 8, Top: 15}),
		),
		col.New(6).Add(
			text.New("Validated by", props.Text{Size: 8, Style: fontstyle.Bold, Top: 10}),
			text.New(validatedLine(v), props.Text{Size: 8, Top: 15}),
		),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRenderFailed, err)
	}
	return doc.GetBytes(), nil
}

func lines(v domain.VoucherData) [][2]string {
	switch v.Kind {
	case seqdomain.KindCaution:
		return [][2]string{
			{"Deposit received", money(v.Amount.StringFixed(2))},
			{"Pallets covered", strconv.Itoa(v.Pallets)},
		}
	case seqdomain.KindRestitution:
		return [][2]string{{"Deposit refunded", money(v.Amount.StringFixed(2))}}
	case seqdomain.KindConsignation:
		return [][2]string{
			{"Pallets handed out", strconv.Itoa(v.Pallets)},
			{"Deposit used", money(v.Contribution.Neg().StringFixed(2))},
		}
	case seqdomain.KindDeconsignation:
		return [][2]string{
			{"Pallets returned", strconv.Itoa(v.Pallets)},
			{"Deposit released", money(v.Contribution.StringFixed(2))},
		}
	default:
		return nil
	}
}

func validatedLine(v domain.VoucherData) string {
	if v.ValidatedAt == nil {
		return "pending"
	}
	return v.ValidatedBy + " " + v.ValidatedAt.Format(dateLayout)
}

func money(amount string) string {
	return amount + " EUR"
}
