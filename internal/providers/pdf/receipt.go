package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptData is pre-formatted; the provider does no money or volume math.
type ReceiptData struct {
	StoreName     string
	ReceiptNumber string
	SoldAt        string
	Status        string
	CustomerName  string
	CashierUID    string
	PaymentMethod string

	Items []ReceiptItem

	Subtotal string
	Tax      string
	Discount string
	Total    string

	TotalVolume    string
	QuotaUsed      string
	QuotaRemaining string
	Footer         string
}

type ReceiptItem struct {
	Description string
	Qty         int64
	Volume      string
	UnitPrice   string
	Amount      string
}

type PDFProvider struct{}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) (io.Reader, error) {
	if receipt.ReceiptNumber == "" {
		return nil, fmt.Errorf("receipt number is required")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(14,
		text.NewCol(8, receipt.StoreName, props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Receipt", props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Receipt number: "+receipt.ReceiptNumber, props.Text{Top: 0}),
			text.New("Date: "+receipt.SoldAt, props.Text{Top: 5}),
			text.New("Status: "+receipt.Status, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Customer: "+receipt.CustomerName, props.Text{Top: 0, Align: align.Right}),
			text.New("Cashier: "+receipt.CashierUID, props.Text{Top: 5, Align: align.Right}),
			text.New("Payment: "+receipt.PaymentMethod, props.Text{Top: 10, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(5, "Item", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Volume", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range receipt.Items {
		m.AddRow(8,
			text.NewCol(5, item.Description, props.Text{Size: 9}),
			text.NewCol(1, fmt.Sprintf("%d", item.Qty), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Volume, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(2, line.NewCol(12))

	totals := []struct {
		label string
		value string
		bold  bool
	}{
		{"Subtotal", receipt.Subtotal, false},
		{"Tax", receipt.Tax, false},
		{"Discount", receipt.Discount, false},
		{"Total", receipt.Total, true},
	}
	for _, row := range totals {
		style := fontstyle.Normal
		if row.bold {
			style = fontstyle.Bold
		}
		m.AddRow(7,
			col.New(8),
			text.NewCol(2, row.label, props.Text{Size: 9, Style: style}),
			text.NewCol(2, row.value, props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}

	m.AddRow(20,
		col.New(12).Add(
			text.New("Volume purchased: "+receipt.TotalVolume, props.Text{Size: 9, Top: 4}),
			text.New("Daily allowance used: "+receipt.QuotaUsed, props.Text{Size: 9, Top: 9}),
			text.New("Daily allowance remaining: "+receipt.QuotaRemaining, props.Text{Size: 9, Top: 14}),
		),
	)
	if receipt.Footer != "" {
		m.AddRow(10, text.NewCol(12, receipt.Footer, props.Text{Size: 8, Align: align.Center, Top: 3}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
