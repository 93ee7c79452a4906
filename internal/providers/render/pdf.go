package render

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct{}

func NewPDFProvider() *PDFProvider {
	return &PDFProvider{}
}

func (p *PDFProvider) RenderReceipt(ctx context.Context, doc ReceiptDocument) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(30,
		text.NewCol(8, "Payment Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		col.New(4),
	)

	m.AddRow(25,
		col.New(6).Add(
			text.New("Receipt number: "+doc.ReceiptNumber, props.Text{Top: 0}),
			text.New("Bill number: "+doc.BillNumber, props.Text{Top: 4}),
			text.New("Issued: "+doc.IssuedAt.Format("2006-01-02"), props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Paid: "+doc.PaymentDate.Format("2006-01-02"), props.Text{Top: 0}),
			text.New("Method: "+doc.Method, props.Text{Top: 4}),
			text.New("Status: "+doc.Status, props.Text{Top: 8}),
		),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		text.NewCol(8, "Base amount", props.Text{Size: 9}),
		text.NewCol(4, formatMinor(doc.Amount), props.Text{Size: 9, Align: align.Right}),
	)
	if doc.Discount > 0 {
		m.AddRow(10,
			text.NewCol(8, "Discount", props.Text{Size: 9}),
			text.NewCol(4, "-"+formatMinor(doc.Discount), props.Text{Size: 9, Align: align.Right}),
		)
	}
	if doc.Fine > 0 {
		m.AddRow(10,
			text.NewCol(8, "Late fee", props.Text{Size: 9}),
			text.NewCol(4, formatMinor(doc.Fine), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(12,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(2, formatMinor(doc.Total), props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)

	generated, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(generated.GetBytes()), nil
}

func formatMinor(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
