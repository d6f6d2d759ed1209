package output

import (
	"fmt"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/escpos"
	"github.com/ichi0g0y/thermal-receipt/internal/profile"
	"github.com/ichi0g0y/thermal-receipt/internal/receipt"
	"github.com/shopspring/decimal"
)

const priceColumnWidth = 10

type testItem struct {
	name  string
	qty   int64
	price decimal.Decimal
}

var testItems = []testItem{
	{name: "Coffee", qty: 2, price: decimal.RequireFromString("3.50")},
	{name: "Croissant", qty: 1, price: decimal.RequireFromString("2.25")},
	{name: "Mineral water", qty: 3, price: decimal.RequireFromString("1.10")},
}

var testTaxRate = decimal.RequireFromString("0.08")

// TestReceipt builds a sample receipt sized for p. It exercises text styles,
// rows, rules, a QR code and a cut.
func TestReceipt(p profile.Profile, now time.Time) receipt.Document {
	labelWidth := p.CharsPerLine - priceColumnWidth
	if labelWidth < 1 {
		labelWidth = 1
	}

	row := func(label, amount string, bold bool) receipt.Row {
		return receipt.Row{Columns: []receipt.Column{
			{Width: labelWidth, Text: label, Bold: bold},
			{Width: p.CharsPerLine - labelWidth, Text: amount, Align: escpos.AlignRight, Bold: bold},
		}}
	}

	doc := receipt.Document{
		receipt.Text{Content: "TEST PRINT", Align: escpos.AlignCenter, Bold: true, Width: 2, Height: 2},
		receipt.Text{Content: now.Format("2006-01-02 15:04:05"), Align: escpos.AlignCenter},
		receipt.Text{Content: fmt.Sprintf("%s / %s", p.Name, p.PaperSize), Align: escpos.AlignCenter},
		receipt.HR{},
	}

	subtotal := decimal.Zero
	for _, item := range testItems {
		line := item.price.Mul(decimal.NewFromInt(item.qty))
		subtotal = subtotal.Add(line)
		doc = append(doc, row(fmt.Sprintf("%dx %s", item.qty, item.name), line.StringFixed(2), false))
	}

	tax := subtotal.Mul(testTaxRate).Round(2)
	doc = append(doc,
		receipt.HR{},
		row("Subtotal", subtotal.StringFixed(2), false),
		row("Tax 8%", tax.StringFixed(2), false),
		row("TOTAL", subtotal.Add(tax).StringFixed(2), true),
		receipt.HR{Char: '='},
		receipt.QRCode{Content: "thermal-receipt test " + now.Format(time.RFC3339), Align: escpos.AlignCenter},
		receipt.Text{Content: "Thank you!", Align: escpos.AlignCenter},
		receipt.Cut{},
	)
	return doc
}
