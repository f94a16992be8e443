// Package receipt renders printable receipts for recorded sales.
package receipt

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/rl1809/posbuzz/internal/core/domain"
)

const storeName = "POSBuzz"

// WritePDF renders sale as a single-page A5 receipt. Line prices are the
// prices recorded on the sale, not current catalog prices.
func WritePDF(w io.Writer, sale domain.Sale) error {
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetTitle(fmt.Sprintf("Receipt %s", sale.ID), true)
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 8, storeName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, "Sale "+sale.ID, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, sale.CreatedAt.Format("2006-01-02 15:04:05"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	widths := []float64{62, 16, 25, 25}
	pdf.SetFont("Helvetica", "B", 9)
	for i, h := range []string{"Item", "Qty", "Price", "Subtotal"} {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 6, h, "B", 0, align, false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, it := range sale.Items {
		name := it.ProductName
		if name == "" {
			name = it.ProductID
		}
		pdf.CellFormat(widths[0], 6, name, "", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, fmt.Sprintf("%d", it.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 6, it.Price.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, it.Subtotal().StringFixed(2), "", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(widths[0]+widths[1]+widths[2], 8, "Total", "T", 0, "L", false, 0, "")
	pdf.CellFormat(widths[3], 8, sale.Total.StringFixed(2), "T", 1, "R", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	return nil
}
