package exporter

import (
	"fmt"
	"io"
	"time"

	"github.com/phpdave11/gofpdf"

	"taxipulse/internal/dataprocessing"
)

const (
	pdfMargin     = 10.0
	pdfRowHeight  = 6.0
	wideTableCols = 8
)

// WritePDF renders each table on its own A4 page. Tables wider than eight
// columns are laid out in landscape.
func WritePDF(w io.Writer, title string, tables ...*dataprocessing.FlatTable) error {
	if len(tables) == 0 {
		return errNoTables
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfMargin)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	for _, table := range tables {
		orientation := "P"
		if len(table.Header) > wideTableCols {
			orientation = "L"
		}
		pdf.AddPageFormat(orientation, pdf.GetPageSizeStr("A4"))

		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 10, tr(table.Title), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 5, "Generated "+time.Now().Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
		pdf.Ln(3)

		writePDFTable(pdf, tr, orientation, table)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

func writePDFTable(pdf *gofpdf.Fpdf, tr func(string) string, orientation string, table *dataprocessing.FlatTable) {
	if len(table.Header) == 0 {
		return
	}

	pageWidth, _ := pdf.GetPageSize()
	colWidth := (pageWidth - 2*pdfMargin) / float64(len(table.Header))
	fontSize := 9.0
	if len(table.Header) > wideTableCols {
		fontSize = 6
	}

	header := func() {
		pdf.SetFont("Helvetica", "B", fontSize)
		pdf.SetFillColor(221, 235, 247)
		for _, h := range table.Header {
			pdf.CellFormat(colWidth, pdfRowHeight, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", fontSize)
	}

	header()
	_, pageHeight := pdf.GetPageSize()
	for _, record := range table.Rows {
		if pdf.GetY()+pdfRowHeight > pageHeight-2*pdfMargin {
			pdf.AddPageFormat(orientation, pdf.GetPageSizeStr("A4"))
			header()
		}
		for i := range table.Header {
			v := ""
			if i < len(record) {
				v = record[i]
			}
			align := "R"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(colWidth, pdfRowHeight, tr(v), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
}
