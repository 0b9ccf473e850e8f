package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

// RISSlip is the content of a Requisition and Issue Slip.
type RISSlip struct {
	SchoolName  string
	RISNumber   string
	TrackingID  string
	Purpose     string
	RequestedBy string
	IssuedBy    string
	SKU         string
	Description string
	Unit        string
	Quantity    int
	StockAfter  *int
	IssuedAt    time.Time
}

// RequisitionSlip renders the slip as an A4 PDF.
func RequisitionSlip(s RISSlip) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle(s.RISNumber, false)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, s.SchoolName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentW, 7, "REQUISITION AND ISSUE SLIP", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	half := contentW / 2
	pdf.CellFormat(half, 6, "RIS No.: "+s.RISNumber, "", 0, "L", false, 0, "")
	pdf.CellFormat(half, 6, "Date: "+s.IssuedAt.Format("January 2, 2006"), "", 1, "R", false, 0, "")
	pdf.CellFormat(half, 6, "Request: "+s.TrackingID, "", 0, "L", false, 0, "")
	pdf.CellFormat(half, 6, "Office: "+s.RequestedBy, "", 1, "R", false, 0, "")
	pdf.Ln(4)

	widths := []float64{contentW * 0.2, contentW * 0.45, contentW * 0.15, contentW * 0.2}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range []string{"Stock No.", "Description", "Unit", "Quantity Issued"} {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(widths[0], 8, s.SKU, "1", 0, "L", false, 0, "")
	pdf.CellFormat(widths[1], 8, truncate(s.Description, 48), "1", 0, "L", false, 0, "")
	pdf.CellFormat(widths[2], 8, s.Unit, "1", 0, "C", false, 0, "")
	pdf.CellFormat(widths[3], 8, fmt.Sprintf("%d", s.Quantity), "1", 1, "R", false, 0, "")
	pdf.Ln(4)

	pdf.MultiCell(contentW, 6, "Purpose: "+s.Purpose, "", "L", false)
	if s.StockAfter != nil {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(contentW, 6, fmt.Sprintf("Balance after issue: %d %s", *s.StockAfter, s.Unit), "", 1, "L", false, 0, "")
	}
	pdf.Ln(16)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(half, 6, "Requested by:", "", 0, "L", false, 0, "")
	pdf.CellFormat(half, 6, "Issued by:", "", 1, "L", false, 0, "")
	pdf.Ln(10)
	pdf.CellFormat(half, 6, "______________________", "", 0, "L", false, 0, "")
	pdf.CellFormat(half, 6, "______________________", "", 1, "L", false, 0, "")
	pdf.CellFormat(half, 6, s.RequestedBy, "", 0, "L", false, 0, "")
	pdf.CellFormat(half, 6, s.IssuedBy, "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: render slip: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
