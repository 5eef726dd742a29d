package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/campusops/report-portal/internal/models"
)

// PDFExporter renders a report aggregate into a printable PDF snapshot.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates the published document for a report: a cover block with
// the institution metadata followed by each section in order.
func (e *PDFExporter) Render(report *models.Report) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("report is required")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.MultiCell(0, 9, strings.ToUpper(report.Title), "", "C", false)
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Academic Year: %s", report.AcademicYear), "", 1, "C", false, 0, "")
	if report.Metadata.Department != "" {
		pdf.CellFormat(0, 7, fmt.Sprintf("Department: %s", report.Metadata.Department), "", 1, "C", false, 0, "")
	}
	if report.Metadata.Institution.Name != "" {
		pdf.CellFormat(0, 7, report.Metadata.Institution.Name, "", 1, "C", false, 0, "")
	}
	pdf.Ln(6)

	for _, section := range report.Sections {
		pdf.SetFont("Arial", "B", 13)
		pdf.MultiCell(0, 8, section.Title, "", "L", false)
		pdf.Ln(1)
		if section.Content != "" {
			pdf.SetFont("Arial", "", 10)
			pdf.MultiCell(0, 6, section.Content, "", "L", false)
		}
		if len(section.Charts) > 0 {
			pdf.SetFont("Arial", "I", 9)
			pdf.MultiCell(0, 5, fmt.Sprintf("(%d chart(s) omitted from print rendering)", len(section.Charts)), "", "L", false)
		}
		pdf.Ln(4)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
