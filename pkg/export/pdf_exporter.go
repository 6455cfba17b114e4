package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// AdmitCard is the content printed on an aptitude test admit card.
type AdmitCard struct {
	SchoolName    string
	ExternalID    string
	ApplicantName string
	GradeApplying string
	ParentName    string
	Phone         string
	ExamDate      string
	ExamVenue     string
	Instructions  []string
	GeneratedAt   time.Time
}

// PDFExporter renders admit cards.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderAdmitCard produces a single page A5 admit card.
func (e *PDFExporter) RenderAdmitCard(card AdmitCard) ([]byte, error) {
	if card.ExternalID == "" {
		return nil, fmt.Errorf("admit card requires a registration number")
	}
	if card.ApplicantName == "" {
		return nil, fmt.Errorf("admit card requires an applicant name")
	}
	if card.GeneratedAt.IsZero() {
		card.GeneratedAt = time.Now().UTC()
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetTitle("Admit Card "+card.ExternalID, false)
	pdf.AddPage()

	if card.SchoolName != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 8, strings.ToUpper(card.SchoolName), "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "ADMIT CARD", "B", 1, "C", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Registration No.", card.ExternalID},
		{"Applicant", card.ApplicantName},
		{"Grade applying", card.GradeApplying},
		{"Parent / guardian", card.ParentName},
		{"Phone", card.Phone},
		{"Exam date", card.ExamDate},
		{"Venue", card.ExamVenue},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 8, row[1], "1", 1, "", false, 0, "")
	}

	if len(card.Instructions) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 7, "Instructions", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for i, line := range card.Instructions {
			pdf.MultiCell(0, 5, fmt.Sprintf("%d. %s", i+1, line), "", "", false)
		}
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 5, "Generated "+card.GeneratedAt.Format("02 Jan 2006 15:04 MST"), "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render admit card: %w", err)
	}
	return buf.Bytes(), nil
}
