// Package export produces the downloadable spreadsheet and PDF versions of
// the dashboard table and archives them to object storage.
package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/dtroode/membership-server/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	FormatSpreadsheet = "xls"
	FormatPDF         = "pdf"

	ContentTypeSpreadsheet = "application/vnd.ms-excel"
	ContentTypePDF         = "application/pdf"
)

// Artifact is a produced export file.
type Artifact struct {
	Format      string
	Filename    string
	ContentType string
	Data        []byte
}

// SpreadsheetFilename is the download name of a spreadsheet produced at t.
func SpreadsheetFilename(t time.Time) string {
	return fmt.Sprintf("RNI_Database_%s.xls", t.UTC().Format(time.DateOnly))
}

// PDFFilename is the download name of a PDF produced at t.
func PDFFilename(t time.Time) string {
	return fmt.Sprintf("Report_%s.pdf", t.UTC().Format(time.DateOnly))
}

// PDFOptions are the print settings of the detailed table report.
func PDFOptions(t time.Time) model.PDFOptions {
	return model.PDFOptions{
		Filename:     PDFFilename(t),
		MarginInches: 0.5,
		Scale:        2,
		Format:       model.PaperA4,
		Landscape:    true,
	}
}

// Documents renders registration tables as HTML documents.
type Documents struct {
	organization string
	spreadsheet  *template.Template
	printable    *template.Template
}

type documentData struct {
	Organization string
	Records      []model.Registration
}

// NewDocuments parses the embedded templates. organization titles every document.
func NewDocuments(organization string) (*Documents, error) {
	spreadsheet, err := template.ParseFS(templateFS, "templates/spreadsheet.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse spreadsheet template: %w", err)
	}
	printable, err := template.ParseFS(templateFS, "templates/printable.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse printable template: %w", err)
	}

	return &Documents{
		organization: organization,
		spreadsheet:  spreadsheet,
		printable:    printable,
	}, nil
}

// Spreadsheet writes Excel-compatible markup with one row per record.
func (d *Documents) Spreadsheet(w io.Writer, records []model.Registration) error {
	return d.spreadsheet.Execute(w, documentData{Organization: d.organization, Records: records})
}

// Printable returns the standalone HTML page printed into the PDF report.
func (d *Documents) Printable(records []model.Registration) ([]byte, error) {
	var buf bytes.Buffer
	if err := d.printable.Execute(&buf, documentData{Organization: d.organization, Records: records}); err != nil {
		return nil, fmt.Errorf("failed to render printable table: %w", err)
	}
	return buf.Bytes(), nil
}
