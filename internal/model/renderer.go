package model

import "context"

// PaperFormat names a standard page size.
type PaperFormat string

// PaperA4 is the ISO A4 page size.
const PaperA4 PaperFormat = "a4"

// PDFOptions configures document rendering.
type PDFOptions struct {
	Filename     string
	MarginInches float64
	Scale        float64
	Format       PaperFormat
	Landscape    bool
}

// DocumentRenderer turns an HTML document into a paginated PDF.
// RenderPDF returns ErrRendererUnavailable until the renderer has started.
type DocumentRenderer interface {
	RenderPDF(ctx context.Context, html []byte, opts PDFOptions) ([]byte, error)
}
