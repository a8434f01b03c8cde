package export

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/membership-server/internal/logger"
	"github.com/dtroode/membership-server/internal/metrics"
	"github.com/dtroode/membership-server/internal/model"
)

const archiveTimeout = 30 * time.Second

// Exporter produces export artifacts for a set of records and archives a copy
// of each to storage. Archiving runs in the background; its failures are logged.
type Exporter struct {
	documents *Documents
	renderer  model.DocumentRenderer
	archive   model.Storage
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	wg sync.WaitGroup
}

// NewExporter creates an Exporter. A nil archive disables archiving.
func NewExporter(
	documents *Documents,
	renderer model.DocumentRenderer,
	archive model.Storage,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Exporter {
	return &Exporter{
		documents: documents,
		renderer:  renderer,
		archive:   archive,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Spreadsheet exports records as an Excel-compatible file.
func (e *Exporter) Spreadsheet(ctx context.Context, records []model.Registration) (Artifact, error) {
	var buf bytes.Buffer
	if err := e.documents.Spreadsheet(&buf, records); err != nil {
		return Artifact{}, fmt.Errorf("failed to render spreadsheet: %w", err)
	}

	a := Artifact{
		Format:      FormatSpreadsheet,
		Filename:    SpreadsheetFilename(e.now()),
		ContentType: ContentTypeSpreadsheet,
		Data:        buf.Bytes(),
	}
	e.produced(ctx, a, len(records))
	return a, nil
}

// PDF prints records as the detailed table report. It returns
// model.ErrRendererUnavailable while the renderer is starting.
func (e *Exporter) PDF(ctx context.Context, records []model.Registration) (Artifact, error) {
	html, err := e.documents.Printable(records)
	if err != nil {
		return Artifact{}, err
	}

	opts := PDFOptions(e.now())
	data, err := e.renderer.RenderPDF(ctx, html, opts)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to render pdf: %w", err)
	}

	a := Artifact{
		Format:      FormatPDF,
		Filename:    opts.Filename,
		ContentType: ContentTypePDF,
		Data:        data,
	}
	e.produced(ctx, a, len(records))
	return a, nil
}

// Wait blocks until pending archive uploads have finished.
func (e *Exporter) Wait() {
	e.wg.Wait()
}

func (e *Exporter) produced(ctx context.Context, a Artifact, rows int) {
	e.metrics.ExportProduced(a.Format)
	e.logger.Info("Export service: export produced",
		"format", a.Format,
		"rows", rows,
		"bytes", len(a.Data))

	if e.archive == nil {
		return
	}

	key := archiveKey(e.now(), a.Format)
	ctx = context.WithoutCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
		defer cancel()

		if err := e.archive.Upload(ctx, key, bytes.NewReader(a.Data), a.ContentType); err != nil {
			e.logger.Error("Export service: failed to archive export",
				"key", key,
				"error", err.Error())
			return
		}
		e.logger.Debug("Export service: export archived", "key", key)
	}()
}

func archiveKey(t time.Time, ext string) string {
	return fmt.Sprintf("exports/%s/%s.%s", t.UTC().Format(time.DateOnly), uuid.NewString(), ext)
}
