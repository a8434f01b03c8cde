package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dtroode/membership-server/internal/export"
	"github.com/dtroode/membership-server/internal/model"
	"github.com/dtroode/membership-server/internal/report"
)

// ExportSpreadsheet downloads the filtered dashboard records as a spreadsheet.
func (h *Handler) ExportSpreadsheet(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, h.exporter.Spreadsheet)
}

// ExportPDF downloads the filtered dashboard records as the printable report.
func (h *Handler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, h.exporter.PDF)
}

type produceFunc func(ctx context.Context, records []model.Registration) (export.Artifact, error)

// export serves exactly the records the dashboard shows for the same filters.
func (h *Handler) export(w http.ResponseWriter, r *http.Request, produce produceFunc) {
	ctx := r.Context()

	st, snap, err := h.sessions.View(ctx, h.sessionID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if !st.WantsRecords() {
		h.handleError(w, r, model.ErrPermissionDenied)
		return
	}

	records := report.Filter(snap.Records, criteriaFrom(r))
	artifact, err := produce(ctx, records)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}
