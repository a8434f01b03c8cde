package handler

import (
	"errors"
	"net/http"

	"github.com/dtroode/membership-server/internal/model"
)

const (
	msgRendererLoading = "خاصية PDF جاري تحميلها، يرجى الانتظار قليلاً..."
	msgForbidden       = "ليست لديك صلاحية الاطلاع على هذه المعطيات."
	msgInFlight        = "جاري الاتصال وحفظ البيانات..."
	msgInternal        = "حدث خطأ غير متوقع. حاول مرة أخرى."
)

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, msgInternal

	switch {
	case errors.Is(err, model.ErrRendererUnavailable):
		status, message = http.StatusServiceUnavailable, msgRendererLoading
		w.Header().Set("Retry-After", "5")
	case errors.Is(err, model.ErrPermissionDenied):
		status, message = http.StatusForbidden, msgForbidden
	case errors.Is(err, model.ErrSubmissionInFlight):
		status, message = http.StatusConflict, msgInFlight
	default:
		h.logger.Error("Page handler: request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error())
	}

	p := page{Organization: h.organization, Message: message}
	h.render(w, status, pageError, p)
}
