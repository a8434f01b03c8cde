package handler

import (
	"fmt"
	"net/http"
)

// Events streams a refresh notice to the dashboard whenever its records change.
// Sessions without a live scope get 204, which stops EventSource reconnects.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.sessions.Scope(h.sessionID(r))
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	detach := scope.Attach()
	defer detach()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		changed := scope.Changed()
		select {
		case <-r.Context().Done():
			return
		case <-h.closing:
			return
		case <-changed:
		}

		if scope.Released() {
			fmt.Fprint(w, "event: reload\ndata: released\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(w, "event: refresh\ndata: %d\n\n", scope.Snapshot().Version)
		flusher.Flush()
	}
}
