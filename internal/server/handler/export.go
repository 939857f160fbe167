package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// ExportHandler serves ledger snapshot export triggers.
type ExportHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending triggers one export run
}

// NewExportHandler creates an ExportHandler with the given logger.
func NewExportHandler(logger *slog.Logger) *ExportHandler {
	return &ExportHandler{logger: logger}
}

// WithTriggerChannel sets the channel to send on when an export is requested.
// The export loop must receive from this channel to run one cycle.
func (h *ExportHandler) WithTriggerChannel(ch chan<- struct{}) *ExportHandler {
	h.triggerCh = ch
	return h
}

// TriggerExport enqueues one ledger snapshot export. The send is
// non-blocking; a run already pending absorbs the request.
// POST /api/export/trigger
func (h *ExportHandler) TriggerExport(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "handler: ledger export requested")
	if h.triggerCh != nil {
		select {
		case h.triggerCh <- struct{}{}:
		default:
			// already triggered and not yet consumed
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "ledger export enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
