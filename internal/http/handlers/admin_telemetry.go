package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quitaai/cobranca-ai-platform/internal/engine"
	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

// TelemetryReader is the query side of the telemetry store.
type TelemetryReader interface {
	IntentCounts(ctx context.Context, since time.Time) (map[string]int64, error)
	RecentBySender(ctx context.Context, sender string, limit int) ([]engine.TelemetryRecord, error)
}

// AdminTelemetryHandler exposes turn telemetry to the reporting dashboard.
type AdminTelemetryHandler struct {
	reader TelemetryReader
	logger *logging.Logger
}

func NewAdminTelemetryHandler(reader TelemetryReader, logger *logging.Logger) *AdminTelemetryHandler {
	if reader == nil {
		panic("handlers: telemetry reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminTelemetryHandler{reader: reader, logger: logger}
}

// IntentCounts is mounted at GET /admin/telemetry/intents?hours=24.
func (h *AdminTelemetryHandler) IntentCounts(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid hours parameter", http.StatusBadRequest)
			return
		}
		hours = parsed
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	counts, err := h.reader.IntentCounts(r.Context(), since)
	if err != nil {
		h.logger.Error("failed to query intent counts", "error", err)
		http.Error(w, "failed to query telemetry", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"since":   since,
		"intents": counts,
	})
}

// SenderHistory is mounted at GET /admin/telemetry/senders/{sender}.
func (h *AdminTelemetryHandler) SenderHistory(w http.ResponseWriter, r *http.Request) {
	sender := chi.URLParam(r, "sender")
	if sender == "" {
		http.Error(w, "sender required", http.StatusBadRequest)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.reader.RecentBySender(r.Context(), sender, limit)
	if err != nil {
		h.logger.Error("failed to query sender telemetry", "sender", sender, "error", err)
		http.Error(w, "failed to query telemetry", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sender":  sender,
		"records": records,
	})
}
