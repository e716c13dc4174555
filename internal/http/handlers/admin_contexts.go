package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quitaai/cobranca-ai-platform/internal/engine"
	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

// AdminContextsHandler exposes read and delete access to conversation
// contexts for support operators.
type AdminContextsHandler struct {
	store  *engine.MemoryStore
	logger *logging.Logger
}

func NewAdminContextsHandler(store *engine.MemoryStore, logger *logging.Logger) *AdminContextsHandler {
	if store == nil {
		panic("handlers: memory store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminContextsHandler{store: store, logger: logger}
}

// Get is mounted at GET /admin/contexts/{sender}.
func (h *AdminContextsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sender := chi.URLParam(r, "sender")
	if sender == "" {
		http.Error(w, "sender required", http.StatusBadRequest)
		return
	}

	snap, found, err := h.store.Peek(r.Context(), sender)
	if err != nil {
		if errors.Is(err, engine.ErrLockTimeout) {
			http.Error(w, "sender busy, retry later", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("failed to read context", "sender", sender, "error", err)
		http.Error(w, "failed to read context", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "context not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sender":               snap.Sender,
		"name":                 snap.Name,
		"state":                snap.State,
		"last_intent":          snap.LastIntent,
		"last_emotion":         snap.LastEmotion,
		"history_len":          snap.HistoryLen,
		"negotiation_attempts": snap.NegotiationAttempts,
		"facts":                snap.Facts,
		"open_amount_cents":    snap.OpenAmountCents,
		"updated_at":           snap.UpdatedAt,
	})
}

// Delete is mounted at DELETE /admin/contexts/{sender}. Used for LGPD
// erasure requests.
func (h *AdminContextsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sender := chi.URLParam(r, "sender")
	if sender == "" {
		http.Error(w, "sender required", http.StatusBadRequest)
		return
	}

	if err := h.store.Delete(r.Context(), sender); err != nil {
		if errors.Is(err, engine.ErrLockTimeout) {
			http.Error(w, "sender busy, retry later", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("failed to delete context", "sender", sender, "error", err)
		http.Error(w, "failed to delete context", http.StatusInternalServerError)
		return
	}

	h.logger.Info("conversation context deleted", "sender", sender)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
