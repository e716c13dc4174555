package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quitaai/cobranca-ai-platform/internal/engine"
	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

func newContextsRouter(t *testing.T) (*chi.Mux, *engine.MemoryStore) {
	t.Helper()
	logger := logging.New("error")
	store := engine.NewMemoryStore(engine.MemoryStoreConfig{}, logger)
	t.Cleanup(store.Close)

	h := NewAdminContextsHandler(store, logger)
	r := chi.NewRouter()
	r.Get("/admin/contexts/{sender}", h.Get)
	r.Delete("/admin/contexts/{sender}", h.Delete)
	return r, store
}

func seedContext(t *testing.T, store *engine.MemoryStore, sender string) {
	t.Helper()
	handle, err := store.Acquire(context.Background(), sender, "Maria")
	require.NoError(t, err)
	handle.Update(engine.TurnUpdate{
		Turn:  engine.Turn{Inbound: "quero parcelar", Intent: engine.IntentNegotiationRequest},
		State: engine.StateNegotiating,
	})
	handle.Release()
}

func TestAdminGetContext(t *testing.T) {
	r, store := newContextsRouter(t)
	seedContext(t, store, "+5511999990000")

	req := httptest.NewRequest(http.MethodGet, "/admin/contexts/+5511999990000", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "negotiating")
	assert.Contains(t, rec.Body.String(), "Maria")
}

func TestAdminGetContextNotFound(t *testing.T) {
	r, _ := newContextsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/contexts/+5500000000000", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminDeleteContext(t *testing.T) {
	r, store := newContextsRouter(t)
	seedContext(t, store, "+5511999990000")

	req := httptest.NewRequest(http.MethodDelete, "/admin/contexts/+5511999990000", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, store.Len())
}
