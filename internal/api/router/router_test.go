package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quitaai/cobranca-ai-platform/internal/engine"
	"github.com/quitaai/cobranca-ai-platform/internal/http/handlers"
	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := logging.New("error")
	store := engine.NewMemoryStore(engine.MemoryStoreConfig{}, logger)
	t.Cleanup(store.Close)

	return New(&Config{
		Logger:          logger,
		AdminContexts:   handlers.NewAdminContextsHandler(store, logger),
		AdminAuthSecret: "test-secret",
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestRouterAdminRequiresJWT(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/contexts/+5511999990000", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterAdminAcceptsValidJWT(t *testing.T) {
	r := newTestRouter(t)

	claims := jwt.RegisteredClaims{
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/contexts/+5511999990000", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// Authenticated but no such context.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
