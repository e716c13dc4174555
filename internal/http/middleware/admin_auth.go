package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

type contextKey string

const operatorClaimsKey contextKey = "operatorClaims"

// OperatorClaims identifies the collection operator behind an admin token.
// Subject carries the operator id issued by the back office.
type OperatorClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AdminJWT guards the admin API with an HMAC-signed bearer token. The admin
// surface exposes debtor conversations, so every reject is logged for the
// audit trail.
func AdminJWT(secret string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				logger.Warn("admin request rejected, no admin secret configured", "path", r.URL.Path)
				http.Error(w, "admin API disabled", http.StatusUnauthorized)
				return
			}
			raw := bearerToken(r)
			if raw == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims := &OperatorClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				logger.Warn("admin token rejected", "path", r.URL.Path, "error", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), operatorClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// OperatorFromContext returns the authenticated operator id, if any.
func OperatorFromContext(ctx context.Context) (string, bool) {
	claims, ok := ctx.Value(operatorClaimsKey).(*OperatorClaims)
	if !ok {
		return "", false
	}
	return claims.Subject, true
}
