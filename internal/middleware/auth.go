package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

const operatorKey contextKey = "operator"

// OperatorKeyAuth guards operator-only routes. keys maps an operator name to
// its API key; requests must send "Authorization: Bearer <key>" or the bare key.
func OperatorKeyAuth(keys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if auth == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}
			apiKey := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			// constant-time, and every key is compared
			var name string
			for op, key := range keys {
				if key != "" && subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
					name = op
				}
			}
			if name == "" {
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operatorKey, name)))
		})
	}
}

// OperatorFromContext returns the operator authenticated by OperatorKeyAuth.
func OperatorFromContext(ctx context.Context) string {
	if op, ok := ctx.Value(operatorKey).(string); ok {
		return op
	}
	return ""
}
