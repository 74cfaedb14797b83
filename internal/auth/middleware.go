package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/af-corp/persona-assistant/internal/httputil"
)

// Middleware authenticates requests via a Bearer session token.
func Middleware(store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteAuthError(w, reqID, "Missing Authorization header. Use: Authorization: Bearer <session-token>")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				httputil.WriteAuthError(w, reqID, "Invalid Authorization format. Use: Authorization: Bearer <session-token>")
				return
			}
			if token == "" {
				httputil.WriteAuthError(w, reqID, "Empty session token")
				return
			}

			sess, err := store.Lookup(r.Context(), HashToken(token))
			if err != nil {
				slog.Error("session lookup failed", "error", err, "token_prefix", SafePrefix(token))
				httputil.WriteInternalError(w, reqID)
				return
			}
			if sess == nil || sess.Expired(time.Now()) {
				slog.Warn("auth failed: session not found or expired", "token_prefix", SafePrefix(token))
				httputil.WriteAuthError(w, reqID, "Invalid or expired session")
				return
			}

			ctx := ContextWithAuth(r.Context(), &AuthInfo{SessionID: sess.ID, UserID: sess.UserID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
