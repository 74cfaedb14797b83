package gateway

import (
	"net/http"

	"github.com/google/uuid"
)

const headerRequestID = "X-Request-ID"

// RequestID assigns the request id, which doubles as the task id. A client id
// is honoured only when it is a valid UUID, so retries of the same turn can
// reuse it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(headerRequestID)
		if u, err := uuid.Parse(reqID); err == nil {
			reqID = u.String()
		} else {
			reqID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, reqID)
		next.ServeHTTP(w, r)
	})
}
