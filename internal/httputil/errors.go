package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError matches the OpenAI error response format.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// OpaqueMessage is the only detail terminal failures expose to clients.
// Classification lives in the structured logs keyed by request id.
const OpaqueMessage = "The assistant could not complete this request. Please retry later and quote the request id if the problem persists."

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:   message,
			Type:      errType,
			Code:      code,
			RequestID: requestID,
		},
	})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "invalid_session", message)
}

func WriteRateLimitError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded", message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

// WriteInternalError reports a configuration or store failure.
func WriteInternalError(w http.ResponseWriter, requestID string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", OpaqueMessage)
}

// WriteUpstreamError reports an exhausted or rejected completion.
func WriteUpstreamError(w http.ResponseWriter, requestID string) {
	WriteError(w, requestID, http.StatusBadGateway, "server_error", "upstream_error", OpaqueMessage)
}
