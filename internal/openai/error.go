package openai

import (
	"encoding/json"
	"net/http"
)

// Error type tags used in the proxy's error envelopes.
const (
	ErrTypeUpstreamTimeout = "upstream_timeout"
	ErrTypeUpstreamError   = "upstream_error"
	ErrTypeInvalidRequest  = "invalid_request_error"
	ErrTypeInternal        = "internal_error"
)

// WriteError writes an OpenAI-style error envelope.
func WriteError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Payload{
		"error": Payload{
			"message": message,
			"type":    errType,
			"code":    status,
		},
	})
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
