package utils

import (
	"encoding/json"
	"net/http"

	"outreach_gateway/internal/logging"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondWithError sends an error response
func RespondWithError(w http.ResponseWriter, code int, message string) {
	_ = RespondWithJSON(w, code, ErrorResponse{Error: message})
}

// RespondWithJSON sends a JSON response. The payload is encoded before any
// header is written so an encoding failure can still become a 500.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		logging.Errorf("failed to encode response: %v", err)
		body, code = []byte(`{"error":"Internal error"}`), http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if _, werr := w.Write(append(body, '\n')); werr != nil && err == nil {
		err = werr
	}
	return err
}
