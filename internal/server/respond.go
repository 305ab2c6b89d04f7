package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Ince88/prv/internal/crm"
	"github.com/Ince88/prv/internal/logging"
	"github.com/Ince88/prv/internal/mail"
)

// errorResponse is the standard error envelope of the API.
type errorResponse struct {
	Error string `json:"error"`
	// NeedsAuth tells the frontend to restart the mail OAuth flow.
	NeedsAuth bool `json:"needs_auth,omitempty"`
	// NeedsSetup tells the frontend the integration is unconfigured.
	NeedsSetup bool `json:"needs_setup,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError writes the standard error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeNeedsAuth writes the 401 + needs_auth envelope the frontend uses to
// re-trigger the OAuth flow.
func writeNeedsAuth(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: message, NeedsAuth: true})
}

// writeUpstreamError maps an upstream failure into the error taxonomy:
// missing/expired authorization is 401 with needs_auth, a timed-out
// dependency is 408, a non-2xx from a dependency passes its code through,
// anything else is a 500.
func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mail.ErrNeedsAuth):
		writeNeedsAuth(w, "Gmail not authorized. Please connect your Gmail account first.")
	case errors.Is(err, crm.ErrTimeout):
		writeError(w, http.StatusRequestTimeout, "MiniCRM API timeout")
	default:
		var statusErr *crm.StatusError
		if errors.As(err, &statusErr) {
			writeError(w, statusErr.Code, err.Error())
			return
		}
		s.logger.Error("upstream call failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeJSON decodes a JSON request body into dst, reporting malformed
// bodies as a client error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return false
	}
	return true
}
