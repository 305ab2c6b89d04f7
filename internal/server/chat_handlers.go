package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Ince88/prv/internal/chat"
)

// defaultAssistant is used when the client does not name one.
const defaultAssistant = "Marketing Expert"

type sendMessageRequest struct {
	Message   string `json:"message"`
	Assistant string `json:"assistant"`
	SessionID string `json:"session_id"`
}

// handleSendMessage relays one user message to the AI assistant and returns
// its reply.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if !s.relay.Enabled() {
		writeError(w, http.StatusBadRequest, "OpenAI API is not configured. Please set up your API key.")
		return
	}

	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	if req.Assistant == "" {
		req.Assistant = defaultAssistant
	}
	assistant, ok := s.assistants[req.Assistant]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown assistant: "+req.Assistant)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "default"
	}

	reply, err := s.relay.Send(r.Context(), sessionID, assistant.ID, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrNotConfigured) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"response":  reply,
		"assistant": req.Assistant,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

type clearConversationRequest struct {
	SessionID string `json:"session_id"`
}

// handleClearConversation drops a conversation's state. Clearing an unknown
// conversation succeeds.
func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	var req clearConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "default"
	}
	s.relay.Clear(sessionID)

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleCheckConfig reports which upstream integrations are configured.
func (s *Server) handleCheckConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"hasOpenAI":  s.relay.Enabled(),
		"hasGmail":   s.cfg.Google.Enabled(),
		"hasMiniCRM": s.crm != nil,
	})
}

// handleAssistants lists the configured assistants for the frontend picker.
func (s *Server) handleAssistants(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"assistants": s.assistants})
}
