package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Ince88/prv/internal/contacts"
	"github.com/Ince88/prv/internal/mail"
	"github.com/Ince88/prv/internal/session"
)

// handleUploadContacts parses an uploaded contact sheet and stores the
// valid rows in the session for a later bulk send.
func (s *Server) handleUploadContacts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	parsed, err := contacts.ParseFile(header.Filename, file)
	if err != nil {
		var missing *contacts.MissingColumnsError
		switch {
		case errors.As(err, &missing):
			writeError(w, http.StatusBadRequest, missing.Error())
		case errors.Is(err, contacts.ErrNoValidContacts):
			writeError(w, http.StatusBadRequest, "No valid contacts found in the file")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	sessionID := s.sessionID(w, r)
	s.sessions.Update(sessionID, func(sess *session.Session) {
		sess.Contacts = parsed
	})

	preview := parsed
	if len(preview) > 10 {
		preview = preview[:10]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"count":          len(parsed),
		"contacts":       preview,
		"total_contacts": len(parsed),
	})
}

type sendBulkRequest struct {
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	SenderName string `json:"sender_name"`
	Signature  string `json:"signature"`
}

// handleSendBulk expands the templates against the session's uploaded
// contacts and sends one message per recipient. Individual failures are
// reported in the result, never as a request-level error.
func (s *Server) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	var req sendBulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" || strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "Subject and body are required")
		return
	}

	sessionID := s.sessionID(w, r)
	token := s.mailToken(sessionID)
	if token == nil {
		writeNeedsAuth(w, "Gmail not authorized. Please connect your Gmail account first.")
		return
	}

	sess, ok := s.sessions.Get(sessionID)
	if !ok || len(sess.Contacts) == 0 {
		writeError(w, http.StatusBadRequest, "No contacts loaded. Please upload a contact file first.")
		return
	}

	result, fresh, err := s.mailer.SendBulk(r.Context(), token, mail.BulkRequest{
		Subject:    req.Subject,
		Body:       req.Body,
		SenderName: strings.TrimSpace(req.SenderName),
		Signature:  req.Signature,
		Contacts:   sess.Contacts,
	})
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	s.persistToken(sessionID, fresh)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"results":      result,
		"total_sent":   len(result.Success),
		"total_failed": len(result.Failed),
	})
}
