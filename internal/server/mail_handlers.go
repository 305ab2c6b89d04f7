package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/Ince88/prv/internal/logging"
	"github.com/Ince88/prv/internal/session"
)

// callbackPage is the HTML confirmation shown after a successful OAuth
// callback; the window closes itself shortly after.
const callbackPage = `<html>
<head>
    <title>Gmail Connected!</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
        }
        .container {
            background: white;
            padding: 48px;
            border-radius: 16px;
            box-shadow: 0 20px 60px rgba(0,0,0,0.3);
            text-align: center;
            max-width: 400px;
        }
        h1 { color: #27ae60; margin-bottom: 16px; }
        p { color: #666; margin-bottom: 24px; line-height: 1.6; }
        button {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            border: none;
            padding: 12px 32px;
            border-radius: 8px;
            font-size: 16px;
            font-weight: 600;
            cursor: pointer;
        }
        button:hover { opacity: 0.9; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Gmail Connected!</h1>
        <p>Your Gmail account has been successfully connected. You can now load email history.</p>
        <button onclick="window.close()">Close Window</button>
        <script>
            setTimeout(() => {
                window.close();
                if (!window.closed) {
                    window.location.href = '/';
                }
            }, 3000);
        </script>
    </div>
</body>
</html>`

// handleMailAuthURL starts the OAuth flow: a state nonce is stored in the
// session and the provider authorization URL returned.
func (s *Server) handleMailAuthURL(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Google.Enabled() {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:      "Gmail API is not configured.",
			NeedsSetup: true,
		})
		return
	}

	sessionID := s.sessionID(w, r)
	state := uuid.NewString()
	s.sessions.Update(sessionID, func(sess *session.Session) {
		sess.OAuthState = state
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": s.connector.AuthURL(state),
	})
}

// handleMailCallback finishes the OAuth flow: the state nonce is verified,
// the code exchanged and the token stored in the session.
func (s *Server) handleMailCallback(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)

	sess, ok := s.sessions.Get(sessionID)
	state := r.URL.Query().Get("state")
	if !ok || sess.OAuthState == "" || sess.OAuthState != state {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("<h1>Error: Invalid state</h1><p>Please try again.</p>"))
		return
	}

	code := r.URL.Query().Get("code")
	token, err := s.connector.Exchange(r.Context(), code)
	if err != nil {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<h1>Error</h1><p>" + err.Error() + "</p>"))
		return
	}

	email, fresh, err := s.connector.Profile(r.Context(), token)
	if err != nil {
		// The token is valid even when the profile fetch fails.
		email = "Connected"
		fresh = token
	}

	s.sessions.Update(sessionID, func(sess *session.Session) {
		sess.MailToken = fresh
		sess.MailUserEmail = email
		sess.OAuthState = ""
	})

	s.logger.Info("mail account connected",
		logging.Operation("gmail_callback"),
		"account", logging.AnonymizeEmail(email))

	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(callbackPage))
}

// handleMailStatus reports whether the session has a connected mail account.
func (s *Server) handleMailStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)

	var email any
	connected := false
	if sess, ok := s.sessions.Get(sessionID); ok && sess.MailToken != nil {
		connected = true
		email = sess.MailUserEmail
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"connected": connected,
		"email":     email,
	})
}

// handleMailDisconnect drops the session's mail authorization.
func (s *Server) handleMailDisconnect(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)
	s.sessions.Update(sessionID, func(sess *session.Session) {
		sess.MailToken = nil
		sess.MailUserEmail = ""
		sess.OAuthState = ""
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type loadEmailsRequest struct {
	Email string `json:"email"`
}

// handleLoadEmails fetches the email history exchanged with one address.
func (s *Server) handleLoadEmails(w http.ResponseWriter, r *http.Request) {
	var req loadEmailsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	address := strings.TrimSpace(req.Email)
	if address == "" {
		writeError(w, http.StatusBadRequest, "Email address is required")
		return
	}

	sessionID := s.sessionID(w, r)
	token := s.mailToken(sessionID)
	if token == nil {
		writeNeedsAuth(w, "Gmail not authorized. Please connect your Gmail account first.")
		return
	}

	messages, fresh, err := s.reader.LoadHistory(r.Context(), token, address, 0)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	s.persistToken(sessionID, fresh)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"email":   address,
		"count":   len(messages),
		"emails":  messages,
	})
}

// mailToken returns the session's mail token, or nil.
func (s *Server) mailToken(sessionID string) *oauth2.Token {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil
	}
	return sess.MailToken
}

// persistToken writes a refreshed token back to the session.
func (s *Server) persistToken(sessionID string, token *oauth2.Token) {
	if token == nil {
		return
	}
	s.sessions.Update(sessionID, func(sess *session.Session) {
		sess.MailToken = token
	})
}
