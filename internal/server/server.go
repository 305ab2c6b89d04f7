// Package server exposes the JSON HTTP surface of the prv backend: chat
// relay, mail history and bulk send, contact uploads and the MiniCRM
// gateway. All state beyond configuration lives in the session store and
// the conversation registry.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Ince88/prv/internal/chat"
	"github.com/Ince88/prv/internal/config"
	"github.com/Ince88/prv/internal/crm"
	"github.com/Ince88/prv/internal/logging"
	"github.com/Ince88/prv/internal/mail"
	"github.com/Ince88/prv/internal/session"
)

// Server is the HTTP API server.
type Server struct {
	cfg        *config.Config
	assistants map[string]config.Assistant

	sessions  session.Store
	relay     *chat.Relay
	connector *mail.Connector
	reader    *mail.Reader
	mailer    *mail.Mailer
	crm       *crm.Client // nil when the CRM integration is not configured

	basicAuthUsers map[string]string

	mux        *http.ServeMux
	httpServer *http.Server
	metrics    *Metrics
	logger     *slog.Logger
	shutdown   atomic.Bool
	startTime  time.Time
}

// Options carries the server dependencies.
type Options struct {
	Config     *config.Config
	Assistants map[string]config.Assistant
	Sessions   session.Store
	Relay      *chat.Relay
	Connector  *mail.Connector
	Reader     *mail.Reader
	Mailer     *mail.Mailer
	CRM        *crm.Client
	Metrics    *Metrics
	Logger     *slog.Logger
}

// New assembles the server and its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		cfg:            opts.Config,
		assistants:     opts.Assistants,
		sessions:       opts.Sessions,
		relay:          opts.Relay,
		connector:      opts.Connector,
		reader:         opts.Reader,
		mailer:         opts.Mailer,
		crm:            opts.CRM,
		basicAuthUsers: opts.Config.Auth.UserMap(),
		mux:            http.NewServeMux(),
		metrics:        opts.Metrics,
		logger:         logging.WithService(opts.Logger, "http"),
		startTime:      time.Now(),
	}

	s.routes()

	handler := s.withObservability(s.withBasicAuth(s.withRecovery(s.mux)))
	s.httpServer = &http.Server{
		Addr:              opts.Config.Server.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// routes registers the HTTP surface.
func (s *Server) routes() {
	// Chat relay
	s.mux.HandleFunc("POST /api/send_message", s.handleSendMessage)
	s.mux.HandleFunc("POST /api/clear_conversation", s.handleClearConversation)
	s.mux.HandleFunc("GET /api/check_config", s.handleCheckConfig)
	s.mux.HandleFunc("GET /api/assistants", s.handleAssistants)

	// Mail
	s.mux.HandleFunc("GET /api/gmail_auth_url", s.handleMailAuthURL)
	s.mux.HandleFunc("GET /api/gmail_callback", s.handleMailCallback)
	s.mux.HandleFunc("GET /api/gmail_status", s.handleMailStatus)
	s.mux.HandleFunc("POST /api/gmail_disconnect", s.handleMailDisconnect)
	s.mux.HandleFunc("POST /api/load_emails", s.handleLoadEmails)

	// Bulk mailer
	s.mux.HandleFunc("POST /api/upload_excel", s.handleUploadContacts)
	s.mux.HandleFunc("POST /api/send_bulk_emails", s.handleSendBulk)

	// CRM gateway
	s.mux.HandleFunc("GET /api/minicrm/status", s.handleCRMStatus)
	s.mux.HandleFunc("POST /api/minicrm/find_contact", s.handleFindContact)
	s.mux.HandleFunc("POST /api/minicrm/get_todos", s.handleGetTodos)
	s.mux.HandleFunc("POST /api/minicrm/daily_todos", s.handleDailyTodos)
	s.mux.HandleFunc("POST /api/minicrm/update_todo", s.handleUpdateTodo)
	s.mux.HandleFunc("POST /api/minicrm/update_todo_deadline", s.handleUpdateTodoDeadline)
	s.mux.HandleFunc("POST /api/minicrm/update_project_status", s.handleUpdateProjectStatus)
	s.mux.HandleFunc("POST /api/minicrm/status_ids", s.handleStatusIDs)

	// Probes
	s.mux.HandleFunc("GET /healthz", s.handleLiveness)
	s.mux.HandleFunc("GET /readyz", s.handleReadiness)
}

// Handler returns the assembled handler chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the listener in a blocking manner.
func (s *Server) Start() error {
	s.logger.Info("api server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the listener and marks the server as draining.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Store(true)
	return s.httpServer.Shutdown(ctx)
}

// handleLiveness reports that the process is running.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness reports whether the server accepts traffic.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if s.shutdown.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startTime).Truncate(time.Second).String(),
	})
}
