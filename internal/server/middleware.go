package server

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Ince88/prv/internal/logging"
)

// sessionCookie is the cookie carrying the opaque web-session id.
const sessionCookie = "prv_session"

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRecovery isolates a panicking route: the panic is logged and
// converted to a JSON 500 without affecting other in-flight requests or
// session state.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in handler recovered",
					"path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withBasicAuth gates the surface behind HTTP basic auth when user pairs
// are configured; an empty table leaves the surface open.
func (s *Server) withBasicAuth(next http.Handler) http.Handler {
	if len(s.basicAuthUsers) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		expected := s.basicAuthUsers[username]
		if !ok || password == "" || expected == "" ||
			subtle.ConstantTimeCompare([]byte(expected), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="PRV AI Assistant - Internal Use"`)
			http.Error(w, "Authentication required.", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withObservability logs each request and records HTTP metrics.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		if s.metrics != nil {
			s.metrics.httpRequests.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.status)).Inc()
			s.metrics.httpDuration.WithLabelValues(r.URL.Path).Observe(duration.Seconds())
		}
		s.logger.Debug("request handled",
			"method", r.Method, "path", r.URL.Path,
			logging.Status(strconv.Itoa(rec.status)),
			logging.KeyDuration, duration.String())
	})
}

// sessionID returns the web-session id of the request, issuing a cookie on
// first contact.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
