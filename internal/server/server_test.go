package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ince88/prv/internal/chat"
	"github.com/Ince88/prv/internal/config"
	"github.com/Ince88/prv/internal/crm"
	"github.com/Ince88/prv/internal/mail"
	"github.com/Ince88/prv/internal/session"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.MaxUploadBytes = 1 << 20
	if mutate != nil {
		mutate(cfg)
	}

	assistants, err := cfg.OpenAI.Assistants()
	require.NoError(t, err)

	store := session.NewMemoryStore(time.Hour, nil)
	t.Cleanup(store.Stop)

	connector := mail.NewConnector("", "", "")

	return New(Options{
		Config:     cfg,
		Assistants: assistants,
		Sessions:   store,
		Relay:      chat.NewRelay("", chat.NewRegistry(), nil),
		Connector:  connector,
		Reader:     mail.NewReader(connector, nil, nil),
		Mailer:     mail.NewMailer(connector, "", 0, nil),
	})
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader([]byte("{}"))
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckConfigUnconfigured(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/check_config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	assert.Equal(t, false, payload["hasOpenAI"])
	assert.Equal(t, false, payload["hasGmail"])
	assert.Equal(t, false, payload["hasMiniCRM"])
}

func TestAssistantsList(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/assistants", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	assistants, ok := payload["assistants"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, assistants, "Marketing Expert")
	assert.Contains(t, assistants, "General Assistant")
}

func TestSendMessageWithoutAPIKey(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/send_message", map[string]string{"message": "hi"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "not configured")
}

func TestClearConversationAlwaysSucceeds(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/clear_conversation", map[string]string{"session_id": "never-seen"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])
}

func TestBasicAuth(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Users = "admin:secret"
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.SetBasicAuth("unknown", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuthEmptyPasswordRejected(t *testing.T) {
	// An account configured with an empty password must stay locked out.
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Users = "admin:"
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.SetBasicAuth("admin", "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMailAuthURLNeedsSetup(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/gmail_auth_url", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["needs_setup"])
}

func TestMailStatusDisconnected(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/gmail_status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["connected"])

	// First contact issues a session cookie.
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, sessionCookie, cookies[0].Name)
}

func TestLoadEmailsRequiresAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/load_emails", map[string]string{"email": "jo@acme.hu"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	payload := decodeBody(t, rec)
	assert.Equal(t, true, payload["needs_auth"])
}

func TestLoadEmailsRequiresAddress(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/load_emails", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func uploadCSV(t *testing.T, srv *Server, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload_excel", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestUploadContacts(t *testing.T) {
	srv := newTestServer(t, nil)

	csv := "Company,Person,Email\nAcme,Jo,jo@acme.hu\nBeta,Kata,kata@beta.hu\n"
	rec := uploadCSV(t, srv, "contacts.csv", csv)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	assert.Equal(t, float64(2), payload["count"])
	assert.Equal(t, float64(2), payload["total_contacts"])
}

func TestUploadContactsMissingColumn(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := uploadCSV(t, srv, "contacts.csv", "Company,Person\nAcme,Jo\n")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "email")
}

func TestUploadContactsBadExtension(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := uploadCSV(t, srv, "contacts.pdf", "not a contact file")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendBulkRequiresAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/send_bulk_emails", map[string]string{
		"subject": "Hi", "body": "Hello",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["needs_auth"])
}

func TestSendBulkValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/send_bulk_emails", map[string]string{"subject": "Hi"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCRMStatusDisabled(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/minicrm/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["enabled"])
}

func TestCRMEndpointsUnconfigured(t *testing.T) {
	srv := newTestServer(t, nil)

	paths := []string{
		"/api/minicrm/find_contact",
		"/api/minicrm/get_todos",
		"/api/minicrm/daily_todos",
		"/api/minicrm/update_todo",
		"/api/minicrm/update_todo_deadline",
		"/api/minicrm/update_project_status",
		"/api/minicrm/status_ids",
	}

	for _, path := range paths {
		t.Run(strings.TrimPrefix(path, "/api/minicrm/"), func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, path, map[string]any{})
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeBody(t, rec)["error"], "not configured")
		})
	}
}

func TestWriteUpstreamError(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name         string
		err          error
		expectedCode int
		needsAuth    bool
	}{
		{name: "needs auth", err: mail.ErrNeedsAuth, expectedCode: http.StatusUnauthorized, needsAuth: true},
		{name: "timeout", err: crm.ErrTimeout, expectedCode: http.StatusRequestTimeout},
		{name: "upstream status passthrough", err: &crm.StatusError{Code: http.StatusBadGateway, Body: "x"}, expectedCode: http.StatusBadGateway},
		{name: "generic", err: errors.New("boom"), expectedCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.writeUpstreamError(rec, tt.err)

			assert.Equal(t, tt.expectedCode, rec.Code)
			payload := decodeBody(t, rec)
			if tt.needsAuth {
				assert.Equal(t, true, payload["needs_auth"])
			}
		})
	}
}

func TestInvalidJSONBody(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/clear_conversation", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request", decodeBody(t, rec)["error"])
}
