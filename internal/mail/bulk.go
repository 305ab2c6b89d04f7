package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/Ince88/prv/internal/contacts"
	"github.com/Ince88/prv/internal/logging"
)

// logoContentID is the content id the signature HTML references for the
// embedded logo image.
const logoContentID = "prv_logo"

// BulkRequest is one bulk-send job: templates applied per contact.
type BulkRequest struct {
	Subject    string
	Body       string
	SenderName string
	Signature  string
	Contacts   []contacts.Contact
}

// SendOutcome identifies one recipient's result.
type SendOutcome struct {
	Email   string `json:"email"`
	Person  string `json:"person"`
	Company string `json:"company"`
	Error   string `json:"error,omitempty"`
}

// BulkResult is the per-recipient breakdown of a bulk send. A failed
// recipient never fails the batch.
type BulkResult struct {
	Success []SendOutcome `json:"success"`
	Failed  []SendOutcome `json:"failed"`
}

// Mailer sends templated bulk mail through the provider.
type Mailer struct {
	connector *Connector
	logoPath  string
	sendDelay time.Duration
	logger    *slog.Logger
}

// NewMailer creates a bulk mailer. sendDelay is the pause between
// consecutive sends; it is a rate-limit courtesy, not a correctness knob.
func NewMailer(connector *Connector, logoPath string, sendDelay time.Duration, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		connector: connector,
		logoPath:  logoPath,
		sendDelay: sendDelay,
		logger:    logging.WithService(logger, "mail"),
	}
}

// ExpandTemplate substitutes the literal {{company}}, {{person}} and
// {{email}} placeholders of a template for one contact.
func ExpandTemplate(template string, c contacts.Contact) string {
	r := strings.NewReplacer(
		"{{company}}", c.Company,
		"{{person}}", c.Person,
		"{{email}}", c.Email,
	)
	return r.Replace(template)
}

// SendBulk expands the templates against every contact and sends one
// message each, tolerating per-recipient failures. The possibly refreshed
// token is returned for session persistence.
func (m *Mailer) SendBulk(ctx context.Context, token *oauth2.Token, req BulkRequest) (*BulkResult, *oauth2.Token, error) {
	svc, fresh, err := m.connector.service(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	fromEmail := ""
	if profile, err := svc.Users.GetProfile("me").Do(); err == nil {
		fromEmail = profile.EmailAddress
	}

	var logo []byte
	if req.Signature != "" && m.logoPath != "" {
		// Missing logo downgrades to a signature without image.
		if data, err := os.ReadFile(m.logoPath); err == nil {
			logo = data
		} else {
			m.logger.Warn("could not read logo image", logging.Operation("send_bulk"),
				logging.Err(err))
		}
	}

	result := &BulkResult{Success: []SendOutcome{}, Failed: []SendOutcome{}}

	for i, contact := range req.Contacts {
		if i > 0 && m.sendDelay > 0 {
			select {
			case <-ctx.Done():
				return result, fresh, ctx.Err()
			case <-time.After(m.sendDelay):
			}
		}

		outcome := SendOutcome{Email: contact.Email, Person: contact.Person, Company: contact.Company}

		raw := buildMessage(req, contact, fromEmail, logo)
		_, err := svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Do()
		if err != nil {
			outcome.Error = err.Error()
			result.Failed = append(result.Failed, outcome)
			m.logger.Warn("bulk send failed for recipient", logging.Operation("send_bulk"),
				"recipient", logging.AnonymizeEmail(contact.Email), logging.Err(err))
			continue
		}
		result.Success = append(result.Success, outcome)
	}

	m.logger.Info("bulk send finished", logging.Operation("send_bulk"),
		"sent", len(result.Success), "failed", len(result.Failed))
	return result, fresh, nil
}

// buildMessage assembles one multipart/related HTML message for a contact
// and returns it base64url-encoded for the provider's raw send API.
func buildMessage(req BulkRequest, contact contacts.Contact, fromEmail string, logo []byte) string {
	subject := ExpandTemplate(req.Subject, contact)
	body := ExpandTemplate(req.Body, contact)

	htmlBody := strings.ReplaceAll(body, "\n", "<br>")

	var html string
	if req.Signature != "" {
		sig := strings.ReplaceAll(ExpandTemplate(req.Signature, contact), "\n", "<br>")
		html = fmt.Sprintf(
			`<html><body><div style="font-family: Arial, sans-serif; font-size: 14px; color: #333;">%s</div>`+
				`<div style="margin-top: 20px; border-top: 1px solid #e0e0e0; padding-top: 20px;">`+
				`<img src="cid:%s" alt="PRV Logo" width="120" style="display: block; margin-bottom: 15px;">`+
				`<div style="font-family: Arial, sans-serif; font-size: 14px; line-height: 1.6; color: #333;">%s</div>`+
				`</div></body></html>`,
			htmlBody, logoContentID, sig)
	} else {
		html = fmt.Sprintf(
			`<html><body><div style="font-family: Arial, sans-serif; font-size: 14px; color: #333;">%s</div></body></html>`,
			htmlBody)
	}

	const boundary = "prv-mime-boundary"

	var b strings.Builder
	b.WriteString("To: " + contact.Email + "\r\n")
	if fromEmail != "" {
		if req.SenderName != "" {
			b.WriteString(fmt.Sprintf("From: %s <%s>\r\n", req.SenderName, fromEmail))
		} else {
			b.WriteString("From: " + fromEmail + "\r\n")
		}
	}
	b.WriteString("Subject: " + encodeRFC2047(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/related; boundary=\"" + boundary + "\"\r\n")
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	b.WriteString("\r\n")

	if req.Signature != "" && len(logo) > 0 {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: image/png\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString(fmt.Sprintf("Content-ID: <%s>\r\n", logoContentID))
		b.WriteString("Content-Disposition: inline; filename=\"prv.png\"\r\n")
		b.WriteString("\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString(logo))
		b.WriteString("\r\n")
	}

	b.WriteString("--" + boundary + "--\r\n")

	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

// encodeRFC2047 encodes a header value for non-ASCII characters (Hungarian
// accents in subjects) according to RFC 2047.
func encodeRFC2047(s string) string {
	needsEncoding := false
	for _, r := range s {
		if r > 127 {
			needsEncoding = true
			break
		}
	}
	if !needsEncoding {
		return s
	}
	return mime.BEncoding.Encode("UTF-8", s)
}
