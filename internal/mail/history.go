package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/Ince88/prv/internal/logging"
)

// Direction classifies who authored a historical message.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// DefaultHistoryLimit is the number of messages fetched per correspondent.
const DefaultHistoryLimit = 20

// Message is one historical email reshaped for the frontend.
type Message struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	From      string `json:"from"`
	Date      string `json:"date"`
	Body      string `json:"body"`
	Direction string `json:"direction"`
}

// Reader loads email history through the provider's message API.
type Reader struct {
	connector *Connector
	// operatorAliases are extra markers (names, alternate addresses)
	// identifying the operator in a From header.
	operatorAliases []string
	logger          *slog.Logger
}

// NewReader creates a history reader.
func NewReader(connector *Connector, operatorAliases []string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		connector:       connector,
		operatorAliases: operatorAliases,
		logger:          logging.WithService(logger, "mail"),
	}
}

// LoadHistory fetches up to max messages exchanged with the given address,
// newest first as returned by the provider. The possibly refreshed token is
// returned alongside so the caller can persist it.
func (r *Reader) LoadHistory(ctx context.Context, token *oauth2.Token, address string, max int64) ([]Message, *oauth2.Token, error) {
	if max <= 0 {
		max = DefaultHistoryLimit
	}

	svc, fresh, err := r.connector.service(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	accountEmail := ""
	if profile, err := svc.Users.GetProfile("me").Do(); err == nil {
		accountEmail = profile.EmailAddress
	}

	query := fmt.Sprintf("from:%s OR to:%s", address, address)
	list, err := svc.Users.Messages.List("me").Q(query).MaxResults(max).Do()
	if err != nil {
		return nil, fresh, fmt.Errorf("failed to search messages: %w", err)
	}

	messages := make([]Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		full, err := svc.Users.Messages.Get("me", ref.Id).Format("full").Do()
		if err != nil {
			// One unreadable message should not sink the whole history.
			r.logger.Warn("failed to fetch message", logging.Operation("load_emails"),
				"message_id", ref.Id, logging.Err(err))
			continue
		}

		from := headerValue(full.Payload, "From")
		messages = append(messages, Message{
			ID:        ref.Id,
			Subject:   headerValueDefault(full.Payload, "Subject", "No Subject"),
			From:      from,
			Date:      formatDate(headerValue(full.Payload, "Date")),
			Body:      ExtractBody(full.Payload),
			Direction: r.classifyDirection(from, accountEmail),
		})
	}

	r.logger.Info("history loaded", logging.Operation("load_emails"),
		"correspondent", logging.AnonymizeEmail(address), "count", len(messages))
	return messages, fresh, nil
}

// classifyDirection decides whether the operator authored the message by
// matching the connected account address and configured aliases against the
// From header.
func (r *Reader) classifyDirection(from, accountEmail string) string {
	lower := strings.ToLower(from)
	if accountEmail != "" && strings.Contains(lower, strings.ToLower(accountEmail)) {
		return DirectionSent
	}
	for _, alias := range r.operatorAliases {
		if alias != "" && strings.Contains(lower, alias) {
			return DirectionSent
		}
	}
	return DirectionReceived
}

// headerValue returns the value of a payload header, case-insensitively.
func headerValue(payload *gmail.MessagePart, name string) string {
	if payload == nil {
		return ""
	}
	for _, h := range payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func headerValueDefault(payload *gmail.MessagePart, name, fallback string) string {
	if v := headerValue(payload, name); v != "" {
		return v
	}
	return fallback
}

// formatDate reformats an RFC 2822 date header; the raw header is kept when
// it does not parse.
func formatDate(date string) string {
	if date == "" {
		return ""
	}
	if t, err := mail.ParseDate(date); err == nil {
		return t.Format("2006-01-02 15:04")
	}
	return date
}
