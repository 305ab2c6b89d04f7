package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Ince88/prv/internal/logging"
)

// ErrNotConfigured is returned when no API key is configured for the relay.
var ErrNotConfigured = errors.New("chat: AI service is not configured")

// ErrEmptyResponse is returned when a completed run produced no assistant
// message.
var ErrEmptyResponse = errors.New("chat: assistant returned no response")

// Relay forwards messages to the assistant service and polls runs to
// completion. One relay is shared across all conversations.
type Relay struct {
	client       openai.Client
	registry     *Registry
	logger       *slog.Logger
	pollInterval time.Duration
	pollBudget   time.Duration
	enabled      bool
}

// NewRelay creates a relay. An empty apiKey yields a disabled relay whose
// Send returns ErrNotConfigured; the rest of the server works without it.
func NewRelay(apiKey string, registry *Registry, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		registry:     registry,
		logger:       logging.WithService(logger, "chat"),
		pollInterval: 500 * time.Millisecond,
		pollBudget:   2 * time.Minute,
		enabled:      apiKey != "",
	}
	if r.enabled {
		r.client = openai.NewClient(option.WithAPIKey(apiKey))
	}
	return r
}

// Enabled reports whether the relay has an API key.
func (r *Relay) Enabled() bool {
	return r.enabled
}

// Clear drops the conversation state of a session id.
func (r *Relay) Clear(sessionID string) {
	r.registry.Clear(sessionID)
}

// Send forwards a user message within the conversation of sessionID, runs
// the given assistant against the thread and returns the assistant's reply.
// The thread is created lazily on the first message of a session.
func (r *Relay) Send(ctx context.Context, sessionID, assistantID, message string) (string, error) {
	if !r.enabled {
		return "", ErrNotConfigured
	}

	conv := r.registry.Get(sessionID)

	if conv.ThreadID == "" {
		thread, err := r.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
		if err != nil {
			return "", fmt.Errorf("failed to create thread: %w", err)
		}
		conv.ThreadID = thread.ID
	}

	_, err := r.client.Beta.Threads.Messages.New(ctx, conv.ThreadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(message),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to append message: %w", err)
	}

	run, err := r.client.Beta.Threads.Runs.New(ctx, conv.ThreadID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}

	run, err = r.waitForRun(ctx, conv.ThreadID, run)
	if err != nil {
		return "", err
	}

	if run.Status != openai.RunStatusCompleted {
		return "", fmt.Errorf("chat: run ended with status %q", run.Status)
	}

	reply, err := r.latestAssistantMessage(ctx, conv.ThreadID)
	if err != nil {
		return "", err
	}

	r.logger.Info("message relayed", logging.Operation("send_message"),
		"thread", conv.ThreadID)
	return reply, nil
}

// waitForRun polls the run until it leaves the queued/in-progress states or
// the poll budget expires.
func (r *Relay) waitForRun(ctx context.Context, threadID string, run *openai.Run) (*openai.Run, error) {
	deadline := time.Now().Add(r.pollBudget)
	for run.Status == openai.RunStatusQueued || run.Status == openai.RunStatusInProgress {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("chat: run %s did not finish within %s", run.ID, r.pollBudget)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.pollInterval):
		}

		updated, err := r.client.Beta.Threads.Runs.Get(ctx, threadID, run.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll run: %w", err)
		}
		run = updated
	}
	return run, nil
}

// latestAssistantMessage returns the text of the most recent
// assistant-authored message in the thread.
func (r *Relay) latestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	page, err := r.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list messages: %w", err)
	}

	for _, msg := range page.Data {
		if msg.Role != openai.MessageRoleAssistant {
			continue
		}
		for _, part := range msg.Content {
			if part.Type == "text" && part.Text.Value != "" {
				return part.Text.Value, nil
			}
		}
	}
	return "", ErrEmptyResponse
}
