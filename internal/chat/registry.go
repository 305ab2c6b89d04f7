// Package chat relays messages between web clients and the hosted AI
// assistant service. Each client-supplied session id maps to one remote
// conversation thread, created lazily on first message and held in process
// memory for the process lifetime.
package chat

import (
	"sync"
)

// Conversation is the in-memory state of one chat session.
type Conversation struct {
	// ThreadID is the remote conversation handle, empty until the first
	// message creates it.
	ThreadID string
}

// Registry maps client session ids to conversations. The id namespace is
// separate from the web session: it is supplied by the frontend per chat
// widget.
type Registry struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
}

// NewRegistry creates an empty conversation registry.
func NewRegistry() *Registry {
	return &Registry{conversations: make(map[string]*Conversation)}
}

// Get returns the conversation for a session id, creating it if needed.
func (r *Registry) Get(sessionID string) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[sessionID]
	if !ok {
		conv = &Conversation{}
		r.conversations[sessionID] = conv
	}
	return conv
}

// Clear removes the conversation for a session id. Clearing an absent
// conversation is a no-op, not an error.
func (r *Registry) Clear(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conversations, sessionID)
}

// Len returns the number of live conversations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conversations)
}
