// Package session holds per-user web-session state: the mail OAuth token,
// the connected mail address, the pending OAuth state nonce and the most
// recently uploaded contact list. State lives for the web session only and
// is lost on restart.
package session

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/Ince88/prv/internal/contacts"
)

// Session is the state attached to one web session.
type Session struct {
	MailToken     *oauth2.Token
	MailUserEmail string
	OAuthState    string
	Contacts      []contacts.Contact
}

// Store is the session backing. The in-memory implementation below is the
// default; the interface exists so a shared store can replace it in a
// multi-instance deployment.
type Store interface {
	// Get returns the session for id, or false when none exists.
	Get(id string) (*Session, bool)
	// Update applies fn to the session for id, creating it on first write.
	Update(id string, fn func(*Session))
	// Delete removes the session for id. Removing an absent session is a no-op.
	Delete(id string)
	// Stop releases any background resources held by the store.
	Stop()
}

// entry tracks a session plus its last access time for expiry.
type entry struct {
	session    *Session
	lastAccess time.Time
}

// MemoryStore is a mutex-guarded in-process session store with periodic
// expiry of idle sessions. Concurrent writes to the same session id are
// last-write-wins; each id is effectively owned by one client at a time.
type MemoryStore struct {
	mu            sync.RWMutex
	sessions      map[string]*entry
	ttl           time.Duration
	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	logger        *slog.Logger
}

// NewMemoryStore creates a memory store expiring sessions idle longer than ttl.
func NewMemoryStore(ttl time.Duration, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}

	s := &MemoryStore{
		sessions:      make(map[string]*entry),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(10 * time.Minute),
		cleanupDone:   make(chan struct{}),
		logger:        logger,
	}

	go s.cleanupExpired()

	return s
}

// Get returns the session for id and refreshes its last access time.
func (s *MemoryStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastAccess = time.Now()
	return e.session, true
}

// Update applies fn to the session for id, creating the session on first write.
func (s *MemoryStore) Update(id string, fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		e = &entry{session: &Session{}}
		s.sessions[id] = e
	}
	e.lastAccess = time.Now()
	fn(e.session)
}

// Delete removes the session for id.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// cleanupExpired periodically removes sessions idle longer than the TTL.
func (s *MemoryStore) cleanupExpired() {
	for {
		select {
		case <-s.cleanupTicker.C:
			s.mu.Lock()
			now := time.Now()
			expired := 0
			for id, e := range s.sessions {
				if now.Sub(e.lastAccess) > s.ttl {
					delete(s.sessions, id)
					expired++
				}
			}
			s.mu.Unlock()
			if expired > 0 {
				s.logger.Info("Cleaned up expired sessions", "count", expired)
			}
		case <-s.cleanupDone:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
	}
	if s.cleanupDone != nil {
		close(s.cleanupDone)
	}
}
