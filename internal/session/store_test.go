package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore(time.Hour, nil)
	defer store.Stop()

	_, ok := store.Get("missing")
	assert.False(t, ok)

	store.Update("s1", func(s *Session) {
		s.MailUserEmail = "jo@acme.hu"
	})

	sess, ok := store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "jo@acme.hu", sess.MailUserEmail)
	assert.Equal(t, 1, store.Len())

	store.Update("s1", func(s *Session) {
		s.OAuthState = "nonce"
	})
	sess, _ = store.Get("s1")
	assert.Equal(t, "jo@acme.hu", sess.MailUserEmail)
	assert.Equal(t, "nonce", sess.OAuthState)

	store.Delete("s1")
	_, ok = store.Get("s1")
	assert.False(t, ok)

	// Deleting an absent session is a no-op.
	store.Delete("s1")
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreConcurrentUpdates(t *testing.T) {
	store := NewMemoryStore(time.Hour, nil)
	defer store.Stop()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				store.Update("shared", func(s *Session) {
					s.MailUserEmail = "jo@acme.hu"
				})
				store.Get("shared")
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, 1, store.Len())
}
