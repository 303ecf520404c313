package session

import (
	"sync"

	"genie-bridge/internal/domain"
)

// Store maps external user IDs to their conversation sessions. It is
// constructed once at process start and injected wherever session state is
// needed; all access goes through the store's own lock so concurrent turns
// for the same user are safe.
type Store struct {
	mu       sync.RWMutex
	retain   bool
	sessions map[string]*domain.Session
}

// New creates a Store. When retain is false every Resolve returns a fresh
// session and nothing is kept between calls (each question starts a new
// conversation).
func New(retain bool) *Store {
	return &Store{
		retain:   retain,
		sessions: make(map[string]*domain.Session),
	}
}

// Resolve returns the retained session for userID, creating and storing a
// fresh one on first contact. With retention disabled the returned session
// is never stored.
func (s *Store) Resolve(userID string) domain.Session {
	if !s.retain {
		return domain.Session{UserID: userID}
	}

	s.mu.RLock()
	if sess, ok := s.sessions[userID]; ok {
		copied := *sess
		s.mu.RUnlock()
		return copied
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return *sess
	}
	sess := &domain.Session{UserID: userID}
	s.sessions[userID] = sess
	return *sess
}

// Update records the conversation ID learned from a user's first completed
// turn. First write wins: once a session holds a non-empty conversation ID
// it is never overwritten, so a racing second turn's update is a no-op.
func (s *Store) Update(userID, conversationID string) {
	if !s.retain || conversationID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		s.sessions[userID] = &domain.Session{UserID: userID, ConversationID: conversationID}
		return
	}
	if sess.ConversationID == "" {
		sess.ConversationID = conversationID
	}
}

// Reset drops the user's session so their next question starts a new
// conversation.
func (s *Store) Reset(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
