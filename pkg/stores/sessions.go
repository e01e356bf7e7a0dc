// Package stores holds the view-model stores the UI binds to. Each
// store caches one user's slice of the data in memory, refreshed from
// its repository on user switch and patched optimistically after each
// successful local write. Caches are independent: a write made through
// one store is not visible in another until that store refreshes.
package stores

import (
	"fmt"
	"sync"

	"github.com/studykit/studygo/internal/store"
	"github.com/studykit/studygo/pkg/chatrepo"
)

// SessionStore caches the active user's chat sessions, most recently
// active first. Thread-safe for concurrent access from WASM callbacks.
type SessionStore struct {
	mu       sync.RWMutex
	repo     *chatrepo.Service
	userID   string
	sessions []*chatrepo.Session
	activeID string
}

// NewSessionStore creates an empty session store.
func NewSessionStore(repo *chatrepo.Service) *SessionStore {
	return &SessionStore{repo: repo}
}

// SetUser rescopes the store to a user and hydrates the cache. An empty
// userID (sign-out) clears everything.
func (s *SessionStore) SetUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userID = userID
	s.activeID = ""
	s.sessions = nil
	if userID == "" {
		return nil
	}

	sessions, err := s.repo.GetSessions(userID, 0)
	if err != nil {
		return fmt.Errorf("hydrate sessions: %w", err)
	}
	s.sessions = sessions
	return nil
}

// Refresh re-reads the cache from the repository.
func (s *SessionStore) Refresh() error {
	s.mu.RLock()
	userID := s.userID
	s.mu.RUnlock()
	return s.SetUser(userID)
}

// Sessions returns a snapshot of the cached sessions.
func (s *SessionStore) Sessions() []*chatrepo.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*chatrepo.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// Create persists a new session and places it at the front of the cache.
func (s *SessionStore) Create(title string, typ store.SessionType, subjectID string) (*chatrepo.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID == "" {
		return nil, fmt.Errorf("create session: no active user")
	}

	sess := &chatrepo.Session{Title: title, Type: typ, SubjectID: subjectID, IsActive: true}
	if err := s.repo.SaveSession(sess, s.userID); err != nil {
		return nil, err
	}

	s.sessions = append([]*chatrepo.Session{sess}, s.sessions...)
	s.activeID = sess.ID
	return sess, nil
}

// Rename persists a title change, then patches the cached copy.
func (s *SessionStore) Rename(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.UpdateSession(id, chatrepo.SessionUpdate{Title: &title}); err != nil {
		return err
	}
	for _, sess := range s.sessions {
		if sess.ID == id {
			sess.Title = title
			break
		}
	}
	return nil
}

// Delete removes a session (and, through the repository, its messages),
// then drops it from the cache.
func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteSession(id); err != nil {
		return err
	}
	for i, sess := range s.sessions {
		if sess.ID == id {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			break
		}
	}
	if s.activeID == id {
		s.activeID = ""
	}
	return nil
}

// SetActive marks which cached session the UI is showing.
func (s *SessionStore) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = id
}

// Active returns the cached active session, or nil.
func (s *SessionStore) Active() *chatrepo.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.ID == s.activeID {
			return sess
		}
	}
	return nil
}
