package stores

import (
	"fmt"
	"sync"

	"github.com/studykit/studygo/internal/store"
	"github.com/studykit/studygo/pkg/chatrepo"
)

// MessageStore caches the message list of the session currently open in
// the UI, oldest first.
type MessageStore struct {
	mu        sync.RWMutex
	repo      *chatrepo.Service
	userID    string
	sessionID string
	messages  []*chatrepo.Message
}

// NewMessageStore creates an empty message store.
func NewMessageStore(repo *chatrepo.Service) *MessageStore {
	return &MessageStore{repo: repo}
}

// SetUser rescopes the store; the open session does not carry across
// users, so the cache clears.
func (m *MessageStore) SetUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userID = userID
	m.sessionID = ""
	m.messages = nil
}

// Open loads a session's recent messages into the cache. limit <= 0
// loads the whole history.
func (m *MessageStore) Open(sessionID string, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.userID == "" {
		return fmt.Errorf("open session: no active user")
	}

	msgs, err := m.repo.GetMessages(sessionID, m.userID, limit)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	m.sessionID = sessionID
	m.messages = msgs
	return nil
}

// Messages returns a snapshot of the cached messages.
func (m *MessageStore) Messages() []*chatrepo.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*chatrepo.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Append persists a new message in the open session and adds it to the
// end of the cache.
func (m *MessageStore) Append(role store.MessageRole, content string, status store.MessageStatus) (*chatrepo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID == "" {
		return nil, fmt.Errorf("append message: no open session")
	}

	msg := &chatrepo.Message{
		SessionID: m.sessionID,
		Role:      role,
		Content:   content,
		Status:    status,
	}
	if err := m.repo.SaveMessage(msg, m.userID); err != nil {
		return nil, err
	}

	m.messages = append(m.messages, msg)
	return msg, nil
}

// UpdateStatus persists a delivery-status change, then patches the
// cached copy.
func (m *MessageStore) UpdateStatus(id string, status store.MessageStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.repo.UpdateMessage(id, chatrepo.MessageUpdate{Status: &status}); err != nil {
		return err
	}
	for _, msg := range m.messages {
		if msg.ID == id {
			msg.Status = status
			break
		}
	}
	return nil
}

// SessionID returns the id of the open session, or "".
func (m *MessageStore) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}
