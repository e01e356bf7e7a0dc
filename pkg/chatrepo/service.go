// Package chatrepo is the repository service for chat data.
// It translates between the UI-facing domain model (time.Time fields) and
// the storage rows (millisecond timestamps), and is the only sanctioned
// read/write path for chat sessions and messages.
package chatrepo

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/studykit/studygo/internal/store"
)

// Message is the UI-facing shape of a chat message.
type Message struct {
	ID          string
	SessionID   string
	Role        store.MessageRole
	Content     string
	Status      store.MessageStatus
	Attachments []string
	Meta        store.MessageMeta
	Timestamp   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session is the UI-facing shape of a chat session.
type Session struct {
	ID             string
	Title          string
	Type           store.SessionType
	SubjectID      string
	Meta           store.SessionMeta
	IsActive       bool
	LastActivityAt time.Time
	MessageCount   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MessageUpdate is a partial message update; nil fields are left unchanged.
type MessageUpdate struct {
	Content *string
	Status  *store.MessageStatus
	Meta    *store.MessageMeta
}

// SessionUpdate is a partial session update; nil fields are left unchanged.
type SessionUpdate struct {
	Title          *string
	SubjectID      *string
	Meta           *store.SessionMeta
	IsActive       *bool
	LastActivityAt *time.Time
}

// Service is the chat repository service.
type Service struct {
	store store.Storer
}

// NewService creates a chat repository over an opened store.
func NewService(s store.Storer) *Service {
	return &Service{store: s}
}

// =============================================================================
// Messages
// =============================================================================

// SaveMessage persists one message under userID, minting an id when the
// caller left it empty. Derived fields are stamped by the store hooks.
func (s *Service) SaveMessage(m *Message, userID string) error {
	if m.SessionID == "" {
		return fmt.Errorf("save message: session id is required")
	}
	if m.Role == "" {
		return fmt.Errorf("save message: role is required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	row := messageToRow(m, userID)
	if err := s.store.PutMessage(row); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	rowIntoMessage(row, m)
	return nil
}

// SaveMessages persists a batch of messages in one transaction; the batch
// is written all-or-nothing.
func (s *Service) SaveMessages(ms []*Message, userID string) error {
	rows := make([]*store.ChatMessage, 0, len(ms))
	for _, m := range ms {
		if m.SessionID == "" {
			return fmt.Errorf("save messages: session id is required")
		}
		if m.Role == "" {
			return fmt.Errorf("save messages: role is required")
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		rows = append(rows, messageToRow(m, userID))
	}
	if err := s.store.PutMessages(rows); err != nil {
		return fmt.Errorf("save messages: %w", err)
	}
	for i, row := range rows {
		rowIntoMessage(row, ms[i])
	}
	return nil
}

// GetMessages returns the most recent limit messages of a session in
// chronological (oldest-first) order. The store fetches newest-first;
// the slice is reversed here for display.
func (s *Service) GetMessages(sessionID, userID string, limit int) ([]*Message, error) {
	rows, err := s.store.RecentMessages(sessionID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	msgs := make([]*Message, len(rows))
	for i, row := range rows {
		msgs[len(rows)-1-i] = messageFromRow(row)
	}
	return msgs, nil
}

// UpdateMessage applies a partial update to an existing message.
// Date fields become millisecond timestamps before reaching the store;
// updatedAt is bumped by the write hooks regardless of which fields changed.
func (s *Service) UpdateMessage(id string, upd MessageUpdate) error {
	row, err := s.store.GetMessage(id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if row == nil {
		return fmt.Errorf("update message: message not found: %s", id)
	}

	if upd.Content != nil {
		row.Content = *upd.Content
	}
	if upd.Status != nil {
		row.Status = *upd.Status
	}
	if upd.Meta != nil {
		row.Meta = *upd.Meta
	}

	if err := s.store.PutMessage(row); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// SearchMessages performs a case-insensitive substring search over a
// user's messages, capped at limit results.
func (s *Service) SearchMessages(userID, query string, limit int) ([]*Message, error) {
	rows, err := s.store.SearchMessages(userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	msgs := make([]*Message, len(rows))
	for i, row := range rows {
		msgs[i] = messageFromRow(row)
	}
	return msgs, nil
}

// =============================================================================
// Sessions
// =============================================================================

// SaveSession persists a session under userID, minting an id when empty.
func (s *Service) SaveSession(sess *Session, userID string) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Type == "" {
		sess.Type = store.SessionGeneral
	}

	row := sessionToRow(sess, userID)
	if err := s.store.PutSession(row); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	rowIntoSession(row, sess)
	return nil
}

// UpdateSession applies a partial update to an existing session.
func (s *Service) UpdateSession(id string, upd SessionUpdate) error {
	row, err := s.store.GetSession(id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if row == nil {
		return fmt.Errorf("update session: session not found: %s", id)
	}

	if upd.Title != nil {
		row.Title = *upd.Title
	}
	if upd.SubjectID != nil {
		row.SubjectID = *upd.SubjectID
	}
	if upd.Meta != nil {
		row.Meta = *upd.Meta
	}
	if upd.IsActive != nil {
		row.IsActive = *upd.IsActive
	}
	if upd.LastActivityAt != nil {
		row.LastActivityAt = upd.LastActivityAt.UnixMilli()
	}

	if err := s.store.PutSession(row); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns (nil, nil) when absent.
func (s *Service) GetSession(id string) (*Session, error) {
	row, err := s.store.GetSession(id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return sessionFromRow(row), nil
}

// GetSessions returns a user's sessions, most recently active first.
func (s *Service) GetSessions(userID string, limit int) ([]*Session, error) {
	rows, err := s.store.ListSessions(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}

	sessions := make([]*Session, len(rows))
	for i, row := range rows {
		sessions[i] = sessionFromRow(row)
	}
	return sessions, nil
}

// DeleteSession removes a session and every one of its messages as a
// single atomic unit.
func (s *Service) DeleteSession(id string) error {
	if err := s.store.DeleteSessionCascade(id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// =============================================================================
// Translation
// =============================================================================

func messageToRow(m *Message, userID string) *store.ChatMessage {
	return &store.ChatMessage{
		ID:          m.ID,
		SessionID:   m.SessionID,
		UserID:      userID,
		Role:        m.Role,
		Content:     m.Content,
		Status:      m.Status,
		Attachments: m.Attachments,
		Meta:        m.Meta,
		Timestamp:   timeToMs(m.Timestamp),
		CreatedAt:   timeToMs(m.CreatedAt),
		UpdatedAt:   timeToMs(m.UpdatedAt),
	}
}

func messageFromRow(row *store.ChatMessage) *Message {
	m := &Message{}
	rowIntoMessage(row, m)
	return m
}

func rowIntoMessage(row *store.ChatMessage, m *Message) {
	m.ID = row.ID
	m.SessionID = row.SessionID
	m.Role = row.Role
	m.Content = row.Content
	m.Status = row.Status
	m.Attachments = row.Attachments
	m.Meta = row.Meta
	m.Timestamp = msToTime(row.Timestamp)
	m.CreatedAt = msToTime(row.CreatedAt)
	m.UpdatedAt = msToTime(row.UpdatedAt)
}

func sessionToRow(sess *Session, userID string) *store.ChatSession {
	return &store.ChatSession{
		ID:             sess.ID,
		UserID:         userID,
		Title:          sess.Title,
		Type:           sess.Type,
		SubjectID:      sess.SubjectID,
		Meta:           sess.Meta,
		IsActive:       sess.IsActive,
		LastActivityAt: timeToMs(sess.LastActivityAt),
		MessageCount:   sess.MessageCount,
		CreatedAt:      timeToMs(sess.CreatedAt),
		UpdatedAt:      timeToMs(sess.UpdatedAt),
	}
}

func sessionFromRow(row *store.ChatSession) *Session {
	sess := &Session{}
	rowIntoSession(row, sess)
	return sess
}

func rowIntoSession(row *store.ChatSession, sess *Session) {
	sess.ID = row.ID
	sess.Title = row.Title
	sess.Type = row.Type
	sess.SubjectID = row.SubjectID
	sess.Meta = row.Meta
	sess.IsActive = row.IsActive
	sess.LastActivityAt = msToTime(row.LastActivityAt)
	sess.MessageCount = row.MessageCount
	sess.CreatedAt = msToTime(row.CreatedAt)
	sess.UpdatedAt = msToTime(row.UpdatedAt)
}

func timeToMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
