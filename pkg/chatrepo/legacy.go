package chatrepo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/studykit/studygo/internal/store"
)

// legacyChatExport mirrors the persisted shape of the old localStorage
// chat blob: { state: { sessions: [...], messages: { sessionID: [...] } } }.
type legacyChatExport struct {
	State legacyChatState `json:"state"`
}

type legacyChatState struct {
	Sessions []legacySession            `json:"sessions"`
	Messages map[string][]legacyMessage `json:"messages"`
}

type legacySession struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Type           string            `json:"type"`
	SubjectID      string            `json:"subjectId"`
	IsActive       bool              `json:"isActive"`
	LastActivityAt legacyTime        `json:"lastActivity"`
	MessageCount   int               `json:"messageCount"`
	CreatedAt      legacyTime        `json:"createdAt"`
	UpdatedAt      legacyTime        `json:"updatedAt"`
	Meta           store.SessionMeta `json:"metadata"`
}

type legacyMessage struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"sessionId"`
	Role        string            `json:"role"`
	Content     string            `json:"content"`
	Status      string            `json:"status"`
	Attachments []string          `json:"attachments"`
	Timestamp   legacyTime        `json:"timestamp"`
	Meta        store.MessageMeta `json:"metadata"`
}

// legacyTime decodes the date encodings found in old blobs: ISO-8601
// strings, epoch milliseconds, or null.
type legacyTime struct {
	time.Time
}

func (t *legacyTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("unrecognized legacy date %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}

	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("unrecognized legacy date %s: %w", b, err)
	}
	t.Time = time.UnixMilli(int64(ms))
	return nil
}

// ImportFromLocalStorage parses a legacy chat blob and writes its
// sessions and messages into the store for userID as one transaction.
// A failed import leaves the store untouched. Message counts are
// recomputed from the blob rather than trusted from the old session
// records. Returns the number of sessions and messages written.
func (s *Service) ImportFromLocalStorage(blob []byte, userID string) (int, int, error) {
	if len(bytes.TrimSpace(blob)) == 0 {
		return 0, 0, nil
	}

	var export legacyChatExport
	if err := json.Unmarshal(blob, &export); err != nil {
		return 0, 0, fmt.Errorf("chat import: parse legacy blob: %w", err)
	}

	sessions := make([]*store.ChatSession, 0, len(export.State.Sessions))
	seen := make(map[string]bool, len(export.State.Sessions))
	for _, ls := range export.State.Sessions {
		if ls.ID == "" {
			continue
		}
		sessions = append(sessions, legacySessionToRow(ls, userID, len(export.State.Messages[ls.ID])))
		seen[ls.ID] = true
	}

	messages := make([]*store.ChatMessage, 0)
	for sessionID, lms := range export.State.Messages {
		// Messages keyed under a session the blob never declared still
		// get imported; a placeholder session is synthesized for them.
		if !seen[sessionID] {
			sessions = append(sessions, &store.ChatSession{
				ID:           sessionID,
				UserID:       userID,
				Title:        "Imported session",
				Type:         store.SessionGeneral,
				MessageCount: len(lms),
			})
			seen[sessionID] = true
		}
		for _, lm := range lms {
			if lm.ID == "" {
				continue
			}
			messages = append(messages, legacyMessageToRow(lm, sessionID, userID))
		}
	}

	if err := s.store.ImportChat(sessions, messages); err != nil {
		return 0, 0, fmt.Errorf("chat import: %w", err)
	}
	return len(sessions), len(messages), nil
}

func legacySessionToRow(ls legacySession, userID string, messageCount int) *store.ChatSession {
	title := ls.Title
	if title == "" {
		title = "Imported session"
	}
	typ := store.SessionType(ls.Type)
	if typ == "" {
		typ = store.SessionGeneral
	}
	return &store.ChatSession{
		ID:             ls.ID,
		UserID:         userID,
		Title:          title,
		Type:           typ,
		SubjectID:      ls.SubjectID,
		Meta:           ls.Meta,
		IsActive:       ls.IsActive,
		LastActivityAt: timeToMs(ls.LastActivityAt.Time),
		MessageCount:   messageCount,
		CreatedAt:      timeToMs(ls.CreatedAt.Time),
		UpdatedAt:      timeToMs(ls.UpdatedAt.Time),
	}
}

func legacyMessageToRow(lm legacyMessage, sessionID, userID string) *store.ChatMessage {
	role := store.MessageRole(lm.Role)
	if role == "" {
		role = store.RoleUser
	}
	status := store.MessageStatus(lm.Status)
	if status == "" {
		status = store.StatusSent
	}
	return &store.ChatMessage{
		ID:          lm.ID,
		SessionID:   sessionID,
		UserID:      userID,
		Role:        role,
		Content:     lm.Content,
		Status:      status,
		Attachments: lm.Attachments,
		Meta:        lm.Meta,
		Timestamp:   timeToMs(lm.Timestamp.Time),
		CreatedAt:   timeToMs(lm.Timestamp.Time),
		UpdatedAt:   timeToMs(lm.Timestamp.Time),
	}
}

// ImportData writes a previously exported dataset back into the store
// for userID as one transaction. Message counts are recomputed from the
// dataset itself.
func (s *Service) ImportData(data *ExportData, userID string) error {
	sessions := make([]*store.ChatSession, 0, len(data.Sessions))
	for _, sess := range data.Sessions {
		row := sessionToRow(sess, userID)
		row.MessageCount = len(data.Messages[sess.ID])
		sessions = append(sessions, row)
	}

	messages := make([]*store.ChatMessage, 0)
	for sessionID, msgs := range data.Messages {
		for _, m := range msgs {
			row := messageToRow(m, userID)
			row.SessionID = sessionID
			messages = append(messages, row)
		}
	}

	if err := s.store.ImportChat(sessions, messages); err != nil {
		return fmt.Errorf("chat import: %w", err)
	}
	return nil
}

// ExportData gathers everything the user owns into a single structure
// suitable for backup or re-import.
type ExportData struct {
	Sessions []*Session            `json:"sessions"`
	Messages map[string][]*Message `json:"messages"`
}

// ExportData returns all of a user's sessions and their messages,
// messages in chronological order per session.
func (s *Service) ExportData(userID string) (*ExportData, error) {
	sessions, err := s.GetSessions(userID, 0)
	if err != nil {
		return nil, fmt.Errorf("export chat: %w", err)
	}

	out := &ExportData{
		Sessions: sessions,
		Messages: make(map[string][]*Message, len(sessions)),
	}
	for _, sess := range sessions {
		msgs, err := s.GetMessages(sess.ID, userID, 0)
		if err != nil {
			return nil, fmt.Errorf("export chat: session %s: %w", sess.ID, err)
		}
		out.Messages[sess.ID] = msgs
	}
	return out, nil
}
