// Package tutor is the boundary to the AI completion service. The core
// depends on exactly one thing from the remote side: a returned
// { content, metadata } pair that gets stored as an assistant message.
// Remote failures are converted into a fallback reply at this boundary
// and never corrupt local state; the student's own message is persisted
// before the remote call and stays either way.
package tutor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/studykit/studygo/internal/store"
	"github.com/studykit/studygo/pkg/chatrepo"
)

// FallbackReply is shown when the completion service is unreachable or
// returns garbage. It is displayed, not persisted.
const FallbackReply = "I couldn't reach the tutor service just now. Your message is saved, please try again."

// recentWindow is how many prior messages ride along for context.
const recentWindow = 10

// Config holds the completion endpoint settings.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
}

// Completion is the outcome of one Ask round trip.
type Completion struct {
	Content  string
	Meta     store.MessageMeta
	Fallback bool // true when Content is FallbackReply, nothing was stored
}

// completionRequest is the wire shape sent to the service.
type completionRequest struct {
	Message        string       `json:"message"`
	Attachments    []string     `json:"attachments,omitempty"`
	SessionID      string       `json:"sessionId"`
	RecentMessages []contextMsg `json:"recentMessages,omitempty"`
	Model          string       `json:"model,omitempty"`
}

type contextMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Service wraps the completion endpoint and the chat repository.
type Service struct {
	config Config
	chat   *chatrepo.Service
}

// NewService creates a tutor service.
func NewService(config Config, chat *chatrepo.Service) *Service {
	return &Service{config: config, chat: chat}
}

// Ask persists the student's message, calls the completion service with
// a window of recent context, and persists the reply as an assistant
// message. On remote failure the student's message stays in sent status,
// no assistant row is written, and the returned Completion carries the
// fallback text.
func (s *Service) Ask(ctx context.Context, sessionID, userID, content string, attachments []string) (*Completion, error) {
	req, err := s.prepare(sessionID, userID, content, attachments)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("tutor: marshal request: %w", err)
	}

	raw, err := s.callCompletion(ctx, string(reqBody))
	if err != nil {
		fmt.Printf("[Tutor] Completion failed for session %s: %v\n", sessionID, err)
		return &Completion{Content: FallbackReply, Fallback: true}, nil
	}

	completion, err := parseCompletionResponse(raw)
	if err != nil {
		fmt.Printf("[Tutor] Bad completion response for session %s: %v\n", sessionID, err)
		return &Completion{Content: FallbackReply, Fallback: true}, nil
	}

	reply := &chatrepo.Message{
		SessionID: sessionID,
		Role:      store.RoleAssistant,
		Content:   completion.Content,
		Status:    store.StatusSent,
		Meta:      completion.Meta,
	}
	if err := s.chat.SaveMessage(reply, userID); err != nil {
		return nil, fmt.Errorf("tutor: save reply: %w", err)
	}
	return completion, nil
}

// prepare snapshots the context window, then persists the outgoing
// message and marks it sent. The window is read before the save so the
// new message rides only in the request's Message field, never doubled
// into RecentMessages.
func (s *Service) prepare(sessionID, userID, content string, attachments []string) (completionRequest, error) {
	recent, err := s.chat.GetMessages(sessionID, userID, recentWindow)
	if err != nil {
		return completionRequest{}, fmt.Errorf("tutor: load context: %w", err)
	}

	outgoing := &chatrepo.Message{
		SessionID:   sessionID,
		Role:        store.RoleUser,
		Content:     content,
		Status:      store.StatusSending,
		Attachments: attachments,
	}
	if err := s.chat.SaveMessage(outgoing, userID); err != nil {
		return completionRequest{}, fmt.Errorf("tutor: save outgoing message: %w", err)
	}

	sent := store.StatusSent
	if err := s.chat.UpdateMessage(outgoing.ID, chatrepo.MessageUpdate{Status: &sent}); err != nil {
		return completionRequest{}, fmt.Errorf("tutor: mark sent: %w", err)
	}

	return buildRequest(sessionID, content, attachments, recent, s.config.Model), nil
}

func buildRequest(sessionID, content string, attachments []string, recent []*chatrepo.Message, model string) completionRequest {
	ctxMsgs := make([]contextMsg, 0, len(recent))
	for _, m := range recent {
		ctxMsgs = append(ctxMsgs, contextMsg{Role: string(m.Role), Content: m.Content})
	}
	return completionRequest{
		Message:        content,
		Attachments:    attachments,
		SessionID:      sessionID,
		RecentMessages: ctxMsgs,
		Model:          model,
	}
}

// parseCompletionResponse extracts content and metadata from the raw
// service response.
func parseCompletionResponse(raw string) (*Completion, error) {
	var response struct {
		Content  string `json:"content"`
		Metadata struct {
			Thinking string `json:"thinking"`
		} `json:"metadata"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}

	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		return nil, fmt.Errorf("tutor: failed to parse response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("tutor: service error: %s", response.Error.Message)
	}
	if response.Content == "" {
		return nil, fmt.Errorf("tutor: empty content in response")
	}

	return &Completion{
		Content: response.Content,
		Meta:    store.MessageMeta{Thinking: response.Metadata.Thinking},
	}, nil
}
