// Package backup produces and restores the user-facing downloadable
// backup: one JSON document holding the full export of both
// repositories, with a timestamped filename.
package backup

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/studykit/studygo/pkg/chatrepo"
	"github.com/studykit/studygo/pkg/notebook"
)

// FormatVersion marks the backup document layout.
const FormatVersion = 1

// Document is the serialized backup payload.
type Document struct {
	Version    int                  `json:"version"`
	UserID     string               `json:"userId"`
	ExportedAt time.Time            `json:"exportedAt"`
	Chat       *chatrepo.ExportData `json:"chat"`
	Notebook   *notebook.ExportData `json:"notebook"`
}

// Service builds and restores backups.
type Service struct {
	chat     *chatrepo.Service
	notebook *notebook.Service
	now      func() time.Time
}

// NewService creates a backup service over both repositories.
func NewService(chat *chatrepo.Service, nb *notebook.Service) *Service {
	return &Service{chat: chat, notebook: nb, now: time.Now}
}

// Build exports everything userID owns and returns the JSON payload
// plus the filename to offer for download.
func (s *Service) Build(userID string) ([]byte, string, error) {
	chatData, err := s.chat.ExportData(userID)
	if err != nil {
		return nil, "", fmt.Errorf("backup: %w", err)
	}
	notebookData, err := s.notebook.ExportData(userID)
	if err != nil {
		return nil, "", fmt.Errorf("backup: %w", err)
	}

	doc := Document{
		Version:    FormatVersion,
		UserID:     userID,
		ExportedAt: s.now().UTC(),
		Chat:       chatData,
		Notebook:   notebookData,
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("backup: marshal: %w", err)
	}
	return payload, Filename(doc.ExportedAt), nil
}

// Filename returns the download name for a backup taken at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("studykit-backup-%s.json", t.UTC().Format("2006-01-02-150405"))
}

// Restore loads a backup document into the store for userID. Both
// halves import transactionally on their own; a chat failure does not
// undo an already-landed notebook import (and vice versa), matching how
// the namespaces migrate.
func (s *Service) Restore(payload []byte, userID string) error {
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("restore: parse backup: %w", err)
	}
	if doc.Version != FormatVersion {
		return fmt.Errorf("restore: unsupported backup version %d", doc.Version)
	}

	if doc.Chat != nil {
		if err := s.chat.ImportData(doc.Chat, userID); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	if doc.Notebook != nil {
		if err := s.notebook.ImportData(doc.Notebook, userID); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	return nil
}
