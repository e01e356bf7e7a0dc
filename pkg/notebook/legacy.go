package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/studykit/studygo/internal/store"
)

// legacyNotebookExport mirrors the persisted shape of the old
// localStorage notebook blob: { state: { entries: [...] } }.
type legacyNotebookExport struct {
	State legacyNotebookState `json:"state"`
}

type legacyNotebookState struct {
	Entries []legacyEntry `json:"entries"`
}

type legacyEntry struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Content        string             `json:"content"`
	Type           string             `json:"type"`
	Format         string             `json:"format"`
	SubjectID      string             `json:"subjectId"`
	Tags           []string           `json:"tags"`
	Attachments    []string           `json:"attachments"`
	Annotations    []store.Annotation `json:"annotations"`
	Status         string             `json:"status"`
	Visibility     string             `json:"visibility"`
	Version        int                `json:"version"`
	Meta           store.EntryMeta    `json:"metadata"`
	CreatedAt      legacyTime         `json:"createdAt"`
	UpdatedAt      legacyTime         `json:"updatedAt"`
	LastAccessedAt legacyTime         `json:"lastAccessedAt"`
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

// ImportFromLocalStorage parses a legacy notebook blob and writes its
// entries into the store for userID as one transaction. A failed import
// leaves the store untouched. Returns the number of entries written.
func (s *Service) ImportFromLocalStorage(blob []byte, userID string) (int, error) {
	if len(bytes.TrimSpace(blob)) == 0 {
		return 0, nil
	}

	var export legacyNotebookExport
	if err := json.Unmarshal(blob, &export); err != nil {
		return 0, fmt.Errorf("notebook import: parse legacy blob: %w", err)
	}

	rows := make([]*store.NotebookEntry, 0, len(export.State.Entries))
	for _, le := range export.State.Entries {
		if le.ID == "" || le.Title == "" {
			continue
		}
		rows = append(rows, legacyEntryToRow(le, userID))
	}

	if err := s.store.ImportEntries(rows); err != nil {
		return 0, fmt.Errorf("notebook import: %w", err)
	}
	return len(rows), nil
}

func legacyEntryToRow(le legacyEntry, userID string) *store.NotebookEntry {
	typ := store.EntryType(le.Type)
	if typ == "" {
		typ = store.EntryConcept
	}
	status := store.EntryStatus(le.Status)
	if status == "" {
		status = store.EntryDraft
	}
	meta := le.Meta
	if meta.WordCount == 0 {
		meta.WordCount = countWords(le.Content)
	}
	return &store.NotebookEntry{
		ID:             le.ID,
		UserID:         userID,
		Title:          le.Title,
		Content:        le.Content,
		Type:           typ,
		Format:         le.Format,
		SubjectID:      le.SubjectID,
		Tags:           le.Tags,
		Attachments:    le.Attachments,
		Annotations:    le.Annotations,
		Status:         status,
		Visibility:     le.Visibility,
		Version:        le.Version,
		Meta:           meta,
		CreatedAt:      timeToMs(le.CreatedAt.Time),
		UpdatedAt:      timeToMs(le.UpdatedAt.Time),
		LastAccessedAt: timeToMs(le.LastAccessedAt.Time),
	}
}

// ExportData holds everything a user's notebook contains, suitable for
// backup or re-import.
type ExportData struct {
	Entries []*Entry `json:"entries"`
}

// ExportData returns all of a user's entries, updatedAt descending.
// Archived entries are part of the export; a backup is a full copy.
func (s *Service) ExportData(userID string) (*ExportData, error) {
	entries, err := s.GetEntries(userID, Filter{IncludeArchived: true})
	if err != nil {
		return nil, fmt.Errorf("export notebook: %w", err)
	}
	return &ExportData{Entries: entries}, nil
}

// ImportData writes a previously exported dataset back into the store
// for userID as one transaction.
func (s *Service) ImportData(data *ExportData, userID string) error {
	rows := make([]*store.NotebookEntry, 0, len(data.Entries))
	for _, e := range data.Entries {
		rows = append(rows, entryToRow(e, userID))
	}
	if err := s.store.ImportEntries(rows); err != nil {
		return fmt.Errorf("notebook import: %w", err)
	}
	return nil
}
