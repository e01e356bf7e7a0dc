// Package notebook is the repository service for notebook entries.
// Same contract as the chat repository: it owns translation between the
// UI-facing entry shape and the storage rows, and every notebook read or
// write in the app goes through it.
package notebook

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studykit/studygo/internal/store"
)

// Entry is the UI-facing shape of a notebook entry.
type Entry struct {
	ID             string
	Title          string
	Content        string
	Type           store.EntryType
	Format         string
	SubjectID      string
	Tags           []string
	Attachments    []string
	Annotations    []store.Annotation
	Status         store.EntryStatus
	Visibility     string
	Version        int
	Meta           store.EntryMeta
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastAccessedAt time.Time
}

// EntryUpdate is a partial entry update; nil fields are left unchanged.
type EntryUpdate struct {
	Title       *string
	Content     *string
	Type        *store.EntryType
	SubjectID   *string
	Tags        *[]string
	Annotations *[]store.Annotation
	Status      *store.EntryStatus
	Meta        *store.EntryMeta
}

// Filter narrows a GetEntries scan. Zero values mean "no constraint",
// except that archived entries are excluded unless IncludeArchived is
// set. Tag matching requires every listed tag to be present on the
// entry.
type Filter struct {
	SubjectID       string
	Type            store.EntryType
	Tags            []string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// Stats summarizes a user's notebook.
type Stats struct {
	TotalEntries    int                     `json:"totalEntries"`
	ByType          map[store.EntryType]int `json:"byType"`
	RecentlyUpdated int                     `json:"recentlyUpdated"`
	TotalWords      int                     `json:"totalWords"`
}

// CleanupOptions selects which entries CleanupStorage may remove.
type CleanupOptions struct {
	MaxAge        time.Duration
	KeepFavorites bool
	OrphanedOnly  bool
}

// Service is the notebook repository service.
type Service struct {
	store store.Storer
	now   func() time.Time
}

// NewService creates a notebook repository over an opened store.
func NewService(s store.Storer) *Service {
	return &Service{store: s, now: time.Now}
}

// CreateEntry validates and persists a new entry under userID, returning
// the minted id. Word count is computed from the content here, once, at
// write time; stats later sum the stored value without recounting.
func (s *Service) CreateEntry(e *Entry, userID string) (string, error) {
	if strings.TrimSpace(e.Title) == "" {
		return "", fmt.Errorf("create entry: title is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Type == "" {
		e.Type = store.EntryConcept
	}
	if e.Status == "" {
		e.Status = store.EntryDraft
	}
	e.Meta.WordCount = countWords(e.Content)

	row := entryToRow(e, userID)
	if err := s.store.PutEntry(row); err != nil {
		return "", fmt.Errorf("create entry: %w", err)
	}
	rowIntoEntry(row, e)
	return e.ID, nil
}

// UpdateEntry applies a partial update to an existing entry. The stored
// row supplies every field the update leaves nil, so searchText is always
// re-derived from the full title and content pair even when only one of
// the two changed.
func (s *Service) UpdateEntry(id string, upd EntryUpdate) error {
	row, err := s.store.GetEntry(id)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	if row == nil {
		return fmt.Errorf("update entry: entry not found: %s", id)
	}

	if upd.Title != nil {
		if strings.TrimSpace(*upd.Title) == "" {
			return fmt.Errorf("update entry: title is required")
		}
		row.Title = *upd.Title
	}
	if upd.Content != nil {
		row.Content = *upd.Content
		row.Meta.WordCount = countWords(*upd.Content)
	}
	if upd.Type != nil {
		row.Type = *upd.Type
	}
	if upd.SubjectID != nil {
		row.SubjectID = *upd.SubjectID
	}
	if upd.Tags != nil {
		row.Tags = *upd.Tags
	}
	if upd.Annotations != nil {
		row.Annotations = *upd.Annotations
	}
	if upd.Status != nil {
		row.Status = *upd.Status
	}
	if upd.Meta != nil {
		wordCount := row.Meta.WordCount
		row.Meta = *upd.Meta
		row.Meta.WordCount = wordCount
	}
	row.Version++

	if err := s.store.PutEntry(row); err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return nil
}

// GetEntry retrieves an entry by ID without side effects. Returns
// (nil, nil) when absent. Callers that want access tracking pair this
// with RecordAccess, or use GetEntryTouch.
func (s *Service) GetEntry(id string) (*Entry, error) {
	row, err := s.store.GetEntry(id)
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return entryFromRow(row), nil
}

// RecordAccess stamps an entry's lastAccessedAt. It touches nothing else;
// updatedAt stays as it was.
func (s *Service) RecordAccess(id string) error {
	if err := s.store.TouchEntryAccess(id, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("record access: %w", err)
	}
	return nil
}

// GetEntryTouch reads an entry and records the access in one call.
// A failed touch is logged and swallowed so a bookkeeping hiccup never
// hides the entry from the reader.
func (s *Service) GetEntryTouch(id string) (*Entry, error) {
	e, err := s.GetEntry(id)
	if err != nil || e == nil {
		return e, err
	}
	if err := s.RecordAccess(id); err != nil {
		fmt.Printf("[Notebook] Failed to record access for %s: %v\n", id, err)
	}
	return e, nil
}

// GetEntries returns a user's entries, updatedAt descending, with the
// filter applied in memory after the user index scan. Archived entries
// stay out of the result unless the filter asks for them.
func (s *Service) GetEntries(userID string, f Filter) ([]*Entry, error) {
	rows, err := s.store.ListEntries(userID)
	if err != nil {
		return nil, fmt.Errorf("get entries: %w", err)
	}

	entries := make([]*Entry, 0, len(rows))
	for _, row := range rows {
		if row.Meta.IsArchived && !f.IncludeArchived {
			continue
		}
		if f.SubjectID != "" && row.SubjectID != f.SubjectID {
			continue
		}
		if f.Type != "" && row.Type != f.Type {
			continue
		}
		if !hasAllTags(row.Tags, f.Tags) {
			continue
		}
		entries = append(entries, entryFromRow(row))
	}

	if f.Offset > 0 {
		if f.Offset >= len(entries) {
			return []*Entry{}, nil
		}
		entries = entries[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(entries) {
		entries = entries[:f.Limit]
	}
	return entries, nil
}

// SearchEntries performs a case-insensitive substring search over a
// user's entries (title and content), capped at limit results.
func (s *Service) SearchEntries(userID, query string, limit int) ([]*Entry, error) {
	rows, err := s.store.SearchEntries(userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}

	entries := make([]*Entry, len(rows))
	for i, row := range rows {
		entries[i] = entryFromRow(row)
	}
	return entries, nil
}

// GetRelatedEntries returns up to limit of the user's entries that share
// at least one tag or the subject with the source entry, excluding the
// source itself. The order among matches is whatever the scan produced;
// there is no relevance scoring.
func (s *Service) GetRelatedEntries(entryID, userID string, limit int) ([]*Entry, error) {
	source, err := s.store.GetEntry(entryID)
	if err != nil {
		return nil, fmt.Errorf("related entries: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("related entries: entry not found: %s", entryID)
	}

	rows, err := s.store.ListEntries(userID)
	if err != nil {
		return nil, fmt.Errorf("related entries: %w", err)
	}

	sourceTags := make(map[string]bool, len(source.Tags))
	for _, tag := range source.Tags {
		sourceTags[tag] = true
	}

	related := make([]*Entry, 0, limit)
	for _, row := range rows {
		if row.ID == entryID {
			continue
		}
		match := source.SubjectID != "" && row.SubjectID == source.SubjectID
		if !match {
			for _, tag := range row.Tags {
				if sourceTags[tag] {
					match = true
					break
				}
			}
		}
		if !match {
			continue
		}
		related = append(related, entryFromRow(row))
		if limit > 0 && len(related) >= limit {
			break
		}
	}
	return related, nil
}

// ArchiveEntry marks an entry archived without deleting it.
func (s *Service) ArchiveEntry(id string) error {
	row, err := s.store.GetEntry(id)
	if err != nil {
		return fmt.Errorf("archive entry: %w", err)
	}
	if row == nil {
		return fmt.Errorf("archive entry: entry not found: %s", id)
	}
	row.Meta.IsArchived = true
	if err := s.store.PutEntry(row); err != nil {
		return fmt.Errorf("archive entry: %w", err)
	}
	return nil
}

// DeleteEntry removes an entry permanently.
func (s *Service) DeleteEntry(id string) error {
	if err := s.store.DeleteEntry(id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// GetStats summarizes a user's notebook, optionally scoped to one
// subject (empty subjectID means all). recentlyUpdated counts entries
// touched in the last 7 days; totalWords sums the stored per-entry word
// counts rather than recounting content.
func (s *Service) GetStats(userID, subjectID string) (*Stats, error) {
	rows, err := s.store.ListEntries(userID)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	cutoff := s.now().Add(-7 * 24 * time.Hour).UnixMilli()
	stats := &Stats{ByType: make(map[store.EntryType]int)}
	for _, row := range rows {
		if subjectID != "" && row.SubjectID != subjectID {
			continue
		}
		stats.TotalEntries++
		stats.ByType[row.Type]++
		if row.UpdatedAt >= cutoff {
			stats.RecentlyUpdated++
		}
		stats.TotalWords += row.Meta.WordCount
	}
	return stats, nil
}

// CleanupStorage sweeps a user's file attachments and returns how many
// were deleted. MaxAge measures against uploadedAt; with KeepFavorites
// set, attachments referenced by any favorite entry survive regardless
// of age. OrphanedOnly restricts the sweep to attachments no current
// entry references. "Orphaned" means absent from every entry's
// attachment list at sweep time; an entry edited concurrently with the
// sweep can still lose a just-added reference. Known limitation, not
// hardened here.
func (s *Service) CleanupStorage(userID string, opts CleanupOptions) (int, error) {
	attachments, err := s.store.ListAttachments(userID)
	if err != nil {
		return 0, fmt.Errorf("cleanup storage: %w", err)
	}
	entries, err := s.store.ListEntries(userID)
	if err != nil {
		return 0, fmt.Errorf("cleanup storage: %w", err)
	}

	// Which entries reference each attachment, and whether any of them
	// is a favorite.
	refs := make(map[string][]*store.NotebookEntry)
	favorite := make(map[string]bool)
	for _, entry := range entries {
		for _, attID := range entry.Attachments {
			refs[attID] = append(refs[attID], entry)
			if entry.Meta.IsFavorite {
				favorite[attID] = true
			}
		}
	}

	cutoff := int64(0)
	if opts.MaxAge > 0 {
		cutoff = s.now().Add(-opts.MaxAge).UnixMilli()
	}

	deleted := 0
	for _, att := range attachments {
		if opts.KeepFavorites && favorite[att.ID] {
			continue
		}
		if opts.OrphanedOnly && len(refs[att.ID]) > 0 {
			continue
		}
		if cutoff > 0 && att.UploadedAt >= cutoff {
			continue
		}
		if err := s.store.DeleteAttachment(att.ID); err != nil {
			return deleted, fmt.Errorf("cleanup storage: delete %s: %w", att.ID, err)
		}
		deleted++

		for _, entry := range refs[att.ID] {
			entry.Attachments = removeString(entry.Attachments, att.ID)
			if err := s.store.PutEntry(entry); err != nil {
				return deleted, fmt.Errorf("cleanup storage: unlink %s from %s: %w", att.ID, entry.ID, err)
			}
		}
	}
	return deleted, nil
}

// =============================================================================
// Translation
// =============================================================================

func entryToRow(e *Entry, userID string) *store.NotebookEntry {
	return &store.NotebookEntry{
		ID:             e.ID,
		UserID:         userID,
		Title:          e.Title,
		Content:        e.Content,
		Type:           e.Type,
		Format:         e.Format,
		SubjectID:      e.SubjectID,
		Tags:           e.Tags,
		Attachments:    e.Attachments,
		Annotations:    e.Annotations,
		Status:         e.Status,
		Visibility:     e.Visibility,
		Version:        e.Version,
		Meta:           e.Meta,
		CreatedAt:      timeToMs(e.CreatedAt),
		UpdatedAt:      timeToMs(e.UpdatedAt),
		LastAccessedAt: timeToMs(e.LastAccessedAt),
	}
}

func entryFromRow(row *store.NotebookEntry) *Entry {
	e := &Entry{}
	rowIntoEntry(row, e)
	return e
}

func rowIntoEntry(row *store.NotebookEntry, e *Entry) {
	e.ID = row.ID
	e.Title = row.Title
	e.Content = row.Content
	e.Type = row.Type
	e.Format = row.Format
	e.SubjectID = row.SubjectID
	e.Tags = row.Tags
	e.Attachments = row.Attachments
	e.Annotations = row.Annotations
	e.Status = row.Status
	e.Visibility = row.Visibility
	e.Version = row.Version
	e.Meta = row.Meta
	e.CreatedAt = msToTime(row.CreatedAt)
	e.UpdatedAt = msToTime(row.UpdatedAt)
	e.LastAccessedAt = msToTime(row.LastAccessedAt)
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, tag := range have {
		set[tag] = true
	}
	for _, tag := range want {
		if !set[tag] {
			return false
		}
	}
	return true
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func countWords(content string) int {
	return len(strings.Fields(content))
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
