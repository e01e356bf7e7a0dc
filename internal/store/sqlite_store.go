// Package store provides SQLite-backed persistence for StudyGo.
// Uses ncruces/go-sqlite3/driver which provides a database/sql interface.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// SQLiteStore is the SQLite-backed data store.
// Thread-safe for concurrent WASM callbacks. Multi-row operations
// (batch insert, cascade delete, legacy import) run inside a single
// SQL transaction so they apply all-or-nothing.
type SQLiteStore struct {
	mu  sync.RWMutex
	db  *sql.DB
	now func() int64 // millisecond clock, replaceable in tests
}

// schema defines all tables for the unified data layer.
// Every table is partitioned by user_id via the composite indexes below;
// isolation is a query-time contract, not an engine constraint.
const schema = `
-- Chat messages
CREATE TABLE IF NOT EXISTS chat_messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'sent',
    attachments TEXT,
    meta TEXT,
    search_text TEXT NOT NULL DEFAULT '',
    timestamp INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_user ON chat_messages(user_id);
CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id);
CREATE INDEX IF NOT EXISTS idx_messages_user_session ON chat_messages(user_id, session_id);
CREATE INDEX IF NOT EXISTS idx_messages_user_time ON chat_messages(user_id, timestamp);

-- Chat sessions
CREATE TABLE IF NOT EXISTS chat_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    session_type TEXT NOT NULL DEFAULT 'general',
    subject_id TEXT,
    meta TEXT,
    is_active INTEGER DEFAULT 1,
    last_activity_at INTEGER NOT NULL,
    message_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_user ON chat_sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_user_type ON chat_sessions(user_id, session_type);
CREATE INDEX IF NOT EXISTS idx_sessions_user_activity ON chat_sessions(user_id, last_activity_at);

-- Notebook entries
-- Tags and annotations are JSON-encoded; tag membership is filtered in
-- memory after a user_id index scan, search_text via substring scan.
CREATE TABLE IF NOT EXISTS notebook_entries (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    entry_type TEXT NOT NULL,
    format TEXT,
    subject_id TEXT,
    tags TEXT,
    attachments TEXT,
    annotations TEXT,
    status TEXT NOT NULL DEFAULT 'draft',
    visibility TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    meta TEXT,
    search_text TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    last_accessed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_entries_user ON notebook_entries(user_id);
CREATE INDEX IF NOT EXISTS idx_entries_user_subject ON notebook_entries(user_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_entries_user_type ON notebook_entries(user_id, entry_type);

-- File attachments (payload inline or external URL)
CREATE TABLE IF NOT EXISTS file_attachments (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    data BLOB,
    url TEXT,
    name TEXT NOT NULL,
    size INTEGER NOT NULL DEFAULT 0,
    mime_type TEXT,
    uploaded_at INTEGER NOT NULL,
    uploaded_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_attachments_user ON file_attachments(user_id);

-- Concept knowledge (learning profile)
CREATE TABLE IF NOT EXISTS concept_knowledge (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    concept TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0,
    review_count INTEGER NOT NULL DEFAULT 0,
    mention_count INTEGER NOT NULL DEFAULT 0,
    last_reviewed_at INTEGER,
    entry_ids TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_concepts_user_subject ON concept_knowledge(user_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_concepts_user_confidence ON concept_knowledge(user_id, confidence);
`

// NewSQLiteStore creates a new in-memory SQLite store.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
// An open failure is returned to the caller, never swallowed; the boot
// sequence decides how to surface it.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store unavailable: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store unavailable: create schema: %w", err)
	}

	return &SQLiteStore{
		db:  db,
		now: func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// =============================================================================
// Chat message CRUD
// =============================================================================

const messageCols = `id, session_id, user_id, role, content, status, attachments, meta,
	search_text, timestamp, created_at, updated_at`

// PutMessage inserts or overwrites a message by primary key.
// A fresh insert also bumps the owning session's message_count and
// last_activity_at in the same transaction, so the counter never drifts.
func (s *SQLiteStore) PutMessage(m *ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("put message: %w", err)
	}
	defer tx.Rollback()

	if err := s.putMessageTx(tx, m); err != nil {
		return err
	}
	return tx.Commit()
}

// PutMessages writes a batch of messages in one transaction.
// Either every row of the batch is written or none are visible.
func (s *SQLiteStore) PutMessages(ms []*ChatMessage) error {
	if len(ms) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("put messages: %w", err)
	}
	defer tx.Rollback()

	for _, m := range ms {
		if err := s.putMessageTx(tx, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// putMessageTx applies the derivation hooks and writes one message row.
// Must run inside an open transaction with the store lock held.
func (s *SQLiteStore) putMessageTx(tx *sql.Tx, m *ChatMessage) error {
	now := s.now()

	prev, err := scanMessage(tx.QueryRow(
		`SELECT `+messageCols+` FROM chat_messages WHERE id = ?`, m.ID))
	if err != nil {
		return fmt.Errorf("put message %s: %w", m.ID, err)
	}

	attachments, err := marshalStrings(m.Attachments)
	if err != nil {
		return fmt.Errorf("put message %s: attachments: %w", m.ID, err)
	}
	meta, err := json.Marshal(m.Meta)
	if err != nil {
		return fmt.Errorf("put message %s: meta: %w", m.ID, err)
	}

	if prev == nil {
		hookCreateMessage(m, now)
		_, err = tx.Exec(`
			INSERT INTO chat_messages (`+messageCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, m.SessionID, m.UserID, string(m.Role), m.Content, string(m.Status),
			attachments, string(meta), m.SearchText, m.Timestamp, m.CreatedAt, m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("put message %s: %w", m.ID, err)
		}

		// Incremental counter maintenance; never recomputed by scanning.
		_, err = tx.Exec(`
			UPDATE chat_sessions
			SET message_count = message_count + 1, last_activity_at = ?, updated_at = ?
			WHERE id = ?
		`, now, now, m.SessionID)
		if err != nil {
			return fmt.Errorf("put message %s: bump session: %w", m.ID, err)
		}
		return nil
	}

	hookUpdateMessage(m, prev, now)
	_, err = tx.Exec(`
		UPDATE chat_messages
		SET session_id = ?, user_id = ?, role = ?, content = ?, status = ?,
			attachments = ?, meta = ?, search_text = ?, timestamp = ?, created_at = ?, updated_at = ?
		WHERE id = ?
	`, m.SessionID, m.UserID, string(m.Role), m.Content, string(m.Status),
		attachments, string(meta), m.SearchText, m.Timestamp, m.CreatedAt, m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("put message %s: %w", m.ID, err)
	}
	return nil
}

// GetMessage retrieves a message by ID. Returns (nil, nil) when absent.
func (s *SQLiteStore) GetMessage(id string) (*ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanMessage(s.db.QueryRow(
		`SELECT `+messageCols+` FROM chat_messages WHERE id = ?`, id))
}

// RecentMessages returns the most recent messages of a session, newest first.
// limit <= 0 means no limit. The rowid tie-break keeps insertion order stable
// for rows written in the same millisecond (bulk imports).
func (s *SQLiteStore) RecentMessages(sessionID, userID string, limit int) ([]*ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT `+messageCols+` FROM chat_messages
		WHERE session_id = ? AND user_id = ?
		ORDER BY timestamp DESC, rowid DESC LIMIT ?
	`, sessionID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

// SearchMessages performs a case-insensitive substring match against the
// derived search_text column, scoped to one user.
func (s *SQLiteStore) SearchMessages(userID, query string, limit int) ([]*ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT `+messageCols+` FROM chat_messages
		WHERE user_id = ? AND instr(search_text, ?) > 0
		ORDER BY timestamp DESC, rowid DESC LIMIT ?
	`, userID, lower(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

// CountMessages returns the number of messages owned by a user.
func (s *SQLiteStore) CountMessages(userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM chat_messages WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

// =============================================================================
// Chat session CRUD
// =============================================================================

const sessionCols = `id, user_id, title, session_type, subject_id, meta, is_active,
	last_activity_at, message_count, created_at, updated_at`

// PutSession inserts or overwrites a session by primary key.
// UpdatedAt is always bumped; CreatedAt and LastActivityAt are stamped on
// first insert when the caller left them zero.
func (s *SQLiteStore) PutSession(sess *ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	defer tx.Rollback()

	if err := s.putSessionTx(tx, sess); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) putSessionTx(tx *sql.Tx, sess *ChatSession) error {
	now := s.now()

	meta, err := json.Marshal(sess.Meta)
	if err != nil {
		return fmt.Errorf("put session %s: meta: %w", sess.ID, err)
	}
	if sess.CreatedAt == 0 {
		sess.CreatedAt = now
	}
	if sess.LastActivityAt == 0 {
		sess.LastActivityAt = sess.CreatedAt
	}
	sess.UpdatedAt = now

	_, err = tx.Exec(`
		INSERT INTO chat_sessions (`+sessionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			session_type = excluded.session_type,
			subject_id = excluded.subject_id,
			meta = excluded.meta,
			is_active = excluded.is_active,
			last_activity_at = excluded.last_activity_at,
			message_count = excluded.message_count,
			updated_at = excluded.updated_at
	`, sess.ID, sess.UserID, sess.Title, string(sess.Type), sess.SubjectID, string(meta),
		boolToInt(sess.IsActive), sess.LastActivityAt, sess.MessageCount,
		sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns (nil, nil) when absent.
func (s *SQLiteStore) GetSession(id string) (*ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanSession(s.db.QueryRow(
		`SELECT `+sessionCols+` FROM chat_sessions WHERE id = ?`, id))
}

// ListSessions returns a user's sessions, most recently active first.
// limit <= 0 means no limit.
func (s *SQLiteStore) ListSessions(userID string, limit int) ([]*ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT `+sessionCols+` FROM chat_sessions
		WHERE user_id = ?
		ORDER BY last_activity_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*ChatSession
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// CountSessions returns the number of sessions owned by a user.
func (s *SQLiteStore) CountSessions(userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM chat_sessions WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

// DeleteSessionCascade removes a session and all its messages as one
// atomic unit. A partial cascade (session gone, messages remaining, or the
// reverse) cannot be observed.
func (s *SQLiteStore) DeleteSessionCascade(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chat_messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: messages: %w", sessionID, err)
	}
	if _, err := tx.Exec(`DELETE FROM chat_sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return tx.Commit()
}

// ImportChat bulk-writes sessions and messages in a single transaction.
// Used by the legacy migration path; message counters come from the caller
// (computed off the legacy shape), so the per-insert bump is skipped here.
func (s *SQLiteStore) ImportChat(sessions []*ChatSession, messages []*ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("import chat: %w", err)
	}
	defer tx.Rollback()

	for _, sess := range sessions {
		if err := s.putSessionTx(tx, sess); err != nil {
			return fmt.Errorf("import chat: %w", err)
		}
	}

	now := s.now()
	for _, m := range messages {
		hookImportMessage(m, now)
		attachments, err := marshalStrings(m.Attachments)
		if err != nil {
			return fmt.Errorf("import chat: message %s: %w", m.ID, err)
		}
		meta, err := json.Marshal(m.Meta)
		if err != nil {
			return fmt.Errorf("import chat: message %s: %w", m.ID, err)
		}
		_, err = tx.Exec(`
			INSERT OR REPLACE INTO chat_messages (`+messageCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, m.SessionID, m.UserID, string(m.Role), m.Content, string(m.Status),
			attachments, string(meta), m.SearchText, m.Timestamp, m.CreatedAt, m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("import chat: message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// Notebook entry CRUD
// =============================================================================

const entryCols = `id, user_id, title, content, entry_type, format, subject_id, tags,
	attachments, annotations, status, visibility, version, meta, search_text,
	created_at, updated_at, last_accessed_at`

// PutEntry inserts or overwrites a notebook entry by primary key,
// running the derivation hooks before the row becomes visible.
func (s *SQLiteStore) PutEntry(e *NotebookEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	defer tx.Rollback()

	if err := s.putEntryTx(tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) putEntryTx(tx *sql.Tx, e *NotebookEntry) error {
	now := s.now()

	prev, err := scanEntry(tx.QueryRow(
		`SELECT `+entryCols+` FROM notebook_entries WHERE id = ?`, e.ID))
	if err != nil {
		return fmt.Errorf("put entry %s: %w", e.ID, err)
	}

	if prev == nil {
		hookCreateEntry(e, now)
	} else {
		hookUpdateEntry(e, prev, now)
	}

	return s.writeEntryTx(tx, e)
}

func (s *SQLiteStore) writeEntryTx(tx *sql.Tx, e *NotebookEntry) error {
	tags, err := marshalStrings(e.Tags)
	if err != nil {
		return fmt.Errorf("put entry %s: tags: %w", e.ID, err)
	}
	attachments, err := marshalStrings(e.Attachments)
	if err != nil {
		return fmt.Errorf("put entry %s: attachments: %w", e.ID, err)
	}
	annotations, err := json.Marshal(e.Annotations)
	if err != nil {
		return fmt.Errorf("put entry %s: annotations: %w", e.ID, err)
	}
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("put entry %s: meta: %w", e.ID, err)
	}

	_, err = tx.Exec(`
		INSERT INTO notebook_entries (`+entryCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			content = excluded.content,
			entry_type = excluded.entry_type,
			format = excluded.format,
			subject_id = excluded.subject_id,
			tags = excluded.tags,
			attachments = excluded.attachments,
			annotations = excluded.annotations,
			status = excluded.status,
			visibility = excluded.visibility,
			version = excluded.version,
			meta = excluded.meta,
			search_text = excluded.search_text,
			updated_at = excluded.updated_at,
			last_accessed_at = excluded.last_accessed_at
	`, e.ID, e.UserID, e.Title, e.Content, string(e.Type), e.Format, e.SubjectID,
		tags, attachments, string(annotations), string(e.Status), e.Visibility,
		e.Version, string(meta), e.SearchText, e.CreatedAt, e.UpdatedAt,
		nullInt64(e.LastAccessedAt))
	if err != nil {
		return fmt.Errorf("put entry %s: %w", e.ID, err)
	}
	return nil
}

// GetEntry retrieves an entry by ID. Returns (nil, nil) when absent.
// This is a pure read; access tracking is the caller's explicit step
// (TouchEntryAccess).
func (s *SQLiteStore) GetEntry(id string) (*NotebookEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanEntry(s.db.QueryRow(
		`SELECT `+entryCols+` FROM notebook_entries WHERE id = ?`, id))
}

// ListEntries returns all entries owned by a user, updated_at descending.
func (s *SQLiteStore) ListEntries(userID string) ([]*NotebookEntry, error) {
	return s.queryEntries(`
		SELECT `+entryCols+` FROM notebook_entries
		WHERE user_id = ? ORDER BY updated_at DESC, rowid DESC
	`, userID)
}

// ListEntriesBySubject returns a user's entries for one subject.
func (s *SQLiteStore) ListEntriesBySubject(userID, subjectID string) ([]*NotebookEntry, error) {
	return s.queryEntries(`
		SELECT `+entryCols+` FROM notebook_entries
		WHERE user_id = ? AND subject_id = ? ORDER BY updated_at DESC, rowid DESC
	`, userID, subjectID)
}

// ListEntriesByType returns a user's entries of one type.
func (s *SQLiteStore) ListEntriesByType(userID string, entryType EntryType) ([]*NotebookEntry, error) {
	return s.queryEntries(`
		SELECT `+entryCols+` FROM notebook_entries
		WHERE user_id = ? AND entry_type = ? ORDER BY updated_at DESC, rowid DESC
	`, userID, string(entryType))
}

// SearchEntries performs a case-insensitive substring match against the
// derived search_text column, scoped to one user.
func (s *SQLiteStore) SearchEntries(userID, query string, limit int) ([]*NotebookEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryEntries(`
		SELECT `+entryCols+` FROM notebook_entries
		WHERE user_id = ? AND instr(search_text, ?) > 0
		ORDER BY updated_at DESC, rowid DESC LIMIT ?
	`, userID, lower(query), limit)
}

func (s *SQLiteStore) queryEntries(q string, args ...any) ([]*NotebookEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*NotebookEntry
	for rows.Next() {
		e, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountEntries returns the number of entries owned by a user.
func (s *SQLiteStore) CountEntries(userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM notebook_entries WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

// DeleteEntry removes an entry by ID.
func (s *SQLiteStore) DeleteEntry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM notebook_entries WHERE id = ?`, id)
	return err
}

// TouchEntryAccess records a read-for-display without bumping updated_at,
// so access tracking never perturbs the recency sort.
func (s *SQLiteStore) TouchEntryAccess(id string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE notebook_entries SET last_accessed_at = ? WHERE id = ?`, at, id)
	return err
}

// ImportEntries bulk-writes notebook entries in a single transaction.
// Used by the legacy migration path; original timestamps survive the
// import, with missing ones filled in.
func (s *SQLiteStore) ImportEntries(entries []*NotebookEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("import entries: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	for _, e := range entries {
		hookImportEntry(e, now)
		if err := s.writeEntryTx(tx, e); err != nil {
			return fmt.Errorf("import entries: %w", err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// File attachment CRUD
// =============================================================================

// PutAttachment inserts or overwrites an attachment.
func (s *SQLiteStore) PutAttachment(a *FileAttachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.UploadedAt == 0 {
		a.UploadedAt = s.now()
	}

	_, err := s.db.Exec(`
		INSERT INTO file_attachments (id, user_id, data, url, name, size, mime_type, uploaded_at, uploaded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			data = excluded.data,
			url = excluded.url,
			name = excluded.name,
			size = excluded.size,
			mime_type = excluded.mime_type,
			uploaded_by = excluded.uploaded_by
	`, a.ID, a.UserID, a.Data, a.URL, a.Name, a.Size, a.MimeType, a.UploadedAt, a.UploadedBy)
	if err != nil {
		return fmt.Errorf("put attachment %s: %w", a.ID, err)
	}
	return nil
}

// GetAttachment retrieves an attachment by ID. Returns (nil, nil) when absent.
func (s *SQLiteStore) GetAttachment(id string) (*FileAttachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a FileAttachment
	var url, mimeType, uploadedBy sql.NullString
	err := s.db.QueryRow(`
		SELECT id, user_id, data, url, name, size, mime_type, uploaded_at, uploaded_by
		FROM file_attachments WHERE id = ?
	`, id).Scan(&a.ID, &a.UserID, &a.Data, &url, &a.Name, &a.Size, &mimeType, &a.UploadedAt, &uploadedBy)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.URL = url.String
	a.MimeType = mimeType.String
	a.UploadedBy = uploadedBy.String
	return &a, nil
}

// ListAttachments returns all attachments owned by a user.
func (s *SQLiteStore) ListAttachments(userID string) ([]*FileAttachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, user_id, data, url, name, size, mime_type, uploaded_at, uploaded_by
		FROM file_attachments WHERE user_id = ? ORDER BY uploaded_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []*FileAttachment
	for rows.Next() {
		var a FileAttachment
		var url, mimeType, uploadedBy sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &a.Data, &url, &a.Name, &a.Size,
			&mimeType, &a.UploadedAt, &uploadedBy); err != nil {
			return nil, err
		}
		a.URL = url.String
		a.MimeType = mimeType.String
		a.UploadedBy = uploadedBy.String
		attachments = append(attachments, &a)
	}
	return attachments, rows.Err()
}

// DeleteAttachment removes an attachment by ID.
func (s *SQLiteStore) DeleteAttachment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM file_attachments WHERE id = ?`, id)
	return err
}

// =============================================================================
// Concept knowledge CRUD
// =============================================================================

const conceptCols = `id, user_id, subject_id, concept, confidence, review_count,
	mention_count, last_reviewed_at, entry_ids, created_at, updated_at`

// PutConcept inserts or overwrites a concept record.
func (s *SQLiteStore) PutConcept(c *ConceptKnowledge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	entryIDs, err := marshalStrings(c.EntryIDs)
	if err != nil {
		return fmt.Errorf("put concept %s: entry ids: %w", c.ID, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO concept_knowledge (`+conceptCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			confidence = excluded.confidence,
			review_count = excluded.review_count,
			mention_count = excluded.mention_count,
			last_reviewed_at = excluded.last_reviewed_at,
			entry_ids = excluded.entry_ids,
			updated_at = excluded.updated_at
	`, c.ID, c.UserID, c.SubjectID, c.Concept, c.Confidence, c.ReviewCount,
		c.MentionCount, nullInt64(c.LastReviewedAt), entryIDs, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put concept %s: %w", c.ID, err)
	}
	return nil
}

// GetConcept retrieves a concept record by ID. Returns (nil, nil) when absent.
func (s *SQLiteStore) GetConcept(id string) (*ConceptKnowledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanConcept(s.db.QueryRow(
		`SELECT `+conceptCols+` FROM concept_knowledge WHERE id = ?`, id))
}

// GetConceptByName finds a concept record by its (case-insensitive) name
// within one user's subject. Returns (nil, nil) when absent.
func (s *SQLiteStore) GetConceptByName(userID, subjectID, concept string) (*ConceptKnowledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanConcept(s.db.QueryRow(`
		SELECT `+conceptCols+` FROM concept_knowledge
		WHERE user_id = ? AND subject_id = ? AND LOWER(concept) = LOWER(?)
	`, userID, subjectID, concept))
}

// ListConcepts returns a user's concept records, optionally filtered by
// subject, lowest confidence first (weakest concepts surface for review).
func (s *SQLiteStore) ListConcepts(userID, subjectID string) ([]*ConceptKnowledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows *sql.Rows
	var err error
	if subjectID != "" {
		rows, err = s.db.Query(`
			SELECT `+conceptCols+` FROM concept_knowledge
			WHERE user_id = ? AND subject_id = ? ORDER BY confidence ASC
		`, userID, subjectID)
	} else {
		rows, err = s.db.Query(`
			SELECT `+conceptCols+` FROM concept_knowledge
			WHERE user_id = ? ORDER BY confidence ASC
		`, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectConcepts(rows)
}

// ListConceptsByConfidence returns a user's concepts within a confidence band.
func (s *SQLiteStore) ListConceptsByConfidence(userID string, min, max float64) ([]*ConceptKnowledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+conceptCols+` FROM concept_knowledge
		WHERE user_id = ? AND confidence >= ? AND confidence <= ?
		ORDER BY confidence ASC
	`, userID, min, max)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectConcepts(rows)
}

// =============================================================================
// Row scanning helpers
// =============================================================================

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (*ChatMessage, error) {
	var m ChatMessage
	var role, status string
	var attachments, meta sql.NullString

	err := r.Scan(&m.ID, &m.SessionID, &m.UserID, &role, &m.Content, &status,
		&attachments, &meta, &m.SearchText, &m.Timestamp, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.Role = MessageRole(role)
	m.Status = MessageStatus(status)
	m.Attachments = unmarshalStrings(attachments.String)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &m.Meta); err != nil {
			m.Meta = MessageMeta{}
		}
	}
	return &m, nil
}

func collectMessages(rows *sql.Rows) ([]*ChatMessage, error) {
	var messages []*ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func scanSession(r rowScanner) (*ChatSession, error) {
	sess, err := scanSessionRows(r)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

func scanSessionRows(r rowScanner) (*ChatSession, error) {
	var sess ChatSession
	var sessionType string
	var subjectID, meta sql.NullString
	var isActive int

	err := r.Scan(&sess.ID, &sess.UserID, &sess.Title, &sessionType, &subjectID, &meta,
		&isActive, &sess.LastActivityAt, &sess.MessageCount, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}

	sess.Type = SessionType(sessionType)
	sess.SubjectID = subjectID.String
	sess.IsActive = isActive != 0
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &sess.Meta); err != nil {
			sess.Meta = SessionMeta{}
		}
	}
	return &sess, nil
}

func scanEntry(r rowScanner) (*NotebookEntry, error) {
	e, err := scanEntryRows(r)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func scanEntryRows(r rowScanner) (*NotebookEntry, error) {
	var e NotebookEntry
	var entryType, status string
	var format, subjectID, tags, attachments, annotations, visibility, meta sql.NullString
	var lastAccessed sql.NullInt64

	err := r.Scan(&e.ID, &e.UserID, &e.Title, &e.Content, &entryType, &format, &subjectID,
		&tags, &attachments, &annotations, &status, &visibility, &e.Version, &meta,
		&e.SearchText, &e.CreatedAt, &e.UpdatedAt, &lastAccessed)
	if err != nil {
		return nil, err
	}

	e.Type = EntryType(entryType)
	e.Status = EntryStatus(status)
	e.Format = format.String
	e.SubjectID = subjectID.String
	e.Visibility = visibility.String
	e.Tags = unmarshalStrings(tags.String)
	e.Attachments = unmarshalStrings(attachments.String)
	if annotations.Valid && annotations.String != "" {
		if err := json.Unmarshal([]byte(annotations.String), &e.Annotations); err != nil {
			e.Annotations = nil
		}
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &e.Meta); err != nil {
			e.Meta = EntryMeta{}
		}
	}
	if lastAccessed.Valid {
		e.LastAccessedAt = lastAccessed.Int64
	}
	return &e, nil
}

func scanConcept(r rowScanner) (*ConceptKnowledge, error) {
	c, err := scanConceptRows(r)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func scanConceptRows(r rowScanner) (*ConceptKnowledge, error) {
	var c ConceptKnowledge
	var lastReviewed sql.NullInt64
	var entryIDs sql.NullString

	err := r.Scan(&c.ID, &c.UserID, &c.SubjectID, &c.Concept, &c.Confidence,
		&c.ReviewCount, &c.MentionCount, &lastReviewed, &entryIDs, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lastReviewed.Valid {
		c.LastReviewedAt = lastReviewed.Int64
	}
	c.EntryIDs = unmarshalStrings(entryIDs.String)
	return &c, nil
}

func collectConcepts(rows *sql.Rows) ([]*ConceptKnowledge, error) {
	var concepts []*ConceptKnowledge
	for rows.Next() {
		c, err := scanConceptRows(rows)
		if err != nil {
			return nil, err
		}
		concepts = append(concepts, c)
	}
	return concepts, rows.Err()
}

// =============================================================================
// Helpers
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func marshalStrings(ss []string) (string, error) {
	if len(ss) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStrings(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// lower folds a query to match the lower-cased search_text column;
// instr() itself is byte-exact.
func lower(s string) string {
	return strings.ToLower(s)
}

// Compile-time interface check
var _ Storer = (*SQLiteStore)(nil)
