// Package store provides SQLite-backed persistence for StudyGo.
// This is the unified data layer replacing the app's localStorage snapshots.
package store

// MessageRole identifies who produced a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MessageStatus tracks delivery state of an outgoing message.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusFailed    MessageStatus = "failed"
)

// SessionType scopes a tutoring conversation.
type SessionType string

const (
	SessionGeneral  SessionType = "general"
	SessionSubject  SessionType = "subject"
	SessionHomework SessionType = "homework"
	SessionExamPrep SessionType = "exam_prep"
)

// EntryType enumerates the kinds of notebook artifacts.
type EntryType string

const (
	EntryConcept    EntryType = "concept"
	EntryFormula    EntryType = "formula"
	EntryVocabulary EntryType = "vocabulary"
	EntrySummary    EntryType = "summary"
	EntryOutline    EntryType = "outline"
	EntryMindmap    EntryType = "mindmap"
	EntryPractice   EntryType = "practice"
	EntryExample    EntryType = "example"
	EntryQuiz       EntryType = "quiz"
	EntryFlashcard  EntryType = "flashcard"
	EntryChecklist  EntryType = "checklist"
	EntryReference  EntryType = "reference"
)

// EntryStatus tracks the review lifecycle of a notebook entry.
type EntryStatus string

const (
	EntryDraft    EntryStatus = "draft"
	EntryComplete EntryStatus = "complete"
	EntryInReview EntryStatus = "in_review"
	EntryVerified EntryStatus = "verified"
)

// MessageMeta is the closed metadata record for a chat message.
// Replaces the old untyped metadata bag so derivation and validation
// can be checked at compile time.
type MessageMeta struct {
	Thinking        string `json:"thinking,omitempty"` // AI reasoning trace
	Debug           string `json:"debug,omitempty"`
	SavedToNotebook bool   `json:"savedToNotebook,omitempty"`
	NotebookEntryID string `json:"notebookEntryId,omitempty"`
}

// ChatMessage is one turn in a tutoring conversation.
// All timestamps are numeric millisecond values for index-friendly sorting;
// SearchText is derived from Content by the write-path hooks and is never
// mutated independently.
type ChatMessage struct {
	ID          string        `json:"id"`
	SessionID   string        `json:"sessionId"`
	UserID      string        `json:"userId"`
	Role        MessageRole   `json:"role"`
	Content     string        `json:"content"`
	Status      MessageStatus `json:"status"`
	Attachments []string      `json:"attachments,omitempty"` // ordered attachment ids
	Meta        MessageMeta   `json:"metadata"`
	SearchText  string        `json:"searchText"`
	Timestamp   int64         `json:"timestamp"`
	CreatedAt   int64         `json:"createdAt"`
	UpdatedAt   int64         `json:"updatedAt"`
}

// SessionMeta is the closed metadata record for a chat session.
type SessionMeta struct {
	Tags         []string `json:"tags,omitempty"`
	StudyContext string   `json:"studyContext,omitempty"` // snapshot at session start
}

// ChatSession is a conversation thread.
// MessageCount is maintained incrementally on message insert, never by
// rescanning the messages table.
type ChatSession struct {
	ID             string      `json:"id"`
	UserID         string      `json:"userId"`
	Title          string      `json:"title"`
	Type           SessionType `json:"type"`
	SubjectID      string      `json:"subjectId,omitempty"`
	Meta           SessionMeta `json:"metadata"`
	IsActive       bool        `json:"isActive"`
	LastActivityAt int64       `json:"lastActivityAt"`
	MessageCount   int         `json:"messageCount"`
	CreatedAt      int64       `json:"createdAt"`
	UpdatedAt      int64       `json:"updatedAt"`
}

// EntryMeta is the closed metadata record for a notebook entry.
// WordCount is informational only; it is not kept consistent with Content
// unless the caller recomputes it.
type EntryMeta struct {
	IsAIGenerated bool   `json:"isAIGenerated,omitempty"`
	SourceType    string `json:"sourceType,omitempty"` // "manual" | "chat" | "pdf" | "photo" | "ai"
	SourceID      string `json:"sourceId,omitempty"`
	GradeLevel    string `json:"gradeLevel,omitempty"`
	WordCount     int    `json:"wordCount,omitempty"`
	StudyCount    int    `json:"studyCount,omitempty"`
	IsFavorite    bool   `json:"isFavorite,omitempty"`
	IsArchived    bool   `json:"isArchived,omitempty"`
}

// Annotation is a highlight or margin note on a notebook entry.
type Annotation struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Offset int    `json:"offset"` // byte offset into Content
}

// NotebookEntry is a saved study artifact.
// SearchText is derived from Title + Content by the write-path hooks.
type NotebookEntry struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId"`
	Title          string       `json:"title"`
	Content        string       `json:"content"` // markdown
	Type           EntryType    `json:"type"`
	Format         string       `json:"format,omitempty"`
	SubjectID      string       `json:"subjectId,omitempty"`
	Tags           []string     `json:"tags,omitempty"`
	Attachments    []string     `json:"attachments,omitempty"`
	Annotations    []Annotation `json:"annotations,omitempty"`
	Status         EntryStatus  `json:"status"`
	Visibility     string       `json:"visibility,omitempty"`
	Version        int          `json:"version"`
	Meta           EntryMeta    `json:"metadata"`
	SearchText     string       `json:"searchText"`
	CreatedAt      int64        `json:"createdAt"`
	UpdatedAt      int64        `json:"updatedAt"`
	LastAccessedAt int64        `json:"lastAccessedAt,omitempty"`
}

// FileAttachment holds attachment metadata plus the binary payload
// (or an external URL when the payload lives elsewhere).
type FileAttachment struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	Data       []byte `json:"data,omitempty"`
	URL        string `json:"url,omitempty"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	MimeType   string `json:"mimeType"`
	UploadedAt int64  `json:"uploadedAt"`
	UploadedBy string `json:"uploadedBy,omitempty"`
}

// ConceptKnowledge is a per-user, per-subject mastery record.
// Created on first assessment, updated on each review, never deleted.
type ConceptKnowledge struct {
	ID             string   `json:"id"`
	UserID         string   `json:"userId"`
	SubjectID      string   `json:"subjectId"`
	Concept        string   `json:"concept"`
	Confidence     float64  `json:"confidence"` // 0..1
	ReviewCount    int      `json:"reviewCount"`
	MentionCount   int      `json:"mentionCount"`
	LastReviewedAt int64    `json:"lastReviewedAt,omitempty"`
	EntryIDs       []string `json:"entryIds,omitempty"` // notebook entries that reinforced the concept
	CreatedAt      int64    `json:"createdAt"`
	UpdatedAt      int64    `json:"updatedAt"`
}

// Storer defines the interface for data persistence.
// SQLiteStore is the sole implementation; point lookups return (nil, nil)
// when the row is absent. Row isolation between users is enforced by the
// user-scoped queries, not by the engine.
type Storer interface {
	// Chat messages
	PutMessage(m *ChatMessage) error
	PutMessages(ms []*ChatMessage) error
	GetMessage(id string) (*ChatMessage, error)
	RecentMessages(sessionID, userID string, limit int) ([]*ChatMessage, error)
	SearchMessages(userID, query string, limit int) ([]*ChatMessage, error)
	CountMessages(userID string) (int, error)

	// Chat sessions
	PutSession(s *ChatSession) error
	GetSession(id string) (*ChatSession, error)
	ListSessions(userID string, limit int) ([]*ChatSession, error)
	CountSessions(userID string) (int, error)
	DeleteSessionCascade(sessionID string) error
	ImportChat(sessions []*ChatSession, messages []*ChatMessage) error

	// Notebook entries
	PutEntry(e *NotebookEntry) error
	GetEntry(id string) (*NotebookEntry, error)
	ListEntries(userID string) ([]*NotebookEntry, error)
	ListEntriesBySubject(userID, subjectID string) ([]*NotebookEntry, error)
	ListEntriesByType(userID string, entryType EntryType) ([]*NotebookEntry, error)
	SearchEntries(userID, query string, limit int) ([]*NotebookEntry, error)
	CountEntries(userID string) (int, error)
	DeleteEntry(id string) error
	TouchEntryAccess(id string, at int64) error
	ImportEntries(entries []*NotebookEntry) error

	// File attachments
	PutAttachment(a *FileAttachment) error
	GetAttachment(id string) (*FileAttachment, error)
	ListAttachments(userID string) ([]*FileAttachment, error)
	DeleteAttachment(id string) error

	// Concept knowledge
	PutConcept(c *ConceptKnowledge) error
	GetConcept(id string) (*ConceptKnowledge, error)
	GetConceptByName(userID, subjectID, concept string) (*ConceptKnowledge, error)
	ListConcepts(userID, subjectID string) ([]*ConceptKnowledge, error)
	ListConceptsByConfidence(userID string, min, max float64) ([]*ConceptKnowledge, error)

	// Lifecycle
	Close() error
}
