// Package ingest is the boundary to the document ingestion service,
// which turns uploaded PDFs and photos into notebook text. The core's
// only dependency on it is persisting the returned content as a new
// NotebookEntry; a remote failure surfaces as an error and writes
// nothing.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/studykit/studygo/internal/store"
	"github.com/studykit/studygo/pkg/notebook"
)

// Mode selects how the service processes the document.
type Mode string

const (
	ModeExtract    Mode = "extract"
	ModeSummarize  Mode = "summarize"
	ModeStudyGuide Mode = "study-guide"
)

// Config holds the ingestion endpoint settings.
type Config struct {
	Endpoint string
	APIKey   string
}

// Result is the parsed service response.
type Result struct {
	Content   string
	WordCount int
	PageCount int
}

// Request describes one document to process.
type Request struct {
	FileName  string
	MimeType  string
	Data      []byte // raw file bytes, base64-encoded on the wire
	Mode      Mode
	SubjectID string
}

// Service wraps the ingestion endpoint and the notebook repository.
type Service struct {
	config   Config
	notebook *notebook.Service
}

// NewService creates an ingestion service.
func NewService(config Config, nb *notebook.Service) *Service {
	return &Service{config: config, notebook: nb}
}

// Process sends a document to the ingestion service and returns the
// parsed result without persisting anything.
func (s *Service) Process(ctx context.Context, req Request) (*Result, error) {
	if req.Mode == "" {
		req.Mode = ModeExtract
	}

	body, err := json.Marshal(struct {
		FileName string `json:"fileName"`
		MimeType string `json:"mimeType"`
		Data     []byte `json:"data"` // encoding/json emits base64 for []byte
		Mode     Mode   `json:"mode"`
	}{req.FileName, req.MimeType, req.Data, req.Mode})
	if err != nil {
		return nil, fmt.Errorf("ingest: marshal request: %w", err)
	}

	raw, err := s.callIngest(ctx, string(body))
	if err != nil {
		return nil, fmt.Errorf("ingest: %s failed: %w", req.Mode, err)
	}
	return parseIngestResponse(raw)
}

// ProcessAndSave runs Process, then persists the result as a notebook
// entry for userID and returns the new entry id. Nothing is written when
// the remote call or the parse fails.
func (s *Service) ProcessAndSave(ctx context.Context, req Request, userID string) (string, error) {
	result, err := s.Process(ctx, req)
	if err != nil {
		return "", err
	}

	entry := entryFromResult(req, result)
	id, err := s.notebook.CreateEntry(entry, userID)
	if err != nil {
		return "", fmt.Errorf("ingest: save entry: %w", err)
	}
	return id, nil
}

func entryFromResult(req Request, result *Result) *notebook.Entry {
	entryType := store.EntrySummary
	if req.Mode == ModeStudyGuide {
		entryType = store.EntryOutline
	}
	if req.Mode == ModeExtract {
		entryType = store.EntryReference
	}

	title := req.FileName
	if title == "" {
		title = fmt.Sprintf("Imported document (%s)", req.Mode)
	}

	return &notebook.Entry{
		Title:     title,
		Content:   result.Content,
		Type:      entryType,
		SubjectID: req.SubjectID,
		Meta: store.EntryMeta{
			IsAIGenerated: req.Mode != ModeExtract,
			SourceType:    sourceType(req.MimeType),
		},
	}
}

func sourceType(mimeType string) string {
	if mimeType == "application/pdf" {
		return "pdf"
	}
	return "photo"
}

// parseIngestResponse extracts content and metadata from the raw
// service response.
func parseIngestResponse(raw string) (*Result, error) {
	var response struct {
		Content  string `json:"content"`
		Metadata struct {
			WordCount int `json:"wordCount"`
			PageCount int `json:"pageCount"`
		} `json:"metadata"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}

	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		return nil, fmt.Errorf("ingest: failed to parse response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("ingest: service error: %s", response.Error.Message)
	}
	if response.Content == "" {
		return nil, fmt.Errorf("ingest: empty content in response")
	}

	return &Result{
		Content:   response.Content,
		WordCount: response.Metadata.WordCount,
		PageCount: response.Metadata.PageCount,
	}, nil
}
