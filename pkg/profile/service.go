// Package profile tracks per-user, per-subject concept mastery.
// Records are created on first assessment, updated on each review, and
// never deleted. Confidence lives in [0, 1].
package profile

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/studykit/studygo/internal/store"
	"github.com/studykit/studygo/pkg/conceptscan"
)

// Service is the learning-profile service.
type Service struct {
	store store.Storer
	now   func() time.Time
}

// NewService creates a profile service over an opened store.
func NewService(s store.Storer) *Service {
	return &Service{store: s, now: time.Now}
}

// RecordAssessment creates or updates the mastery record for a concept
// after a graded exercise. The first assessment creates the record; later
// ones fold the new confidence in and bump the review count. entryID, when
// non-empty, links the notebook entry that drove the assessment.
func (s *Service) RecordAssessment(userID, subjectID, concept string, confidence float64, entryID string) (*store.ConceptKnowledge, error) {
	if concept == "" {
		return nil, fmt.Errorf("record assessment: concept is required")
	}
	confidence = clamp01(confidence)

	row, err := s.store.GetConceptByName(userID, subjectID, concept)
	if err != nil {
		return nil, fmt.Errorf("record assessment: %w", err)
	}

	now := s.now().UnixMilli()
	if row == nil {
		row = &store.ConceptKnowledge{
			ID:             uuid.NewString(),
			UserID:         userID,
			SubjectID:      subjectID,
			Concept:        concept,
			Confidence:     confidence,
			ReviewCount:    1,
			LastReviewedAt: now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	} else {
		// Exponential moving average; recent performance dominates but a
		// single bad day cannot erase an established record.
		row.Confidence = clamp01(0.7*confidence + 0.3*row.Confidence)
		row.ReviewCount++
		row.LastReviewedAt = now
		row.UpdatedAt = now
	}
	if entryID != "" {
		row.EntryIDs = appendUnique(row.EntryIDs, entryID)
	}

	if err := s.store.PutConcept(row); err != nil {
		return nil, fmt.Errorf("record assessment: %w", err)
	}
	return row, nil
}

// RecordReview stamps a review pass without a grade: review count and
// recency move, confidence stays.
func (s *Service) RecordReview(userID, subjectID, concept string) error {
	row, err := s.store.GetConceptByName(userID, subjectID, concept)
	if err != nil {
		return fmt.Errorf("record review: %w", err)
	}
	if row == nil {
		return fmt.Errorf("record review: no record for %q", concept)
	}

	now := s.now().UnixMilli()
	row.ReviewCount++
	row.LastReviewedAt = now
	row.UpdatedAt = now
	if err := s.store.PutConcept(row); err != nil {
		return fmt.Errorf("record review: %w", err)
	}
	return nil
}

// GetConcept looks up one mastery record by name. Missing records return
// (nil, nil).
func (s *Service) GetConcept(userID, subjectID, concept string) (*store.ConceptKnowledge, error) {
	row, err := s.store.GetConceptByName(userID, subjectID, concept)
	if err != nil {
		return nil, fmt.Errorf("get concept: %w", err)
	}
	return row, nil
}

// ListConcepts returns a user's mastery records for a subject (empty
// subjectID means all), weakest first.
func (s *Service) ListConcepts(userID, subjectID string) ([]*store.ConceptKnowledge, error) {
	rows, err := s.store.ListConcepts(userID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	return rows, nil
}

// WeakConcepts returns the user's records below the confidence threshold,
// the natural review queue.
func (s *Service) WeakConcepts(userID string, threshold float64) ([]*store.ConceptKnowledge, error) {
	rows, err := s.store.ListConceptsByConfidence(userID, 0, clamp01(threshold))
	if err != nil {
		return nil, fmt.Errorf("weak concepts: %w", err)
	}
	return rows, nil
}

// Dictionary compiles the scanner dictionary from a user's tracked
// concepts so ScanText recognizes exactly what the profile knows about.
func (s *Service) Dictionary(userID, subjectID string) (*conceptscan.Dictionary, error) {
	rows, err := s.store.ListConcepts(userID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("build dictionary: %w", err)
	}

	concepts := make([]conceptscan.Concept, 0, len(rows))
	for _, row := range rows {
		concepts = append(concepts, conceptscan.Concept{
			ID:        row.ID,
			Name:      row.Concept,
			SubjectID: row.SubjectID,
		})
	}
	dict, err := conceptscan.Compile(concepts)
	if err != nil {
		return nil, fmt.Errorf("build dictionary: %w", err)
	}
	return dict, nil
}

// ScanText runs the user's concept dictionary over a piece of study text
// (a notebook entry, a chat answer) and bumps the mention count of every
// concept found. Returns the mentions so callers can highlight them.
func (s *Service) ScanText(userID, subjectID, text string) ([]conceptscan.Mention, error) {
	dict, err := s.Dictionary(userID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("scan text: %w", err)
	}

	mentions := dict.Scan(text)
	if len(mentions) == 0 {
		return mentions, nil
	}

	counts := make(map[string]int)
	for _, m := range mentions {
		for _, c := range m.Concepts {
			counts[c.ID]++
		}
	}

	now := s.now().UnixMilli()
	for id, n := range counts {
		row, err := s.store.GetConcept(id)
		if err != nil {
			return mentions, fmt.Errorf("scan text: %w", err)
		}
		if row == nil {
			continue
		}
		row.MentionCount += n
		row.UpdatedAt = now
		if err := s.store.PutConcept(row); err != nil {
			return mentions, fmt.Errorf("scan text: %w", err)
		}
	}
	return mentions, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func appendUnique(slice []string, item string) []string {
	for _, s := range slice {
		if s == item {
			return slice
		}
	}
	return append(slice, item)
}
