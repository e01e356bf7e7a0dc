package store

import (
	"fmt"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// tickingClock makes every write land on a distinct millisecond.
func tickingClock(start int64) func() int64 {
	now := start
	return func() int64 {
		now++
		return now
	}
}

func TestMessageHooks_CreateDerivesFields(t *testing.T) {
	s := newTestStore(t)
	s.now = func() int64 { return 42000 }

	if err := s.PutSession(&ChatSession{ID: "s1", UserID: "u1", Title: "Algebra"}); err != nil {
		t.Fatalf("PutSession failed: %v", err)
	}

	m := &ChatMessage{
		ID:         "m1",
		SessionID:  "s1",
		UserID:     "u1",
		Role:       RoleUser,
		Content:    "What Is 2+2?",
		Status:     StatusSending,
		SearchText: "caller supplied garbage", // must be overridden
		Timestamp:  1,                         // must be overridden
	}
	if err := s.PutMessage(m); err != nil {
		t.Fatalf("PutMessage failed: %v", err)
	}

	got, err := s.GetMessage("m1")
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if got.SearchText != "what is 2+2?" {
		t.Errorf("searchText = %q, want %q", got.SearchText, "what is 2+2?")
	}
	if got.Timestamp != 42000 || got.CreatedAt != 42000 || got.UpdatedAt != 42000 {
		t.Errorf("timestamps not stamped: ts=%d created=%d updated=%d",
			got.Timestamp, got.CreatedAt, got.UpdatedAt)
	}
}

func TestMessageHooks_UpdatePreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	s.now = tickingClock(1000)

	if err := s.PutSession(&ChatSession{ID: "s1", UserID: "u1", Title: "Algebra"}); err != nil {
		t.Fatalf("PutSession failed: %v", err)
	}
	m := &ChatMessage{ID: "m1", SessionID: "s1", UserID: "u1", Role: RoleUser,
		Content: "Original", Status: StatusSending}
	if err := s.PutMessage(m); err != nil {
		t.Fatalf("PutMessage failed: %v", err)
	}
	created := m.CreatedAt

	m.Content = "Edited Content"
	m.Status = StatusSent
	if err := s.PutMessage(m); err != nil {
		t.Fatalf("PutMessage update failed: %v", err)
	}

	got, _ := s.GetMessage("m1")
	if got.CreatedAt != created {
		t.Errorf("createdAt changed on update: %d -> %d", created, got.CreatedAt)
	}
	if got.UpdatedAt <= created {
		t.Errorf("updatedAt not bumped: %d", got.UpdatedAt)
	}
	if got.SearchText != "edited content" {
		t.Errorf("searchText not recomputed: %q", got.SearchText)
	}
}

func TestMessageCount_IncrementalMaintenance(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutSession(&ChatSession{ID: "s1", UserID: "u1", Title: "Algebra"}); err != nil {
		t.Fatalf("PutSession failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		m := &ChatMessage{
			ID: fmt.Sprintf("m%d", i), SessionID: "s1", UserID: "u1",
			Role: RoleUser, Content: "hi", Status: StatusSent,
		}
		if err := s.PutMessage(m); err != nil {
			t.Fatalf("PutMessage failed: %v", err)
		}
	}

	// Overwriting an existing message must not bump the counter.
	if err := s.PutMessage(&ChatMessage{ID: "m0", SessionID: "s1", UserID: "u1",
		Role: RoleUser, Content: "edited", Status: StatusSent}); err != nil {
		t.Fatalf("PutMessage overwrite failed: %v", err)
	}

	sess, err := s.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess.MessageCount != 3 {
		t.Errorf("messageCount = %d, want 3", sess.MessageCount)
	}
}

func TestRecentMessages_OrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	s.now = tickingClock(1000)

	s.PutSession(&ChatSession{ID: "s1", UserID: "u1", Title: "Algebra"})
	for i := 0; i < 5; i++ {
		s.PutMessage(&ChatMessage{
			ID: fmt.Sprintf("m%d", i), SessionID: "s1", UserID: "u1",
			Role: RoleUser, Content: fmt.Sprintf("msg %d", i), Status: StatusSent,
		})
	}

	msgs, err := s.RecentMessages("s1", "u1", 2)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// Newest first at the store layer; repositories reverse for display.
	if msgs[0].ID != "m4" || msgs[1].ID != "m3" {
		t.Errorf("order wrong: got %s, %s", msgs[0].ID, msgs[1].ID)
	}
}

func TestSearchMessages_UserScoped(t *testing.T) {
	s := newTestStore(t)

	s.PutSession(&ChatSession{ID: "s1", UserID: "u1", Title: "Bio"})
	s.PutSession(&ChatSession{ID: "s2", UserID: "u2", Title: "Bio"})
	s.PutMessage(&ChatMessage{ID: "m1", SessionID: "s1", UserID: "u1",
		Role: RoleUser, Content: "Photosynthesis basics", Status: StatusSent})
	s.PutMessage(&ChatMessage{ID: "m2", SessionID: "s2", UserID: "u2",
		Role: RoleUser, Content: "Photosynthesis advanced", Status: StatusSent})

	hits, err := s.SearchMessages("u1", "PHOTO", 10)
	if err != nil {
		t.Fatalf("SearchMessages failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "m1" {
		t.Errorf("expected only u1's message, got %d hits", len(hits))
	}
}

func TestDeleteSessionCascade(t *testing.T) {
	s := newTestStore(t)

	s.PutSession(&ChatSession{ID: "s1", UserID: "u1", Title: "Algebra"})
	s.PutSession(&ChatSession{ID: "s2", UserID: "u1", Title: "Biology"})
	for i := 0; i < 4; i++ {
		s.PutMessage(&ChatMessage{ID: fmt.Sprintf("a%d", i), SessionID: "s1",
			UserID: "u1", Role: RoleUser, Content: "x", Status: StatusSent})
	}
	s.PutMessage(&ChatMessage{ID: "b0", SessionID: "s2", UserID: "u1",
		Role: RoleUser, Content: "y", Status: StatusSent})

	if err := s.DeleteSessionCascade("s1"); err != nil {
		t.Fatalf("DeleteSessionCascade failed: %v", err)
	}

	if sess, _ := s.GetSession("s1"); sess != nil {
		t.Error("session s1 still present after cascade")
	}
	msgs, _ := s.RecentMessages("s1", "u1", 0)
	if len(msgs) != 0 {
		t.Errorf("%d messages left dangling after cascade", len(msgs))
	}
	// Sibling session untouched.
	if sess, _ := s.GetSession("s2"); sess == nil {
		t.Error("unrelated session s2 was deleted")
	}
	if msgs, _ := s.RecentMessages("s2", "u1", 0); len(msgs) != 1 {
		t.Error("unrelated session s2 lost its messages")
	}
}

func TestEntryHooks_SearchTextDerivation(t *testing.T) {
	s := newTestStore(t)

	e := &NotebookEntry{ID: "n1", UserID: "u1", Title: "Photosynthesis",
		Content: "Plants Convert Light", Type: EntryConcept, Status: EntryDraft}
	if err := s.PutEntry(e); err != nil {
		t.Fatalf("PutEntry failed: %v", err)
	}

	got, err := s.GetEntry("n1")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	want := "photosynthesis plants convert light"
	if got.SearchText != want {
		t.Errorf("searchText = %q, want %q", got.SearchText, want)
	}

	got.Title = "Respiration"
	if err := s.PutEntry(got); err != nil {
		t.Fatalf("PutEntry update failed: %v", err)
	}
	got, _ = s.GetEntry("n1")
	if got.SearchText != "respiration plants convert light" {
		t.Errorf("searchText not recomputed: %q", got.SearchText)
	}
}

func TestGetMissing_ReturnsNilNil(t *testing.T) {
	s := newTestStore(t)

	if m, err := s.GetMessage("nope"); m != nil || err != nil {
		t.Errorf("GetMessage = (%v, %v), want (nil, nil)", m, err)
	}
	if sess, err := s.GetSession("nope"); sess != nil || err != nil {
		t.Errorf("GetSession = (%v, %v), want (nil, nil)", sess, err)
	}
	if e, err := s.GetEntry("nope"); e != nil || err != nil {
		t.Errorf("GetEntry = (%v, %v), want (nil, nil)", e, err)
	}
	if a, err := s.GetAttachment("nope"); a != nil || err != nil {
		t.Errorf("GetAttachment = (%v, %v), want (nil, nil)", a, err)
	}
	if c, err := s.GetConcept("nope"); c != nil || err != nil {
		t.Errorf("GetConcept = (%v, %v), want (nil, nil)", c, err)
	}
}

func TestTouchEntryAccess_DoesNotBumpUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	s.now = tickingClock(1000)

	s.PutEntry(&NotebookEntry{ID: "n1", UserID: "u1", Title: "T", Content: "C",
		Type: EntryConcept, Status: EntryDraft})
	before, _ := s.GetEntry("n1")

	if err := s.TouchEntryAccess("n1", 99999); err != nil {
		t.Fatalf("TouchEntryAccess failed: %v", err)
	}
	after, _ := s.GetEntry("n1")
	if after.LastAccessedAt != 99999 {
		t.Errorf("lastAccessedAt = %d, want 99999", after.LastAccessedAt)
	}
	if after.UpdatedAt != before.UpdatedAt {
		t.Errorf("updatedAt changed on access touch: %d -> %d", before.UpdatedAt, after.UpdatedAt)
	}
}

func TestEntryRoundTrip_TagsAnnotationsMeta(t *testing.T) {
	s := newTestStore(t)

	e := &NotebookEntry{
		ID: "n1", UserID: "u1", Title: "Quadratics", Content: "ax^2+bx+c",
		Type: EntryFormula, SubjectID: "math", Status: EntryComplete,
		Tags:        []string{"algebra", "exam"},
		Attachments: []string{"att1"},
		Annotations: []Annotation{{ID: "an1", Text: "memorize", Offset: 3}},
		Meta:        EntryMeta{IsAIGenerated: true, SourceType: "chat", WordCount: 12, IsFavorite: true},
	}
	if err := s.PutEntry(e); err != nil {
		t.Fatalf("PutEntry failed: %v", err)
	}

	got, _ := s.GetEntry("n1")
	if len(got.Tags) != 2 || got.Tags[0] != "algebra" {
		t.Errorf("tags mismatch: %v", got.Tags)
	}
	if len(got.Annotations) != 1 || got.Annotations[0].Text != "memorize" {
		t.Errorf("annotations mismatch: %v", got.Annotations)
	}
	if !got.Meta.IsFavorite || got.Meta.WordCount != 12 || got.Meta.SourceType != "chat" {
		t.Errorf("meta mismatch: %+v", got.Meta)
	}
}

func TestPutMessages_Transactional(t *testing.T) {
	s := newTestStore(t)
	s.PutSession(&ChatSession{ID: "s1", UserID: "u1", Title: "T"})

	batch := []*ChatMessage{
		{ID: "m1", SessionID: "s1", UserID: "u1", Role: RoleUser, Content: "a", Status: StatusSent},
		{ID: "m2", SessionID: "s1", UserID: "u1", Role: RoleAssistant, Content: "b", Status: StatusSent},
	}
	if err := s.PutMessages(batch); err != nil {
		t.Fatalf("PutMessages failed: %v", err)
	}
	if n, _ := s.CountMessages("u1"); n != 2 {
		t.Errorf("CountMessages = %d, want 2", n)
	}
	sess, _ := s.GetSession("s1")
	if sess.MessageCount != 2 {
		t.Errorf("messageCount = %d, want 2", sess.MessageCount)
	}
}

func TestConceptCRUD(t *testing.T) {
	s := newTestStore(t)

	c := &ConceptKnowledge{ID: "c1", UserID: "u1", SubjectID: "math",
		Concept: "Derivatives", Confidence: 0.3, EntryIDs: []string{"n1"}}
	if err := s.PutConcept(c); err != nil {
		t.Fatalf("PutConcept failed: %v", err)
	}

	got, err := s.GetConceptByName("u1", "math", "derivatives")
	if err != nil {
		t.Fatalf("GetConceptByName failed: %v", err)
	}
	if got == nil || got.ID != "c1" {
		t.Fatalf("case-insensitive lookup failed: %+v", got)
	}

	c.Confidence = 0.7
	c.ReviewCount = 1
	if err := s.PutConcept(c); err != nil {
		t.Fatalf("PutConcept update failed: %v", err)
	}

	band, err := s.ListConceptsByConfidence("u1", 0.5, 1.0)
	if err != nil {
		t.Fatalf("ListConceptsByConfidence failed: %v", err)
	}
	if len(band) != 1 || band[0].ReviewCount != 1 {
		t.Errorf("confidence band query mismatch: %+v", band)
	}

	if all, _ := s.ListConcepts("u1", ""); len(all) != 1 {
		t.Errorf("ListConcepts without subject filter failed")
	}
}

func TestAttachmentCRUD(t *testing.T) {
	s := newTestStore(t)

	a := &FileAttachment{ID: "att1", UserID: "u1", Data: []byte{1, 2, 3},
		Name: "notes.pdf", Size: 3, MimeType: "application/pdf"}
	if err := s.PutAttachment(a); err != nil {
		t.Fatalf("PutAttachment failed: %v", err)
	}
	if a.UploadedAt == 0 {
		t.Error("uploadedAt not stamped")
	}

	got, _ := s.GetAttachment("att1")
	if got == nil || got.Name != "notes.pdf" || len(got.Data) != 3 {
		t.Fatalf("attachment round trip failed: %+v", got)
	}

	if err := s.DeleteAttachment("att1"); err != nil {
		t.Fatalf("DeleteAttachment failed: %v", err)
	}
	if got, _ := s.GetAttachment("att1"); got != nil {
		t.Error("attachment not deleted")
	}
}

func TestPartitionIsolation_StoreQueries(t *testing.T) {
	s := newTestStore(t)

	s.PutEntry(&NotebookEntry{ID: "a1", UserID: "alice", Title: "Photosynthesis",
		Content: "x", Type: EntryConcept, SubjectID: "bio", Tags: []string{"plants"}, Status: EntryDraft})
	s.PutEntry(&NotebookEntry{ID: "b1", UserID: "bob", Title: "Photosynthesis",
		Content: "x", Type: EntryConcept, SubjectID: "bio", Tags: []string{"plants"}, Status: EntryDraft})

	for _, q := range []func() ([]*NotebookEntry, error){
		func() ([]*NotebookEntry, error) { return s.ListEntries("alice") },
		func() ([]*NotebookEntry, error) { return s.ListEntriesBySubject("alice", "bio") },
		func() ([]*NotebookEntry, error) { return s.ListEntriesByType("alice", EntryConcept) },
		func() ([]*NotebookEntry, error) { return s.SearchEntries("alice", "photo", 10) },
	} {
		entries, err := q()
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		for _, e := range entries {
			if e.UserID != "alice" {
				t.Errorf("cross-user row leaked: %s owned by %s", e.ID, e.UserID)
			}
		}
		if len(entries) != 1 {
			t.Errorf("expected exactly 1 row for alice, got %d", len(entries))
		}
	}
}
