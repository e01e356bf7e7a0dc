package notebook

import (
	"testing"
	"time"

	"github.com/studykit/studygo/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewService(s), s
}

func mustCreate(t *testing.T, svc *Service, e *Entry, userID string) string {
	t.Helper()
	id, err := svc.CreateEntry(e, userID)
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	return id
}

func TestCreateEntry_ValidatesAndDerives(t *testing.T) {
	svc, st := newTestService(t)

	if _, err := svc.CreateEntry(&Entry{Content: "no title"}, "u1"); err == nil {
		t.Error("expected error for missing title")
	}
	if _, err := svc.CreateEntry(&Entry{Title: "   "}, "u1"); err == nil {
		t.Error("expected error for blank title")
	}

	id := mustCreate(t, svc, &Entry{
		Title:   "Photosynthesis",
		Content: "Plants convert light into chemical energy.",
	}, "u1")
	if id == "" {
		t.Fatal("CreateEntry did not mint an id")
	}

	row, err := st.GetEntry(id)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	want := "photosynthesis plants convert light into chemical energy."
	if row.SearchText != want {
		t.Errorf("searchText = %q, want %q", row.SearchText, want)
	}
	if row.Meta.WordCount != 6 {
		t.Errorf("wordCount = %d, want 6", row.Meta.WordCount)
	}
	if row.Version != 1 {
		t.Errorf("version = %d, want 1", row.Version)
	}
}

func TestUpdateEntry_PartialAndDerivation(t *testing.T) {
	svc, st := newTestService(t)

	id := mustCreate(t, svc, &Entry{Title: "Mitosis", Content: "Cell division."}, "u1")

	content := "Cell division in eukaryotes."
	if err := svc.UpdateEntry(id, EntryUpdate{Content: &content}); err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}

	row, err := st.GetEntry(id)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if row.Title != "Mitosis" {
		t.Errorf("title = %q, want untouched %q", row.Title, "Mitosis")
	}
	// searchText re-derives from the full pair even though only content changed.
	if row.SearchText != "mitosis cell division in eukaryotes." {
		t.Errorf("searchText = %q", row.SearchText)
	}
	if row.Meta.WordCount != 4 {
		t.Errorf("wordCount = %d, want 4", row.Meta.WordCount)
	}
	if row.Version != 2 {
		t.Errorf("version = %d, want 2", row.Version)
	}

	if err := svc.UpdateEntry("no-such-id", EntryUpdate{Content: &content}); err == nil {
		t.Error("expected error for missing entry")
	}
	empty := " "
	if err := svc.UpdateEntry(id, EntryUpdate{Title: &empty}); err == nil {
		t.Error("expected error for blank title update")
	}
}

func TestSearchEntries_Scenario(t *testing.T) {
	svc, _ := newTestService(t)

	mustCreate(t, svc, &Entry{Title: "Photosynthesis", Content: "Plants convert light..."}, "u1")

	hits, err := svc.SearchEntries("u1", "photo", 10)
	if err != nil {
		t.Fatalf("SearchEntries failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits for %q, want 1", len(hits), "photo")
	}

	hits, err = svc.SearchEntries("u1", "zzz", 10)
	if err != nil {
		t.Fatalf("SearchEntries failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits for %q, want 0", len(hits), "zzz")
	}
}

func TestGetEntryTouch_AccessTracking(t *testing.T) {
	svc, st := newTestService(t)

	id := mustCreate(t, svc, &Entry{Title: "Osmosis", Content: "Water movement."}, "u1")

	before, err := st.GetEntry(id)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}

	// Pure read leaves no trace.
	if _, err := svc.GetEntry(id); err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	row, _ := st.GetEntry(id)
	if row.LastAccessedAt != 0 {
		t.Error("pure GetEntry must not record access")
	}

	e, err := svc.GetEntryTouch(id)
	if err != nil {
		t.Fatalf("GetEntryTouch failed: %v", err)
	}
	if e == nil {
		t.Fatal("entry missing")
	}
	row, _ = st.GetEntry(id)
	if row.LastAccessedAt == 0 {
		t.Error("GetEntryTouch did not record access")
	}
	if row.UpdatedAt != before.UpdatedAt {
		t.Error("recording access must not bump updatedAt")
	}

	missing, err := svc.GetEntryTouch("no-such-id")
	if err != nil || missing != nil {
		t.Errorf("missing id: got (%v, %v), want (nil, nil)", missing, err)
	}
}

func TestGetEntries_Filters(t *testing.T) {
	svc, _ := newTestService(t)

	mustCreate(t, svc, &Entry{Title: "A", SubjectID: "bio", Type: store.EntryConcept, Tags: []string{"cells", "exam"}}, "u1")
	mustCreate(t, svc, &Entry{Title: "B", SubjectID: "bio", Type: store.EntrySummary, Tags: []string{"cells"}}, "u1")
	mustCreate(t, svc, &Entry{Title: "C", SubjectID: "math", Type: store.EntryConcept, Tags: []string{"exam"}}, "u1")

	got, err := svc.GetEntries("u1", Filter{SubjectID: "bio"})
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("subject filter: got %d, want 2", len(got))
	}

	got, _ = svc.GetEntries("u1", Filter{Type: store.EntryConcept})
	if len(got) != 2 {
		t.Errorf("type filter: got %d, want 2", len(got))
	}

	got, _ = svc.GetEntries("u1", Filter{Tags: []string{"cells", "exam"}})
	if len(got) != 1 || got[0].Title != "A" {
		t.Errorf("tag filter: got %d, want just A", len(got))
	}

	got, _ = svc.GetEntries("u1", Filter{Limit: 2})
	if len(got) != 2 {
		t.Errorf("limit: got %d, want 2", len(got))
	}
	got, _ = svc.GetEntries("u1", Filter{Offset: 2})
	if len(got) != 1 {
		t.Errorf("offset: got %d, want 1", len(got))
	}
	got, _ = svc.GetEntries("u1", Filter{Offset: 99})
	if len(got) != 0 {
		t.Errorf("offset past end: got %d, want 0", len(got))
	}
}

func TestGetRelatedEntries(t *testing.T) {
	svc, _ := newTestService(t)

	srcID := mustCreate(t, svc, &Entry{Title: "Source", SubjectID: "bio", Tags: []string{"cells"}}, "u1")
	mustCreate(t, svc, &Entry{Title: "Same subject", SubjectID: "bio"}, "u1")
	mustCreate(t, svc, &Entry{Title: "Shared tag", SubjectID: "chem", Tags: []string{"cells", "lab"}}, "u1")
	mustCreate(t, svc, &Entry{Title: "Unrelated", SubjectID: "math", Tags: []string{"algebra"}}, "u1")
	mustCreate(t, svc, &Entry{Title: "Other user", SubjectID: "bio", Tags: []string{"cells"}}, "u2")

	related, err := svc.GetRelatedEntries(srcID, "u1", 10)
	if err != nil {
		t.Fatalf("GetRelatedEntries failed: %v", err)
	}
	if len(related) != 2 {
		t.Fatalf("got %d related, want 2", len(related))
	}
	for _, e := range related {
		if e.ID == srcID {
			t.Error("source entry returned as its own relative")
		}
		if e.Title == "Unrelated" || e.Title == "Other user" {
			t.Errorf("unexpected relative %q", e.Title)
		}
	}

	capped, err := svc.GetRelatedEntries(srcID, "u1", 1)
	if err != nil {
		t.Fatalf("GetRelatedEntries failed: %v", err)
	}
	if len(capped) != 1 {
		t.Errorf("limit ignored: got %d, want 1", len(capped))
	}
}

func TestPartitionIsolation(t *testing.T) {
	svc, _ := newTestService(t)

	mustCreate(t, svc, &Entry{Title: "Mine", SubjectID: "bio", Tags: []string{"cells"}, Content: "photosynthesis"}, "u1")
	mustCreate(t, svc, &Entry{Title: "Theirs", SubjectID: "bio", Tags: []string{"cells"}, Content: "photosynthesis"}, "u2")

	entries, err := svc.GetEntries("u1", Filter{SubjectID: "bio", Tags: []string{"cells"}})
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Title != "Mine" {
		t.Errorf("u1 sees %d entries, want only its own", len(entries))
	}

	hits, err := svc.SearchEntries("u1", "photosynthesis", 10)
	if err != nil {
		t.Fatalf("SearchEntries failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("u1 search sees %d hits, want 1", len(hits))
	}
}

func TestGetStats(t *testing.T) {
	svc, _ := newTestService(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	mustCreate(t, svc, &Entry{Title: "A", SubjectID: "bio", Type: store.EntryConcept, Content: "one two three"}, "u1")
	mustCreate(t, svc, &Entry{Title: "B", SubjectID: "bio", Type: store.EntryConcept, Content: "four five"}, "u1")
	mustCreate(t, svc, &Entry{Title: "C", SubjectID: "math", Type: store.EntrySummary, Content: "six"}, "u1")

	stats, err := svc.GetStats("u1", "")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalEntries != 3 {
		t.Errorf("totalEntries = %d, want 3", stats.TotalEntries)
	}
	if stats.ByType[store.EntryConcept] != 2 || stats.ByType[store.EntrySummary] != 1 {
		t.Errorf("byType = %v", stats.ByType)
	}
	if stats.TotalWords != 6 {
		t.Errorf("totalWords = %d, want 6", stats.TotalWords)
	}
	// All three were just written, so all count as recently updated.
	if stats.RecentlyUpdated != 3 {
		t.Errorf("recentlyUpdated = %d, want 3", stats.RecentlyUpdated)
	}

	// Push "now" past the 7-day window.
	svc.now = func() time.Time { return base.Add(8 * 24 * time.Hour) }
	stats, _ = svc.GetStats("u1", "")
	if stats.RecentlyUpdated != 0 {
		t.Errorf("recentlyUpdated after window = %d, want 0", stats.RecentlyUpdated)
	}

	scoped, _ := svc.GetStats("u1", "bio")
	if scoped.TotalEntries != 2 || scoped.TotalWords != 5 {
		t.Errorf("scoped stats = %+v", scoped)
	}
}

func TestCleanupStorage_KeepFavoritesProtectsAttachments(t *testing.T) {
	svc, st := newTestService(t)
	svc.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	for _, id := range []string{"att-fav", "att-plain", "att-orphan"} {
		err := st.PutAttachment(&store.FileAttachment{
			ID: id, UserID: "u1", Name: id + ".pdf", UploadedAt: old,
		})
		if err != nil {
			t.Fatalf("PutAttachment failed: %v", err)
		}
	}

	// The user's only favorite, archived, holding att-fav.
	favID := mustCreate(t, svc, &Entry{
		Title:       "Favorite notes",
		Attachments: []string{"att-fav"},
		Meta:        store.EntryMeta{IsFavorite: true, IsArchived: true},
	}, "u1")
	plainID := mustCreate(t, svc, &Entry{
		Title:       "Plain notes",
		Attachments: []string{"att-plain"},
	}, "u1")

	deleted, err := svc.CleanupStorage("u1", CleanupOptions{
		MaxAge:        30 * 24 * time.Hour,
		KeepFavorites: true,
	})
	if err != nil {
		t.Fatalf("CleanupStorage failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2 (plain and orphan)", deleted)
	}

	// The favorite's attachment survives even though it is archived and old.
	att, err := st.GetAttachment("att-fav")
	if err != nil {
		t.Fatalf("GetAttachment failed: %v", err)
	}
	if att == nil {
		t.Error("favorite's attachment was deleted")
	}
	fav, _ := st.GetEntry(favID)
	if len(fav.Attachments) != 1 {
		t.Error("favorite's attachment list was mutated")
	}

	// The plain entry lost both the attachment row and its reference.
	if att, _ := st.GetAttachment("att-plain"); att != nil {
		t.Error("stale attachment survived")
	}
	plain, _ := st.GetEntry(plainID)
	if len(plain.Attachments) != 0 {
		t.Errorf("plain entry still references %v", plain.Attachments)
	}
}

func TestCleanupStorage_OrphanedOnly(t *testing.T) {
	svc, st := newTestService(t)

	for _, id := range []string{"att-used", "att-orphan"} {
		err := st.PutAttachment(&store.FileAttachment{ID: id, UserID: "u1", Name: id})
		if err != nil {
			t.Fatalf("PutAttachment failed: %v", err)
		}
	}
	mustCreate(t, svc, &Entry{Title: "Holder", Attachments: []string{"att-used"}}, "u1")

	deleted, err := svc.CleanupStorage("u1", CleanupOptions{OrphanedOnly: true})
	if err != nil {
		t.Fatalf("CleanupStorage failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if att, _ := st.GetAttachment("att-used"); att == nil {
		t.Error("referenced attachment was deleted")
	}
	if att, _ := st.GetAttachment("att-orphan"); att != nil {
		t.Error("orphaned attachment survived")
	}
}

func TestArchiveEntry(t *testing.T) {
	svc, _ := newTestService(t)

	id := mustCreate(t, svc, &Entry{Title: "Old notes"}, "u1")
	if err := svc.ArchiveEntry(id); err != nil {
		t.Fatalf("ArchiveEntry failed: %v", err)
	}

	e, err := svc.GetEntry(id)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if !e.Meta.IsArchived {
		t.Error("entry not marked archived")
	}

	if err := svc.ArchiveEntry("no-such-id"); err == nil {
		t.Error("expected error for missing entry")
	}
}

// Archiving must actually pull an entry out of listings: the default
// filter hides archived entries, IncludeArchived brings them back.
func TestGetEntries_ExcludesArchivedByDefault(t *testing.T) {
	svc, _ := newTestService(t)

	liveID := mustCreate(t, svc, &Entry{Title: "Live"}, "u1")
	archivedID := mustCreate(t, svc, &Entry{Title: "Shelved"}, "u1")
	if err := svc.ArchiveEntry(archivedID); err != nil {
		t.Fatalf("ArchiveEntry failed: %v", err)
	}

	got, err := svc.GetEntries("u1", Filter{})
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != liveID {
		t.Fatalf("default listing returned %d entries, want only the live one", len(got))
	}

	all, err := svc.GetEntries("u1", Filter{IncludeArchived: true})
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("IncludeArchived listing returned %d entries, want 2", len(all))
	}
}

func TestImportFromLocalStorage_LegacyBlob(t *testing.T) {
	svc, _ := newTestService(t)

	blob := []byte(`{
		"state": {
			"entries": [
				{
					"id": "n1",
					"title": "X",
					"content": "Y",
					"type": "concept",
					"tags": ["imported"],
					"createdAt": "2024-05-01T09:00:00.000Z",
					"updatedAt": 1714554000000
				},
				{"id": "", "title": "skipped, no id"},
				{"id": "n2", "title": "", "content": "skipped, no title"}
			]
		}
	}`)

	n, err := svc.ImportFromLocalStorage(blob, "u1")
	if err != nil {
		t.Fatalf("ImportFromLocalStorage failed: %v", err)
	}
	if n != 1 {
		t.Errorf("imported %d entries, want 1", n)
	}

	e, err := svc.GetEntry("n1")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if e == nil {
		t.Fatal("imported entry not found")
	}
	if e.Title != "X" || e.Content != "Y" {
		t.Errorf("entry mangled: %+v", e)
	}
	wantCreated := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	if !e.CreatedAt.Equal(wantCreated) {
		t.Errorf("createdAt = %v, want %v", e.CreatedAt, wantCreated)
	}

	if _, err := svc.ImportFromLocalStorage([]byte("{bad"), "u1"); err == nil {
		t.Error("expected parse error for malformed blob")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src, _ := newTestService(t)

	mustCreate(t, src, &Entry{Title: "Alpha", Content: "first", Tags: []string{"a"}}, "u1")
	mustCreate(t, src, &Entry{Title: "Beta", Content: "second", Tags: []string{"b"}}, "u1")
	shelvedID := mustCreate(t, src, &Entry{Title: "Shelved", Content: "third"}, "u1")
	if err := src.ArchiveEntry(shelvedID); err != nil {
		t.Fatalf("ArchiveEntry failed: %v", err)
	}

	data, err := src.ExportData("u1")
	if err != nil {
		t.Fatalf("ExportData failed: %v", err)
	}
	if len(data.Entries) != 3 {
		t.Fatalf("export holds %d entries, want 3 (archived included)", len(data.Entries))
	}

	dst, _ := newTestService(t)
	if err := dst.ImportData(data, "u1"); err != nil {
		t.Fatalf("ImportData failed: %v", err)
	}

	got, err := dst.ExportData("u1")
	if err != nil {
		t.Fatalf("ExportData (dst) failed: %v", err)
	}
	if len(got.Entries) != 3 {
		t.Fatalf("got %d entries after round trip, want 3", len(got.Entries))
	}
	titles := map[string]bool{}
	for _, e := range got.Entries {
		titles[e.Title] = true
	}
	if !titles["Alpha"] || !titles["Beta"] || !titles["Shelved"] {
		t.Errorf("entries lost in round trip: %v", titles)
	}
}
