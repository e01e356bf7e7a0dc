package conceptscan

import "testing"

func biologyDict(t *testing.T) *Dictionary {
	t.Helper()
	d, err := Compile([]Concept{
		{ID: "c1", Name: "Photosynthesis", SubjectID: "bio"},
		{ID: "c2", Name: "Cellular Respiration", Aliases: []string{"respiration"}, SubjectID: "bio"},
		{ID: "c3", Name: "Newton's Second Law", Aliases: []string{"F=ma"}, SubjectID: "phys"},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return d
}

func TestCanonicalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Photosynthesis", "photosynthesis"},
		{"  Cellular   Respiration!  ", "cellular respiration"},
		{"Newton’s Second Law", "newton's second law"},
		{"acid–base reaction", "acid-base reaction"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Canonicalize(c.in); got != c.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestLookup(t *testing.T) {
	d := biologyDict(t)

	hits := d.Lookup("PHOTOSYNTHESIS")
	if len(hits) != 1 || hits[0].ID != "c1" {
		t.Fatalf("Lookup = %v, want c1", hits)
	}

	// Alias resolves to the same concept as the canonical name.
	hits = d.Lookup("respiration")
	if len(hits) != 1 || hits[0].ID != "c2" {
		t.Fatalf("alias lookup = %v, want c2", hits)
	}

	if d.Contains("osmosis") {
		t.Error("unknown surface reported as known")
	}
}

func TestScan_OffsetsInOriginalText(t *testing.T) {
	d := biologyDict(t)

	text := "Today we covered Photosynthesis and, briefly, respiration."
	mentions := d.Scan(text)
	if len(mentions) != 2 {
		t.Fatalf("got %d mentions, want 2", len(mentions))
	}

	for _, m := range mentions {
		if text[m.Start:m.End] != m.Text {
			t.Errorf("offsets do not slice back to %q: got %q", m.Text, text[m.Start:m.End])
		}
	}
	if mentions[0].Text != "Photosynthesis" {
		t.Errorf("first mention = %q (casing must be preserved)", mentions[0].Text)
	}
}

func TestScan_CurlyApostrophe(t *testing.T) {
	d := biologyDict(t)

	// Curly apostrophe in the input, straight in the pattern.
	text := "Apply Newton’s Second Law here."
	mentions := d.Scan(text)
	if len(mentions) != 1 {
		t.Fatalf("got %d mentions, want 1", len(mentions))
	}
	if mentions[0].Concepts[0].ID != "c3" {
		t.Errorf("matched %v, want c3", mentions[0].Concepts)
	}
}

func TestCompile_DropsStopwordAliases(t *testing.T) {
	d, err := Compile([]Concept{
		{ID: "c1", Name: "The Renaissance", Aliases: []string{"the"}},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if d.Contains("the") {
		t.Error("bare stopword alias survived compilation")
	}
	if !d.Contains("the renaissance") {
		t.Error("multiword pattern containing a stopword was dropped")
	}

	mentions := d.Scan("the cat sat on the mat")
	if len(mentions) != 0 {
		t.Errorf("stopword alias produced %d mentions", len(mentions))
	}
}

func TestScan_EmptyDictionary(t *testing.T) {
	d, err := Compile(nil)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if got := d.Scan("anything at all"); len(got) != 0 {
		t.Errorf("empty dictionary scanned %d mentions", len(got))
	}
}
