// Package conceptscan detects mentions of known study concepts in text.
// A single Aho-Corasick automaton serves as both the concept lookup table
// and the text scanner, so patterns and input pass through one shared
// canonicalizer and can never drift apart.
package conceptscan

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"
)

// Concept is one dictionary entry: a canonical name plus the alternate
// surface forms students use for it.
type Concept struct {
	ID        string
	Name      string
	Aliases   []string
	SubjectID string
}

// isJoiner reports punctuation that appears inside concept names and must
// survive canonicalization: "Newton's law", "acid-base", "H2O/H3O+".
func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '‘',
		'-', '–', '—',
		'.', '_', '/', '+', '&':
		return true
	default:
		return false
	}
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !isJoiner(r)
}

// Canonicalize folds text into the form used for both pattern compilation
// and scanning: lowercase, joiners preserved, every separator run collapsed
// to a single space, no leading or trailing space.
func Canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	lastWasSpace := true
	for _, ch := range s {
		c := foldRune(ch)
		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteRune(' ')
			lastWasSpace = true
		}
	}

	result := out.String()
	if len(result) > 0 && result[len(result)-1] == ' ' {
		result = result[:len(result)-1]
	}
	return result
}

func foldRune(ch rune) rune {
	c := unicode.ToLower(ch)
	switch c {
	case '’', '‘':
		return '\''
	case '–', '—':
		return '-'
	}
	return c
}

// Dictionary is the compiled concept matcher.
type Dictionary struct {
	ac *ahocorasick.Automaton

	// pattern index -> concept IDs (aliases may collide across concepts)
	patternToIDs [][]string
	patternIndex map[string]int
	patterns     []string

	byID map[string]*Concept
	stop *stopwords.Stopwords
}

// Compile builds a Dictionary from concepts. Single-word surfaces that are
// common English words ("energy of the..." vs "the") are dropped so a
// concept carelessly aliased to a stopword cannot flood every scan.
func Compile(concepts []Concept) (*Dictionary, error) {
	d := &Dictionary{
		patternIndex: make(map[string]int),
		byID:         make(map[string]*Concept, len(concepts)),
		stop:         stopwords.MustGet("en"),
	}

	for i := range concepts {
		c := &concepts[i]
		if c.ID == "" {
			continue
		}
		d.byID[c.ID] = c

		surfaces := append([]string{c.Name}, c.Aliases...)
		for _, surface := range surfaces {
			key := Canonicalize(surface)
			if key == "" {
				continue
			}
			if !strings.Contains(key, " ") && d.stop.Contains(key) {
				continue
			}
			if idx, ok := d.patternIndex[key]; ok {
				d.patternToIDs[idx] = appendUnique(d.patternToIDs[idx], c.ID)
				continue
			}
			idx := len(d.patterns)
			d.patterns = append(d.patterns, key)
			d.patternIndex[key] = idx
			d.patternToIDs = append(d.patternToIDs, []string{c.ID})
		}
	}

	if len(d.patterns) == 0 {
		return d, nil
	}

	// LeftmostLongest so "law of conservation of energy" wins over "energy".
	ac, err := ahocorasick.NewBuilder().
		AddStrings(d.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	d.ac = ac
	return d, nil
}

// Lookup resolves an exact surface form to its concepts.
func (d *Dictionary) Lookup(surface string) []*Concept {
	idx, ok := d.patternIndex[Canonicalize(surface)]
	if !ok {
		return nil
	}
	return d.conceptsFor(idx)
}

// Contains reports whether a surface form names any known concept.
func (d *Dictionary) Contains(surface string) bool {
	_, ok := d.patternIndex[Canonicalize(surface)]
	return ok
}

// Get retrieves a concept by ID.
func (d *Dictionary) Get(id string) *Concept {
	return d.byID[id]
}

// Len returns the number of compiled patterns.
func (d *Dictionary) Len() int {
	return len(d.patterns)
}

// Mention is one detected concept occurrence, with byte offsets into the
// original (un-canonicalized) text so callers can highlight it.
type Mention struct {
	Start    int
	End      int
	Text     string
	Concepts []*Concept
}

// Scan finds every concept mention in text. The input is canonicalized
// with the same function the patterns were, and match offsets are mapped
// back onto the original string.
func (d *Dictionary) Scan(text string) []Mention {
	if d.ac == nil || len(d.patterns) == 0 {
		return nil
	}

	canon := Canonicalize(text)
	canonToOrig := buildOffsetMap(text)

	matches := d.ac.FindAllOverlapping([]byte(canon))
	mentions := make([]Mention, 0, len(matches))
	for _, m := range matches {
		start := mapOffset(m.Start, canonToOrig, len(text))
		end := mapOffset(m.End, canonToOrig, len(text))
		if start >= len(text) || end > len(text) || start >= end {
			continue
		}
		mentions = append(mentions, Mention{
			Start:    start,
			End:      end,
			Text:     text[start:end],
			Concepts: d.conceptsFor(m.PatternID),
		})
	}
	return mentions
}

func (d *Dictionary) conceptsFor(patternIdx int) []*Concept {
	ids := d.patternToIDs[patternIdx]
	out := make([]*Concept, 0, len(ids))
	for _, id := range ids {
		if c := d.byID[id]; c != nil {
			out = append(out, c)
		}
	}
	return out
}

// buildOffsetMap records, for each byte of the canonicalized string, the
// byte position it came from in the original. Canonicalization can change
// lengths (folded runes, collapsed separators), so matches cannot be
// sliced out of the original without this.
func buildOffsetMap(original string) []int {
	mapping := make([]int, 0, len(original)+1)

	lastWasSpace := true
	origPos := 0
	for _, ch := range original {
		c := foldRune(ch)
		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			for i := 0; i < utf8.RuneLen(c); i++ {
				mapping = append(mapping, origPos)
			}
			lastWasSpace = false
		} else if !lastWasSpace {
			mapping = append(mapping, origPos)
			lastWasSpace = true
		}
		origPos += utf8.RuneLen(ch)
	}

	mapping = append(mapping, origPos)
	return mapping
}

func mapOffset(canonOffset int, mapping []int, originalLen int) int {
	if canonOffset >= len(mapping) {
		return originalLen
	}
	if canonOffset < 0 {
		return 0
	}
	return mapping[canonOffset]
}

func appendUnique(slice []string, item string) []string {
	for _, s := range slice {
		if s == item {
			return slice
		}
	}
	return append(slice, item)
}
