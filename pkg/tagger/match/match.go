// Package match finds which tags apply to a piece of recipe text.
//
// An Index wraps an Aho–Corasick automaton compiled over every keyword of
// every tag, so each haystack is scanned once regardless of how many keywords
// the taxonomy holds. A keyword shared by several tags fires all of them.
package match

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
)

// Mode selects how a keyword occurrence is accepted
type Mode string

const (
	// Word requires the occurrence to sit on word boundaries, so "ham" does
	// not fire inside "shame".
	Word Mode = "word"
	// Substring accepts any occurrence.
	Substring Mode = "substring"
)

// ParseMode converts a config value into a Mode. Empty selects Word.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Word, nil
	case Word, Substring:
		return m, nil
	}
	return "", fmt.Errorf("match mode %q: %w", s, internalerr.ErrInvalidConfig)
}

// NormalizeKeyword lowercases kw and collapses internal whitespace runs, the
// same way Haystack treats recipe text.
func NormalizeKeyword(kw string) string {
	return strings.ToLower(strings.Join(strings.Fields(kw), " "))
}

type pattern struct {
	text      string
	tags      []int64
	wordStart bool // first rune is a word char, so the left boundary is checked
	wordEnd   bool
}

// Index is a compiled keyword automaton. It is immutable and safe for
// concurrent use.
type Index struct {
	mode     Mode
	ac       ahocorasick.AhoCorasick
	patterns []pattern
	tags     int
}

// Compile builds an automaton from tag_id → keywords. Keywords are normalized
// with NormalizeKeyword; empty keywords are ignored.
func Compile(keywords map[int64][]string, mode Mode) *Index {
	if mode == "" {
		mode = Word
	}
	ix := &Index{mode: mode}

	// Deterministic pattern numbering regardless of map iteration order.
	tagIDs := make([]int64, 0, len(keywords))
	for id := range keywords {
		tagIDs = append(tagIDs, id)
	}
	sort.Slice(tagIDs, func(i, j int) bool { return tagIDs[i] < tagIDs[j] })

	byText := make(map[string]int)
	tagSeen := make(map[int64]struct{})
	for _, id := range tagIDs {
		for _, kw := range keywords[id] {
			kw = NormalizeKeyword(kw)
			if kw == "" {
				continue
			}
			tagSeen[id] = struct{}{}
			p, ok := byText[kw]
			if !ok {
				p = len(ix.patterns)
				byText[kw] = p
				first, _ := utf8.DecodeRuneInString(kw)
				last, _ := utf8.DecodeLastRuneInString(kw)
				ix.patterns = append(ix.patterns, pattern{
					text:      kw,
					wordStart: isWordRune(first),
					wordEnd:   isWordRune(last),
				})
			}
			pt := &ix.patterns[p]
			if len(pt.tags) == 0 || pt.tags[len(pt.tags)-1] != id {
				pt.tags = append(pt.tags, id)
			}
		}
	}
	ix.tags = len(tagSeen)

	if len(ix.patterns) > 0 {
		texts := make([]string, len(ix.patterns))
		for i, pt := range ix.patterns {
			texts[i] = pt.text
		}
		// Overlapping iteration needs standard match semantics. Word
		// boundaries are checked by onBoundary rather than
		// MatchOnlyWholeWords, because keywords may start or end with
		// punctuation and boundaries are Unicode aware.
		builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
			MatchKind: ahocorasick.StandardMatch,
			DFA:       true,
		})
		ix.ac = builder.Build(texts)
	}
	return ix
}

// Mode reports the boundary mode the index was compiled with
func (ix *Index) Mode() Mode { return ix.mode }

// Keywords returns the number of distinct keywords in the automaton
func (ix *Index) Keywords() int { return len(ix.patterns) }

// Tags returns the number of tags that own at least one keyword
func (ix *Index) Tags() int { return ix.tags }

// Hit is one accepted keyword occurrence
type Hit struct {
	Keyword string
	Start   int
	End     int
	Tags    []int64
}

// Match returns the sorted, distinct tag IDs whose keywords occur in the
// haystack. The haystack must already be lowercased (see Haystack).
func (ix *Index) Match(haystack string) []int64 {
	found := make(map[int64]struct{})
	ix.scan(haystack, func(p, start, end int) bool {
		for _, id := range ix.patterns[p].tags {
			found[id] = struct{}{}
		}
		return len(found) < ix.tags
	})
	if len(found) == 0 {
		return nil
	}
	out := make([]int64, 0, len(found))
	for id := range found {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Hits returns every accepted occurrence, including overlapping ones, ordered
// by end offset and then start offset. Used for explaining why a recipe
// received a tag.
func (ix *Index) Hits(haystack string) []Hit {
	var hits []Hit
	ix.scan(haystack, func(p, start, end int) bool {
		pt := ix.patterns[p]
		tags := make([]int64, len(pt.tags))
		copy(tags, pt.tags)
		hits = append(hits, Hit{Keyword: pt.text, Start: start, End: end, Tags: tags})
		return true
	})
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].End != hits[j].End {
			return hits[i].End < hits[j].End
		}
		return hits[i].Start < hits[j].Start
	})
	return hits
}

// scan calls emit for every accepted occurrence until emit returns false.
func (ix *Index) scan(haystack string, emit func(p, start, end int) bool) {
	if len(ix.patterns) == 0 || haystack == "" {
		return
	}
	iter := ix.ac.IterOverlapping(haystack)
	for m := iter.Next(); m != nil; m = iter.Next() {
		p, start, end := m.Pattern(), m.Start(), m.End()
		if ix.mode == Word && !ix.onBoundary(haystack, p, start, end) {
			continue
		}
		if !emit(p, start, end) {
			return
		}
	}
}

func (ix *Index) onBoundary(h string, p, start, end int) bool {
	pt := ix.patterns[p]
	if pt.wordStart && start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(h[:start]); isWordRune(r) {
			return false
		}
	}
	if pt.wordEnd && end < len(h) {
		if r, _ := utf8.DecodeRuneInString(h[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
