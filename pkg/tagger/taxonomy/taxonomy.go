package taxonomy

import (
	"fmt"
	"strings"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/match"
)

// TagType is one of the taxonomy dimensions
type TagType string

const (
	Holiday TagType = "holiday"
	Cuisine TagType = "cuisine"
	Diet    TagType = "diet"
	Region  TagType = "region"
	Course  TagType = "course"
)

// TagTypes lists every dimension in canonical order
var TagTypes = []TagType{Holiday, Cuisine, Diet, Region, Course}

// Valid reports whether t is a known dimension
func (t TagType) Valid() bool {
	switch t {
	case Holiday, Cuisine, Diet, Region, Course:
		return true
	}
	return false
}

// ParseTagType converts a string into a TagType, ignoring case and surrounding space
func ParseTagType(s string) (TagType, error) {
	t := TagType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("tag type %q: %w", s, internalerr.ErrInvalidConfig)
	}
	return t, nil
}

// Entry is one tag and its ordered keyword list
type Entry struct {
	Type     TagType
	Name     string
	Keywords []string
}

// TagRef identifies a tag by (name, type)
type TagRef struct {
	Name string
	Type TagType
}

// KeywordRef is a single (type, name, keyword) triple
type KeywordRef struct {
	Type    TagType
	Name    string
	Keyword string
}

// TypeStats summarizes one dimension
type TypeStats struct {
	Type     TagType
	Tags     int
	Keywords int
}

// Taxonomy maps tag type → tag name → keyword list.
// Insertion order is preserved so every view is stable across calls.
type Taxonomy struct {
	entries []Entry
	index   map[TagRef]int
}

// New creates an empty taxonomy
func New() *Taxonomy {
	return &Taxonomy{index: make(map[TagRef]int)}
}

// NormalizeKeyword is the canonical form used for storage and matching
func NormalizeKeyword(kw string) string {
	return match.NormalizeKeyword(kw)
}

// Add registers a tag with its keywords. Adding an existing (type, name)
// merges the keyword lists. Keywords are normalized and de-duplicated.
func (t *Taxonomy) Add(typ TagType, name string, keywords []string) error {
	if !typ.Valid() {
		return fmt.Errorf("tag type %q: %w", typ, internalerr.ErrInvalidConfig)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("empty tag name under %s: %w", typ, internalerr.ErrInvalidConfig)
	}

	ref := TagRef{Name: name, Type: typ}
	i, ok := t.index[ref]
	if !ok {
		t.entries = append(t.entries, Entry{Type: typ, Name: name})
		i = len(t.entries) - 1
		t.index[ref] = i
	}

	e := &t.entries[i]
	seen := make(map[string]struct{}, len(e.Keywords)+len(keywords))
	for _, kw := range e.Keywords {
		seen[kw] = struct{}{}
	}
	for _, kw := range keywords {
		kw = NormalizeKeyword(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		e.Keywords = append(e.Keywords, kw)
	}
	return nil
}

// Lookup returns the entry for (type, name)
func (t *Taxonomy) Lookup(typ TagType, name string) (Entry, bool) {
	i, ok := t.index[TagRef{Name: name, Type: typ}]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(t.entries[i]), true
}

// Len returns the number of tags
func (t *Taxonomy) Len() int {
	return len(t.entries)
}

// Tags returns every (name, type) pair to register
func (t *Taxonomy) Tags() []TagRef {
	out := make([]TagRef, len(t.entries))
	for i, e := range t.entries {
		out[i] = TagRef{Name: e.Name, Type: e.Type}
	}
	return out
}

// Keywords returns every (type, name, keyword) triple to index
func (t *Taxonomy) Keywords() []KeywordRef {
	var out []KeywordRef
	for _, e := range t.entries {
		for _, kw := range e.Keywords {
			out = append(out, KeywordRef{Type: e.Type, Name: e.Name, Keyword: kw})
		}
	}
	return out
}

// Entries returns a copy of all entries in insertion order
func (t *Taxonomy) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = copyEntry(e)
	}
	return out
}

// Stats returns tag and keyword counts per dimension, in canonical type order
func (t *Taxonomy) Stats() []TypeStats {
	byType := make(map[TagType]*TypeStats, len(TagTypes))
	out := make([]TypeStats, len(TagTypes))
	for i, typ := range TagTypes {
		out[i].Type = typ
		byType[typ] = &out[i]
	}
	for _, e := range t.entries {
		s := byType[e.Type]
		s.Tags++
		s.Keywords += len(e.Keywords)
	}
	return out
}

func copyEntry(e Entry) Entry {
	kws := make([]string, len(e.Keywords))
	copy(kws, e.Keywords)
	return Entry{Type: e.Type, Name: e.Name, Keywords: kws}
}
