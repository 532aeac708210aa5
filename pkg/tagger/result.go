package tagger

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Operation names, used in Result.Op, log lines and metric labels
const (
	OpRegisterTags  = "register_tags"
	OpIndexKeywords = "index_keywords"
	OpTagAll        = "tag_all"
	OpTagOne        = "tag_one"
)

// SkipReason says why an entry was left out of a batch
type SkipReason string

const (
	// SkipNotFound: the requested recipe does not exist
	SkipNotFound SkipReason = "not_found"
	// SkipDataInconsistency: a keyword's tag could not be resolved to an ID
	SkipDataInconsistency SkipReason = "data_inconsistency"
)

// Skip is one entry that an operation did not process
type Skip struct {
	Reason   SkipReason `json:"reason"`
	RecipeID int64      `json:"recipe_id,omitempty"`
	TagType  string     `json:"tag_type,omitempty"`
	TagName  string     `json:"tag_name,omitempty"`
	Keyword  string     `json:"keyword,omitempty"`
}

// Evidence names the first keyword that caused a tag to apply
type Evidence struct {
	TagID   int64  `json:"tag_id"`
	Keyword string `json:"keyword"`
}

// Result describes what one operation did.
//
// Considered counts the candidates the operation looked at: taxonomy tags for
// register_tags, taxonomy keywords for index_keywords and (recipe, tag) pairs
// found by matching for tag_all and tag_one. Inserted counts rows that were
// actually new.
type Result struct {
	RunID      string        `json:"run_id"`
	Op         string        `json:"op"`
	Considered int           `json:"considered"`
	Inserted   int64         `json:"inserted"`
	Scanned    int           `json:"scanned,omitempty"`
	Matched    int           `json:"matched,omitempty"`
	Skipped    []Skip        `json:"skipped,omitempty"`
	Evidence   []Evidence    `json:"evidence,omitempty"`
	Steps      []Result      `json:"steps,omitempty"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration_ns"`
}

// Clean reports whether nothing was skipped, here or in any step
func (r Result) Clean() bool {
	if len(r.Skipped) > 0 {
		return false
	}
	for _, s := range r.Steps {
		if !s.Clean() {
			return false
		}
	}
	return true
}

// runIDs hands out monotonic ULIDs. MonotonicEntropy is not safe for
// concurrent use on its own.
type runIDs struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newRunIDs() *runIDs {
	return &runIDs{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *runIDs) next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), g.entropy).String()
}
