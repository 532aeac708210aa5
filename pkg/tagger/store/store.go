package store

import (
	"context"
)

// Store is the persistence boundary for the tagging engine. Every operation
// runs inside a single Tx obtained from Begin.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is one unit of work. Rollback after Commit is a no-op, so callers
// defer Rollback immediately after Begin.
type Tx interface {
	// Tags
	InsertTags(ctx context.Context, tags []TagSpec) (int64, error)
	TagLookup(ctx context.Context) (TagLookup, error)

	// Keywords
	InsertKeywords(ctx context.Context, kws []Keyword) (int64, error)
	KeywordIndex(ctx context.Context) (map[int64][]string, error)

	// Recipes are read-only. EachRecipe holds a cursor open while fn runs;
	// fn must not call back into the Tx.
	EachRecipe(ctx context.Context, fn func(Recipe) error) error
	Recipe(ctx context.Context, id int64) (Recipe, error)

	// Mappings are append-only
	InsertMappings(ctx context.Context, m []Mapping) (int64, error)
	RecipeTags(ctx context.Context, recipeID int64) ([]Tag, error)

	Commit() error
	Rollback() error
}

// RecipeWriter is implemented by stores that own the recipe table
// (sqlite, memstore). Postgres reads recipes managed elsewhere.
type RecipeWriter interface {
	PutRecipes(ctx context.Context, recipes []Recipe) (int64, error)
}

// Tag is a stored category
type Tag struct {
	ID   int64
	Name string
	Type string
}

// TagSpec identifies a tag before it has an ID
type TagSpec struct {
	Name string
	Type string
}

// Keyword links a lowercased keyword to a tag
type Keyword struct {
	TagID   int64
	Keyword string
}

// Recipe is the read-only input to matching
type Recipe struct {
	ID           int64
	Name         string
	Instructions string
}

// Mapping records that a tag applies to a recipe
type Mapping struct {
	RecipeID int64
	TagID    int64
}

// TagLookup resolves tag_type → tag_name → tag_id
type TagLookup map[string]map[string]int64

// ID returns the tag ID for (typ, name)
func (l TagLookup) ID(typ, name string) (int64, bool) {
	id, ok := l[typ][name]
	return id, ok
}

// Set records an ID, allocating the inner map as needed
func (l TagLookup) Set(typ, name string, id int64) {
	byName, ok := l[typ]
	if !ok {
		byName = make(map[string]int64)
		l[typ] = byName
	}
	byName[name] = id
}

// Len returns the number of tags in the lookup
func (l TagLookup) Len() int {
	n := 0
	for _, byName := range l {
		n += len(byName)
	}
	return n
}
