package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
)

// ErrInjected is returned by operations armed with FailOn
var ErrInjected = errors.New("injected failure")

// Store is an in-memory implementation of store.Store for tests and the
// "memory" driver. Transactions are serialized: Begin blocks until the
// previous Tx commits or rolls back, and each Tx works on a private copy.
type Store struct {
	sem chan struct{}

	mu     sync.Mutex // guards state and fail
	state  *state
	fail   map[string]error
	closed bool
}

type state struct {
	nextTagID int64
	tags      map[int64]store.Tag
	tagIDs    map[store.TagSpec]int64
	keywords  map[store.Keyword]struct{}
	recipes   map[int64]store.Recipe
	mappings  map[store.Mapping]struct{}
}

var (
	_ store.Store        = (*Store)(nil)
	_ store.RecipeWriter = (*Store)(nil)
)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sem: make(chan struct{}, 1),
		state: &state{
			nextTagID: 1,
			tags:      make(map[int64]store.Tag),
			tagIDs:    make(map[store.TagSpec]int64),
			keywords:  make(map[store.Keyword]struct{}),
			recipes:   make(map[int64]store.Recipe),
			mappings:  make(map[store.Mapping]struct{}),
		},
		fail: make(map[string]error),
	}
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FailOn makes every later call of the named Tx method ("InsertTags",
// "KeywordIndex", "Commit", ...) fail with ErrInjected wrapped as a storage
// error. Passing "" clears all armed failures.
func (s *Store) FailOn(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if method == "" {
		s.fail = make(map[string]error)
		return
	}
	s.fail[method] = internalerr.Storage(method, ErrInjected)
}

func (s *Store) injected(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail[method]
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return internalerr.Storage("begin", ctx.Err())
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		<-s.sem
		return internalerr.Storage("begin", errors.New("store is closed"))
	}
	return nil
}

// Begin starts a transaction on a snapshot of the current state.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	if err := s.injected("Begin"); err != nil {
		return nil, err
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	snap := s.state.clone()
	s.mu.Unlock()
	return &memTx{s: s, st: snap}, nil
}

// PutRecipes inserts or replaces recipes.
func (s *Store) PutRecipes(ctx context.Context, recipes []store.Recipe) (int64, error) {
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	defer func() { <-s.sem }()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recipes {
		s.state.recipes[r.ID] = r
	}
	return int64(len(recipes)), nil
}

// Snapshot counts rows per table, for assertions in tests.
func (s *Store) Snapshot() (tags, keywords, recipes, mappings int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.tags), len(s.state.keywords), len(s.state.recipes), len(s.state.mappings)
}

func (st *state) clone() *state {
	out := &state{
		nextTagID: st.nextTagID,
		tags:      make(map[int64]store.Tag, len(st.tags)),
		tagIDs:    make(map[store.TagSpec]int64, len(st.tagIDs)),
		keywords:  make(map[store.Keyword]struct{}, len(st.keywords)),
		recipes:   make(map[int64]store.Recipe, len(st.recipes)),
		mappings:  make(map[store.Mapping]struct{}, len(st.mappings)),
	}
	for k, v := range st.tags {
		out.tags[k] = v
	}
	for k, v := range st.tagIDs {
		out.tagIDs[k] = v
	}
	for k := range st.keywords {
		out.keywords[k] = struct{}{}
	}
	for k, v := range st.recipes {
		out.recipes[k] = v
	}
	for k := range st.mappings {
		out.mappings[k] = struct{}{}
	}
	return out
}

type memTx struct {
	s    *Store
	st   *state
	done bool
}

var errTxDone = errors.New("transaction has already been committed or rolled back")

func (t *memTx) check(method string) error {
	if t.done {
		return internalerr.Storage(method, errTxDone)
	}
	return t.s.injected(method)
}

func (t *memTx) Commit() error {
	if err := t.check("Commit"); err != nil {
		return err
	}
	t.s.mu.Lock()
	t.s.state = t.st
	t.s.mu.Unlock()
	t.release()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func (t *memTx) release() {
	t.done = true
	t.st = nil
	<-t.s.sem
}

func (t *memTx) InsertTags(ctx context.Context, tags []store.TagSpec) (int64, error) {
	if err := t.check("InsertTags"); err != nil {
		return 0, err
	}
	var n int64
	for _, spec := range tags {
		if _, ok := t.st.tagIDs[spec]; ok {
			continue
		}
		id := t.st.nextTagID
		t.st.nextTagID++
		t.st.tagIDs[spec] = id
		t.st.tags[id] = store.Tag{ID: id, Name: spec.Name, Type: spec.Type}
		n++
	}
	return n, nil
}

func (t *memTx) TagLookup(ctx context.Context) (store.TagLookup, error) {
	if err := t.check("TagLookup"); err != nil {
		return nil, err
	}
	lookup := make(store.TagLookup)
	for _, tag := range t.st.tags {
		lookup.Set(tag.Type, tag.Name, tag.ID)
	}
	return lookup, nil
}

func (t *memTx) InsertKeywords(ctx context.Context, kws []store.Keyword) (int64, error) {
	if err := t.check("InsertKeywords"); err != nil {
		return 0, err
	}
	for _, kw := range kws {
		if _, ok := t.st.tags[kw.TagID]; !ok {
			return 0, internalerr.Storage("insert keywords", fmt.Errorf("tag %d does not exist", kw.TagID))
		}
	}
	var n int64
	for _, kw := range kws {
		if _, ok := t.st.keywords[kw]; ok {
			continue
		}
		t.st.keywords[kw] = struct{}{}
		n++
	}
	return n, nil
}

func (t *memTx) KeywordIndex(ctx context.Context) (map[int64][]string, error) {
	if err := t.check("KeywordIndex"); err != nil {
		return nil, err
	}
	index := make(map[int64][]string)
	for kw := range t.st.keywords {
		index[kw.TagID] = append(index[kw.TagID], kw.Keyword)
	}
	for _, kws := range index {
		sort.Strings(kws)
	}
	return index, nil
}

func (t *memTx) EachRecipe(ctx context.Context, fn func(store.Recipe) error) error {
	if err := t.check("EachRecipe"); err != nil {
		return err
	}
	ids := make([]int64, 0, len(t.st.recipes))
	for id := range t.st.recipes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return internalerr.Storage("scan recipes", err)
		}
		if err := fn(t.st.recipes[id]); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) Recipe(ctx context.Context, id int64) (store.Recipe, error) {
	if err := t.check("Recipe"); err != nil {
		return store.Recipe{}, err
	}
	r, ok := t.st.recipes[id]
	if !ok {
		return store.Recipe{}, fmt.Errorf("recipe %d: %w", id, internalerr.ErrNotFound)
	}
	return r, nil
}

func (t *memTx) InsertMappings(ctx context.Context, m []store.Mapping) (int64, error) {
	if err := t.check("InsertMappings"); err != nil {
		return 0, err
	}
	for _, pair := range m {
		if _, ok := t.st.recipes[pair.RecipeID]; !ok {
			return 0, internalerr.Storage("insert mappings", fmt.Errorf("recipe %d does not exist", pair.RecipeID))
		}
		if _, ok := t.st.tags[pair.TagID]; !ok {
			return 0, internalerr.Storage("insert mappings", fmt.Errorf("tag %d does not exist", pair.TagID))
		}
	}
	var n int64
	for _, pair := range m {
		if _, ok := t.st.mappings[pair]; ok {
			continue
		}
		t.st.mappings[pair] = struct{}{}
		n++
	}
	return n, nil
}

func (t *memTx) RecipeTags(ctx context.Context, recipeID int64) ([]store.Tag, error) {
	if err := t.check("RecipeTags"); err != nil {
		return nil, err
	}
	var tags []store.Tag
	for pair := range t.st.mappings {
		if pair.RecipeID == recipeID {
			tags = append(tags, t.st.tags[pair.TagID])
		}
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Type != tags[j].Type {
			return tags[i].Type < tags[j].Type
		}
		return tags[i].Name < tags[j].Name
	})
	return tags, nil
}
