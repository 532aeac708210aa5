// Package postgres implements store.Store on PostgreSQL via lib/pq.
//
// The recipe table is owned by another service and is only read. The three
// tagging tables are created when Options.Migrate is set.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
)

// DefaultStatementTimeout matches the ceiling used for bulk tagging runs
const DefaultStatementTimeout = 20 * time.Minute

// Options tunes the Postgres store
type Options struct {
	// Schema is put first on search_path inside every transaction
	Schema string
	// StatementTimeout applies per statement inside a transaction; zero uses
	// DefaultStatementTimeout, negative disables it
	StatementTimeout time.Duration
	MaxOpenConns     int
	BatchSize        int
	// Migrate creates tags, tag_keywords and recipe_tags_mapping if missing
	Migrate bool
}

// Store implements store.Store
type Store struct {
	db   *sql.DB
	opts Options
}

var _ store.Store = (*Store)(nil)

// OpenPostgres connects to url and verifies the connection
func OpenPostgres(ctx context.Context, url string, opts Options) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, internalerr.Storage("failed to open database", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, internalerr.Storage("failed to ping database", err)
	}

	s := New(db, opts)
	if opts.Migrate {
		if err := s.migrate(ctx); err != nil {
			db.Close()
			return nil, internalerr.Storage("migrate", err)
		}
	}
	return s, nil
}

// New wraps an open connection pool. The Store takes ownership of db.
func New(db *sql.DB, opts Options) *Store {
	if opts.BatchSize <= 0 {
		opts.BatchSize = store.DefaultBatchSize
	}
	if opts.StatementTimeout == 0 {
		opts.StatementTimeout = DefaultStatementTimeout
	}
	return &Store{db: db, opts: opts}
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const schema = `
CREATE TABLE IF NOT EXISTS tags (
	tag_id SERIAL PRIMARY KEY,
	tag_name TEXT NOT NULL,
	tag_type TEXT NOT NULL,
	UNIQUE(tag_name, tag_type)
);

CREATE TABLE IF NOT EXISTS tag_keywords (
	tag_id INTEGER NOT NULL REFERENCES tags(tag_id),
	keyword TEXT NOT NULL,
	UNIQUE(tag_id, keyword)
);

CREATE TABLE IF NOT EXISTS recipe_tags_mapping (
	recipe_id INTEGER NOT NULL REFERENCES recipe(recipe_id),
	tag_id INTEGER NOT NULL REFERENCES tags(tag_id),
	UNIQUE(recipe_id, tag_id)
);
`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	return tx.Commit()
}

// begin opens a transaction with the session settings applied
func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	if s.opts.Schema != "" {
		if _, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+pq.QuoteIdentifier(s.opts.Schema)+", public"); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if s.opts.StatementTimeout > 0 {
		ms := s.opts.StatementTimeout.Milliseconds()
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", ms)); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	return tx, nil
}

// Begin starts a transaction
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, internalerr.Storage("begin", err)
	}
	return &pgTx{tx: tx, batch: s.opts.BatchSize}, nil
}

type pgTx struct {
	tx    *sql.Tx
	batch int
}

func (t *pgTx) Commit() error {
	return internalerr.Storage("commit", t.tx.Commit())
}

func (t *pgTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return internalerr.Storage("rollback", err)
}

// Bulk inserts pass one array per column and unnest them server side, so a
// batch is always a single statement with a fixed number of parameters.

func (t *pgTx) InsertTags(ctx context.Context, tags []store.TagSpec) (int64, error) {
	var total int64
	err := store.Batches(len(tags), t.batch, func(lo, hi int) error {
		names := make([]string, 0, hi-lo)
		types := make([]string, 0, hi-lo)
		for _, tag := range tags[lo:hi] {
			names = append(names, tag.Name)
			types = append(types, tag.Type)
		}
		n, err := execCount(ctx, t.tx, `
INSERT INTO tags (tag_name, tag_type)
SELECT * FROM unnest($1::text[], $2::text[])
ON CONFLICT (tag_name, tag_type) DO NOTHING`, pq.Array(names), pq.Array(types))
		total += n
		return err
	})
	return total, internalerr.Storage("insert tags", err)
}

func (t *pgTx) TagLookup(ctx context.Context) (store.TagLookup, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT tag_id, tag_name, tag_type FROM tags`)
	if err != nil {
		return nil, internalerr.Storage("load tags", err)
	}
	defer rows.Close()

	lookup := make(store.TagLookup)
	for rows.Next() {
		var tag store.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Type); err != nil {
			return nil, internalerr.Storage("load tags", err)
		}
		lookup.Set(tag.Type, tag.Name, tag.ID)
	}
	return lookup, internalerr.Storage("load tags", rows.Err())
}

func (t *pgTx) InsertKeywords(ctx context.Context, kws []store.Keyword) (int64, error) {
	var total int64
	err := store.Batches(len(kws), t.batch, func(lo, hi int) error {
		ids := make([]int64, 0, hi-lo)
		words := make([]string, 0, hi-lo)
		for _, kw := range kws[lo:hi] {
			ids = append(ids, kw.TagID)
			words = append(words, kw.Keyword)
		}
		n, err := execCount(ctx, t.tx, `
INSERT INTO tag_keywords (tag_id, keyword)
SELECT * FROM unnest($1::int[], $2::text[])
ON CONFLICT (tag_id, keyword) DO NOTHING`, pq.Array(ids), pq.Array(words))
		total += n
		return err
	})
	return total, internalerr.Storage("insert keywords", err)
}

func (t *pgTx) KeywordIndex(ctx context.Context) (map[int64][]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT tag_id, keyword FROM tag_keywords ORDER BY tag_id, keyword`)
	if err != nil {
		return nil, internalerr.Storage("load keywords", err)
	}
	defer rows.Close()

	index := make(map[int64][]string)
	for rows.Next() {
		var (
			id int64
			kw string
		)
		if err := rows.Scan(&id, &kw); err != nil {
			return nil, internalerr.Storage("load keywords", err)
		}
		index[id] = append(index[id], kw)
	}
	return index, internalerr.Storage("load keywords", rows.Err())
}

func (t *pgTx) EachRecipe(ctx context.Context, fn func(store.Recipe) error) error {
	rows, err := t.tx.QueryContext(ctx, `
SELECT recipe_id, COALESCE(recipe_name, ''), COALESCE(instructions, '')
FROM recipe
ORDER BY recipe_id`)
	if err != nil {
		return internalerr.Storage("scan recipes", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r store.Recipe
		if err := rows.Scan(&r.ID, &r.Name, &r.Instructions); err != nil {
			return internalerr.Storage("scan recipes", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return internalerr.Storage("scan recipes", rows.Err())
}

func (t *pgTx) Recipe(ctx context.Context, id int64) (store.Recipe, error) {
	r := store.Recipe{ID: id}
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(recipe_name, ''), COALESCE(instructions, '') FROM recipe WHERE recipe_id = $1`, id,
	).Scan(&r.Name, &r.Instructions)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Recipe{}, fmt.Errorf("recipe %d: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return store.Recipe{}, internalerr.Storage("load recipe", err)
	}
	return r, nil
}

func (t *pgTx) InsertMappings(ctx context.Context, m []store.Mapping) (int64, error) {
	var total int64
	err := store.Batches(len(m), t.batch, func(lo, hi int) error {
		recipes := make([]int64, 0, hi-lo)
		tags := make([]int64, 0, hi-lo)
		for _, pair := range m[lo:hi] {
			recipes = append(recipes, pair.RecipeID)
			tags = append(tags, pair.TagID)
		}
		n, err := execCount(ctx, t.tx, `
INSERT INTO recipe_tags_mapping (recipe_id, tag_id)
SELECT * FROM unnest($1::int[], $2::int[])
ON CONFLICT (recipe_id, tag_id) DO NOTHING`, pq.Array(recipes), pq.Array(tags))
		total += n
		return err
	})
	return total, internalerr.Storage("insert mappings", err)
}

func (t *pgTx) RecipeTags(ctx context.Context, recipeID int64) ([]store.Tag, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT t.tag_id, t.tag_name, t.tag_type
FROM recipe_tags_mapping m
JOIN tags t ON t.tag_id = m.tag_id
WHERE m.recipe_id = $1
ORDER BY t.tag_type, t.tag_name`, recipeID)
	if err != nil {
		return nil, internalerr.Storage("load recipe tags", err)
	}
	defer rows.Close()

	var tags []store.Tag
	for rows.Next() {
		var tag store.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Type); err != nil {
			return nil, internalerr.Storage("load recipe tags", err)
		}
		tags = append(tags, tag)
	}
	return tags, internalerr.Storage("load recipe tags", rows.Err())
}

func execCount(ctx context.Context, tx *sql.Tx, stmt string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
