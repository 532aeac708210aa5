package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
)

// Options tunes the SQLite store
type Options struct {
	// BatchSize is the number of rows per multi-row INSERT
	BatchSize int
	// MaxOpenConns caps the pool; zero leaves the database/sql default
	MaxOpenConns int
}

// Store implements store.Store and store.RecipeWriter on SQLite
type Store struct {
	db    *sql.DB
	batch int
}

var (
	_ store.Store        = (*Store)(nil)
	_ store.RecipeWriter = (*Store)(nil)
)

// OpenSQLite opens a SQLite database with WAL mode and foreign keys enabled
// and creates the schema if needed. Write transactions take the lock up front
// so concurrent writers wait on busy_timeout instead of failing to upgrade.
func OpenSQLite(ctx context.Context, path string, opts ...Options) (*Store, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.BatchSize <= 0 {
		o.BatchSize = store.DefaultBatchSize
	}
	if o.BatchSize > store.MaxBatchSize {
		o.BatchSize = store.MaxBatchSize
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, internalerr.Storage("open sqlite", err)
	}

	switch {
	case path == ":memory:":
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	case o.MaxOpenConns > 0:
		db.SetMaxOpenConns(o.MaxOpenConns)
	}

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, internalerr.Storage("enable wal", err)
		}
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, internalerr.Storage("init schema", err)
	}

	return &Store{db: db, batch: o.BatchSize}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests and tooling
func (s *Store) DB() *sql.DB {
	return s.db
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS recipe (
	recipe_id INTEGER PRIMARY KEY,
	recipe_name TEXT NOT NULL,
	instructions TEXT
);

CREATE TABLE IF NOT EXISTS tags (
	tag_id INTEGER PRIMARY KEY AUTOINCREMENT,
	tag_name TEXT NOT NULL,
	tag_type TEXT NOT NULL,
	UNIQUE(tag_name, tag_type)
);

CREATE TABLE IF NOT EXISTS tag_keywords (
	tag_id INTEGER NOT NULL,
	keyword TEXT NOT NULL,
	UNIQUE(tag_id, keyword),
	FOREIGN KEY(tag_id) REFERENCES tags(tag_id)
);

CREATE TABLE IF NOT EXISTS recipe_tags_mapping (
	recipe_id INTEGER NOT NULL,
	tag_id INTEGER NOT NULL,
	UNIQUE(recipe_id, tag_id),
	FOREIGN KEY(recipe_id) REFERENCES recipe(recipe_id),
	FOREIGN KEY(tag_id) REFERENCES tags(tag_id)
);

CREATE INDEX IF NOT EXISTS idx_recipe_tags_mapping_tag ON recipe_tags_mapping(tag_id);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// Begin starts a write transaction
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, internalerr.Storage("begin", err)
	}
	return &sqliteTx{tx: tx, batch: s.batch}, nil
}

// PutRecipes inserts or replaces recipes. The tagging engine never calls
// this; it exists so a standalone database can be populated.
func (s *Store) PutRecipes(ctx context.Context, recipes []store.Recipe) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, internalerr.Storage("begin", err)
	}
	defer tx.Rollback()

	var total int64
	err = store.Batches(len(recipes), s.batch, func(lo, hi int) error {
		args := make([]any, 0, (hi-lo)*3)
		for _, r := range recipes[lo:hi] {
			args = append(args, r.ID, r.Name, nullString(r.Instructions))
		}
		stmt := `INSERT INTO recipe (recipe_id, recipe_name, instructions) VALUES ` +
			placeholders(hi-lo, 3) + `
ON CONFLICT(recipe_id) DO UPDATE SET
	recipe_name=excluded.recipe_name,
	instructions=excluded.instructions`
		n, err := execCount(ctx, tx, stmt, args)
		total += n
		return err
	})
	if err != nil {
		return 0, internalerr.Storage("put recipes", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, internalerr.Storage("commit", err)
	}
	return total, nil
}

type sqliteTx struct {
	tx    *sql.Tx
	batch int
}

func (t *sqliteTx) Commit() error {
	return internalerr.Storage("commit", t.tx.Commit())
}

func (t *sqliteTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return internalerr.Storage("rollback", err)
}

// InsertTags adds (name, type) rows that do not exist yet
func (t *sqliteTx) InsertTags(ctx context.Context, tags []store.TagSpec) (int64, error) {
	var total int64
	err := store.Batches(len(tags), t.batch, func(lo, hi int) error {
		args := make([]any, 0, (hi-lo)*2)
		for _, tag := range tags[lo:hi] {
			args = append(args, tag.Name, tag.Type)
		}
		stmt := `INSERT INTO tags (tag_name, tag_type) VALUES ` + placeholders(hi-lo, 2) +
			` ON CONFLICT(tag_name, tag_type) DO NOTHING`
		n, err := execCount(ctx, t.tx, stmt, args)
		total += n
		return err
	})
	return total, internalerr.Storage("insert tags", err)
}

// TagLookup loads every tag keyed by type then name
func (t *sqliteTx) TagLookup(ctx context.Context) (store.TagLookup, error) {
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

// InsertKeywords adds (tag_id, keyword) pairs that do not exist yet
func (t *sqliteTx) InsertKeywords(ctx context.Context, kws []store.Keyword) (int64, error) {
	var total int64
	err := store.Batches(len(kws), t.batch, func(lo, hi int) error {
		args := make([]any, 0, (hi-lo)*2)
		for _, kw := range kws[lo:hi] {
			args = append(args, kw.TagID, kw.Keyword)
		}
		stmt := `INSERT INTO tag_keywords (tag_id, keyword) VALUES ` + placeholders(hi-lo, 2) +
			` ON CONFLICT(tag_id, keyword) DO NOTHING`
		n, err := execCount(ctx, t.tx, stmt, args)
		total += n
		return err
	})
	return total, internalerr.Storage("insert keywords", err)
}

// KeywordIndex returns tag_id → keywords
func (t *sqliteTx) KeywordIndex(ctx context.Context) (map[int64][]string, error) {
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

// EachRecipe streams recipes in id order
func (t *sqliteTx) EachRecipe(ctx context.Context, fn func(store.Recipe) error) error {
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

// Recipe loads one recipe or returns internalerr.ErrNotFound
func (t *sqliteTx) Recipe(ctx context.Context, id int64) (store.Recipe, error) {
	r := store.Recipe{ID: id}
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(recipe_name, ''), COALESCE(instructions, '') FROM recipe WHERE recipe_id = ?`, id,
	).Scan(&r.Name, &r.Instructions)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Recipe{}, fmt.Errorf("recipe %d: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return store.Recipe{}, internalerr.Storage("load recipe", err)
	}
	return r, nil
}

// InsertMappings adds (recipe_id, tag_id) pairs that do not exist yet
func (t *sqliteTx) InsertMappings(ctx context.Context, m []store.Mapping) (int64, error) {
	var total int64
	err := store.Batches(len(m), t.batch, func(lo, hi int) error {
		args := make([]any, 0, (hi-lo)*2)
		for _, pair := range m[lo:hi] {
			args = append(args, pair.RecipeID, pair.TagID)
		}
		stmt := `INSERT INTO recipe_tags_mapping (recipe_id, tag_id) VALUES ` + placeholders(hi-lo, 2) +
			` ON CONFLICT(recipe_id, tag_id) DO NOTHING`
		n, err := execCount(ctx, t.tx, stmt, args)
		total += n
		return err
	})
	return total, internalerr.Storage("insert mappings", err)
}

// RecipeTags lists the tags mapped to a recipe, ordered by type then name
func (t *sqliteTx) RecipeTags(ctx context.Context, recipeID int64) ([]store.Tag, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT t.tag_id, t.tag_name, t.tag_type
FROM recipe_tags_mapping m
JOIN tags t ON t.tag_id = m.tag_id
WHERE m.recipe_id = ?
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

// placeholders renders "(?, ?), (?, ?)" for rows × cols
func placeholders(rows, cols int) string {
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	return strings.TrimSuffix(strings.Repeat(tuple+", ", rows), ", ")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execCount(ctx context.Context, db execer, stmt string, args []any) (int64, error) {
	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
