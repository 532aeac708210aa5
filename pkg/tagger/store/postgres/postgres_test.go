package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
)

// openTestStore connects to TEST_POSTGRES_URL and builds a throwaway schema
// holding a recipe table. The test is skipped when no database is configured.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("Skipping integration test: TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	admin, err := sql.Open("postgres", url)
	require.NoError(t, err)
	if err := admin.PingContext(ctx); err != nil {
		admin.Close()
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
	}

	schema := fmt.Sprintf("tagger_test_%d", time.Now().UnixNano())
	q := pq.QuoteIdentifier(schema)
	_, err = admin.ExecContext(ctx, "CREATE SCHEMA "+q)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, `CREATE TABLE `+q+`.recipe (
	recipe_id INTEGER PRIMARY KEY,
	recipe_name TEXT,
	instructions TEXT
)`)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, `INSERT INTO `+q+`.recipe VALUES
	(1, 'Roast Turkey', 'Serve with stuffing'),
	(2, 'Veggie Stir Fry', NULL)`)
	require.NoError(t, err)

	t.Cleanup(func() {
		admin.Exec("DROP SCHEMA " + q + " CASCADE")
		admin.Close()
	})

	st, err := OpenPostgres(ctx, url, Options{Schema: schema, Migrate: true, BatchSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPostgresRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	specs := []store.TagSpec{
		{Name: "Thanksgiving", Type: "holiday"},
		{Name: "American", Type: "cuisine"},
		{Name: "Vegan", Type: "diet"},
	}
	n, err := tx.InsertTags(ctx, specs)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = tx.InsertTags(ctx, specs)
	require.NoError(t, err)
	assert.Zero(t, n, "second insert should be a no-op")

	lookup, err := tx.TagLookup(ctx)
	require.NoError(t, err)
	turkeyDay, ok := lookup.ID("holiday", "Thanksgiving")
	require.True(t, ok)

	n, err = tx.InsertKeywords(ctx, []store.Keyword{
		{TagID: turkeyDay, Keyword: "turkey"},
		{TagID: turkeyDay, Keyword: "stuffing"},
		{TagID: turkeyDay, Keyword: "turkey"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	index, err := tx.KeywordIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stuffing", "turkey"}, index[turkeyDay])

	var recipes []store.Recipe
	require.NoError(t, tx.EachRecipe(ctx, func(r store.Recipe) error {
		recipes = append(recipes, r)
		return nil
	}))
	assert.Equal(t, []store.Recipe{
		{ID: 1, Name: "Roast Turkey", Instructions: "Serve with stuffing"},
		{ID: 2, Name: "Veggie Stir Fry"},
	}, recipes)

	n, err = tx.InsertMappings(ctx, []store.Mapping{{RecipeID: 1, TagID: turkeyDay}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	tags, err := tx.RecipeTags(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []store.Tag{{ID: turkeyDay, Name: "Thanksgiving", Type: "holiday"}}, tags)

	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback(), "rollback after commit is a no-op")
}

func TestPostgresRecipeNotFound(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Recipe(ctx, 404)
	assert.True(t, errors.Is(err, internalerr.ErrNotFound), "got %v", err)
}

func TestPostgresMappingForeignKey(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.InsertMappings(ctx, []store.Mapping{{RecipeID: 99, TagID: 99}})
	assert.True(t, errors.Is(err, internalerr.ErrStorage), "got %v", err)
}
