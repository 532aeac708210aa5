package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store/memstore"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/taxonomy"
)

type testServer struct {
	handler *Handler
	store   *memstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tax, err := taxonomy.Parse([]byte(`
holiday:
  Thanksgiving: [turkey, stuffing]
cuisine:
  American: [turkey]
region:
  Southern: [grits]
`))
	require.NoError(t, err)

	st := memstore.New()
	_, err = st.PutRecipes(context.Background(), []store.Recipe{
		{ID: 1, Name: "Roast Turkey", Instructions: "Serve with stuffing"},
		{ID: 2, Name: "Shrimp and Grits"},
		{ID: 3, Name: "Plain Rice"},
	})
	require.NoError(t, err)

	tg, err := tagger.New(tagger.Options{Store: st, Taxonomy: tax})
	require.NoError(t, err)
	t.Cleanup(func() { tg.Close() })

	return &testServer{handler: NewHandler(tg, nil), store: st}
}

func (s *testServer) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.handler.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRoot(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "Welcome to the Recipe Tagging API", body["message"])
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestSeedTagAndList(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/seed")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	seed := decode[StatusResponse](t, rec)
	assert.Equal(t, "Seeding completed", seed.Status)
	require.NotNil(t, seed.Result)
	assert.Equal(t, tagger.OpIndexKeywords, seed.Result.Op)
	assert.EqualValues(t, 4, seed.Result.Inserted)
	require.Len(t, seed.Result.Steps, 1)
	assert.EqualValues(t, 3, seed.Result.Steps[0].Inserted)

	rec = s.do(t, http.MethodGet, "/tag-all-recipes")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	all := decode[StatusResponse](t, rec)
	assert.Equal(t, "Tagging completed", all.Status)
	assert.EqualValues(t, 3, all.Result.Inserted)
	assert.Equal(t, 3, all.Result.Scanned)
	assert.Equal(t, 2, all.Result.Matched)
	assert.NotEmpty(t, all.Result.RunID)

	rec = s.do(t, http.MethodGet, "/recipes/1/tags")
	require.Equal(t, http.StatusOK, rec.Code)
	tags := decode[RecipeTagsResponse](t, rec)
	assert.EqualValues(t, 1, tags.RecipeID)
	var names []string
	for _, tg := range tags.Tags {
		names = append(names, tg.Type+"/"+tg.Name)
	}
	assert.ElementsMatch(t, []string{"holiday/Thanksgiving", "cuisine/American"}, names)

	rec = s.do(t, http.MethodGet, "/recipes/3/tags")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[RecipeTagsResponse](t, rec).Tags)
	assert.Contains(t, rec.Body.String(), `"tags":[]`)
}

func TestTagRecipe(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/seed").Code)

	rec := s.do(t, http.MethodGet, "/tag-recipe/2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[StatusResponse](t, rec)
	assert.Equal(t, "Recipe 2 tagged successfully", resp.Status)
	assert.Equal(t, tagger.OpTagOne, resp.Result.Op)
	assert.EqualValues(t, 1, resp.Result.Inserted)
	require.Len(t, resp.Result.Evidence, 1)
	assert.Equal(t, "grits", resp.Result.Evidence[0].Keyword)

	// second run finds the same pair and inserts nothing
	rec = s.do(t, http.MethodGet, "/tag-recipe/2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode[StatusResponse](t, rec).Result.Inserted)
}

func TestTagRecipeErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing recipe", "/tag-recipe/999", http.StatusNotFound},
		{"non numeric id", "/tag-recipe/abc", http.StatusBadRequest},
		{"zero id", "/tag-recipe/0", http.StatusBadRequest},
		{"negative id", "/tag-recipe/-4", http.StatusBadRequest},
		{"tags of missing recipe", "/recipes/999/tags", http.StatusNotFound},
		{"tags with bad id", "/recipes/x/tags", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.path)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestStorageFailureHidesDetails(t *testing.T) {
	s := newTestServer(t)
	s.store.FailOn("InsertTags")

	rec := s.do(t, http.MethodPost, "/seed")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode[ErrorResponse](t, rec).Error)
}

func TestSeedRequiresPost(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/seed")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/tag-recipe/999")

	rec := s.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "recipe_tagger_api_requests_total"), "api counter exported")
	assert.Contains(t, body, `route="/tag-recipe/{recipe_id}"`)
	assert.NotContains(t, body, `route="/tag-recipe/999"`)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t)
	s.handler.RateLimit = 2
	router := s.handler.Router()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health checks are not limited")
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)
	s.handler.CORSOrigins = []string{"https://holidaychannel.tv"}

	req := httptest.NewRequest(http.MethodOptions, "/tag-recipe/1", nil)
	req.Header.Set("Origin", "https://holidaychannel.tv")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.handler.Router().ServeHTTP(rec, req)

	assert.Equal(t, "https://holidaychannel.tv", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	s.handler.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
