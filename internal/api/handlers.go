package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
)

// StatusResponse is returned by the operation endpoints
type StatusResponse struct {
	Status string         `json:"status"`
	Result *tagger.Result `json:"result,omitempty"`
}

// ErrorResponse is returned for every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// TagResponse lists one tag of a recipe
type TagResponse struct {
	ID   int64  `json:"tag_id"`
	Name string `json:"tag_name"`
	Type string `json:"tag_type"`
}

// RecipeTagsResponse is returned by GET /recipes/{recipe_id}/tags
type RecipeTagsResponse struct {
	RecipeID int64         `json:"recipe_id"`
	Tags     []TagResponse `json:"tags"`
}

// Root returns the welcome message
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Recipe Tagging API"})
}

// Healthz reports liveness
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TagAllRecipes runs TagAll
func (h *Handler) TagAllRecipes(w http.ResponseWriter, r *http.Request) {
	res, err := h.tagger.TagAll(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "Tagging completed", Result: &res})
}

// TagRecipe runs TagOne for the recipe in the path
func (h *Handler) TagRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := recipeID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	res, err := h.tagger.TagOne(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Status: fmt.Sprintf("Recipe %d tagged successfully", id),
		Result: &res,
	})
}

// Seed runs IndexKeywords, registering tags first
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	res, err := h.tagger.Seed(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "Seeding completed", Result: &res})
}

// RecipeTags lists the tags mapped to a recipe
func (h *Handler) RecipeTags(w http.ResponseWriter, r *http.Request) {
	id, err := recipeID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	tags, err := h.tagger.RecipeTags(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, RecipeTagsResponse{RecipeID: id, Tags: toTagResponses(tags)})
}

func toTagResponses(tags []store.Tag) []TagResponse {
	out := make([]TagResponse, 0, len(tags))
	for _, t := range tags {
		out = append(out, TagResponse{ID: t.ID, Name: t.Name, Type: t.Type})
	}
	return out
}

func recipeID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "recipe_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("recipe_id %q must be a positive integer: %w", raw, internalerr.ErrInvalidInput)
	}
	return id, nil
}

// statusFor maps an error to an HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, internalerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, internalerr.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	respondJSON(w, status, ErrorResponse{Error: msg})
}

// respondJSON sends a JSON response with proper headers
func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
