// Package api exposes the tagging operations over HTTP using the Chi router.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/holidaychanneldottv/recipe-tagger/internal/metrics"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger"
)

// Handler serves the tagging endpoints
type Handler struct {
	tagger *tagger.Tagger
	log    *zap.Logger

	// RateLimit caps requests per minute per client IP on the operation
	// routes. Zero disables the limiter.
	RateLimit int
	// CORSOrigins enables CORS for the listed origins
	CORSOrigins []string
}

// NewHandler creates a Handler. A nil logger discards output.
func NewHandler(t *tagger.Tagger, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{tagger: t, log: log}
}

// Router builds the HTTP routes
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(chimiddleware.Recoverer)
	if len(h.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(prometheusMetrics)
		r.Use(h.rateLimit())

		r.Get("/", h.Root)
		r.Get("/tag-all-recipes", h.TagAllRecipes)
		r.Get("/tag-recipe/{recipe_id}", h.TagRecipe)
		r.Post("/seed", h.Seed)
		r.Get("/recipes/{recipe_id}/tags", h.RecipeTags)
	})

	return r
}

// prometheusMetrics records request count and latency labelled by route
// pattern, never the raw path.
func prometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.RecordAPIRequest(r.Method, route, ww.Status(), time.Since(start))
	})
}

func (h *Handler) rateLimit() func(http.Handler) http.Handler {
	if h.RateLimit <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.LimitByIP(h.RateLimit, time.Minute)
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.log.Info("request",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}
