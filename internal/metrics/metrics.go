// Package metrics exposes Prometheus instrumentation for tagging runs and
// the HTTP API.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipe_tagger_operations_total",
			Help: "Total number of tagging operations by outcome",
		},
		[]string{"op", "status"}, // status: "ok", "not_found", "error"
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recipe_tagger_operation_duration_seconds",
			Help:    "Duration of tagging operations in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300, 1200},
		},
		[]string{"op"},
	)

	RowsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipe_tagger_rows_inserted_total",
			Help: "Rows newly inserted by tagging operations",
		},
		[]string{"table"},
	)

	Skipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipe_tagger_skipped_total",
			Help: "Entries skipped by tagging operations",
		},
		[]string{"reason"},
	)

	RecipesScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recipe_tagger_recipes_scanned_total",
			Help: "Recipes matched against the keyword index",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipe_tagger_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recipe_tagger_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// table each operation writes to
var opTable = map[string]string{
	tagger.OpRegisterTags:  "tags",
	tagger.OpIndexKeywords: "tag_keywords",
	tagger.OpTagAll:        "recipe_tags_mapping",
	tagger.OpTagOne:        "recipe_tags_mapping",
}

// Status classifies an operation error for the status label
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, internalerr.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// RecordOperation records a finished tagging operation
func RecordOperation(res tagger.Result, err error) {
	OperationsTotal.WithLabelValues(res.Op, Status(err)).Inc()
	OperationDuration.WithLabelValues(res.Op).Observe(res.Duration.Seconds())
	if table, ok := opTable[res.Op]; ok && res.Inserted > 0 {
		RowsInserted.WithLabelValues(table).Add(float64(res.Inserted))
	}
	for _, s := range res.Skipped {
		Skipped.WithLabelValues(string(s.Reason)).Inc()
	}
	if res.Scanned > 0 {
		RecipesScanned.Add(float64(res.Scanned))
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Recorder adapts RecordOperation to tagger.Recorder
type Recorder struct{}

// Record implements tagger.Recorder
func (Recorder) Record(res tagger.Result, err error) {
	RecordOperation(res, err)
}
