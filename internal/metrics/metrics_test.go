package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("tag one: %w", internalerr.ErrNotFound), "not_found"},
		{internalerr.Storage("insert tags", errors.New("disk full")), "error"},
	}
	for _, tt := range tests {
		if got := Status(tt.err); got != tt.want {
			t.Errorf("Status(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRecordOperation(t *testing.T) {
	ok := OperationsTotal.WithLabelValues(tagger.OpTagAll, "ok")
	rows := RowsInserted.WithLabelValues("recipe_tags_mapping")
	beforeOK := testutil.ToFloat64(ok)
	beforeRows := testutil.ToFloat64(rows)
	beforeScanned := testutil.ToFloat64(RecipesScanned)

	Recorder{}.Record(tagger.Result{
		Op:       tagger.OpTagAll,
		Inserted: 7,
		Scanned:  12,
		Duration: 30 * time.Millisecond,
	}, nil)

	if got := testutil.ToFloat64(ok) - beforeOK; got != 1 {
		t.Errorf("operations_total delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rows) - beforeRows; got != 7 {
		t.Errorf("rows_inserted delta = %v, want 7", got)
	}
	if got := testutil.ToFloat64(RecipesScanned) - beforeScanned; got != 12 {
		t.Errorf("recipes_scanned delta = %v, want 12", got)
	}
}

func TestRecordOperationSkips(t *testing.T) {
	notFound := Skipped.WithLabelValues(string(tagger.SkipNotFound))
	failed := OperationsTotal.WithLabelValues(tagger.OpTagOne, "not_found")
	beforeSkip := testutil.ToFloat64(notFound)
	beforeFailed := testutil.ToFloat64(failed)

	RecordOperation(tagger.Result{
		Op:      tagger.OpTagOne,
		Skipped: []tagger.Skip{{Reason: tagger.SkipNotFound, RecipeID: 9}},
	}, fmt.Errorf("tag one: %w", internalerr.ErrNotFound))

	if got := testutil.ToFloat64(notFound) - beforeSkip; got != 1 {
		t.Errorf("skipped delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(failed) - beforeFailed; got != 1 {
		t.Errorf("not_found delta = %v, want 1", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	c := APIRequestsTotal.WithLabelValues("GET", "/tag-recipe/{recipe_id}", "404")
	before := testutil.ToFloat64(c)
	RecordAPIRequest("GET", "/tag-recipe/{recipe_id}", 404, time.Millisecond)
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("api_requests_total delta = %v, want 1", got)
	}
}

func TestMetricsLint(t *testing.T) {
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer,
		"recipe_tagger_operations_total",
		"recipe_tagger_rows_inserted_total",
		"recipe_tagger_skipped_total",
		"recipe_tagger_recipes_scanned_total",
	)
	if err != nil {
		t.Fatalf("GatherAndLint: %v", err)
	}
	for _, p := range problems {
		t.Errorf("metric %s: %s", p.Metric, p.Text)
	}
}
