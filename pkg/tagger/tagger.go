// Package tagger assigns categorical tags (holiday, cuisine, diet, region,
// course) to recipes by matching a keyword taxonomy against recipe text.
//
// The pipeline is RegisterTags → IndexKeywords → TagAll / TagOne. Every
// operation runs in a single store transaction and returns a Result.
package tagger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/match"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/taxonomy"
)

// Recorder receives every finished operation. internal/metrics implements
// it for Prometheus.
type Recorder interface {
	Record(res Result, err error)
}

// Tagger is the tagging engine facade
type Tagger struct {
	store    store.Store
	tax      *taxonomy.Taxonomy
	mode     match.Mode
	log      *zap.Logger
	recorder Recorder
	ids      *runIDs
	now      func() time.Time
}

// Options configures a Tagger instance
type Options struct {
	Store store.Store
	// Taxonomy defaults to taxonomy.Default()
	Taxonomy  *taxonomy.Taxonomy
	MatchMode match.Mode
	Logger    *zap.Logger
	Recorder  Recorder
}

// New creates a Tagger with the given dependencies
func New(opts Options) (*Tagger, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("tagger: store is required: %w", internalerr.ErrInvalidConfig)
	}
	mode, err := match.ParseMode(string(opts.MatchMode))
	if err != nil {
		return nil, err
	}
	tax := opts.Taxonomy
	if tax == nil {
		if tax, err = taxonomy.Default(); err != nil {
			return nil, err
		}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Tagger{
		store:    opts.Store,
		tax:      tax,
		mode:     mode,
		log:      log,
		recorder: opts.Recorder,
		ids:      newRunIDs(),
		now:      time.Now,
	}, nil
}

// Close closes the underlying store
func (t *Tagger) Close() error {
	return t.store.Close()
}

// Taxonomy returns the taxonomy the tagger seeds from
func (t *Tagger) Taxonomy() *taxonomy.Taxonomy { return t.tax }

// MatchMode returns the boundary mode used by TagAll and TagOne
func (t *Tagger) MatchMode() match.Mode { return t.mode }

// start opens a Result and a logger carrying its run ID
func (t *Tagger) start(op string) (Result, *zap.Logger) {
	now := t.now()
	res := Result{RunID: t.ids.next(now), Op: op, Started: now}
	log := t.log.With(zap.String("run_id", res.RunID), zap.String("op", op))
	log.Info("operation started")
	return res, log
}

// finish stamps the duration, logs the outcome and hands it to the recorder
func (t *Tagger) finish(res *Result, log *zap.Logger, err error) {
	res.Duration = t.now().Sub(res.Started)

	fields := []zap.Field{
		zap.Int("considered", res.Considered),
		zap.Int64("inserted", res.Inserted),
		zap.Int("skipped", len(res.Skipped)),
		zap.Duration("duration", res.Duration),
	}
	if res.Op == OpTagAll || res.Op == OpTagOne {
		fields = append(fields, zap.Int("scanned", res.Scanned), zap.Int("matched", res.Matched))
	}

	switch {
	case err == nil:
		log.Info("operation finished", fields...)
	case errors.Is(err, internalerr.ErrNotFound):
		log.Warn("operation finished without work", append(fields, zap.Error(err))...)
	default:
		log.Error("operation failed", append(fields, zap.Error(err))...)
	}

	if t.recorder != nil {
		t.recorder.Record(*res, err)
	}
}

// inTx runs fn inside one transaction. Any error rolls back everything fn
// did; Commit is only reached on success.
func (t *Tagger) inTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := t.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
