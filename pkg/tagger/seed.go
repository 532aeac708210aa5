package tagger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
)

// RegisterTags inserts every (name, type) of the taxonomy that is not yet
// stored. Existing tags are left untouched, so the call is idempotent.
func (t *Tagger) RegisterTags(ctx context.Context) (res Result, err error) {
	res, log := t.start(OpRegisterTags)
	defer func() { t.finish(&res, log, err) }()

	refs := t.tax.Tags()
	res.Considered = len(refs)

	specs := make([]store.TagSpec, 0, len(refs))
	for _, ref := range refs {
		specs = append(specs, store.TagSpec{Name: ref.Name, Type: string(ref.Type)})
	}

	err = t.inTx(ctx, func(tx store.Tx) error {
		n, err := tx.InsertTags(ctx, specs)
		if err != nil {
			return err
		}
		res.Inserted = n
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("register tags: %w", err)
	}
	return res, nil
}

// IndexKeywords registers tags, then stores every taxonomy keyword against
// its tag ID. Keywords whose tag cannot be resolved are skipped and
// reported; they never abort the batch.
func (t *Tagger) IndexKeywords(ctx context.Context) (res Result, err error) {
	reg, err := t.RegisterTags(ctx)

	res, log := t.start(OpIndexKeywords)
	defer func() { t.finish(&res, log, err) }()

	res.Steps = []Result{reg}
	if err != nil {
		return res, fmt.Errorf("index keywords: %w", err)
	}

	refs := t.tax.Keywords()
	res.Considered = len(refs)

	err = t.inTx(ctx, func(tx store.Tx) error {
		lookup, err := tx.TagLookup(ctx)
		if err != nil {
			return err
		}

		kws := make([]store.Keyword, 0, len(refs))
		for _, ref := range refs {
			id, ok := lookup.ID(string(ref.Type), ref.Name)
			if !ok {
				res.Skipped = append(res.Skipped, Skip{
					Reason:  SkipDataInconsistency,
					TagType: string(ref.Type),
					TagName: ref.Name,
					Keyword: ref.Keyword,
				})
				log.Warn("keyword skipped: tag not registered",
					zap.String("tag_type", string(ref.Type)),
					zap.String("tag_name", ref.Name),
					zap.String("keyword", ref.Keyword))
				continue
			}
			kws = append(kws, store.Keyword{TagID: id, Keyword: ref.Keyword})
		}

		n, err := tx.InsertKeywords(ctx, kws)
		if err != nil {
			return err
		}
		res.Inserted = n
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("index keywords: %w", err)
	}
	return res, nil
}

// Seed loads the whole taxonomy into the store. It is the one-shot setup
// step run before tagging.
func (t *Tagger) Seed(ctx context.Context) (Result, error) {
	return t.IndexKeywords(ctx)
}
