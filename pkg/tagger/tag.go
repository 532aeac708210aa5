package tagger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/match"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
)

// TagAll matches every recipe against the stored keyword index and records
// each applicable (recipe, tag) pair. Existing mappings are never removed.
func (t *Tagger) TagAll(ctx context.Context) (res Result, err error) {
	res, log := t.start(OpTagAll)
	defer func() { t.finish(&res, log, err) }()

	err = t.inTx(ctx, func(tx store.Tx) error {
		ix, err := t.compile(ctx, tx, log)
		if err != nil || ix == nil {
			return err
		}

		// The cursor must be closed before writing on the same transaction,
		// so pairs are collected first.
		var pairs []store.Mapping
		err = tx.EachRecipe(ctx, func(r store.Recipe) error {
			res.Scanned++
			tagIDs := ix.Match(match.Haystack(r.Name, r.Instructions))
			if len(tagIDs) == 0 {
				return nil
			}
			res.Matched++
			for _, id := range tagIDs {
				pairs = append(pairs, store.Mapping{RecipeID: r.ID, TagID: id})
			}
			return nil
		})
		if err != nil {
			return err
		}
		res.Considered = len(pairs)

		n, err := tx.InsertMappings(ctx, pairs)
		if err != nil {
			return err
		}
		res.Inserted = n
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("tag all: %w", err)
	}
	return res, nil
}

// TagOne matches a single recipe. A missing recipe writes nothing and
// returns an error wrapping internalerr.ErrNotFound alongside a Result that
// records the skip.
func (t *Tagger) TagOne(ctx context.Context, recipeID int64) (res Result, err error) {
	res, log := t.start(OpTagOne)
	log = log.With(zap.Int64("recipe_id", recipeID))
	defer func() { t.finish(&res, log, err) }()

	var missing error
	err = t.inTx(ctx, func(tx store.Tx) error {
		r, err := tx.Recipe(ctx, recipeID)
		if errors.Is(err, internalerr.ErrNotFound) {
			missing = err
			res.Skipped = append(res.Skipped, Skip{Reason: SkipNotFound, RecipeID: recipeID})
			return nil
		}
		if err != nil {
			return err
		}
		res.Scanned = 1

		ix, err := t.compile(ctx, tx, log)
		if err != nil || ix == nil {
			return err
		}

		seen := make(map[int64]bool)
		var pairs []store.Mapping
		for _, hit := range ix.Hits(match.Haystack(r.Name, r.Instructions)) {
			for _, id := range hit.Tags {
				if seen[id] {
					continue
				}
				seen[id] = true
				pairs = append(pairs, store.Mapping{RecipeID: recipeID, TagID: id})
				res.Evidence = append(res.Evidence, Evidence{TagID: id, Keyword: hit.Keyword})
			}
		}
		if len(pairs) > 0 {
			res.Matched = 1
		}
		res.Considered = len(pairs)

		n, err := tx.InsertMappings(ctx, pairs)
		if err != nil {
			return err
		}
		res.Inserted = n
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("tag one: %w", err)
	}
	if missing != nil {
		return res, fmt.Errorf("tag one: %w", missing)
	}
	return res, nil
}

// RecipeTags returns the tags currently mapped to a recipe
func (t *Tagger) RecipeTags(ctx context.Context, recipeID int64) ([]store.Tag, error) {
	var tags []store.Tag
	err := t.inTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Recipe(ctx, recipeID); err != nil {
			return err
		}
		var err error
		tags, err = tx.RecipeTags(ctx, recipeID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recipe tags: %w", err)
	}
	return tags, nil
}

// compile loads the keyword index and builds the automaton. A nil index
// with a nil error means there is nothing to match against.
func (t *Tagger) compile(ctx context.Context, tx store.Tx, log *zap.Logger) (*match.Index, error) {
	keywords, err := tx.KeywordIndex(ctx)
	if err != nil {
		return nil, err
	}
	if len(keywords) == 0 {
		log.Warn("keyword index is empty; run seed first")
		return nil, nil
	}
	ix := match.Compile(keywords, t.mode)
	log.Debug("keyword automaton compiled",
		zap.Int("keywords", ix.Keywords()),
		zap.Int("tags", ix.Tags()),
		zap.String("mode", string(ix.Mode())))
	return ix, nil
}
