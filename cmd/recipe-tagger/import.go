package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
)

// maxLineSize bounds a single JSONL record; instructions can be long
const maxLineSize = 4 << 20

type recipeLine struct {
	ID           int64  `json:"recipe_id"`
	Name         string `json:"recipe_name"`
	Instructions string `json:"instructions"`
}

// importRecipes streams JSON Lines from r into w in batches and returns the
// number of rows written
func importRecipes(ctx context.Context, r io.Reader, w store.RecipeWriter, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = store.DefaultBatchSize
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		total int64
		batch = make([]store.Recipe, 0, batchSize)
		line  int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := w.PutRecipes(ctx, batch)
		if err != nil {
			return err
		}
		total += n
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec recipeLine
		if err := json.Unmarshal(raw, &rec); err != nil {
			return total, fmt.Errorf("line %d: %w: %w", line, internalerr.ErrInvalidInput, err)
		}
		if rec.ID <= 0 {
			return total, fmt.Errorf("line %d: recipe_id must be positive: %w", line, internalerr.ErrInvalidInput)
		}
		batch = append(batch, store.Recipe{ID: rec.ID, Name: rec.Name, Instructions: rec.Instructions})
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return total, fmt.Errorf("line %d: %w", line+1, err)
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}
