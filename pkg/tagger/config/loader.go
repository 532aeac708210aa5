package config

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/match"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store/memstore"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store/postgres"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store/sqlite"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/taxonomy"
)

// Loader turns a Config into ready-to-use components
type Loader struct {
	Config *Config
	Logger *zap.Logger
}

// Components holds everything a Tagger needs
type Components struct {
	Taxonomy  *taxonomy.Taxonomy
	Store     store.Store
	MatchMode match.Mode
	Logger    *zap.Logger
}

// Load reads the taxonomy and opens the store. The caller owns the
// returned store and must close it.
func (l *Loader) Load(ctx context.Context) (*Components, error) {
	if l.Config == nil {
		return nil, fmt.Errorf("loader: config is nil: %w", internalerr.ErrInvalidConfig)
	}
	log := l.Logger
	if log == nil {
		log = zap.NewNop()
	}

	mode, err := match.ParseMode(l.Config.Match.Mode)
	if err != nil {
		return nil, err
	}

	tax, err := LoadTaxonomy(l.Config.Taxonomy.Path)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}

	st, err := OpenStore(ctx, l.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	log.Info("components loaded",
		zap.String("driver", l.Config.Database.Driver),
		zap.Int("tags", tax.Len()),
		zap.String("match_mode", string(mode)))

	return &Components{Taxonomy: tax, Store: st, MatchMode: mode, Logger: log}, nil
}

// Tagger builds a Tagger over the loaded components
func (c *Components) Tagger(rec tagger.Recorder) (*tagger.Tagger, error) {
	return tagger.New(tagger.Options{
		Store:     c.Store,
		Taxonomy:  c.Taxonomy,
		MatchMode: c.MatchMode,
		Logger:    c.Logger,
		Recorder:  rec,
	})
}

// LoadTaxonomy reads path, or returns the embedded taxonomy when path is
// empty
func LoadTaxonomy(path string) (*taxonomy.Taxonomy, error) {
	if path == "" {
		return taxonomy.Default()
	}
	return taxonomy.Load(path)
}

// OpenStore opens the store selected by cfg.Driver
func OpenStore(ctx context.Context, cfg DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case DriverSQLite:
		st, err := sqlite.OpenSQLite(ctx, cfg.Path, sqlite.Options{
			BatchSize:    cfg.BatchSize,
			MaxOpenConns: cfg.MaxOpenConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverPostgres:
		st, err := postgres.OpenPostgres(ctx, cfg.URL, postgres.Options{
			Schema:           cfg.Schema,
			StatementTimeout: cfg.StatementTimeout,
			MaxOpenConns:     cfg.MaxOpenConns,
			BatchSize:        cfg.BatchSize,
			Migrate:          cfg.Migrate,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverMemory:
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unknown database driver %q: %w", cfg.Driver, internalerr.ErrInvalidConfig)
}
