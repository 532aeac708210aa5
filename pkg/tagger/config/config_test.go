package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/match"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store/memstore"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store/sqlite"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 500, cfg.Database.BatchSize)
	assert.Equal(t, 20*time.Minute, cfg.Database.StatementTimeout)
	assert.Equal(t, string(match.Word), cfg.Match.Mode)
	assert.Equal(t, ":8000", cfg.Server.Addr)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
database:
  driver: memory
  batch_size: 50
match:
  mode: substring
server:
  addr: ":9090"
  read_timeout: 5s
  rate_limit: 60
  cors_origins: ["https://holidaychannel.tv"]
log:
  level: debug
  format: console
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 50, cfg.Database.BatchSize)
	assert.Equal(t, "substring", cfg.Match.Mode)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60, cfg.Server.RateLimit)
	assert.Equal(t, []string{"https://holidaychannel.tv"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 30*time.Minute, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadConfigPathEnv(t *testing.T) {
	path := writeFile(t, "tagger.yaml", "database:\n  driver: memory\n")
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "database:\n  driver: sqlite\n  batch_size: 50\n")
	t.Setenv("TAGGER_DATABASE_DRIVER", "postgres")
	t.Setenv("TAGGER_DATABASE_BATCH_SIZE", "75")
	t.Setenv("TAGGER_DATABASE_MIGRATE", "true")
	t.Setenv("TAGGER_SERVER_WRITE_TIMEOUT", "2m")
	t.Setenv("POSTGRES_URL", "postgres://tagger@localhost/recipes?sslmode=disable")
	t.Setenv("DB_NAME", "holiday")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 75, cfg.Database.BatchSize)
	assert.True(t, cfg.Database.Migrate)
	assert.Equal(t, 2*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, "postgres://tagger@localhost/recipes?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, "holiday", cfg.Database.Schema)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	path := writeFile(t, "config.yaml", "match:\n  mode: fuzzy\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"memory", func(c *Config) { c.Database.Driver = DriverMemory; c.Database.Path = "" }, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, false},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, false},
		{"postgres without url", func(c *Config) { c.Database.Driver = DriverPostgres }, false},
		{"postgres with url", func(c *Config) {
			c.Database.Driver = DriverPostgres
			c.Database.URL = "postgres://localhost/recipes"
		}, true},
		{"negative batch", func(c *Config) { c.Database.BatchSize = -1 }, false},
		{"max batch", func(c *Config) { c.Database.BatchSize = store.MaxBatchSize }, true},
		{"batch over sqlite variable limit", func(c *Config) { c.Database.BatchSize = 20000 }, false},
		{"bad mode", func(c *Config) { c.Match.Mode = "regex" }, false},
		{"empty mode", func(c *Config) { c.Match.Mode = "" }, true},
		{"no addr", func(c *Config) { c.Server.Addr = "" }, false},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }, false},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := map[string]string{
		"POSTGRES_URL":               "database.url",
		"DB_NAME":                    "database.schema",
		"TAGGER_DATABASE_BATCH_SIZE": "database.batch_size",
		"TAGGER_MATCH_MODE":          "match.mode",
		"TAGGER_LOG_LEVEL":           "log.level",
		"TAGGER_SERVER_READ_TIMEOUT": "server.read_timeout",
		"TAGGER_TAXONOMY_PATH":       "taxonomy.path",
		"TAGGER_UNKNOWN_KEY":         "",
		"TAGGER_LOG":                 "",
		"HOME":                       "",
		"DATABASE_URL":               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, envTransformFunc(in), in)
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "RECIPE_TAGGER_DOTENV_TEST"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	path := writeFile(t, ".env", key+"=from-dotenv\n")
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"), path))
	assert.Equal(t, "from-dotenv", os.Getenv(key))

	// existing variables win
	os.Setenv(key, "from-env")
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv(key))
}

func TestLoaderMemory(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = DriverMemory

	comp, err := (&Loader{Config: cfg}).Load(context.Background())
	require.NoError(t, err)
	defer comp.Store.Close()

	assert.IsType(t, &memstore.Store{}, comp.Store)
	assert.Equal(t, match.Word, comp.MatchMode)
	assert.NotZero(t, comp.Taxonomy.Len())

	tg, err := comp.Tagger(nil)
	require.NoError(t, err)
	res, err := tg.Seed(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, comp.Taxonomy.Len(), res.Steps[0].Inserted)
}

func TestLoaderSQLite(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "tagger.db")
	cfg.Match.Mode = "substring"

	comp, err := (&Loader{Config: cfg}).Load(context.Background())
	require.NoError(t, err)
	defer comp.Store.Close()

	assert.IsType(t, &sqlite.Store{}, comp.Store)
	assert.Equal(t, match.Substring, comp.MatchMode)
}

func TestLoaderCustomTaxonomy(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = DriverMemory
	cfg.Taxonomy.Path = writeFile(t, "taxonomy.yaml", "diet:\n  Keto: [keto, low carb]\n")

	comp, err := (&Loader{Config: cfg}).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, comp.Taxonomy.Len())
}

func TestLoaderErrors(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = DriverMemory
	cfg.Taxonomy.Path = "/nonexistent/taxonomy.yaml"
	_, err := (&Loader{Config: cfg}).Load(context.Background())
	assert.Error(t, err, "missing taxonomy file")

	cfg = Default()
	cfg.Database.Driver = "mysql"
	_, err = (&Loader{Config: cfg}).Load(context.Background())
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)

	_, err = (&Loader{}).Load(context.Background())
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}
