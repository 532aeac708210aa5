package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/match"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/store"
)

// Database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DefaultConfigPaths are searched in order when no path is given
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// ConfigPathEnvVar overrides the config file path
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the full service configuration
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Taxonomy TaxonomyConfig `koanf:"taxonomy"`
	Match    MatchConfig    `koanf:"match"`
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
}

// DatabaseConfig selects and tunes the store
type DatabaseConfig struct {
	Driver           string        `koanf:"driver"`
	Path             string        `koanf:"path"`   // sqlite file
	URL              string        `koanf:"url"`    // postgres connection string
	Schema           string        `koanf:"schema"` // postgres search_path
	StatementTimeout time.Duration `koanf:"statement_timeout"`
	MaxOpenConns     int           `koanf:"max_open_conns"`
	BatchSize        int           `koanf:"batch_size"`
	Migrate          bool          `koanf:"migrate"`
}

// TaxonomyConfig points at an alternative taxonomy file. Empty uses the
// embedded one.
type TaxonomyConfig struct {
	Path string `koanf:"path"`
}

// MatchConfig controls keyword matching
type MatchConfig struct {
	Mode string `koanf:"mode"`
}

// ServerConfig controls the HTTP service
type ServerConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	RateLimit    int           `koanf:"rate_limit"` // requests per minute per IP, 0 disables
	CORSOrigins  []string      `koanf:"cors_origins"`
}

// LogConfig controls logging
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           DriverSQLite,
			Path:             "recipe-tagger.db",
			StatementTimeout: 20 * time.Minute,
			BatchSize:        500,
		},
		Match: MatchConfig{
			Mode: string(match.Word),
		},
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Minute, // tag-all-recipes runs inside the request
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are ignored and variables that are already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds the configuration from defaults, then the YAML file at path
// (or the first of DefaultConfigPaths when path is empty), then environment
// variables. A .env file in the working directory is read first.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w: %w", internalerr.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		return envPath
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings are the legacy deployment variable names
var envMappings = map[string]string{
	"postgres_url": "database.url",
	"db_name":      "database.schema",
}

var envSections = map[string]bool{
	"database": true,
	"taxonomy": true,
	"match":    true,
	"server":   true,
	"log":      true,
}

// envTransformFunc maps environment variables to config keys:
//
//	POSTGRES_URL              -> database.url
//	DB_NAME                   -> database.schema
//	TAGGER_DATABASE_BATCH_SIZE -> database.batch_size
//
// Anything else is ignored.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	rest, ok := strings.CutPrefix(key, "tagger_")
	if !ok {
		return ""
	}
	section, field, ok := strings.Cut(rest, "_")
	if !ok || !envSections[section] || field == "" {
		return ""
	}
	return section + "." + field
}

// Validate checks the configuration for contradictions
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url (POSTGRES_URL) is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite, postgres or memory", c.Database.Driver))
	}
	if c.Database.BatchSize < 0 || c.Database.BatchSize > store.MaxBatchSize {
		errs = append(errs, fmt.Errorf("database.batch_size must be between 0 and %d", store.MaxBatchSize))
	}
	if c.Database.MaxOpenConns < 0 {
		errs = append(errs, errors.New("database.max_open_conns must not be negative"))
	}

	if _, err := match.ParseMode(c.Match.Mode); err != nil {
		errs = append(errs, fmt.Errorf("match.mode %q must be word or substring", c.Match.Mode))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must not be negative"))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", internalerr.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
