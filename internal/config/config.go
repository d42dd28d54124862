// Package config centralizes all application configuration into typed structs.
//
// Go Learning Note — Configuration Management:
// Settings are resolved in three layers: NewDefaultConfig() provides every
// default, an optional YAML file (gopkg.in/yaml.v3) overrides what it names,
// and a few GEOINDEX_* environment variables override the file, which is what
// container deployments usually set. Validate runs last so a bad value in any
// layer fails at startup instead of on the first request.
//
// Using typed structs (not raw strings/maps) gives you compile-time safety
// and IDE autocompletion. This is strongly preferred in Go over untyped config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"geoindex/internal/geo"
	"geoindex/internal/logging"
)

// Store backend names.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"
)

// Config is the top-level configuration container. Grouping related settings
// into sub-structs keeps the config organized as the application grows.
//
// Go Learning Note — Struct Composition:
// Go doesn't have classes or inheritance. Instead, you compose structs by
// embedding or nesting them. Here Config "has a" ServerConfig, GeoConfig,
// etc. This is composition over inheritance, a core Go design principle.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Geo     GeoConfig     `yaml:"geo"`
	Search  SearchConfig  `yaml:"search"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Go Learning Note — time.Duration:
// Go uses time.Duration (an int64 of nanoseconds) instead of raw integers for
// timeouts and intervals. yaml.v3 parses duration strings such as "10s" or
// "1m30s" straight into these fields.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig protects the HTTP API with a shared secret. Disabled only takes
// effect when Secret is empty.
type AuthConfig struct {
	Secret   string `yaml:"secret"`
	Disabled bool   `yaml:"disabled"`
}

// GeoConfig controls how documents are indexed and how searches are planned.
// IndexPrecision 10 ≈ 1.2 m cells; every document of a collection is keyed at
// the same precision, which can be overridden per collection.
type GeoConfig struct {
	IndexPrecision      int                `yaml:"index_precision"`
	CollectionPrecision map[string]int     `yaml:"collection_precision"`
	LocationField       string             `yaml:"location_field"`
	IndexField          string             `yaml:"index_field"`
	PrecisionTable      geo.PrecisionTable `yaml:"precision_table"`
	MaxRanges           int                `yaml:"max_ranges"`
	Strategy            geo.Strategy       `yaml:"strategy"`
}

// PrecisionFor returns the index precision of a collection.
func (g GeoConfig) PrecisionFor(collection string) int {
	if p, ok := g.CollectionPrecision[collection]; ok {
		return p
	}
	return g.IndexPrecision
}

// SearchConfig bounds radius searches. QueriesPerSecond 0 disables the store
// rate limit.
type SearchConfig struct {
	MaxRadiusMeters   float64       `yaml:"max_radius_meters"`
	Concurrency       int           `yaml:"concurrency"`
	QueriesPerSecond  float64       `yaml:"queries_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
	DefaultCollection string        `yaml:"default_collection"`
}

// StoreConfig selects and configures the document store backend. DSN is the
// file path for sqlite and the connection URL for postgres; Table, IndexName,
// Region and Endpoint apply to dynamodb.
type StoreConfig struct {
	Type      string `yaml:"type"`
	DSN       string `yaml:"dsn"`
	Table     string `yaml:"table"`
	IndexName string `yaml:"index_name"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewDefaultConfig returns a Config populated with sensible defaults.
//
// Go Learning Note — Constructor Functions:
// Go has no constructors. By convention, New<Type>() functions serve the same
// purpose. They return a pointer (*Config) so the caller gets a reference to
// shared, mutable state that Load can decode the YAML file into.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Geo: GeoConfig{
			IndexPrecision: 10,
			LocationField:  "position",
			IndexField:     "geohash",
			PrecisionTable: geo.DefaultPrecisionTable(),
			MaxRanges:      64,
			Strategy:       geo.StrategyGrid,
		},
		Search: SearchConfig{
			MaxRadiusMeters:   1000000,
			Concurrency:       5,
			Burst:             5,
			Timeout:           10 * time.Second,
			DefaultCollection: "event",
		},
		Store: StoreConfig{
			Type:  StoreMemory,
			Table: "geoindex-documents",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("GEOINDEX_SECRET"); ok {
		c.Auth.Secret = v
	}
	if v, ok := os.LookupEnv("GEOINDEX_PORT"); ok {
		if _, err := strconv.Atoi(v); err == nil {
			v = ":" + v
		}
		c.Server.Port = v
	}
	if v, ok := os.LookupEnv("GEOINDEX_STORE_TYPE"); ok {
		c.Store.Type = v
	}
	if v, ok := os.LookupEnv("GEOINDEX_STORE_DSN"); ok {
		c.Store.DSN = v
	}
	if v, ok := os.LookupEnv("GEOINDEX_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := os.LookupEnv("GEOINDEX_INDEX_PRECISION"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GEOINDEX_INDEX_PRECISION: %w", err)
		}
		c.Geo.IndexPrecision = p
	}
	return nil
}

// Validate checks every section and normalizes the precision table in place.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is empty"))
	}
	if c.Auth.Secret == "" && !c.Auth.Disabled {
		errs = append(errs, errors.New("auth.secret is empty; set GEOINDEX_SECRET or auth.disabled for local use"))
	}

	if err := geo.ValidatePrecision(c.Geo.IndexPrecision); err != nil {
		errs = append(errs, fmt.Errorf("geo.index_precision: %w", err))
	}
	for coll, p := range c.Geo.CollectionPrecision {
		if err := geo.ValidatePrecision(p); err != nil {
			errs = append(errs, fmt.Errorf("geo.collection_precision[%s]: %w", coll, err))
		}
	}
	if c.Geo.LocationField == "" || c.Geo.IndexField == "" {
		errs = append(errs, errors.New("geo.location_field and geo.index_field are required"))
	} else if c.Geo.LocationField == c.Geo.IndexField {
		errs = append(errs, errors.New("geo.location_field and geo.index_field must differ"))
	}
	if table, err := c.Geo.PrecisionTable.Normalize(); err != nil {
		errs = append(errs, fmt.Errorf("geo.precision_table: %w", err))
	} else {
		c.Geo.PrecisionTable = table
	}
	if c.Geo.MaxRanges < 1 {
		errs = append(errs, errors.New("geo.max_ranges must be at least 1"))
	}
	switch c.Geo.Strategy {
	case geo.StrategyGrid, geo.StrategyExpand:
	default:
		errs = append(errs, fmt.Errorf("geo.strategy %q is not grid or expand", c.Geo.Strategy))
	}

	if c.Search.MaxRadiusMeters <= 0 {
		errs = append(errs, errors.New("search.max_radius_meters must be positive"))
	}
	if c.Search.Concurrency < 1 {
		errs = append(errs, errors.New("search.concurrency must be at least 1"))
	}
	if c.Search.QueriesPerSecond < 0 {
		errs = append(errs, errors.New("search.queries_per_second must not be negative"))
	}
	if c.Search.DefaultCollection == "" {
		errs = append(errs, errors.New("search.default_collection is empty"))
	}

	c.Store.Type = strings.ToLower(strings.TrimSpace(c.Store.Type))
	switch c.Store.Type {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for %s", c.Store.Type))
		}
	case StoreDynamoDB:
		if c.Store.Table == "" {
			errs = append(errs, errors.New("store.table is required for dynamodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.type %q is not one of memory, sqlite, postgres, dynamodb", c.Store.Type))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not text or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}
