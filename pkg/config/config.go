// Package config loads the geotree YAML configuration. A missing file is
// not an error: every field has a default.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/geotree/pkg/geo"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the whole geotree configuration.
type Config struct {
	Store StoreConfig `yaml:"store"`
	// SourcesDB holds import source URLs and run history (SQLite).
	SourcesDB string `yaml:"sources_db"`
	WorkDir   string `yaml:"work_dir"`
	Addr      string `yaml:"addr"`

	Normalize string   `yaml:"normalize"`
	Suffixes  []string `yaml:"suffixes"`

	Languages    []string `yaml:"languages"`
	SkipHistoric bool     `yaml:"skip_historic"`
	Encoding     string   `yaml:"encoding"`

	Timeout       time.Duration `yaml:"timeout"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// StoreConfig selects the tree backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string `yaml:"dsn"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Store:         StoreConfig{Driver: DriverSQLite, DSN: "data/geotree.db"},
		SourcesDB:     "data/sources.db",
		WorkDir:       "data/work",
		Addr:          ":8421",
		Normalize:     "lowercase_ascii",
		Suffixes:      append([]string(nil), geo.DefaultGenericSuffixes...),
		SkipHistoric:  true,
		Timeout:       2 * time.Hour,
		CheckInterval: 24 * time.Hour,
	}
}

// Load reads path over the defaults. found is false when the file does not
// exist.
func Load(path string) (cfg Config, found bool, err error) {
	cfg = Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, false, nil
		}
		return cfg, false, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, true, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, true, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, true, nil
}

// Validate checks the values a run cannot start without.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Normalize {
	case "lowercase_ascii", "lowercase_utf8":
	default:
		return fmt.Errorf("unknown normalize mode %q", c.Normalize)
	}
	if c.Timeout < 0 || c.CheckInterval < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}
