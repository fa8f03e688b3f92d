// Package config loads railgrid settings: defaults, then a YAML file, then
// RAILGRID_* environment variables, then command-line flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/matthewbaird/railgrid/internal/railgun"
	"github.com/matthewbaird/railgrid/internal/view"
)

// Config holds every setting of the grid server, the terminal client and
// the development backend.
type Config struct {
	Listen             string        `yaml:"listen"`
	BackendURL         string        `yaml:"backend_url"`
	Schema             string        `yaml:"schema"`
	Entity             string        `yaml:"entity"`
	Filter             string        `yaml:"filter"`
	PageSize           int           `yaml:"page_size"`
	SearchLimit        int           `yaml:"search_limit"`
	FlashDuration      time.Duration `yaml:"flash_duration"`
	RollbackOnFailure  bool          `yaml:"rollback_on_failure"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	SessionMaxAge      time.Duration `yaml:"session_max_age"`
	Token              string        `yaml:"token"`
	Debug              bool          `yaml:"debug"`

	DevBackend DevBackend `yaml:"dev_backend"`
}

// DevBackend configures the local stand-in record service.
type DevBackend struct {
	Listen  string `yaml:"listen"`
	DB      string `yaml:"db"`
	Fixture string `yaml:"fixture"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Listen:             ":8080",
		BackendURL:         railgun.DefaultOrigin,
		PageSize:           view.DefaultPageSize,
		SearchLimit:        10,
		FlashDuration:      time.Second,
		SessionIdleTimeout: 30 * time.Minute,
		SessionMaxAge:      24 * time.Hour,
		DevBackend: DevBackend{
			Listen: ":8888",
			DB:     "file::memory:?cache=shared",
		},
	}
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

type envError struct {
	key string
	err error
}

func (e *envError) Error() string { return fmt.Sprintf("env %s: %v", e.key, e.err) }
func (e *envError) Unwrap() error { return e.err }

// ApplyEnv overlays RAILGRID_* variables onto cfg.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	get := func(k string) (string, bool) {
		v, ok := lookup("RAILGRID_" + k)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
	str := func(k string, dst *string) {
		if v, ok := get(k); ok {
			*dst = v
		}
	}
	var firstErr error
	fail := func(k string, err error) {
		if firstErr == nil {
			firstErr = &envError{key: "RAILGRID_" + k, err: err}
		}
	}
	integer := func(k string, dst *int) {
		if v, ok := get(k); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(k, err)
				return
			}
			*dst = n
		}
	}
	boolean := func(k string, dst *bool) {
		if v, ok := get(k); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				fail(k, err)
				return
			}
			*dst = b
		}
	}
	duration := func(k string, dst *time.Duration) {
		if v, ok := get(k); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				fail(k, err)
				return
			}
			*dst = d
		}
	}

	str("LISTEN", &cfg.Listen)
	str("BACKEND_URL", &cfg.BackendURL)
	str("SCHEMA", &cfg.Schema)
	str("ENTITY", &cfg.Entity)
	str("FILTER", &cfg.Filter)
	integer("PAGE_SIZE", &cfg.PageSize)
	integer("SEARCH_LIMIT", &cfg.SearchLimit)
	duration("FLASH_DURATION", &cfg.FlashDuration)
	boolean("ROLLBACK_ON_FAILURE", &cfg.RollbackOnFailure)
	duration("SESSION_IDLE_TIMEOUT", &cfg.SessionIdleTimeout)
	duration("SESSION_MAX_AGE", &cfg.SessionMaxAge)
	str("TOKEN", &cfg.Token)
	boolean("DEBUG", &cfg.Debug)
	str("DEV_BACKEND_LISTEN", &cfg.DevBackend.Listen)
	str("DEV_BACKEND_DB", &cfg.DevBackend.DB)
	str("DEV_BACKEND_FIXTURE", &cfg.DevBackend.Fixture)
	return firstErr
}

// Load builds the configuration for a binary. Flags registered on fs win
// over the environment, which wins over the file named by -config, which
// wins over the defaults.
func Load(fs *flag.FlagSet, args []string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var (
		flagged = Default()
		path    string
	)
	fs.StringVar(&path, "config", "", "path to YAML config file")
	fs.StringVar(&flagged.Listen, "listen", flagged.Listen, "grid server listen address")
	fs.StringVar(&flagged.BackendURL, "backend", flagged.BackendURL, "record service origin")
	fs.StringVar(&flagged.Schema, "schema", flagged.Schema, "schema code")
	fs.StringVar(&flagged.Entity, "entity", flagged.Entity, "entity type")
	fs.StringVar(&flagged.Filter, "filter", flagged.Filter, `row filter, e.g. 'stage = customer and age > 40'`)
	fs.IntVar(&flagged.PageSize, "page-size", flagged.PageSize, "rows fetched per view")
	fs.IntVar(&flagged.SearchLimit, "search-limit", flagged.SearchLimit, "autocomplete results per entity type")
	fs.DurationVar(&flagged.FlashDuration, "flash", flagged.FlashDuration, "success highlight duration")
	fs.BoolVar(&flagged.RollbackOnFailure, "rollback", flagged.RollbackOnFailure, "revert optimistic values when an update fails")
	fs.DurationVar(&flagged.SessionIdleTimeout, "session-idle", flagged.SessionIdleTimeout, "session idle timeout")
	fs.DurationVar(&flagged.SessionMaxAge, "session-max-age", flagged.SessionMaxAge, "session maximum age")
	fs.StringVar(&flagged.Token, "token", flagged.Token, "bearer token for the record service")
	fs.BoolVar(&flagged.Debug, "debug", flagged.Debug, "debug logging")
	fs.StringVar(&flagged.DevBackend.Listen, "dev-listen", flagged.DevBackend.Listen, "dev backend listen address")
	fs.StringVar(&flagged.DevBackend.DB, "dev-db", flagged.DevBackend.DB, "dev backend sqlite DSN")
	fs.StringVar(&flagged.DevBackend.Fixture, "dev-fixture", flagged.DevBackend.Fixture, "dev backend CUE fixture")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if path == "" {
		path, _ = lookup("RAILGRID_CONFIG")
	}
	if path != "" {
		if err := LoadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = flagged.Listen
		case "backend":
			cfg.BackendURL = flagged.BackendURL
		case "schema":
			cfg.Schema = flagged.Schema
		case "entity":
			cfg.Entity = flagged.Entity
		case "filter":
			cfg.Filter = flagged.Filter
		case "page-size":
			cfg.PageSize = flagged.PageSize
		case "search-limit":
			cfg.SearchLimit = flagged.SearchLimit
		case "flash":
			cfg.FlashDuration = flagged.FlashDuration
		case "rollback":
			cfg.RollbackOnFailure = flagged.RollbackOnFailure
		case "session-idle":
			cfg.SessionIdleTimeout = flagged.SessionIdleTimeout
		case "session-max-age":
			cfg.SessionMaxAge = flagged.SessionMaxAge
		case "token":
			cfg.Token = flagged.Token
		case "debug":
			cfg.Debug = flagged.Debug
		case "dev-listen":
			cfg.DevBackend.Listen = flagged.DevBackend.Listen
		case "dev-db":
			cfg.DevBackend.DB = flagged.DevBackend.DB
		case "dev-fixture":
			cfg.DevBackend.Fixture = flagged.DevBackend.Fixture
		}
	})
	return cfg, nil
}

// View returns the view settings.
func (c Config) View() view.Config {
	return view.Config{
		Schema:      c.Schema,
		Entity:      c.Entity,
		Filter:      c.Filter,
		PageSize:    c.PageSize,
		SearchLimit: c.SearchLimit,
		Flash:       c.FlashDuration,
		Rollback:    c.RollbackOnFailure,
	}
}

// Logger builds the process logger.
func (c Config) Logger() (*zap.Logger, error) {
	if c.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
