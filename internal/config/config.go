// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads extmgr configuration from defaults, an optional YAML
// file and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"os"
	"slices"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/extmgr/internal/catalog"
	"github.com/holomush/extmgr/internal/extension"
	"github.com/holomush/extmgr/internal/routing"
	"github.com/holomush/extmgr/internal/store"
	"github.com/holomush/extmgr/internal/xdg"
)

// Store and lock drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverLocal    = "local"
)

// CodeInvalidConfig marks configuration errors.
const CodeInvalidConfig = "CONFIG_INVALID"

// Config is the full extmgr configuration.
type Config struct {
	Paths   Paths   `koanf:"paths"`
	Catalog Catalog `koanf:"catalog"`
	GitHub  GitHub  `koanf:"github"`
	Routing Routing `koanf:"routing"`
	Store   Store   `koanf:"store"`
	Locks   Locks   `koanf:"locks"`
	Server  Server  `koanf:"server"`
	Log     Log     `koanf:"log"`
}

// Paths locates the extension tree and the archive cache.
type Paths struct {
	Root string `koanf:"root"`
	Data string `koanf:"data"`
}

// Catalog lists manifests and bounds outbound requests.
type Catalog struct {
	Manifests      []string      `koanf:"manifests"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	ArchiveTimeout time.Duration `koanf:"archive_timeout"`
	Retries        int           `koanf:"retries"`
}

// GitHub configures repository resolution.
type GitHub struct {
	Token      string   `koanf:"token"`
	TokenHosts []string `koanf:"token_hosts"`
	APIURL     string   `koanf:"api_url"`
	RawURL     string   `koanf:"raw_url"`
}

// Routing holds the fixed routing lists.
type Routing struct {
	Disabled    []string `koanf:"disabled"`
	AdminOnly   []string `koanf:"admin_only"`
	Deactivated []string `koanf:"deactivated"`
	Upgraded    []string `koanf:"upgraded"`
}

// Store selects the install record backend.
type Store struct {
	Driver      string `koanf:"driver"`
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`
	RedisKey    string `koanf:"redis_key"`
}

// Locks selects the per-extension lock backend.
type Locks struct {
	Driver   string        `koanf:"driver"`
	RedisURL string        `koanf:"redis_url"`
	TTL      time.Duration `koanf:"ttl"`
}

// Server configures the HTTP listeners.
type Server struct {
	Listen      string `koanf:"listen"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// Log configures logging output.
type Log struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"root":            "paths.root",
	"data-dir":        "paths.data",
	"manifest":        "catalog.manifests",
	"request-timeout": "catalog.request_timeout",
	"archive-timeout": "catalog.archive_timeout",
	"retries":         "catalog.retries",
	"github-token":    "github.token",
	"github-api-url":  "github.api_url",
	"github-raw-url":  "github.raw_url",
	"store":           "store.driver",
	"database-url":    "store.database_url",
	"redis-url":       "store.redis_url",
	"lock":            "locks.driver",
	"listen":          "server.listen",
	"metrics-addr":    "server.metrics_addr",
	"log-format":      "log.format",
	"log-level":       "log.level",
}

// RegisterFlags adds the configuration flags to fs with their defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("root", xdg.StateDir(), "extension tree root (extensions/ and upgrades/)")
	fs.String("data-dir", xdg.DataDir(), "directory for cached release archives")
	fs.StringSlice("manifest", nil, "catalog manifest URL (repeatable, order matters)")
	fs.Duration("request-timeout", catalog.DefaultRequestTimeout, "timeout for catalog and metadata requests")
	fs.Duration("archive-timeout", catalog.DefaultArchiveTimeout, "timeout for archive downloads")
	fs.Int("retries", catalog.DefaultRetries, "retries for transient fetch failures")
	fs.String("github-token", "", "bearer token for GitHub requests")
	fs.String("github-api-url", catalog.DefaultGitHubAPI, "GitHub API base URL")
	fs.String("github-raw-url", catalog.DefaultGitHubRaw, "GitHub raw content base URL")
	fs.String("store", DriverMemory, "install record store (memory, postgres, redis)")
	fs.String("database-url", "", "PostgreSQL URL for the postgres store")
	fs.String("redis-url", "", "Redis URL for the redis store and locks")
	fs.String("lock", DriverLocal, "per-extension lock (local, redis)")
	fs.String("listen", "127.0.0.1:8080", "HTTP listen address")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

// defaults holds keys that have no flag.
var defaults = map[string]any{
	"github.token_hosts": []string{"api.github.com", "raw.githubusercontent.com"},
	"store.redis_key":    store.DefaultRedisKey,
	"locks.ttl":          "30s",
}

// Load reads path (when it exists) and then fs. A missing file at the
// default location is not an error; an explicitly named file must exist.
func Load(path string, explicit bool, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil || explicit {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, oops.Code(CodeInvalidConfig).With("path", path).Wrapf(err, "load config file")
			}
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeInvalidConfig).Wrapf(err, "load flags")
		}
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, val); err != nil {
				return nil, oops.Code(CodeInvalidConfig).With("key", key).Wrap(err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeInvalidConfig).Wrapf(err, "decode config")
	}
	if cfg.Store.RedisURL != "" && cfg.Locks.RedisURL == "" {
		cfg.Locks.RedisURL = cfg.Store.RedisURL
	}
	return &cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []error
	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}
	if c.Paths.Data == "" {
		errs = append(errs, errors.New("paths.data is required"))
	}
	if c.Catalog.Retries < 0 {
		errs = append(errs, errors.New("catalog.retries must be non-negative"))
	}
	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		errs = append(errs, oops.Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.database_url is required for the postgres store"))
		}
	case DriverRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redis_url is required for the redis store"))
		}
	default:
		errs = append(errs, oops.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	switch c.Locks.Driver {
	case DriverLocal:
	case DriverRedis:
		if c.Locks.RedisURL == "" {
			errs = append(errs, errors.New("locks.redis_url is required for redis locks"))
		}
	default:
		errs = append(errs, oops.Errorf("unknown locks.driver %q", c.Locks.Driver))
	}
	if err := errors.Join(errs...); err != nil {
		return oops.Code(CodeInvalidConfig).Wrap(err)
	}
	return nil
}

// Layout returns the on-disk extension layout.
func (c *Config) Layout() extension.Layout {
	return extension.Layout{Root: c.Paths.Root, DataDir: c.Paths.Data}
}

// Lists returns the startup routing lists.
func (c *Config) Lists() routing.Lists {
	return routing.Lists{
		Disabled:    c.Routing.Disabled,
		AdminOnly:   c.Routing.AdminOnly,
		Deactivated: c.Routing.Deactivated,
		Upgraded:    c.Routing.Upgraded,
	}
}
