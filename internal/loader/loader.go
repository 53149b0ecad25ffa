// Package loader handles configuration file loading, validation, and
// conversion.
//
// LOCATION: internal/loader/loader.go
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Validating the result
//   - Converting between YAML and the internal package configs
package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/gemrate/internal/archive"
	"github.com/xtxerr/gemrate/internal/constants"
	"github.com/xtxerr/gemrate/internal/dataset"
	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/logging"
	"github.com/xtxerr/gemrate/internal/server"
	"github.com/xtxerr/gemrate/internal/source"
	"github.com/xtxerr/gemrate/internal/types"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault loads path, or returns the defaults when path does not
// exist.
func LoadOrDefault(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// Parse parses YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w: %w", errors.ErrInvalidConfig, err)
	}

	return cfg, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if cfg.Listen == "" {
		errs.AddField("listen", "cannot be empty")
	}

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs.AddField("logging.level", err.Error())
	}

	if cfg.Server.ShutdownTimeout.Duration() < 0 {
		errs.AddField("server.shutdown_timeout", "cannot be negative")
	}

	if _, err := cfg.Kinds(); err != nil {
		errs.Add(err)
	}

	if cfg.Refresh.Interval.Duration() <= 0 {
		errs.AddField("refresh.interval", "must be positive")
	}
	if cfg.Refresh.FetchTimeout.Duration() < 0 {
		errs.AddField("refresh.fetch_timeout", "cannot be negative")
	}

	srcCfg := ToSourceConfig(&cfg.Source)
	errs.Add(srcCfg.Validate())

	if cfg.Archive.Enabled {
		if cfg.Archive.Dir == "" {
			errs.AddField("archive.dir", "cannot be empty when enabled")
		}
		if _, err := archive.ParseCompressionType(cfg.Archive.Compression); err != nil {
			errs.AddField("archive.compression", err.Error())
		}
		if cfg.Source.Type == constants.SourceArchive && cfg.Archive.Dir == cfg.Source.Archive.Dir {
			errs.AddField("archive.dir", "cannot archive into the directory the source replays")
		}
	}

	if cfg.Snapshot.Enabled && cfg.Snapshot.Dir == "" {
		errs.AddField("snapshot.dir", "cannot be empty when enabled")
	}

	if cfg.Stream.Enabled {
		if cfg.Stream.PongWait.Duration() <= 0 {
			errs.AddField("stream.pong_wait", "must be positive")
		}
		if cfg.Stream.ConnectLimit < 0 {
			errs.AddField("stream.connect_limit", "cannot be negative")
		}
	}

	if a := cfg.Summary.SketchAccuracy; a < 0 || a >= 1 {
		errs.AddField("summary.sketch_accuracy", "must be in [0, 1)")
	}

	return errs.Err()
}

// Kinds returns the configured dataset kinds in order, without
// duplicates. An empty list means all kinds.
func (c *Config) Kinds() ([]types.Kind, error) {
	if len(c.Datasets) == 0 {
		return types.AllKinds(), nil
	}

	var (
		kinds []types.Kind
		seen  = make(map[types.Kind]bool)
	)
	for _, name := range c.Datasets {
		k, err := types.ParseKind(name)
		if err != nil {
			return nil, errors.NewInvalidValue("datasets", name,
				"must be one of "+strings.Join(kindNames(), ", "))
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

func kindNames() []string {
	var names []string
	for _, k := range types.AllKinds() {
		names = append(names, k.String())
	}
	return names
}

// =============================================================================
// Conversion
// =============================================================================

// ToSourceConfig converts the source section to the source package config.
func ToSourceConfig(cfg *SourceConfig) source.Config {
	return source.Config{
		Type: cfg.Type,
		SQL: source.SQLConfig{
			Driver:          cfg.SQL.Driver,
			DSN:             cfg.SQL.DSN,
			Tables:          cfg.SQL.Tables,
			TimeColumn:      cfg.SQL.TimeColumn,
			RateColumn:      cfg.SQL.RateColumn,
			MaxOpenConns:    cfg.SQL.MaxOpenConns,
			ConnMaxLifetime: cfg.SQL.ConnMaxLifetime.Duration(),
		},
		Redis: source.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		},
		Archive: source.ArchiveConfig{
			Dir: cfg.Archive.Dir,
		},
		Static: source.StaticConfig{
			Ticks: cfg.Static.Ticks,
		},
	}
}

// OpenSource opens the configured source.
func OpenSource(ctx context.Context, cfg *Config) (source.Source, error) {
	return source.New(ctx, ToSourceConfig(&cfg.Source))
}

// ToRegistryConfig converts the refresh, dataset and summary sections.
// Archiver and snapshot store are wired by the caller.
func ToRegistryConfig(cfg *Config) (dataset.RegistryConfig, error) {
	kinds, err := cfg.Kinds()
	if err != nil {
		return dataset.RegistryConfig{}, err
	}

	return dataset.RegistryConfig{
		Kinds:           kinds,
		RefreshInterval: cfg.Refresh.Interval.Duration(),
		EagerRefresh:    cfg.Refresh.Eager,
		Dataset: dataset.Options{
			FetchTimeout:   cfg.Refresh.FetchTimeout.Duration(),
			SketchAccuracy: cfg.Summary.SketchAccuracy,
		},
	}, nil
}

// ToArchiveOptions converts the archive section.
func ToArchiveOptions(cfg *ArchiveConfig) (archive.Options, error) {
	ct, err := archive.ParseCompressionType(cfg.Compression)
	if err != nil {
		return archive.Options{}, err
	}
	return archive.Options{Compression: ct}, nil
}

// ToServerConfig converts the listen, server and stream sections. The
// registry is wired by the caller.
func ToServerConfig(cfg *Config) server.Config {
	return server.Config{
		Listen:             cfg.Listen,
		ReadTimeout:        cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:       cfg.Server.WriteTimeout.Duration(),
		ShutdownTimeout:    cfg.Server.ShutdownTimeout.Duration(),
		StreamEnabled:      cfg.Stream.Enabled,
		StreamWriteWait:    cfg.Stream.WriteWait.Duration(),
		StreamPongWait:     cfg.Stream.PongWait.Duration(),
		StreamConnectLimit: cfg.Stream.ConnectLimit,
	}
}
