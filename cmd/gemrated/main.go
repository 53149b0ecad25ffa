// gemrated serves gem exchange rate charts with moving averages.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtxerr/gemrate/internal/archive"
	"github.com/xtxerr/gemrate/internal/dataset"
	"github.com/xtxerr/gemrate/internal/loader"
	"github.com/xtxerr/gemrate/internal/logging"
	"github.com/xtxerr/gemrate/internal/server"
	"github.com/xtxerr/gemrate/internal/snapshot"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gemrated: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	logJSON := flag.Bool("log-json", false, "log as JSON")
	flag.Parse()

	// Load config
	cfg, found, err := loader.LoadOrDefault(*cfgPath)
	if err != nil {
		return err
	}

	// CLI overrides
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logJSON {
		cfg.Logging.JSON = true
	}

	if err := loader.Validate(cfg); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logging.Init(level, cfg.Logging.JSON)

	logging.Info("gemrated starting", "version", Version)
	if !found {
		logging.Info("no config file found, using defaults", "path", *cfgPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// Tick Source
	// =========================================================================

	src, err := loader.OpenSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logging.Warn("close source", "error", err)
		}
	}()
	logging.Info("tick source ready", "source", src.Name())

	// =========================================================================
	// Datasets (archive + snapshots are optional)
	// =========================================================================

	regCfg, err := loader.ToRegistryConfig(cfg)
	if err != nil {
		return err
	}

	if cfg.Archive.Enabled {
		opts, err := loader.ToArchiveOptions(&cfg.Archive)
		if err != nil {
			return err
		}
		w, err := archive.NewWriter(cfg.Archive.Dir, opts)
		if err != nil {
			return fmt.Errorf("create archive: %w", err)
		}
		defer func() {
			st := w.Stats()
			logging.Info("archive closed", "files", st.FilesWritten, "rows", st.RowsWritten)
			w.Close()
		}()
		regCfg.Dataset.Archiver = w
		logging.Info("archive enabled", "dir", cfg.Archive.Dir, "compression", cfg.Archive.Compression)
	}

	if cfg.Snapshot.Enabled {
		store, err := snapshot.NewStore(cfg.Snapshot.Dir)
		if err != nil {
			return fmt.Errorf("create snapshot store: %w", err)
		}
		regCfg.Snapshots = store
		logging.Info("snapshots enabled", "dir", cfg.Snapshot.Dir)
	}

	reg, err := dataset.NewRegistry(src, regCfg)
	if err != nil {
		return err
	}
	if err := reg.Start(ctx); err != nil {
		return fmt.Errorf("start registry: %w", err)
	}

	// =========================================================================
	// Create and Start Server
	// =========================================================================

	srvCfg := loader.ToServerConfig(cfg)
	srvCfg.Registry = reg
	srv, err := server.New(srvCfg)
	if err != nil {
		reg.Stop()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("shutting down")
	case runErr = <-errCh:
		logging.Error("server stopped", "error", runErr)
	}

	// Stop server first (stop accepting reads), then save state.
	if err := srv.Shutdown(context.Background()); err != nil && runErr == nil {
		logging.Warn("server shutdown", "error", err)
	}
	if err := reg.Stop(); err != nil {
		logging.Warn("save snapshots", "error", err)
	}

	return runErr
}
