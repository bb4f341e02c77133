// Command kingo runs the download engine standalone: it wires config,
// storage, and the download manager, then blocks until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"kingo/internal/config"
	"kingo/internal/constants"
	"kingo/internal/downloader"
	"kingo/internal/logger"
	"kingo/internal/metadata"
	"kingo/internal/storage"
)

// directProvider treats job_id as the source URL itself. It's the engine's
// built-in fallback so the binary is runnable standalone; a wrapping service
// that needs real metadata resolution (titles, multiple qualities, a scraped
// cover image) supplies its own metadata.Provider instead.
type directProvider struct{}

func (directProvider) Resolve(ctx context.Context, jobID string) (metadata.Metadata, error) {
	return metadata.Metadata{
		Title:      jobID,
		StreamURLs: []metadata.StreamURL{{Quality: "source", URL: jobID}},
	}, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "kingo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	appDataDir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	appDataDir = filepath.Join(appDataDir, constants.AppID)
	if err := os.MkdirAll(appDataDir, 0755); err != nil {
		return fmt.Errorf("create app data dir: %w", err)
	}

	if err := logger.Init(appDataDir); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	cfg, err := config.Load(appDataDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Get().DownloadRoot == "" {
		cfg.Update(func(c *config.Config) { c.DownloadRoot = filepath.Join(appDataDir, "downloads") })
	}
	if cfg.Get().DBPath == "" {
		cfg.Update(func(c *config.Config) { c.DBPath = filepath.Join(appDataDir, constants.DBFile) })
	}
	if err := os.MkdirAll(cfg.Get().DownloadRoot, 0755); err != nil {
		return fmt.Errorf("create download root: %w", err)
	}

	db, err := storage.New(cfg.Get().DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	repo := storage.NewJobRepository(db)
	mgr := downloader.NewManager(repo, directProvider{}, cfg)
	defer mgr.Shutdown()

	mgr.RecoverOnStartup()
	logger.Log.Info().Str("download_root", cfg.Get().DownloadRoot).Msg("kingo engine started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Log.Info().Msg("shutting down")
	return nil
}
