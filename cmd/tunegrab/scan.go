package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tunegrab/tunegrab/internal/bridge"
	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/deliver"
	"github.com/tunegrab/tunegrab/internal/engine"
	"github.com/tunegrab/tunegrab/internal/page"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the listing page and list extracted items",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, store, err := buildEngine(cfg, logger)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}
		go func() { _ = eng.Run(ctx) }()
		go func() {
			<-ctx.Done()
			eng.Cancel()
		}()

		items, err := eng.StartScan(ctx)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}

		fmt.Printf("%d items extracted\n", len(items))
		for _, item := range items {
			fmt.Printf("  %-16s %-40s %s\n", item.ID, item.Title, item.CanonicalURL)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

// buildEngine assembles the production engine from config: HTTP view,
// filesystem downloader, and the sqlite state store.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, *bridge.StateStore, error) {
	var store *bridge.StateStore
	if cfg.State.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.State.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create state dir: %w", err)
		}
		var err error
		store, err = bridge.OpenStateStore(cfg.State.Path)
		if err != nil {
			return nil, nil, err
		}
	}

	base, err := downloadBase()
	if err != nil {
		return nil, nil, err
	}
	view := page.NewHTTPView(logger)
	client := deliver.NewNativeDownloader(base, logger)
	return engine.New(cfg, view, client, store, logger), store, nil
}

// downloadBase anchors the namer's structured paths: root segments like
// Desktop or Music resolve relative to the user's home directory.
func downloadBase() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return home, nil
}
