package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:     "download",
	Aliases: []string{"run"},
	Short:   "Scan the listing page and download every extracted item",
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
		fmt.Printf("%d items extracted, starting downloads\n", len(items))

		summary, err := eng.StartDownload(ctx)
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		if summary.Canceled {
			fmt.Printf("canceled: %d downloaded, %d failed\n", summary.Succeeded, summary.Failed)
			return nil
		}
		fmt.Printf("done: %d downloaded, %d failed\n", summary.Succeeded, summary.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
}
