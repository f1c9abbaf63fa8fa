package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tunegrab/tunegrab/internal/bridge"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last persisted run state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.State.Path == "" {
			fmt.Println("state persistence disabled")
			return nil
		}

		store, err := bridge.OpenStateStore(cfg.State.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		state, err := store.Load()
		if errors.Is(err, bridge.ErrNoState) {
			fmt.Println("no recorded runs")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("status:    %s\n", state.Status)
		fmt.Printf("progress:  %d/%d\n", state.Current, state.Total)
		fmt.Printf("succeeded: %d\n", state.Succeeded)
		if state.Paused {
			fmt.Println("paused:    yes")
		}
		fmt.Printf("updated:   %s\n", state.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
