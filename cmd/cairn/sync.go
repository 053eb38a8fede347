package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cairnlabs/cairn/pkg/overlay"
	"github.com/cairnlabs/cairn/pkg/watcher"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy the current project tree into the stable overlay",
	Long: `Walk the project root once and write every file into the stable
overlay. 'cairn up' does this automatically on start; sync refreshes
stable without running the service.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, os.Stderr)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.AgentFSDir(), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %v", cfg.AgentFSDir(), err)
	}
	store, err := overlay.NewStore(cfg.AgentFSDir())
	if err != nil {
		if overlay.IsLocked(err) {
			return fmt.Errorf("a running cairn service already keeps stable in sync")
		}
		return err
	}
	defer store.Close()

	files, err := watcher.SyncStable(cfg.Paths.ProjectRoot, store.Stable())
	if err != nil {
		return err
	}
	fmt.Printf("✓ Synced %d files into stable\n", files)
	return nil
}
