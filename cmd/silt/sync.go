package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/silt"
	"github.com/spf13/cobra"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the store with its remote",
	Long: `Synchronize the local store with the configured remote repository.
It integrates remote changes and pushes local changes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fatal("Failed to get CWD", err)
		}

		fmt.Println("Syncing...")
		if err := silt.Sync(cwd,
			silt.WithAdapter(adapter),
			silt.WithVersioning(!gitless),
			silt.WithLogger(slog.Default()),
			silt.WithDevSafety(false),
		); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Sync failed: %v\n", err)
			fmt.Println("Tip: Ensure you have a remote configured ('git remote add origin <url>') and you are online.")
			fmt.Println("If there are merge conflicts, you may need to resolve them manually in the repository.")
			os.Exit(1)
		}

		fmt.Println("Sync completed successfully.")
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
