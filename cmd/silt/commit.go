package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/silt"
	"github.com/aretw0/silt/pkg/git"
	"github.com/spf13/cobra"
)

var (
	commitMsg string
)

// commitCmd represents the commit command
var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit changes",
	Long:  `Commit staged changes to the underlying Git repository.`,
	Run: func(cmd *cobra.Command, args []string) {
		if gitless {
			fatal("Cannot commit", fmt.Errorf("store is in gitless mode"))
		}

		cwd, err := os.Getwd()
		if err != nil {
			fatal("Failed to get CWD", err)
		}

		root, err := silt.FindStoreRoot(cwd)
		if err != nil {
			root = cwd
		}

		client := git.NewClient(root, slog.Default())
		if err := client.Commit(silt.AppendFooter(commitMsg)); err != nil {
			fatal("Failed to commit", err)
		}

		fmt.Println("Committed changes.")
	},
}

func init() {
	rootCmd.AddCommand(commitCmd)
	commitCmd.Flags().StringVarP(&commitMsg, "message", "m", "", "Commit message")
	commitCmd.MarkFlagRequired("message")
}
