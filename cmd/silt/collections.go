package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List the collections in the store",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		repo, _, err := openRepo()
		if err != nil {
			fatal("Failed to open store", err)
		}

		names, err := repo.Collections(context.Background())
		if err != nil {
			fatal("Failed to list collections", err)
		}

		for _, name := range names {
			fmt.Println(name)
		}
	},
}

func init() {
	rootCmd.AddCommand(collectionsCmd)
}
