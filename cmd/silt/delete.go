package main

import (
	"context"
	"fmt"

	"github.com/aretw0/silt"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [collection] [id]",
	Short: "Delete a record from the store",
	Long:  `Delete permanently removes a record from the store and stages the deletion in Git.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		collection, id := args[0], args[1]

		repo, _, err := openRepo()
		if err != nil {
			fatal("Failed to open store", err)
		}

		if err := repo.Delete(context.Background(), collection, silt.StringKey(id)); err != nil {
			fatal("Failed to delete record", err)
		}

		fmt.Printf("Record deleted: %s/%s\n", collection, id)
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
