package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/silt"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get [collection] [id]",
	Short: "Read a record",
	Long:  `Read a record by collection and ID. Outputs the record fields as indented JSON.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		collection, id := args[0], args[1]

		repo, _, err := openRepo()
		if err != nil {
			fatal("Failed to open store", err)
		}

		rec, err := repo.Get(context.Background(), collection, silt.StringKey(id))
		if err != nil {
			fatal("Failed to read record", err)
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(rec.Fields); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
