package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/silt/pkg/core"
	"github.com/spf13/cobra"
)

var (
	listJSON  bool
	filterTag string
)

var listCmd = &cobra.Command{
	Use:   "list [collection]",
	Short: "List all records in a collection",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		collection := args[0]

		repo, _, err := openRepo()
		if err != nil {
			fatal("Failed to open store", err)
		}

		recs, err := repo.List(context.Background(), collection)
		if err != nil {
			fatal("Failed to list records", err)
		}

		// Filter
		var filtered []core.Record
		for _, rec := range recs {
			if filterTag != "" && !hasTag(rec.Fields, filterTag) {
				continue
			}
			filtered = append(filtered, rec)
		}

		if listJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(filtered); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
				os.Exit(1)
			}
			return
		}

		for _, rec := range filtered {
			// Basic output: ID - title (if available)
			title := ""
			if t, ok := rec.Fields["title"].(string); ok {
				title = fmt.Sprintf("- %s", t)
			}
			fmt.Printf("%s %s\n", rec.Key, title)
		}
	},
}

func hasTag(fields core.Metadata, tag string) bool {
	switch t := fields["tags"].(type) {
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok && s == tag {
				return true
			}
		}
	case []string:
		for _, s := range t {
			if s == tag {
				return true
			}
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().StringVar(&filterTag, "tag", "", "Filter records by tag")
}
