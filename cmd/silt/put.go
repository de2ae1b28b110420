package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/silt"
	"github.com/aretw0/silt/pkg/core"
	"github.com/spf13/cobra"
)

var (
	putData      string
	changeReason string
	putType      string
	putScope     string
)

// putCmd represents the put command
var putCmd = &cobra.Command{
	Use:   "put [collection] [id]",
	Short: "Write a record",
	Long:  `Create or update a record with the given collection, ID and JSON fields.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		collection, id := args[0], args[1]

		var fields core.Metadata
		if err := json.Unmarshal([]byte(putData), &fields); err != nil {
			fatal("Invalid --data JSON", err)
		}

		repo, _, err := openRepo()
		if err != nil {
			fatal("Failed to open store", err)
		}

		// Logic to construct message
		var finalMsg string
		if putType != "" {
			if changeReason == "" {
				changeReason = fmt.Sprintf("update %s/%s", collection, id)
			}
			finalMsg = silt.FormatChangeReason(putType, putScope, changeReason, "")
		} else {
			if changeReason != "" {
				finalMsg = silt.AppendFooter(changeReason)
			} else {
				scope := collection
				if putScope != "" {
					scope = putScope
				}
				finalMsg = silt.FormatChangeReason(silt.CommitTypeDocs, scope, fmt.Sprintf("update %s", id), "")
			}
		}

		// Pass commit message via context (adapter specific requirement)
		ctx := context.WithValue(context.Background(), core.ChangeReasonKey, finalMsg)

		rec := core.Record{
			Collection: collection,
			Key:        silt.StringKey(id),
			Fields:     fields,
		}
		if err := repo.Save(ctx, rec); err != nil {
			fatal("Failed to save record", err)
		}

		fmt.Printf("Record '%s/%s' saved.\n", collection, id)
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().StringVar(&putData, "data", "{}", "Record fields as JSON")
	putCmd.Flags().StringVarP(&changeReason, "message", "m", "", "Change reason (audit note)")
	putCmd.Flags().StringVarP(&putType, "type", "t", "", "Change type (feat, fix, etc)")
	putCmd.Flags().StringVarP(&putScope, "scope", "s", "", "Commit scope")
}
