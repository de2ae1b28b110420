package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/silt"
	"github.com/spf13/cobra"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a silt store (git init)",
	Long:  `Initialize a new silt store in the current directory. Unless --gitless is set, this effectively runs 'git init'.`,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fatal("Failed to get CWD", err)
		}

		_, err = silt.Init(cwd,
			silt.WithAutoInit(true),
			silt.WithVersioning(!gitless),
			silt.WithLogger(slog.Default()),
			silt.WithDevSafety(false),
		)
		if err != nil {
			fatal("Failed to initialize store", err)
		}

		fmt.Println("Initialized silt store in", cwd)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
