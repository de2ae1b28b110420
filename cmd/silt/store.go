package main

import (
	"log/slog"
	"os"

	"github.com/aretw0/silt"
	"github.com/aretw0/silt/pkg/core"
)

// openRepo resolves the store root from the working directory and
// returns a repository bound to it.
func openRepo() (core.Repository, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}

	root, err := silt.FindStoreRoot(wd)
	if err != nil {
		// No marker found; operate on the working directory as-is.
		root = wd
	}

	repo, err := silt.Init(root,
		silt.WithAdapter(adapter),
		silt.WithVersioning(!gitless),
		silt.WithMustExist(true),
		silt.WithLogger(slog.Default()),
		silt.WithDevSafety(false),
	)
	if err != nil {
		return nil, "", err
	}
	return repo, root, nil
}
