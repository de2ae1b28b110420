package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/silt"
)

func main() {
	count := flag.Int("count", 1000, "Number of records to generate")
	keep := flag.Bool("keep", false, "Keep the benchmark store after running")
	flag.Parse()

	// 1. Setup Namespace
	benchDir, err := os.MkdirTemp("", "silt_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	fmt.Printf("Generating %d records in %s...\n", *count, benchDir)
	startGen := time.Now()

	// Direct file writes simulate an existing store that silt has never
	// indexed before.
	collectionDir := filepath.Join(benchDir, "notes")
	if err := os.MkdirAll(collectionDir, 0755); err != nil {
		panic(err)
	}
	for i := 0; i < *count; i++ {
		payload := fmt.Sprintf(
			`{"_id":"note_%d","title":"Note %d","date":%q,"tags":["benchmark","test"]}`,
			i, i, time.Now().Format("2006-01-02"))
		filename := filepath.Join(collectionDir, fmt.Sprintf("note_%d.json", i))
		if err := os.WriteFile(filename, []byte(payload), 0644); err != nil {
			panic(err)
		}
	}
	fmt.Printf("Generation took: %v\n", time.Since(startGen))

	// 2. Initialize Repository
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	// Gitless keeps the benchmark focused on FS/parsing performance.
	repo, err := silt.Init(benchDir,
		silt.WithLogger(logger),
		silt.WithAutoInit(true),
		silt.WithVersioning(false),
		silt.WithDevSafety(false),
	)
	if err != nil {
		panic(err)
	}

	ctx := context.TODO()

	// Run 1: Cold (populates the .silt/index.json cache)
	fmt.Println("Running List (Run 1 - Cold)...")
	startList := time.Now()
	list, err := repo.List(ctx, "notes")
	if err != nil {
		panic(err)
	}
	duration := time.Since(startList)
	fmt.Printf("Run 1 Result: %v (Items: %d)\n", duration, len(list))

	// Run 2: Warm. Re-instantiate to simulate a new CLI command run so
	// only the persisted cache carries over.
	repo2, err := silt.Init(benchDir,
		silt.WithLogger(logger),
		silt.WithAutoInit(true),
		silt.WithVersioning(false),
		silt.WithDevSafety(false),
	)
	if err != nil {
		panic(err)
	}

	fmt.Println("Running List (Run 2 - Warm)...")
	startList2 := time.Now()
	list2, err := repo2.List(ctx, "notes")
	if err != nil {
		panic(err)
	}
	duration2 := time.Since(startList2)
	fmt.Printf("Run 2 Result: %v (Items: %d)\n", duration2, len(list2))

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d records):\n", *count)
	fmt.Printf("  Cold: %v\n", duration)
	fmt.Printf("  Warm: %v\n", duration2)
	fmt.Printf("--------------------------------------------------\n")
}
