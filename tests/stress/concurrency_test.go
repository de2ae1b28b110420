package stress

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/silt"
	"github.com/aretw0/silt/pkg/core"
	"github.com/stretchr/testify/require"
)

// TestConcurrency_ExternalVsInternal simulates a noisy neighbor: the OS
// writes files into a collection while the store is also saving records
// and a watcher observes. We want to ensure:
// 1. No panics.
// 2. The store stays listable afterwards.
// 3. No obvious corruption or infinite loops.
func TestConcurrency_ExternalVsInternal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	dir := t.TempDir()
	repo, err := silt.Init(dir, silt.WithAutoInit(true), silt.WithVersioning(false))
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "records"), 0755))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup

	// External actor: raw OS writes into the collection.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				n := rand.Intn(10)
				path := filepath.Join(dir, "records", fmt.Sprintf("noise-%d.json", n))
				content := fmt.Sprintf(`{"_id":"noise-%d","ts":%d}`, n, time.Now().UnixNano())
				_ = os.WriteFile(path, []byte(content), 0644)
				time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
			}
		}
	}()

	// Internal actor: repository saves.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				rec := core.Record{
					Collection: "records",
					Key:        silt.StringKey(fmt.Sprintf("data-%d", rand.Intn(10))),
					Fields:     core.Metadata{"ts": time.Now().Unix()},
				}
				// Errors under contention are tolerated; crashes are not.
				_ = repo.Save(context.Background(), rec)
				time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
			}
		}
	}()

	// Watcher actor: just observes.
	w, ok := repo.(core.Watchable)
	require.True(t, ok)
	stream, err := w.Watch(ctx, "**/*")
	require.NoError(t, err)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stream:
				// consume
			}
		}
	}()

	wg.Wait()

	recs, err := repo.List(context.Background(), "records")
	require.NoError(t, err)
	t.Logf("Survived chaos with %d records", len(recs))
}
