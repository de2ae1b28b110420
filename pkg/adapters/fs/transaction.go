package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/silt/pkg/core"
)

// Transaction implements core.Transaction for the filesystem. Writes
// and deletes are staged in memory and land on disk, and in a single
// git commit, only on Commit.
type Transaction struct {
	repo    *Repository
	staged  map[string]core.Record // "collection/key" -> record
	deleted map[string]core.Record // "collection/key" -> tombstone (key + collection only)
	mu      sync.Mutex
	closed  bool
}

// NewTransaction creates a new transaction.
func NewTransaction(repo *Repository) *Transaction {
	return &Transaction{
		repo:    repo,
		staged:  make(map[string]core.Record),
		deleted: make(map[string]core.Record),
	}
}

func stageKey(collection string, key core.Key) string {
	return collection + "/" + key.String()
}

// Save stages a record for saving.
func (t *Transaction) Save(ctx context.Context, rec core.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transaction closed")
	}
	if rec.Key.IsZero() {
		return core.ErrMissingKey
	}

	id := stageKey(rec.Collection, rec.Key)
	t.staged[id] = core.Record{
		Collection: rec.Collection,
		Key:        rec.Key,
		Fields:     rec.Fields.Clone(),
	}
	delete(t.deleted, id)
	return nil
}

// Get retrieves a record, favoring staged changes.
func (t *Transaction) Get(ctx context.Context, collection string, key core.Key) (core.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return core.Record{}, fmt.Errorf("transaction closed")
	}

	id := stageKey(collection, key)
	if _, gone := t.deleted[id]; gone {
		return core.Record{}, fmt.Errorf("%s: %w", id, core.ErrNotFound)
	}
	if rec, ok := t.staged[id]; ok {
		rec.Fields = rec.Fields.Clone()
		return rec, nil
	}

	return t.repo.Get(ctx, collection, key)
}

// Delete stages a record for deletion.
func (t *Transaction) Delete(ctx context.Context, collection string, key core.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transaction closed")
	}

	id := stageKey(collection, key)
	t.deleted[id] = core.Record{Collection: collection, Key: key}
	delete(t.staged, id)
	return nil
}

// Commit applies all staged changes under one git lock and commit.
func (t *Transaction) Commit(ctx context.Context, changeReason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transaction already closed")
	}
	if t.repo.config.ReadOnly {
		return core.ErrReadOnly
	}

	if err := t.checkStagedUnique(ctx); err != nil {
		return err
	}

	if !t.repo.config.Gitless {
		unlock, err := t.repo.git.Lock()
		if err != nil {
			return fmt.Errorf("failed to acquire git lock: %w", err)
		}
		defer unlock()
	}

	var filesToAdd []string
	var filesToRm []string

	for id, rec := range t.staged {
		relPath, fullPath := t.repo.resolveFile(rec.Collection, rec.Key)
		filesToAdd = append(filesToAdd, relPath)

		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			return fmt.Errorf("failed to create directories for %s: %w", id, err)
		}

		data, err := t.repo.encodeRecord(rec, filepath.Ext(relPath))
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", id, err)
		}
		if err := writeFileAtomic(fullPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", id, err)
		}

		t.repo.cache.Set(relPath, &indexEntry{
			Collection:   rec.Collection,
			ID:           rec.Key.String(),
			Kind:         rec.Key.Kind(),
			Fields:       rec.Fields.Clone(),
			LastModified: time.Now(),
		})
	}

	for id, tomb := range t.deleted {
		relPath, fullPath, ok := t.repo.findFile(tomb.Collection, tomb.Key)
		if !ok {
			continue // already gone
		}
		filesToRm = append(filesToRm, relPath)
		t.repo.cache.Delete(relPath)

		if t.repo.config.Gitless {
			if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove %s: %w", id, err)
			}
		}
	}

	if !t.repo.config.Gitless {
		if err := t.repo.git.Add(filesToAdd...); err != nil {
			return fmt.Errorf("failed to git add: %w", err)
		}
		if err := t.repo.git.Rm(filesToRm...); err != nil {
			return fmt.Errorf("failed to git rm: %w", err)
		}

		if len(filesToAdd) > 0 || len(filesToRm) > 0 {
			msg := changeReason
			if msg == "" {
				msg = "batch transaction update"
			}
			if err := t.repo.git.Commit(msg); err != nil {
				return fmt.Errorf("failed to git commit: %w", err)
			}
		}
	}

	_ = t.repo.cache.Save()

	t.closed = true
	return nil
}

// checkStagedUnique enforces unique indexes against the state a commit
// would produce: the records on disk minus the staged tombstones, with
// the staged writes layered on top. Checking staged records one by one
// against the disk alone would miss collisions between two staged
// records and reject a delete-then-reinsert of the same unique value.
// Caller holds t.mu.
func (t *Transaction) checkStagedUnique(ctx context.Context) error {
	byCollection := make(map[string][]core.Record)
	for _, rec := range t.staged {
		byCollection[rec.Collection] = append(byCollection[rec.Collection], rec)
	}

	for collection, staged := range byCollection {
		var unique []core.IndexSpec
		for _, spec := range t.repo.collectionIndexes(collection) {
			if spec.Unique {
				unique = append(unique, spec)
			}
		}
		if len(unique) == 0 {
			continue
		}

		disk, err := t.repo.List(ctx, collection)
		if err != nil {
			return err
		}

		candidates := make([]core.Record, 0, len(disk)+len(staged))
		for _, rec := range disk {
			id := stageKey(collection, rec.Key)
			if _, gone := t.deleted[id]; gone {
				continue
			}
			if _, replaced := t.staged[id]; replaced {
				continue
			}
			candidates = append(candidates, rec)
		}
		candidates = append(candidates, staged...)

		for _, spec := range unique {
			seen := make(map[string]string)
			for _, rec := range candidates {
				val, ok := indexTuple(rec, spec)
				if !ok {
					continue
				}
				if prev, dup := seen[val]; dup {
					return fmt.Errorf("index %s on %s: %s and %s collide: %w",
						spec.Name, collection, prev, rec.Key, core.ErrDuplicateKey)
				}
				seen[val] = rec.Key.String()
			}
		}
	}
	return nil
}

// Rollback discards all staged changes.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	t.staged = nil
	t.deleted = nil
	t.closed = true
	return nil
}

var _ core.Transaction = (*Transaction)(nil)
