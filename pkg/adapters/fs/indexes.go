package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/silt/pkg/core"
)

// EnsureIndexes implements core.IndexedRepository. Declarations are
// persisted under the system directory so unique constraints survive
// restarts. Existing records are verified against new unique indexes.
// TTL declarations (ExpireAfterSeconds) are recorded but not enforced;
// a file store has no background reaper.
func (r *Repository) EnsureIndexes(ctx context.Context, collection string, specs []core.IndexSpec) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	if err := validateSegment(collection); err != nil {
		return fmt.Errorf("collection %q: %w", collection, err)
	}

	recs, err := r.List(ctx, collection)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if !spec.Unique {
			continue
		}
		seen := make(map[string]string)
		for _, rec := range recs {
			val, ok := indexTuple(rec, spec)
			if !ok {
				continue
			}
			if prev, dup := seen[val]; dup {
				return fmt.Errorf("index %s: %s and %s collide: %w",
					spec.Name, prev, rec.Key, core.ErrDuplicateKey)
			}
			seen[val] = rec.Key.String()
		}
	}

	data, err := json.MarshalIndent(specs, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Join(r.Path, r.config.SystemDir, "indexes")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, collection+".json"), data, 0644); err != nil {
		return err
	}

	r.mu.Lock()
	r.indexes[collection] = append([]core.IndexSpec(nil), specs...)
	r.indexesLoaded[collection] = true
	r.mu.Unlock()

	r.config.Logger.Debug("indexes ensured", "collection", collection, "count", len(specs))
	return nil
}

// collectionIndexes returns the index declarations of a collection,
// loading persisted ones on first use.
func (r *Repository) collectionIndexes(collection string) []core.IndexSpec {
	r.mu.RLock()
	if r.indexesLoaded[collection] {
		specs := r.indexes[collection]
		r.mu.RUnlock()
		return specs
	}
	r.mu.RUnlock()

	var specs []core.IndexSpec
	path := filepath.Join(r.Path, r.config.SystemDir, "indexes", collection+".json")
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &specs)
	}

	r.mu.Lock()
	r.indexes[collection] = specs
	r.indexesLoaded[collection] = true
	r.mu.Unlock()
	return specs
}

// checkUnique enforces the unique indexes of the record's collection
// before a write.
func (r *Repository) checkUnique(ctx context.Context, rec core.Record) error {
	specs := r.collectionIndexes(rec.Collection)
	if len(specs) == 0 {
		return nil
	}

	var recs []core.Record
	for _, spec := range specs {
		if !spec.Unique {
			continue
		}
		if recs == nil {
			var err error
			recs, err = r.List(ctx, rec.Collection)
			if err != nil {
				return err
			}
		}
		val, ok := indexTuple(rec, spec)
		if !ok {
			continue
		}
		for _, other := range recs {
			if other.Key.String() == rec.Key.String() {
				continue
			}
			otherVal, ok := indexTuple(other, spec)
			if ok && otherVal == val {
				return fmt.Errorf("index %s on %s: %w", spec.Name, rec.Collection, core.ErrDuplicateKey)
			}
		}
	}
	return nil
}

// indexTuple renders the indexed field tuple. The second return is false
// when a sparse index or a partial filter should skip the record.
func indexTuple(rec core.Record, spec core.IndexSpec) (string, bool) {
	if !spec.MatchesFilter(rec.Fields) {
		return "", false
	}
	parts := make([]string, 0, len(spec.Fields))
	missing := 0
	for _, f := range spec.Fields {
		v, ok := rec.Fields[f]
		if !ok || v == nil {
			missing++
			parts = append(parts, "\x00")
			continue
		}
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	if spec.Sparse && missing == len(spec.Fields) {
		return "", false
	}
	return strings.Join(parts, "\x1f"), true
}
