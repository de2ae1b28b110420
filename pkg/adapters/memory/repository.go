// Package memory provides an in-memory core.Repository, useful for
// tests and for callers that want model semantics without persistence.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/silt/pkg/core"
)

// Repository implements core.Repository, core.IndexedRepository and
// core.Watchable backed by process memory.
type Repository struct {
	mu          sync.RWMutex
	collections map[string]map[string]core.Record
	indexes     map[string][]core.IndexSpec
	watchers    map[int]*watcher
	nextWatcher int
	logger      *slog.Logger
}

type watcher struct {
	pattern string
	ch      chan core.Event
}

// Option configures the repository.
type Option func(*Repository)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) { r.logger = logger }
}

// NewRepository creates an empty in-memory repository.
func NewRepository(opts ...Option) *Repository {
	r := &Repository{
		collections: make(map[string]map[string]core.Record),
		indexes:     make(map[string][]core.IndexSpec),
		watchers:    make(map[int]*watcher),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize implements core.Repository. Nothing to prepare.
func (r *Repository) Initialize(ctx context.Context) error { return nil }

// Save stores a copy of the record.
func (r *Repository) Save(ctx context.Context, rec core.Record) error {
	if rec.Key.IsZero() {
		return core.ErrMissingKey
	}
	if rec.Collection == "" {
		return fmt.Errorf("%w: record has no collection", core.ErrInvalidKey)
	}

	r.mu.Lock()
	col, ok := r.collections[rec.Collection]
	if !ok {
		col = make(map[string]core.Record)
		r.collections[rec.Collection] = col
	}

	if err := r.checkUniqueLocked(rec); err != nil {
		r.mu.Unlock()
		return err
	}

	id := rec.Key.String()
	_, existed := col[id]
	col[id] = core.Record{
		Collection: rec.Collection,
		Key:        rec.Key,
		Fields:     rec.Fields.Clone(),
	}
	r.mu.Unlock()

	eType := core.EventCreate
	if existed {
		eType = core.EventModify
	}
	r.emit(core.Event{Type: eType, Collection: rec.Collection, ID: id, Timestamp: time.Now().Unix()})
	return nil
}

// Get retrieves a record copy.
func (r *Repository) Get(ctx context.Context, collection string, key core.Key) (core.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.collections[collection][key.String()]
	if !ok {
		return core.Record{}, fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}
	rec.Fields = rec.Fields.Clone()
	return rec, nil
}

// List returns all records of a collection, ordered by key rendering.
func (r *Repository) List(ctx context.Context, collection string) ([]core.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	col := r.collections[collection]
	ids := make([]string, 0, len(col))
	for id := range col {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]core.Record, 0, len(ids))
	for _, id := range ids {
		rec := col[id]
		rec.Fields = rec.Fields.Clone()
		out = append(out, rec)
	}
	return out, nil
}

// Collections enumerates non-empty collection names.
func (r *Repository) Collections(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.collections))
	for name, col := range r.collections {
		if len(col) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a record.
func (r *Repository) Delete(ctx context.Context, collection string, key core.Key) error {
	id := key.String()

	r.mu.Lock()
	col := r.collections[collection]
	if _, ok := col[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}
	delete(col, id)
	r.mu.Unlock()

	r.emit(core.Event{Type: core.EventDelete, Collection: collection, ID: id, Timestamp: time.Now().Unix()})
	return nil
}

// EnsureIndexes implements core.IndexedRepository. Existing records are
// verified against new unique constraints.
func (r *Repository) EnsureIndexes(ctx context.Context, collection string, specs []core.IndexSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, spec := range specs {
		if !spec.Unique {
			continue
		}
		seen := make(map[string]string)
		for id, rec := range r.collections[collection] {
			val, ok := indexValue(rec, spec)
			if !ok {
				continue
			}
			if prev, dup := seen[val]; dup {
				return fmt.Errorf("index %s: %s and %s collide: %w", spec.Name, prev, id, core.ErrDuplicateKey)
			}
			seen[val] = id
		}
	}

	r.indexes[collection] = append([]core.IndexSpec(nil), specs...)
	return nil
}

// Watch implements core.Watchable. Events are matched against the
// doublestar pattern over "collection/id" paths. The channel closes when
// the context is done.
func (r *Repository) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if _, err := doublestar.Match(pattern, "probe/probe"); err != nil {
		return nil, fmt.Errorf("invalid watch pattern %q: %w", pattern, err)
	}

	w := &watcher{pattern: pattern, ch: make(chan core.Event, 16)}

	r.mu.Lock()
	id := r.nextWatcher
	r.nextWatcher++
	r.watchers[id] = w
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.watchers, id)
		r.mu.Unlock()
		close(w.ch)
	}()

	return w.ch, nil
}

func (r *Repository) emit(e core.Event) {
	path := e.Collection + "/" + e.ID

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.watchers {
		if ok, _ := doublestar.Match(w.pattern, path); !ok {
			continue
		}
		select {
		case w.ch <- e:
		default:
			// Slow consumer: drop rather than block writers.
			if r.logger != nil {
				r.logger.Warn("watch event dropped", "pattern", w.pattern, "event", e.String())
			}
		}
	}
}

// checkUniqueLocked enforces the unique indexes registered for the
// record's collection. Caller holds the write lock.
func (r *Repository) checkUniqueLocked(rec core.Record) error {
	id := rec.Key.String()
	for _, spec := range r.indexes[rec.Collection] {
		if !spec.Unique {
			continue
		}
		val, ok := indexValue(rec, spec)
		if !ok {
			continue
		}
		for otherID, other := range r.collections[rec.Collection] {
			if otherID == id {
				continue
			}
			otherVal, ok := indexValue(other, spec)
			if ok && otherVal == val {
				return fmt.Errorf("index %s on %s: %w", spec.Name, rec.Collection, core.ErrDuplicateKey)
			}
		}
	}
	return nil
}

// indexValue renders the indexed field tuple. The second return is false
// when a sparse index or a partial filter should skip the record.
func indexValue(rec core.Record, spec core.IndexSpec) (string, bool) {
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

var (
	_ core.Repository        = (*Repository)(nil)
	_ core.IndexedRepository = (*Repository)(nil)
	_ core.Watchable         = (*Repository)(nil)
)
