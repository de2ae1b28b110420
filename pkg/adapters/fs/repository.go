// Package fs implements the repository contract on a plain directory
// tree, one file per record, optionally versioned with Git. Collections
// are directories; a record lives at <collection>/<key>.<format>.
package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/silt/pkg/core"
	"github.com/aretw0/silt/pkg/git"
)

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path      string
	AutoInit  bool
	Gitless   bool
	MustExist bool
	ReadOnly  bool
	// Strict enables precision-preserving number decoding (json.Number).
	Strict bool
	Logger *slog.Logger
	// SystemDir is the bookkeeping directory name, ".silt" by default.
	SystemDir string
	// DefaultFormat is the extension of newly written records, ".json"
	// by default. ".yaml" is also supported.
	DefaultFormat string
	// ErrorHandler receives asynchronous watcher errors.
	ErrorHandler func(error)
}

// Repository implements core.Repository using the filesystem and Git.
type Repository struct {
	Path        string
	git         *git.Client
	cache       *cache
	config      Config
	serializers map[string]Serializer

	mu            sync.RWMutex
	indexes       map[string][]core.IndexSpec
	indexesLoaded map[string]bool
	watcherActive bool
	lastReconcile *time.Time
}

// NewRepository creates a new filesystem-backed repository.
func NewRepository(config Config) *Repository {
	if config.SystemDir == "" {
		config.SystemDir = ".silt"
	}
	if config.DefaultFormat == "" {
		config.DefaultFormat = ".json"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Repository{
		Path:          config.Path,
		git:           git.NewClient(config.Path, config.Logger),
		config:        config,
		cache:         newCache(config.Path, config.SystemDir),
		serializers:   DefaultSerializers(config.Strict),
		indexes:       make(map[string][]core.IndexSpec),
		indexesLoaded: make(map[string]bool),
	}
}

// RegisterSerializer adds or replaces the serializer for a file
// extension. Call before the repository is shared across goroutines.
func (r *Repository) RegisterSerializer(ext string, s Serializer) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.serializers[ext] = s
}

// Begin starts a new transaction.
func (r *Repository) Begin(ctx context.Context) (core.Transaction, error) {
	if r.config.ReadOnly {
		return nil, core.ErrReadOnly
	}
	return NewTransaction(r), nil
}

// Initialize performs the necessary setup for the repository (mkdir, git init).
func (r *Repository) Initialize(ctx context.Context) error {
	if r.config.ReadOnly {
		// No mkdir, no git init. The store is taken as found.
		info, err := os.Stat(r.Path)
		if err != nil {
			return fmt.Errorf("store path not readable: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", r.Path)
		}
		return nil
	}

	if r.config.MustExist {
		info, err := os.Stat(r.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("store path does not exist: %s", r.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", r.Path)
		}
	} else {
		if err := os.MkdirAll(r.Path, 0755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	if !r.config.Gitless {
		if !git.IsInstalled() {
			return fmt.Errorf("git is not installed")
		}

		wasNewRepo := false
		if !r.git.IsRepo() {
			if r.config.AutoInit {
				if err := r.git.Init(); err != nil {
					return fmt.Errorf("failed to git init: %w", err)
				}
				wasNewRepo = true
			} else {
				return fmt.Errorf("path is not a git repository: %s", r.Path)
			}
		}

		mod, err := r.ensureIgnore()
		if err != nil {
			return fmt.Errorf("failed to ensure .gitignore: %w", err)
		}

		if mod && wasNewRepo {
			// Start the new repo with the ignore rules committed.
			if err := r.git.Add(".gitignore"); err != nil {
				return fmt.Errorf("failed to add .gitignore: %w", err)
			}
			if err := r.git.Commit(fmt.Sprintf("chore: configure %s ignore", r.config.SystemDir)); err != nil {
				return fmt.Errorf("failed to commit .gitignore: %w", err)
			}
		}
	}

	return nil
}

// ensureIgnore keeps the system directory and lock files out of git.
func (r *Repository) ensureIgnore() (bool, error) {
	ignorePath := filepath.Join(r.Path, ".gitignore")
	entries := []string{r.config.SystemDir + "/", ".silt.lock", TempFilePrefix + "*"}

	content, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(content), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, e := range entries {
		if !present[e] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return false, nil
	}

	f, err := os.OpenFile(ignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return false, err
		}
	}
	for _, e := range missing {
		if _, err := f.WriteString(e + "\n"); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Sync synchronizes the repository with its remote.
func (r *Repository) Sync(ctx context.Context) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	if r.config.Gitless {
		return fmt.Errorf("cannot sync in gitless mode")
	}
	if !r.git.IsRepo() {
		return fmt.Errorf("path is not a git repository: %s", r.Path)
	}

	unlock, err := r.git.Lock()
	if err != nil {
		return fmt.Errorf("failed to acquire git lock: %w", err)
	}
	defer unlock()

	return r.git.Sync()
}

// Save persists a record to the filesystem and commits it to Git.
//
// Workflow:
//  1. Validate collection and key (both become path segments).
//  2. Enforce unique indexes of the collection.
//  3. Serialize the fields (with the key embedded as _id) and write
//     atomically to disk.
//  4. (If Git enabled) 'git add' and 'git commit' with context metadata.
func (r *Repository) Save(ctx context.Context, rec core.Record) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	if rec.Key.IsZero() {
		return core.ErrMissingKey
	}
	if err := validateSegment(rec.Collection); err != nil {
		return fmt.Errorf("collection %q: %w", rec.Collection, err)
	}
	if err := validateSegment(rec.Key.String()); err != nil {
		return fmt.Errorf("key %q: %w", rec.Key, err)
	}

	if err := r.checkUnique(ctx, rec); err != nil {
		return err
	}

	relPath, fullPath := r.resolveFile(rec.Collection, rec.Key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}

	data, err := r.encodeRecord(rec, filepath.Ext(relPath))
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	if err := writeFileAtomic(fullPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if info, err := os.Stat(fullPath); err == nil {
		r.cache.Set(relPath, &indexEntry{
			Collection:   rec.Collection,
			ID:           rec.Key.String(),
			Kind:         rec.Key.Kind(),
			Fields:       rec.Fields.Clone(),
			LastModified: info.ModTime(),
		})
		_ = r.cache.Save()
	}

	if !r.config.Gitless {
		unlock, err := r.git.Lock()
		if err != nil {
			return fmt.Errorf("failed to acquire git lock: %w", err)
		}
		defer unlock()

		if err := r.git.Add(relPath); err != nil {
			return fmt.Errorf("failed to git add: %w", err)
		}

		msg := "update " + rec.Collection + "/" + rec.Key.String()
		if val, ok := ctx.Value(core.ChangeReasonKey).(string); ok && val != "" {
			msg = val
		}
		if err := r.git.Commit(msg); err != nil {
			return fmt.Errorf("failed to git commit: %w", err)
		}
	}

	return nil
}

// Get retrieves a record from the filesystem.
func (r *Repository) Get(ctx context.Context, collection string, key core.Key) (core.Record, error) {
	if key.IsZero() {
		return core.Record{}, core.ErrMissingKey
	}
	if err := validateSegment(collection); err != nil {
		return core.Record{}, fmt.Errorf("collection %q: %w", collection, err)
	}
	if err := validateSegment(key.String()); err != nil {
		return core.Record{}, fmt.Errorf("key %q: %w", key, err)
	}

	relPath, fullPath, ok := r.findFile(collection, key)
	if !ok {
		return core.Record{}, fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}

	fields, err := r.decodeFile(fullPath, filepath.Ext(relPath))
	if err != nil {
		return core.Record{}, fmt.Errorf("failed to parse %s: %w", relPath, err)
	}
	delete(fields, "_id")

	return core.Record{Collection: collection, Key: key, Fields: fields}, nil
}

// List scans a collection directory for all records.
//
// Strategy:
//  1. Load the metadata index from disk.
//  2. Walk the collection directory.
//  3. For each supported file: on a cache hit (mtime match) use the
//     cached fields, otherwise parse the file and refresh the cache.
//  4. Persist the refreshed index.
func (r *Repository) List(ctx context.Context, collection string) ([]core.Record, error) {
	if err := validateSegment(collection); err != nil {
		return nil, fmt.Errorf("collection %q: %w", collection, err)
	}

	dir := filepath.Join(r.Path, collection)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	_ = r.cache.Load()
	seen := make(map[string]bool)

	var recs []core.Record
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if _, ok := r.serializers[ext]; !ok {
			continue
		}
		if strings.HasPrefix(name, TempFilePrefix) || strings.HasPrefix(name, ".") {
			continue
		}

		relPath := collection + "/" + name
		info, err := entry.Info()
		if err != nil {
			continue
		}
		seen[relPath] = true

		keyStr := strings.TrimSuffix(name, ext)
		key := r.recoverKey(keyStr)

		if cached, hit := r.cache.Get(relPath, info.ModTime()); hit {
			cachedKey := key
			if k, err := core.CoerceKey(cached.Kind, cached.ID); err == nil {
				cachedKey = k
			}
			recs = append(recs, core.Record{
				Collection: collection,
				Key:        cachedKey,
				Fields:     cached.Fields.Clone(),
			})
			continue
		}

		fields, err := r.decodeFile(filepath.Join(dir, name), ext)
		if err != nil {
			r.config.Logger.Warn("skipping unparseable record", "path", relPath, "error", err)
			continue
		}
		if id, ok := core.KeyFromValue(fields["_id"]); ok {
			key = id
		}
		delete(fields, "_id")

		r.cache.Set(relPath, &indexEntry{
			Collection:   collection,
			ID:           key.String(),
			Kind:         key.Kind(),
			Fields:       fields.Clone(),
			LastModified: info.ModTime(),
		})

		recs = append(recs, core.Record{Collection: collection, Key: key, Fields: fields})
	}

	r.cache.PruneCollection(collection, seen)
	// Read-only mode refreshes the index in memory but never persists it.
	if !r.config.ReadOnly {
		_ = r.cache.Save()
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Key.String() < recs[j].Key.String() })
	return recs, nil
}

// Collections enumerates the collection directories of the store.
func (r *Repository) Collections(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == ".git" || name == r.config.SystemDir || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a record.
func (r *Repository) Delete(ctx context.Context, collection string, key core.Key) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	if err := validateSegment(collection); err != nil {
		return fmt.Errorf("collection %q: %w", collection, err)
	}
	if err := validateSegment(key.String()); err != nil {
		return fmt.Errorf("key %q: %w", key, err)
	}

	relPath, fullPath, ok := r.findFile(collection, key)
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}

	r.cache.Delete(relPath)
	_ = r.cache.Save()

	if r.config.Gitless {
		if err := os.Remove(fullPath); err != nil {
			return fmt.Errorf("failed to remove file: %w", err)
		}
		return nil
	}

	unlock, err := r.git.Lock()
	if err != nil {
		return fmt.Errorf("failed to acquire git lock: %w", err)
	}
	defer unlock()

	if err := r.git.Rm(relPath); err != nil {
		return fmt.Errorf("failed to git rm: %w", err)
	}

	msg := "delete " + collection + "/" + key.String()
	if val, ok := ctx.Value(core.ChangeReasonKey).(string); ok && val != "" {
		msg = val
	}
	if err := r.git.Commit(msg); err != nil {
		return fmt.Errorf("failed to git commit: %w", err)
	}

	return nil
}

// encodeRecord serializes the field map with the key embedded as _id.
func (r *Repository) encodeRecord(rec core.Record, ext string) ([]byte, error) {
	ser, ok := r.serializers[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported format %q", ext)
	}
	fields := rec.Fields.Clone()
	if fields == nil {
		fields = make(core.Metadata)
	}
	fields["_id"] = rec.Key
	return ser.Encode(fields)
}

func (r *Repository) decodeFile(fullPath, ext string) (core.Metadata, error) {
	ser, ok := r.serializers[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported format %q", ext)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, err
	}
	return ser.Decode(data)
}

// resolveFile picks the file path for a write: an existing file keeps
// its format, a new record gets the default one.
func (r *Repository) resolveFile(collection string, key core.Key) (relPath, fullPath string) {
	if rel, full, ok := r.findFile(collection, key); ok {
		return rel, full
	}
	rel := collection + "/" + key.String() + r.config.DefaultFormat
	return rel, filepath.Join(r.Path, rel)
}

// findFile locates the record file across all supported formats.
func (r *Repository) findFile(collection string, key core.Key) (relPath, fullPath string, ok bool) {
	base := key.String()
	exts := []string{r.config.DefaultFormat}
	for ext := range r.serializers {
		if ext != r.config.DefaultFormat {
			exts = append(exts, ext)
		}
	}
	for _, ext := range exts {
		rel := collection + "/" + base + ext
		full := filepath.Join(r.Path, rel)
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			return rel, full, true
		}
	}
	return "", "", false
}

// recoverKey rebuilds a key from its filename rendering. Without the
// payload's _id the rendering is ambiguous, so hex and numeric forms are
// tried before falling back to a plain string key.
func (r *Repository) recoverKey(s string) core.Key {
	if k, err := core.CoerceKey(core.KeyObjectID, s); err == nil && len(s) == 24 {
		return k
	}
	if k, ok := core.KeyFromValue(s); ok {
		return k
	}
	return core.StringKey(s)
}

// validateSegment rejects names that would escape the store layout.
func validateSegment(s string) error {
	if s == "" {
		return core.ErrInvalidKey
	}
	if strings.ContainsAny(s, "/\\") || s == "." || s == ".." {
		return core.ErrInvalidKey
	}
	if strings.HasPrefix(s, ".") {
		return core.ErrInvalidKey
	}
	return nil
}

var (
	_ core.Repository        = (*Repository)(nil)
	_ core.Syncable          = (*Repository)(nil)
	_ core.Transactional     = (*Repository)(nil)
	_ core.IndexedRepository = (*Repository)(nil)
	_ core.Watchable         = (*Repository)(nil)
)
