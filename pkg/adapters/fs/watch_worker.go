package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/silt/pkg/core"
)

// Watch implements core.Watchable. It streams change events for every
// record whose "collection/id" path matches the doublestar pattern,
// including changes made outside this process (editors, git pulls).
// The channel closes when the context is done.
func (r *Repository) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if _, err := doublestar.Match(pattern, "probe/probe"); err != nil {
		return nil, fmt.Errorf("invalid watch pattern %q: %w", pattern, err)
	}

	events := make(chan core.Event, 32)
	w := newWatchWorker(r, pattern, events)

	if err := w.Start(ctx); err != nil {
		return nil, err
	}

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Stop(stopCtx)
		close(events)
	}()

	return events, nil
}

type watchWorker struct {
	*worker.BaseWorker
	repo      *Repository
	pattern   string
	events    chan<- core.Event
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	cancel    context.CancelFunc
}

func newWatchWorker(repo *Repository, pattern string, events chan<- core.Event) *watchWorker {
	return &watchWorker{
		BaseWorker: worker.NewBaseWorker("fs-watcher"),
		repo:       repo,
		pattern:    pattern,
		events:     events,
	}
}

func (w *watchWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := w.repo.recursiveAdd(watcher); err != nil {
		_ = watcher.Close()
		return err
	}

	// Watched so git's index.lock can pause event processing.
	_ = watcher.Add(filepath.Join(w.repo.Path, ".git"))

	w.watcher = watcher
	w.debouncer = newDebouncer(50 * time.Millisecond)
	w.repo.setWatcherActive(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *watchWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}

	return w.BaseWorker.Stop(ctx)
}

func (w *watchWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
		}
	})
}

// handleGitLockEvent processes .git/index.lock events (git operations pause/resume).
// Returns true if event was handled, false if should continue processing.
func (w *watchWorker) handleGitLockEvent(event fsnotify.Event, gitLocked *bool) (handled bool, gitLockedNew bool) {
	gitLockedNew = *gitLocked
	handled = false

	if filepath.Base(event.Name) == "index.lock" {
		dir := filepath.Dir(event.Name)
		if filepath.Base(dir) == ".git" {
			handled = true
			if event.Has(fsnotify.Create) {
				gitLockedNew = true
				w.repo.config.Logger.Debug("git operations detected, pausing watcher")
			} else if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				gitLockedNew = false
				w.repo.config.Logger.Debug("git operations finished, reconciling")
			}
		}
	}
	return handled, gitLockedNew
}

// reconcileAfterGitUnlock is spawned as a goroutine to handle missed events after git releases the lock.
func (w *watchWorker) reconcileAfterGitUnlock(ctx context.Context) {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		reconciledEvents, err := w.repo.Reconcile(ctx)
		if err != nil {
			w.repo.config.Logger.Error("reconcile failed", "error", err)
			return err
		}
		for _, e := range reconciledEvents {
			if w.matches(e) {
				w.sendEvent(ctx, e)
			}
		}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		if w.repo.config.ErrorHandler != nil {
			w.repo.config.ErrorHandler(fmt.Errorf("reconcile panic: %w", err))
		} else {
			w.repo.config.Logger.Error("reconcile panic", "error", err)
		}
	}))
}

// processFilesystemEvent handles filtering, mapping, and debouncing of filesystem events.
// Returns true if event was processed, false if should be ignored.
func (w *watchWorker) processFilesystemEvent(ctx context.Context, event fsnotify.Event) (processed bool) {
	w.repo.config.Logger.Debug("event received", "name", event.Name)

	// New directories are collections; start watching them.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.repo.shouldIgnorePath(event.Name) {
				_ = w.watcher.Add(event.Name)
			}
			return false
		}
	}

	if w.repo.shouldIgnorePath(event.Name) {
		return false
	}

	eType := mapEventType(event)
	if eType == "" {
		return false
	}

	collection, id, err := w.repo.resolveEvent(event.Name)
	if err != nil {
		if w.repo.config.ErrorHandler != nil {
			w.repo.config.ErrorHandler(fmt.Errorf("failed to resolve %s: %w", event.Name, err))
		} else {
			w.repo.config.Logger.Debug("event resolution failed", "path", event.Name, "err", err)
		}
		return false
	}

	e := core.Event{
		Type:       eType,
		Collection: collection,
		ID:         id,
		Timestamp:  time.Now().Unix(),
	}
	if !w.matches(e) {
		return false
	}

	w.sendEvent(ctx, e)
	return true
}

func (w *watchWorker) matches(e core.Event) bool {
	ok, _ := doublestar.Match(w.pattern, e.Collection+"/"+e.ID)
	return ok
}

// sendEvent enqueues an event via the debouncer, protecting against channel closure during shutdown.
func (w *watchWorker) sendEvent(ctx context.Context, event core.Event) {
	w.debouncer.add(event, func(e core.Event) {
		defer func() {
			// Recover if the channel was closed while the worker stops.
			_ = recover()
		}()
		select {
		case w.events <- e:
		case <-ctx.Done():
		}
	})
}

// handleWatcherError processes errors from the fsnotify watcher.
func (w *watchWorker) handleWatcherError(err error) (shouldContinue bool) {
	w.repo.config.Logger.Error("fsnotify error", "error", err)
	if w.repo.config.ErrorHandler != nil {
		w.repo.config.ErrorHandler(err)
	}
	return true
}

// run is the main event loop for the watcher worker.
func (w *watchWorker) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			panicErr := fmt.Errorf("watcher panic: %v", recovered)

			// Stack only under debug logging; production logs stay lean.
			var stack string
			if w.repo.config.Logger.Enabled(ctx, slog.LevelDebug) {
				stack = string(debug.Stack())
			}

			if stack != "" {
				w.repo.config.Logger.Error("watcher panic", "error", panicErr, "stack", stack)
			} else {
				w.repo.config.Logger.Error("watcher panic", "error", panicErr)
			}
		}
	}()
	defer w.repo.setWatcherActive(false)
	defer w.watcher.Close()

	var gitLocked bool
	err = w.mainEventLoop(ctx, &gitLocked)

	// Stop accepting events and wait for in-flight timers before the
	// events channel can be closed by the Watch goroutine.
	w.debouncer.stopAndWait(5 * time.Second)

	return err
}

// mainEventLoop is the core select loop that processes filesystem and watcher events.
func (w *watchWorker) mainEventLoop(ctx context.Context, gitLocked *bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}

			if handled, newGitLocked := w.handleGitLockEvent(event, gitLocked); handled {
				*gitLocked = newGitLocked
				if !*gitLocked { // Transitioned from locked to unlocked
					w.reconcileAfterGitUnlock(ctx)
				}
				continue
			}

			if *gitLocked {
				continue
			}

			w.processFilesystemEvent(ctx, event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.handleWatcherError(wErr)
		}
	}
}

// recursiveAdd registers the store root and every collection directory
// with the fsnotify watcher.
func (r *Repository) recursiveAdd(watcher *fsnotify.Watcher) error {
	if err := watcher.Add(r.Path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.Path, err)
	}

	entries, err := os.ReadDir(r.Path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == ".git" || name == r.config.SystemDir || strings.HasPrefix(name, ".") {
			continue
		}
		if err := watcher.Add(filepath.Join(r.Path, name)); err != nil {
			return fmt.Errorf("failed to watch collection %s: %w", name, err)
		}
	}
	return nil
}

// shouldIgnorePath filters out bookkeeping and non-record paths.
func (r *Repository) shouldIgnorePath(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, TempFilePrefix) || strings.HasPrefix(base, ".") {
		return true
	}

	rel, err := filepath.Rel(r.Path, path)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, ".git/") || strings.HasPrefix(rel, r.config.SystemDir+"/") {
		return true
	}

	if _, ok := r.serializers[filepath.Ext(base)]; !ok {
		return true
	}
	return false
}

// resolveEvent maps an absolute file path to its collection and key
// rendering.
func (r *Repository) resolveEvent(path string) (collection, id string, err error) {
	rel, err := filepath.Rel(r.Path, path)
	if err != nil {
		return "", "", err
	}
	rel = filepath.ToSlash(rel)

	parts := strings.Split(rel, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("path %q is not a collection record", rel)
	}
	collection = parts[0]
	id = strings.TrimSuffix(parts[1], filepath.Ext(parts[1]))
	if collection == "" || id == "" {
		return "", "", fmt.Errorf("path %q is not a collection record", rel)
	}
	return collection, id, nil
}

func mapEventType(event fsnotify.Event) core.EventType {
	switch {
	case event.Has(fsnotify.Create):
		return core.EventCreate
	case event.Has(fsnotify.Write):
		return core.EventModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return core.EventDelete
	default:
		return ""
	}
}

// Reconcile compares the on-disk state with the metadata index and
// returns the events that happened while the watcher was paused (git
// operations, external bulk edits). The index is refreshed as a side
// effect.
func (r *Repository) Reconcile(ctx context.Context) ([]core.Event, error) {
	_ = r.cache.Load()

	before := make(map[string]time.Time)
	r.cache.Range(func(relPath string, entry *indexEntry) bool {
		before[relPath] = entry.LastModified
		return true
	})

	var events []core.Event
	now := time.Now().Unix()
	seen := make(map[string]bool)

	collections, err := r.Collections(ctx)
	if err != nil {
		return nil, err
	}
	for _, collection := range collections {
		recs, err := r.List(ctx, collection)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			relPath, _, ok := r.findFile(collection, rec.Key)
			if !ok {
				continue
			}
			seen[relPath] = true

			info, err := os.Stat(filepath.Join(r.Path, relPath))
			if err != nil {
				continue
			}

			prev, existed := before[relPath]
			switch {
			case !existed:
				events = append(events, core.Event{
					Type: core.EventCreate, Collection: collection, ID: rec.Key.String(), Timestamp: now,
				})
			case !prev.Equal(info.ModTime()):
				events = append(events, core.Event{
					Type: core.EventModify, Collection: collection, ID: rec.Key.String(), Timestamp: now,
				})
			}
		}
	}

	for relPath := range before {
		if seen[relPath] {
			continue
		}
		dir, file := filepath.Split(relPath)
		collection := strings.TrimSuffix(dir, "/")
		id := strings.TrimSuffix(file, filepath.Ext(file))
		events = append(events, core.Event{
			Type: core.EventDelete, Collection: collection, ID: id, Timestamp: now,
		})
		r.cache.Delete(relPath)
	}
	_ = r.cache.Save()

	r.recordReconcile()
	return events, nil
}
