package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/silt/pkg/core"
)

func waitForEvent(t *testing.T, events <-chan core.Event) core.Event {
	t.Helper()
	select {
	case e, ok := <-events:
		if !ok {
			t.Fatal("event channel closed")
		}
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return core.Event{}
}

func TestWatchEmitsRepositoryWrites(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pre-create the collection so the directory is watched before the
	// first write lands.
	if err := os.MkdirAll(filepath.Join(repo.Path, "users"), 0755); err != nil {
		t.Fatal(err)
	}

	events, err := repo.Watch(ctx, "users/**")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := repo.Save(ctx, userRecord(core.StringKey("ada"), "Ada", 36)); err != nil {
		t.Fatalf("save: %v", err)
	}

	e := waitForEvent(t, events)
	if e.Type != core.EventCreate || e.Collection != "users" || e.ID != "ada" {
		t.Errorf("event = %v", e)
	}

	if err := repo.Delete(ctx, "users", core.StringKey("ada")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	e = waitForEvent(t, events)
	if e.Type != core.EventDelete || e.ID != "ada" {
		t.Errorf("event = %v", e)
	}
}

func TestWatchFiltersByPattern(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, dir := range []string{"users", "posts"} {
		if err := os.MkdirAll(filepath.Join(repo.Path, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}

	events, err := repo.Watch(ctx, "posts/**")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := repo.Save(ctx, userRecord(core.StringKey("ada"), "Ada", 36)); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if err := repo.Save(ctx, core.Record{
		Collection: "posts", Key: core.StringKey("p1"), Fields: core.Metadata{"title": "Hello"},
	}); err != nil {
		t.Fatalf("save post: %v", err)
	}

	e := waitForEvent(t, events)
	if e.Collection != "posts" || e.ID != "p1" {
		t.Errorf("event leaked through the pattern: %v", e)
	}
}

func TestWatchSeesExternalEdits(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := repo.Save(ctx, userRecord(core.StringKey("ada"), "Ada", 36)); err != nil {
		t.Fatalf("save: %v", err)
	}

	events, err := repo.Watch(ctx, "users/**")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	// Give fsnotify a beat to register the directories.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(repo.Path, "users", "ada.json")
	if err := os.WriteFile(path, []byte(`{"_id":"ada","name":"Ada Lovelace"}`), 0644); err != nil {
		t.Fatalf("external write: %v", err)
	}

	e := waitForEvent(t, events)
	if e.Collection != "users" || e.ID != "ada" {
		t.Errorf("event = %v", e)
	}
	if e.Type != core.EventModify && e.Type != core.EventCreate {
		t.Errorf("type = %v", e.Type)
	}
}

func TestWatchChannelClosesOnCancel(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := repo.Watch(ctx, "**")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			// Drain until close; a late buffered event is fine.
			for range events {
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}

func TestWatchRejectsBadPattern(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.Watch(context.Background(), "users/[x"); err == nil {
		t.Fatal("expected pattern error")
	}
}

func TestReconcileDetectsOfflineChanges(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Save(ctx, userRecord(core.StringKey("ada"), "Ada", 36)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, userRecord(core.StringKey("bob"), "Bob", 41)); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Establish the cache baseline.
	if _, err := repo.Reconcile(ctx); err != nil {
		t.Fatalf("baseline reconcile: %v", err)
	}

	// Offline edits: modify ada, delete bob, create carol.
	adaPath := filepath.Join(repo.Path, "users", "ada.json")
	if err := os.WriteFile(adaPath, []byte(`{"_id":"ada","name":"Ada Lovelace"}`), 0644); err != nil {
		t.Fatal(err)
	}
	bumpMtime(t, adaPath)
	if err := os.Remove(filepath.Join(repo.Path, "users", "bob.json")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo.Path, "users", "carol.json"), []byte(`{"_id":"carol","name":"Carol"}`), 0644); err != nil {
		t.Fatal(err)
	}

	events, err := repo.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got := make(map[string]core.EventType)
	for _, e := range events {
		got[e.ID] = e.Type
	}
	if got["ada"] != core.EventModify {
		t.Errorf("ada = %v, want MODIFY", got["ada"])
	}
	if got["bob"] != core.EventDelete {
		t.Errorf("bob = %v, want DELETE", got["bob"])
	}
	if got["carol"] != core.EventCreate {
		t.Errorf("carol = %v, want CREATE", got["carol"])
	}
}
