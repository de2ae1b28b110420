package fs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/silt/pkg/core"
)

func newTestRepo(t *testing.T, mutate ...func(*Config)) *Repository {
	t.Helper()

	cfg := Config{
		Path:    t.TempDir(),
		Gitless: true,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, m := range mutate {
		m(&cfg)
	}

	repo := NewRepository(cfg)
	if err := repo.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return repo
}

func userRecord(key core.Key, name string, age int) core.Record {
	return core.Record{
		Collection: "users",
		Key:        key,
		Fields:     core.Metadata{"name": name, "age": age},
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	key := core.StringKey("ada")
	if err := repo.Save(ctx, userRecord(key, "Ada", 36)); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(repo.Path, "users", "ada.json")); err != nil {
		t.Fatalf("record file missing: %v", err)
	}

	rec, err := repo.Get(ctx, "users", key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Fields["name"] != "Ada" {
		t.Errorf("name = %v", rec.Fields["name"])
	}
	if _, present := rec.Fields["_id"]; present {
		t.Error("_id should not leak into fields")
	}

	if _, err := repo.Get(ctx, "users", core.StringKey("ghost")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing record err = %v, want ErrNotFound", err)
	}
}

func TestObjectIDKeysOnDisk(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	key := core.NewObjectIDKey()
	if err := repo.Save(ctx, userRecord(key, "Ada", 36)); err != nil {
		t.Fatalf("save: %v", err)
	}

	recs, err := repo.List(ctx, "users")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].Key.Kind() != core.KeyObjectID || !recs[0].Key.Equal(key) {
		t.Errorf("listed key = %v (%s), want %v", recs[0].Key, recs[0].Key.Kind(), key)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	bad := []core.Record{
		{Collection: "users", Key: core.StringKey("../escape"), Fields: core.Metadata{}},
		{Collection: "users", Key: core.StringKey("a/b"), Fields: core.Metadata{}},
		{Collection: "../users", Key: core.StringKey("a"), Fields: core.Metadata{}},
		{Collection: "users", Key: core.StringKey(".hidden"), Fields: core.Metadata{}},
	}
	for _, rec := range bad {
		if err := repo.Save(ctx, rec); !errors.Is(err, core.ErrInvalidKey) {
			t.Errorf("Save(%s/%s) err = %v, want ErrInvalidKey", rec.Collection, rec.Key, err)
		}
	}

	if err := repo.Save(ctx, core.Record{Collection: "users"}); !errors.Is(err, core.ErrMissingKey) {
		t.Errorf("zero key err = %v, want ErrMissingKey", err)
	}
}

func TestReadOnlyMode(t *testing.T) {
	repo := newTestRepo(t, func(c *Config) { c.ReadOnly = true })
	ctx := context.Background()

	if err := repo.Save(ctx, userRecord(core.StringKey("x"), "X", 1)); !errors.Is(err, core.ErrReadOnly) {
		t.Errorf("save err = %v, want ErrReadOnly", err)
	}
	if err := repo.Delete(ctx, "users", core.StringKey("x")); !errors.Is(err, core.ErrReadOnly) {
		t.Errorf("delete err = %v, want ErrReadOnly", err)
	}
	if _, err := repo.Begin(ctx); !errors.Is(err, core.ErrReadOnly) {
		t.Errorf("begin err = %v, want ErrReadOnly", err)
	}
}

func TestListUsesCacheAndDetectsExternalEdits(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Save(ctx, userRecord(core.StringKey("ada"), "Ada", 36)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, userRecord(core.StringKey("bob"), "Bob", 41)); err != nil {
		t.Fatalf("save: %v", err)
	}

	recs, err := repo.List(ctx, "users")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records", len(recs))
	}

	// External edit bypassing the repository.
	path := filepath.Join(repo.Path, "users", "ada.json")
	if err := os.WriteFile(path, []byte(`{"_id":"ada","name":"Ada Lovelace"}`), 0644); err != nil {
		t.Fatalf("external write: %v", err)
	}
	bumpMtime(t, path)

	fresh := NewRepository(Config{Path: repo.Path, Gitless: true, Logger: repo.config.Logger})
	recs, err = fresh.List(ctx, "users")
	if err != nil {
		t.Fatalf("list after edit: %v", err)
	}
	for _, rec := range recs {
		if rec.Key.String() == "ada" && rec.Fields["name"] != "Ada Lovelace" {
			t.Errorf("external edit not picked up: %v", rec.Fields["name"])
		}
	}
}

func TestCollectionsAndDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Save(ctx, userRecord(core.StringKey("ada"), "Ada", 36)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, core.Record{
		Collection: "posts", Key: core.StringKey("p1"), Fields: core.Metadata{"title": "Hello"},
	}); err != nil {
		t.Fatalf("save post: %v", err)
	}

	cols, err := repo.Collections(ctx)
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if len(cols) != 2 || cols[0] != "posts" || cols[1] != "users" {
		t.Errorf("collections = %v", cols)
	}

	if err := repo.Delete(ctx, "users", core.StringKey("ada")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "users", core.StringKey("ada")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("get after delete err = %v", err)
	}
	if err := repo.Delete(ctx, "users", core.StringKey("ada")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestResaveKeepsFormat(t *testing.T) {
	repo := newTestRepo(t, func(c *Config) { c.DefaultFormat = ".yaml" })
	ctx := context.Background()

	key := core.StringKey("ada")
	if err := repo.Save(ctx, userRecord(key, "Ada", 36)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repo.Path, "users", "ada.yaml")); err != nil {
		t.Fatalf("yaml file missing: %v", err)
	}

	// Switching the default must not fork the record into a second file.
	jsonDefault := NewRepository(Config{Path: repo.Path, Gitless: true, Logger: repo.config.Logger})
	if err := jsonDefault.Save(ctx, userRecord(key, "Ada II", 37)); err != nil {
		t.Fatalf("resave: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repo.Path, "users", "ada.json")); !os.IsNotExist(err) {
		t.Error("resave created a duplicate json file")
	}

	rec, err := jsonDefault.Get(ctx, "users", key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Fields["name"] != "Ada II" {
		t.Errorf("name = %v", rec.Fields["name"])
	}
}

func TestInitializeMustExist(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	repo := NewRepository(Config{Path: missing, Gitless: true, MustExist: true})
	if err := repo.Initialize(context.Background()); err == nil {
		t.Fatal("expected error for missing store path")
	}
}
