package model

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/silt/pkg/adapters/fs"
	"github.com/aretw0/silt/pkg/adapters/memory"
	"github.com/aretw0/silt/pkg/schema"
)

func TestRegisterWithRepository(t *testing.T) {
	ctx := context.Background()

	dir := t.TempDir()
	fsRepo := fs.NewRepository(fs.Config{
		Path:    dir,
		Gitless: true,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := fsRepo.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	memRepo := memory.NewRepository()

	reg := NewRegistry(fsRepo)

	durable, err := Register[account](reg, accountSchema(t))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	scratch, err := Register[account](reg,
		accountSchema(t, schema.WithCollection("scratch")),
		WithCustomName("Scratch"),
		WithRepository(memRepo),
	)
	if err != nil {
		t.Fatalf("register with repository: %v", err)
	}

	if err := durable.Create(ctx, &account{Email: "a@b.c", Name: "A"}); err != nil {
		t.Fatalf("create on fs model: %v", err)
	}
	if err := scratch.Create(ctx, &account{Email: "x@y.z", Name: "X"}); err != nil {
		t.Fatalf("create on memory model: %v", err)
	}

	// The override routes the model's writes to the memory backend.
	recs, err := memRepo.List(ctx, "scratch")
	if err != nil {
		t.Fatalf("list memory: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("memory repository holds %d records, want 1", len(recs))
	}
	if _, err := os.Stat(filepath.Join(dir, "scratch")); !os.IsNotExist(err) {
		t.Errorf("overridden model leaked to disk: %v", err)
	}

	// The registry's own repository still serves the other model.
	entries, err := os.ReadDir(filepath.Join(dir, "accounts"))
	if err != nil {
		t.Fatalf("read accounts dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("accounts on disk = %d, want 1", len(entries))
	}

	got, err := scratch.FindOne(ctx, func(a *account) bool { return a.Name == "X" })
	if err != nil {
		t.Fatalf("find on memory model: %v", err)
	}
	if got.Email != "x@y.z" {
		t.Errorf("email = %q", got.Email)
	}
}
