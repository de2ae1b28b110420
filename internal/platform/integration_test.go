package platform_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/silt"
	"github.com/aretw0/silt/pkg/core"
	"github.com/aretw0/silt/pkg/git"
	"github.com/aretw0/silt/pkg/schema"
)

type noteDoc struct {
	silt.Base
	Title string   `json:"title"`
	Tags  []string `json:"tags,omitempty"`
}

func noteSchema(t *testing.T) *schema.Schema {
	t.Helper()
	return schema.New("Note",
		schema.WithCollection("notes"),
		schema.WithIDKind(core.KeyString),
	).
		Field("title", schema.KindString, schema.PropOptions{Required: true}).
		ArrayField("tags", schema.ArrayPropOptions{Items: schema.KindString}).
		MustBuild()
}

func setupRegistry(t *testing.T, opts ...silt.Option) (*silt.Registry, string) {
	t.Helper()
	tmpDir := t.TempDir()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	baseOpts := []silt.Option{silt.WithAutoInit(true), silt.WithLogger(logger)}
	finalOpts := append(baseOpts, opts...)

	reg, err := silt.New(tmpDir, finalOpts...)
	if err != nil {
		t.Fatalf("Failed to init registry: %v", err)
	}
	return reg, tmpDir
}

func TestModelWriteCommitsToGit(t *testing.T) {
	if !git.IsInstalled() {
		t.Skip("git not installed")
	}

	reg, tmpDir := setupRegistry(t)
	notes := silt.MustRegister[noteDoc](reg, noteSchema(t))

	ctx := context.Background()
	note := &noteDoc{Title: "Integration Test", Tags: []string{"ci", "test"}}
	note.ID = silt.StringKey("test_note")

	if err := notes.Create(ctx, note); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Check the record exists on disk.
	expectedPath := filepath.Join(tmpDir, "notes", "test_note.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Errorf("File was not created at %s", expectedPath)
	}

	// Since Save commits, status should be clean.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gitClient := git.NewClient(tmpDir, logger)
	status, err := gitClient.Status()
	if err != nil {
		t.Fatalf("Git Status failed: %v", err)
	}
	if status != "" {
		t.Errorf("Expected git status to be clean, got %s", status)
	}

	// Round-trip verification.
	loaded, err := notes.FindByID(ctx, silt.StringKey("test_note"))
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if loaded.Title != "Integration Test" {
		t.Errorf("Title mismatch: %q", loaded.Title)
	}
	if len(loaded.Tags) != 2 || loaded.Tags[0] != "ci" {
		t.Errorf("Tags mismatch: %v", loaded.Tags)
	}
	if !silt.IsDocument(loaded) {
		t.Error("loaded note should classify as a document")
	}
}

func TestChangeReasonReachesCommit(t *testing.T) {
	if !git.IsInstalled() {
		t.Skip("git not installed")
	}

	reg, tmpDir := setupRegistry(t)
	notes := silt.MustRegister[noteDoc](reg, noteSchema(t))

	reason := silt.FormatChangeReason(silt.CommitTypeDocs, "notes", "add meeting minutes", "")
	ctx := context.WithValue(context.Background(), core.ChangeReasonKey, reason)

	note := &noteDoc{Title: "Minutes"}
	note.ID = silt.StringKey("minutes")
	if err := notes.Create(ctx, note); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	out, err := git.NewClient(tmpDir, logger).Run("log", "-1", "--pretty=%s")
	if err != nil {
		t.Fatalf("git log: %v", err)
	}
	if out != "docs(notes): add meeting minutes" {
		t.Errorf("commit subject = %q", out)
	}
}

func TestGitlessRegistryRoundTrip(t *testing.T) {
	reg, tmpDir := setupRegistry(t, silt.WithVersioning(false))
	notes := silt.MustRegister[noteDoc](reg, noteSchema(t))

	ctx := context.Background()
	note := &noteDoc{Title: "Plain"}
	note.ID = silt.StringKey("plain")
	if err := notes.Create(ctx, note); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, ".git")); !os.IsNotExist(err) {
		t.Error(".git should not exist in gitless mode")
	}

	all, err := notes.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 1 || all[0].Title != "Plain" {
		t.Errorf("All = %v", all)
	}
}
