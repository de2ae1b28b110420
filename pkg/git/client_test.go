package git

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClient_Lock(t *testing.T) {
	tmpDir := t.TempDir()
	client := NewClient(tmpDir, nil)

	unlock, err := client.Lock()
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	lockPath := filepath.Join(tmpDir, ".silt.lock")
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		t.Error("Lock file not created")
	}

	unlock()

	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("Lock file not removed after unlock")
	}
}

func TestClient_Init(t *testing.T) {
	if !IsInstalled() {
		t.Skip("git not installed")
	}

	tmpDir := t.TempDir()
	client := NewClient(tmpDir, nil)

	if client.IsRepo() {
		t.Error("fresh directory should not be a repo")
	}

	if err := client.Init(); err != nil {
		t.Fatalf("Failed to init: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, ".git")); os.IsNotExist(err) {
		t.Error(".git directory not created")
	}
	if !client.IsRepo() {
		t.Error("initialized directory should be a repo")
	}
}

func TestClient_SyncWithoutRemote(t *testing.T) {
	if !IsInstalled() {
		t.Skip("git not installed")
	}

	tmpDir := t.TempDir()
	client := NewClient(tmpDir, nil)
	if err := client.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := client.Sync(); err != nil {
		t.Errorf("sync without remote should be a no-op, got %v", err)
	}
}
