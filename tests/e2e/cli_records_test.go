package e2e

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecordCommands(t *testing.T) {
	tmpDir := t.TempDir()
	siltBin := buildSiltBinary(t, tmpDir)

	storeDir := filepath.Join(tmpDir, "store")
	if err := os.Mkdir(storeDir, 0755); err != nil {
		t.Fatal(err)
	}

	// Gitless keeps the e2e run independent of git configuration.
	run(t, storeDir, siltBin, "init", "--gitless")

	t.Run("Put And Get", func(t *testing.T) {
		run(t, storeDir, siltBin, "--gitless", "put", "tasks", "write-docs", "--data", `{"title":"Write docs","priority":"high"}`)

		b, err := os.ReadFile(filepath.Join(storeDir, "tasks", "write-docs.json"))
		if err != nil {
			t.Fatal(err)
		}
		s := string(b)
		if !strings.Contains(s, `"title": "Write docs"`) {
			t.Errorf("Expected title in record file, got:\n%s", s)
		}
		if !strings.Contains(s, `"_id": "write-docs"`) {
			t.Errorf("Expected embedded _id, got:\n%s", s)
		}

		out := runOut(t, storeDir, siltBin, "--gitless", "get", "tasks", "write-docs")
		if !strings.Contains(out, `"priority": "high"`) {
			t.Errorf("Expected priority in get output, got:\n%s", out)
		}
	})

	t.Run("List With Tag Filter", func(t *testing.T) {
		run(t, storeDir, siltBin, "--gitless", "put", "tasks", "tagged", "--data", `{"title":"Tagged","tags":["urgent"]}`)
		run(t, storeDir, siltBin, "--gitless", "put", "tasks", "untagged", "--data", `{"title":"Untagged"}`)

		out := runOut(t, storeDir, siltBin, "--gitless", "list", "tasks", "--tag", "urgent")
		if !strings.Contains(out, "tagged") {
			t.Errorf("Expected tagged record in output:\n%s", out)
		}
		if strings.Contains(out, "untagged") {
			t.Errorf("Filter leaked untagged record:\n%s", out)
		}
	})

	t.Run("Collections", func(t *testing.T) {
		out := runOut(t, storeDir, siltBin, "--gitless", "collections")
		if !strings.Contains(out, "tasks") {
			t.Errorf("Expected tasks collection, got:\n%s", out)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		run(t, storeDir, siltBin, "--gitless", "delete", "tasks", "write-docs")
		if _, err := os.Stat(filepath.Join(storeDir, "tasks", "write-docs.json")); !os.IsNotExist(err) {
			t.Error("Record file should be gone after delete")
		}
	})
}

// runOut runs a command and captures its stdout.
func runOut(t *testing.T, dir string, name string, args ...string) string {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("Command %s %v failed in %s: %v", name, args, dir, err)
	}
	return string(out)
}
