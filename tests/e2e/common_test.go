package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// buildSiltBinary builds the silt binary in the specified directory and returns its path.
// It handles the build command execution and error checking.
func buildSiltBinary(t *testing.T, dir string) string {
	t.Helper()
	siltBin := filepath.Join(dir, "silt.exe")
	buildCmd := exec.Command("go", "build", "-o", siltBin, "../../cmd/silt")
	if out, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build silt: %v\n%s", err, string(out))
	}
	return siltBin
}

func run(t *testing.T, dir string, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	fmt.Printf("[%s] Executing: %s %v\n", dir, name, args)
	if err := cmd.Run(); err != nil {
		t.Fatalf("Command %s %v failed in %s: %v", name, args, dir, err)
	}
}
