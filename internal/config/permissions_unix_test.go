//go:build unix

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database: {}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if w := checkFilePermissions(path); w != "" {
		t.Errorf("0600 file warned: %s", w)
	}

	if err := os.Chmod(path, 0644); err != nil {
		t.Fatal(err)
	}
	w := checkFilePermissions(path)
	if !strings.Contains(w, "(0644)") || !strings.Contains(w, "chmod 600") {
		t.Errorf("unexpected warning %q", w)
	}

	if w := checkFilePermissions(filepath.Join(t.TempDir(), "missing")); w != "" {
		t.Errorf("missing file warned: %s", w)
	}
}
