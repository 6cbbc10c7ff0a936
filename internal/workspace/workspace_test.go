package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManagerLifecycle(t *testing.T) {
	base := t.TempDir()
	mgr := NewManager(base)

	if err := mgr.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	path := mgr.Path()
	if path == "" {
		t.Fatal("Path() returned empty string")
	}
	if !strings.HasPrefix(filepath.Base(path), "releng-") {
		t.Errorf("expected releng- prefixed directory, got: %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("staging directory does not exist: %v", err)
	}

	if err := mgr.Cleanup(); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("staging directory still exists after cleanup: %s", path)
	}
}

func TestManagerExclusivePerRun(t *testing.T) {
	base := t.TempDir()

	a := NewManager(base)
	b := NewManager(base)
	if err := a.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := b.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if a.Path() == b.Path() {
		t.Errorf("two runs share a staging directory: %s", a.Path())
	}
}

func TestBuildRoot(t *testing.T) {
	mgr := NewManager(t.TempDir())

	if got := mgr.BuildRoot("libexample"); got != "" {
		t.Errorf("expected empty build root before Create, got %s", got)
	}

	if err := mgr.Create(); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	want := filepath.Join(mgr.Path(), "libexample")
	if got := mgr.BuildRoot("libexample"); got != want {
		t.Errorf("BuildRoot = %s, want %s", got, want)
	}
}
