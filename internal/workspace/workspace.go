package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/droidian-releng/releng-tools/internal/logfields"
	"github.com/google/uuid"
)

// Manager owns one run's staging directory.
type Manager struct {
	baseDir string
	dir     string
}

// NewManager creates a workspace manager rooted at baseDir, defaulting
// to the system temp directory.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// Create makes the run's staging directory. The uuid suffix guarantees
// exclusivity even when two runs start within the same second.
func (m *Manager) Create() error {
	timestamp := time.Now().Format("20060102-150405")
	dir := filepath.Join(m.baseDir, fmt.Sprintf("releng-%s-%s", timestamp, uuid.NewString()[:8]))

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	m.dir = dir
	slog.Info("Created staging workspace", logfields.Path(dir))
	return nil
}

// Path returns the staging directory, or "" before Create.
func (m *Manager) Path() string {
	return m.dir
}

// BuildRoot returns the directory the isolated source tree is assembled
// in, as a child of the staging directory named after the package.
func (m *Manager) BuildRoot(packageName string) string {
	if m.dir == "" {
		return ""
	}
	return filepath.Join(m.dir, packageName)
}

// Cleanup removes the staging directory. The build pipeline does not
// call this; it exists for tests and explicit operator tooling.
func (m *Manager) Cleanup() error {
	if m.dir == "" {
		return nil
	}
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("failed to remove staging directory: %w", err)
	}
	slog.Debug("Removed staging workspace", logfields.Path(m.dir))
	m.dir = ""
	return nil
}
