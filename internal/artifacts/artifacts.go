// Package artifacts moves build outputs out of the staging area so
// they survive the ephemeral temp directory.
package artifacts

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/droidian-releng/releng-tools/internal/logfields"
	"github.com/droidian-releng/releng-tools/internal/relerr"
)

// suffixes is the allow-list of build output file names worth keeping.
var suffixes = []string{
	".deb",
	".udeb",
	".ddeb",
	".dsc",
	".buildinfo",
	".changes",
	".tar.gz",
	".tar.xz",
	".tar.bz2",
}

// Relocate moves every recognized build output from stagingParent into
// destDir. The scan is non-recursive: the toolchain drops its outputs
// next to the build root, never deeper. Finding nothing is not an
// error, a source-only build legitimately produces a reduced set.
func Relocate(stagingParent, destDir string) ([]string, error) {
	entries, err := os.ReadDir(stagingParent)
	if err != nil {
		return nil, relerr.Wrap(err, relerr.CategoryFileSystem, "cannot scan staging directory").
			WithContext("path", stagingParent)
	}

	var moved []string
	for _, entry := range entries {
		if entry.IsDir() || !wanted(entry.Name()) {
			continue
		}
		src := filepath.Join(stagingParent, entry.Name())
		dst := filepath.Join(destDir, entry.Name())
		if err := moveFile(src, dst); err != nil {
			return moved, relerr.Wrap(err, relerr.CategoryFileSystem, "cannot relocate build artifact").
				WithContext("artifact", entry.Name())
		}
		slog.Info("Relocated artifact", logfields.Path(dst))
		moved = append(moved, entry.Name())
	}

	if len(moved) == 0 {
		slog.Info("No artifacts to relocate", logfields.Path(stagingParent))
	}
	return moved, nil
}

func wanted(name string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// moveFile renames when possible and falls back to copy+remove, the
// staging area usually lives on a different filesystem than the
// checkout.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
