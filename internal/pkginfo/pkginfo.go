// Package pkginfo derives the package descriptor from the debian/
// metadata of a working tree. The descriptor is read from disk after the
// changelog has been generated and must be recomputed if the changelog
// changes.
package pkginfo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/droidian-releng/releng-tools/internal/relerr"
)

// quiltFormat is the debian/source/format marker for non-native packages.
const quiltFormat = "3.0 (quilt)"

// Descriptor describes the source package being built.
type Descriptor struct {
	// Name is the source package name from the changelog.
	Name string
	// Version is the full version from the changelog, epoch and
	// revision included.
	Version string
	// OrigVersion is Version with epoch and debian revision stripped,
	// i.e. the upstream version the orig tarball is named after.
	OrigVersion string
	// IsNative is false when the package is tracked as a patch series
	// against an upstream import (quilt format).
	IsNative bool
}

// OrigVersionTag returns the tag-safe form of OrigVersion: the `~`
// pre-release separator is not a valid ref character, so it maps to `_`.
func (d *Descriptor) OrigVersionTag() string {
	return strings.ReplaceAll(d.OrigVersion, "~", "_")
}

// UpstreamRef returns the upstream ref the staging area checks out.
func (d *Descriptor) UpstreamRef() string {
	return "upstream/" + d.OrigVersionTag()
}

// Read parses the descriptor from the debian/ directory under workingRoot.
func Read(workingRoot string) (*Descriptor, error) {
	name, version, err := parseChangelogHead(filepath.Join(workingRoot, "debian", "changelog"))
	if err != nil {
		return nil, err
	}

	native, err := isNative(filepath.Join(workingRoot, "debian", "source", "format"))
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Name:        name,
		Version:     version,
		OrigVersion: stripEpochAndRevision(version),
		IsNative:    native,
	}, nil
}

// parseChangelogHead reads the first changelog stanza header:
// "name (version) release; urgency=medium".
func parseChangelogHead(path string) (name, version string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", relerr.Wrap(err, relerr.CategoryFileSystem, "cannot read debian/changelog")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", "", relerr.New(relerr.CategoryFileSystem, "debian/changelog is empty").
			WithContext("path", path)
	}

	fields := strings.Fields(scanner.Text())
	if len(fields) < 2 || !strings.HasPrefix(fields[1], "(") || !strings.HasSuffix(fields[1], ")") {
		return "", "", relerr.New(relerr.CategoryFileSystem, "malformed debian/changelog first line").
			WithContext("line", scanner.Text())
	}
	return fields[0], strings.Trim(fields[1], "()"), nil
}

// IsNative reports whether the package under workingRoot is native,
// without requiring a changelog to exist yet.
func IsNative(workingRoot string) (bool, error) {
	return isNative(filepath.Join(workingRoot, "debian", "source", "format"))
}

// isNative inspects debian/source/format. A missing file means native.
func isNative(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, relerr.Wrap(err, relerr.CategoryFileSystem, "cannot read debian/source/format")
	}
	return strings.TrimSpace(string(data)) != quiltFormat, nil
}

// stripEpochAndRevision reduces a full debian version to the upstream
// version: drop a leading "epoch:" and the revision after the last dash.
func stripEpochAndRevision(version string) string {
	if i := strings.Index(version, ":"); i >= 0 {
		version = version[i+1:]
	}
	if i := strings.LastIndex(version, "-"); i >= 0 {
		version = version[:i]
	}
	return version
}

// SourceName reads the Source: field from debian/control. Used to
// cross-check the changelog-derived name in diagnostics.
func SourceName(workingRoot string) (string, error) {
	path := filepath.Join(workingRoot, "debian", "control")
	f, err := os.Open(path)
	if err != nil {
		return "", relerr.Wrap(err, relerr.CategoryFileSystem, "cannot read debian/control")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if after, ok := strings.CutPrefix(scanner.Text(), "Source:"); ok {
			return strings.TrimSpace(after), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan debian/control: %w", err)
	}
	return "", relerr.New(relerr.CategoryFileSystem, "no Source field in debian/control").
		WithContext("path", path)
}
