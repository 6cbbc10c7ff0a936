package staging

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/droidian-releng/releng-tools/internal/pkginfo"
	"github.com/droidian-releng/releng-tools/internal/relerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	base := []string{
		"-C", dir,
		"-c", "user.name=Alice Example",
		"-c", "user.email=alice@example.com",
	}
	// #nosec G204 -- test helper executing git with controlled args
	cmd := exec.CommandContext(context.Background(), "git", append(base, args...)...)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_DATE=2024-03-01T12:00:00+00:00",
		"GIT_COMMITTER_DATE=2024-03-01T12:00:00+00:00",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, string(out))
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// quiltRepo builds a checkout with one upstream commit (tagged
// upstream/1.0) and one packaging commit on top carrying debian/ plus
// an upstream source change.
func quiltRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	gitRun(t, root, "init", "-b", "droidian")

	writeFile(t, root, "main.c", "int main(void) { return 0; }\n")
	writeFile(t, root, "README", "testpkg\n")
	gitRun(t, root, "add", ".")
	gitRun(t, root, "commit", "-m", "Import upstream")
	gitRun(t, root, "tag", "upstream/1.0")

	writeFile(t, root, "main.c", "int main(void) { return 42; }\n")
	writeFile(t, root, "debian/changelog",
		"testpkg (1.0-1) trixie; urgency=medium\n\n  * Initial packaging.\n\n -- Alice Example <alice@example.com>  Fri, 01 Mar 2024 12:00:00 +0000\n")
	writeFile(t, root, "debian/control",
		"Source: testpkg\n\nPackage: testpkg\nArchitecture: any\n")
	writeFile(t, root, "debian/source/format", "3.0 (quilt)\n")
	gitRun(t, root, "add", ".")
	gitRun(t, root, "commit", "-m", "Add packaging")

	return root
}

func TestPrepareStagesQuiltPackage(t *testing.T) {
	workingRoot := quiltRepo(t)
	desc, err := pkginfo.Read(workingRoot)
	require.NoError(t, err)
	require.False(t, desc.IsNative)

	stagingParent := t.TempDir()
	opts := Options{
		WorkingRoot:   workingRoot,
		Branch:        "droidian",
		BuildRoot:     filepath.Join(stagingParent, desc.Name),
		StagingParent: stagingParent,
	}

	area, err := Prepare(context.Background(), desc, opts)
	require.NoError(t, err)

	// The staged tree holds the upstream revision of the source.
	staged, err := os.ReadFile(filepath.Join(area.BuildRoot, "main.c"))
	require.NoError(t, err)
	assert.Equal(t, "int main(void) { return 0; }\n", string(staged))

	// The working tree's packaging replaces whatever upstream carried.
	_, err = os.Stat(filepath.Join(area.BuildRoot, "debian", "control"))
	assert.NoError(t, err)

	assert.Equal(t, filepath.Join(stagingParent, "testpkg_1.0.orig.tar.gz"), area.OrigTarball)
	assertOrigTarball(t, area.OrigTarball, "testpkg-1.0/")

	patch, err := os.ReadFile(filepath.Join(workingRoot, "debian", "patches", PatchName))
	require.NoError(t, err)
	assert.Contains(t, string(patch), "main.c")
	assert.Contains(t, string(patch), "+int main(void) { return 42; }")
	assert.NotContains(t, string(patch), "debian/control")

	series, err := os.ReadFile(filepath.Join(workingRoot, "debian", "patches", "series"))
	require.NoError(t, err)
	assert.Equal(t, PatchName+"\n", string(series))

	// The patch series travels with the staged packaging too.
	_, err = os.Stat(filepath.Join(area.BuildRoot, "debian", "patches", PatchName))
	assert.NoError(t, err)
}

func assertOrigTarball(t *testing.T, path, wantPrefix string) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gzr, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gzr)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}

	require.NotEmpty(t, names)
	for _, name := range names {
		assert.True(t, strings.HasPrefix(name, wantPrefix), "entry %q lacks prefix %q", name, wantPrefix)
		assert.NotContains(t, name, "/debian/")
		assert.NotContains(t, name, "/.git")
	}
	assert.Contains(t, names, wantPrefix+"main.c")
	assert.Contains(t, names, wantPrefix+"README")
}

func TestPrepareMissingUpstreamTag(t *testing.T) {
	workingRoot := quiltRepo(t)
	gitRun(t, workingRoot, "tag", "-d", "upstream/1.0")

	desc, err := pkginfo.Read(workingRoot)
	require.NoError(t, err)

	stagingParent := t.TempDir()
	_, err = Prepare(context.Background(), desc, Options{
		WorkingRoot:   workingRoot,
		Branch:        "droidian",
		BuildRoot:     filepath.Join(stagingParent, desc.Name),
		StagingParent: stagingParent,
	})
	require.Error(t, err)
	assert.True(t, relerr.IsCategory(err, relerr.CategoryUpstreamTag))
}

func TestPrepareRefusesNativePackage(t *testing.T) {
	desc := &pkginfo.Descriptor{Name: "testpkg", Version: "1.0", IsNative: true}
	_, err := Prepare(context.Background(), desc, Options{})
	require.Error(t, err)
	assert.True(t, relerr.IsCategory(err, relerr.CategoryInternal))
}

func TestExcludedFromOrig(t *testing.T) {
	cases := []struct {
		rel  string
		want bool
	}{
		{"debian", true},
		{"debian/control", true},
		{"debian/patches/series", true},
		{".git", true},
		{"sub/.git", true},
		{".gitmodules", true},
		{"vendor/.gitattributes", true},
		{"main.c", false},
		{"src/debianish.c", false},
		{"docs/debian-notes.md", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, excludedFromOrig(tc.rel), tc.rel)
	}
}

func TestPackagingPath(t *testing.T) {
	assert.True(t, packagingPath(""))
	assert.True(t, packagingPath("debian"))
	assert.True(t, packagingPath("debian/rules"))
	assert.True(t, packagingPath(".gitmodules"))
	assert.False(t, packagingPath("main.c"))
	assert.False(t, packagingPath("debianish"))
}
