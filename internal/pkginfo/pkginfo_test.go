package pkginfo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestReadNonNative(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"debian/changelog":     "libexample (1:2.4.1~rc1-3) trixie; urgency=medium\n\n  * Entry\n",
		"debian/source/format": "3.0 (quilt)\n",
	})

	d, err := Read(root)
	require.NoError(t, err)

	assert.Equal(t, "libexample", d.Name)
	assert.Equal(t, "1:2.4.1~rc1-3", d.Version)
	assert.Equal(t, "2.4.1~rc1", d.OrigVersion)
	assert.False(t, d.IsNative)
	assert.Equal(t, "2.4.1_rc1", d.OrigVersionTag())
	assert.Equal(t, "upstream/2.4.1_rc1", d.UpstreamRef())
}

func TestReadNativeWithoutSourceFormat(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"debian/changelog": "tool (0.9+git20240101.abc1234.droidian) trixie; urgency=medium\n",
	})

	d, err := Read(root)
	require.NoError(t, err)

	assert.True(t, d.IsNative)
	assert.Equal(t, "0.9+git20240101.abc1234.droidian", d.OrigVersion)
}

func TestReadNativeFormat(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"debian/changelog":     "tool (1.0) trixie; urgency=medium\n",
		"debian/source/format": "3.0 (native)\n",
	})

	d, err := Read(root)
	require.NoError(t, err)
	assert.True(t, d.IsNative)
}

func TestReadMissingChangelog(t *testing.T) {
	_, err := Read(t.TempDir())
	require.Error(t, err)
}

func TestReadMalformedChangelog(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"debian/changelog": "garbage without version\n",
	})
	_, err := Read(root)
	require.Error(t, err)
}

func TestOrigVersionTagRoundTrip(t *testing.T) {
	// Replacing ~ with _ and back recovers the original for versions
	// with at most one ~.
	for _, v := range []string{"1.0", "2.4.1~rc1", "0.1~git20230101"} {
		d := &Descriptor{OrigVersion: v}
		tag := d.OrigVersionTag()
		assert.NotContains(t, tag, "~")
		assert.Equal(t, v, strings.Replace(tag, "_", "~", 1))
	}
}

func TestStripEpochAndRevision(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.0-1", "1.0"},
		{"1:1.0-1", "1.0"},
		{"2.4.1~rc1-3", "2.4.1~rc1"},
		{"1.0", "1.0"},
		{"1.0-1.2-3", "1.0-1.2"}, // only the last dash starts the revision
	}
	for _, tc := range cases {
		if got := stripEpochAndRevision(tc.in); got != tc.want {
			t.Errorf("stripEpochAndRevision(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSourceName(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"debian/control": "Source: libexample\nSection: libs\n\nPackage: libexample0\n",
	})

	name, err := SourceName(root)
	require.NoError(t, err)
	assert.Equal(t, "libexample", name)
}

func TestSourceNameMissingField(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"debian/control": "Section: libs\n",
	})
	_, err := SourceName(root)
	require.Error(t, err)
}
