package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	clearRelengEnv(t)

	s, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "droidian/", s.TagPrefix)
	assert.Equal(t, "hybris-mobian/", s.LegacyTagPrefix)
	assert.Equal(t, "feature/", s.BranchPrefix)
	assert.False(t, s.FullBuild)
	assert.Empty(t, s.HostArch)
	assert.Empty(t, s.ExtraRepos)
	assert.False(t, s.ForceExtraRepos)
	assert.GreaterOrEqual(t, s.Jobs, 1)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearRelengEnv(t)
	t.Setenv(EnvTagPrefix, "custom/")
	t.Setenv(EnvFullBuild, "yes")
	t.Setenv(EnvHostArch, "arm64")
	t.Setenv(EnvJobs, "4")

	s, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "custom/", s.TagPrefix)
	assert.True(t, s.FullBuild)
	assert.Equal(t, "arm64", s.HostArch)
	assert.Equal(t, 4, s.Jobs)
}

func TestLoadInvalidJobsIgnored(t *testing.T) {
	clearRelengEnv(t)
	t.Setenv(EnvJobs, "many")

	s, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s.Jobs, 1)
}

func TestExtraReposSplitting(t *testing.T) {
	clearRelengEnv(t)
	t.Setenv(EnvExtraRepos, "deb http://a/ suite main| deb http://b/ suite main |")

	s, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"deb http://a/ suite main",
		"deb http://b/ suite main",
	}, s.ExtraRepos)
}

func TestOverrideFile(t *testing.T) {
	clearRelengEnv(t)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "debian"), 0o755))
	yaml := "tag_prefix: mobian/\nbranch_prefix: topic/\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "debian", "releng.yaml"), []byte(yaml), 0o644))

	s, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "mobian/", s.TagPrefix)
	assert.Equal(t, "topic/", s.BranchPrefix)
	// Unset keys keep their defaults.
	assert.Equal(t, "hybris-mobian/", s.LegacyTagPrefix)
}

func TestEnvironmentBeatsOverrideFile(t *testing.T) {
	clearRelengEnv(t)
	t.Setenv(EnvTagPrefix, "env/")

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "debian"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "debian", "releng.yaml"), []byte("tag_prefix: file/\n"), 0o644))

	s, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "env/", s.TagPrefix)
}

func TestTagPrefixes(t *testing.T) {
	s := &Settings{TagPrefix: "droidian/", LegacyTagPrefix: "hybris-mobian/"}
	assert.Equal(t, []string{"droidian/", "hybris-mobian/"}, s.TagPrefixes())

	// Duplicate prefixes collapse.
	s = &Settings{TagPrefix: "droidian/", LegacyTagPrefix: "droidian/"}
	assert.Equal(t, []string{"droidian/"}, s.TagPrefixes())
}

func TestLoadEnvFileDoesNotOverrideProcessEnv(t *testing.T) {
	t.Setenv("RELENG_ENVFILE_PROBE", "from-process")

	dir := t.TempDir()
	envPath := filepath.Join(dir, "releng.env")
	require.NoError(t, os.WriteFile(envPath, []byte("RELENG_ENVFILE_PROBE=from-file\nRELENG_ENVFILE_OTHER=set\n"), 0o644))

	require.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env"), envPath))

	assert.Equal(t, "from-process", os.Getenv("RELENG_ENVFILE_PROBE"))
	assert.Equal(t, "set", os.Getenv("RELENG_ENVFILE_OTHER"))
	t.Cleanup(func() { _ = os.Unsetenv("RELENG_ENVFILE_OTHER") })
}

func clearRelengEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvTagPrefix, EnvLegacyTagPrefix, EnvBranchPrefix, EnvFullBuild,
		EnvHostArch, EnvJobs, EnvExtraRepos, EnvForceExtraRepos,
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}
