// Package config resolves the RELENG_* tunables driving a build run.
//
// Values come from, in increasing precedence: built-in defaults, an
// optional per-package debian/releng.yaml override file, and the process
// environment. Container runs may additionally carry an env file which is
// loaded without overriding already-set variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/droidian-releng/releng-tools/internal/logfields"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names understood by Load.
const (
	EnvTagPrefix       = "RELENG_TAG_PREFIX"
	EnvLegacyTagPrefix = "RELENG_LEGACY_TAG_PREFIX"
	EnvBranchPrefix    = "RELENG_BRANCH_PREFIX"
	EnvFullBuild       = "RELENG_FULL_BUILD"
	EnvHostArch        = "RELENG_HOST_ARCH"
	EnvJobs            = "RELENG_JOBS"
	EnvExtraRepos      = "EXTRA_REPOS"
	EnvForceExtraRepos = "RELENG_FORCE_EXTRA_REPOS"
)

// Defaults for the tunables.
const (
	DefaultTagPrefix       = "droidian/"
	DefaultLegacyTagPrefix = "hybris-mobian/"
	DefaultBranchPrefix    = "feature/"
)

// Settings holds the resolved tunables for one run.
type Settings struct {
	TagPrefix       string
	LegacyTagPrefix string
	BranchPrefix    string
	FullBuild       bool
	HostArch        string
	Jobs            int
	ExtraRepos      []string
	ForceExtraRepos bool
}

// overrideFile is the shape of an optional debian/releng.yaml.
type overrideFile struct {
	TagPrefix       string `yaml:"tag_prefix"`
	LegacyTagPrefix string `yaml:"legacy_tag_prefix"`
	BranchPrefix    string `yaml:"branch_prefix"`
}

// Load resolves Settings for a run rooted at workingRoot.
func Load(workingRoot string) (*Settings, error) {
	s := &Settings{
		TagPrefix:       DefaultTagPrefix,
		LegacyTagPrefix: DefaultLegacyTagPrefix,
		BranchPrefix:    DefaultBranchPrefix,
		Jobs:            runtime.NumCPU(),
	}

	if err := s.applyOverrideFile(filepath.Join(workingRoot, "debian", "releng.yaml")); err != nil {
		return nil, err
	}
	s.applyEnvironment()

	if s.Jobs < 1 {
		s.Jobs = 1
	}
	return s, nil
}

func (s *Settings) applyOverrideFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read override file %s: %w", path, err)
	}

	var ov overrideFile
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return fmt.Errorf("parse override file %s: %w", path, err)
	}
	if ov.TagPrefix != "" {
		s.TagPrefix = ov.TagPrefix
	}
	if ov.LegacyTagPrefix != "" {
		s.LegacyTagPrefix = ov.LegacyTagPrefix
	}
	if ov.BranchPrefix != "" {
		s.BranchPrefix = ov.BranchPrefix
	}
	slog.Debug("Applied releng override file", logfields.Path(path))
	return nil
}

func (s *Settings) applyEnvironment() {
	if v := os.Getenv(EnvTagPrefix); v != "" {
		s.TagPrefix = v
	}
	if v := os.Getenv(EnvLegacyTagPrefix); v != "" {
		s.LegacyTagPrefix = v
	}
	if v := os.Getenv(EnvBranchPrefix); v != "" {
		s.BranchPrefix = v
	}
	s.FullBuild = isYes(os.Getenv(EnvFullBuild))
	s.HostArch = os.Getenv(EnvHostArch)
	s.ForceExtraRepos = isYes(os.Getenv(EnvForceExtraRepos))

	if v := os.Getenv(EnvJobs); v != "" {
		var jobs int
		if _, err := fmt.Sscanf(v, "%d", &jobs); err == nil && jobs > 0 {
			s.Jobs = jobs
		} else {
			slog.Warn("Ignoring invalid job count", slog.String("value", v))
		}
	}

	if v := os.Getenv(EnvExtraRepos); v != "" {
		for _, line := range strings.Split(v, "|") {
			line = strings.TrimSpace(line)
			if line != "" {
				s.ExtraRepos = append(s.ExtraRepos, line)
			}
		}
	}
}

// TagPrefixes returns the acceptable tag prefixes, current first. Both
// refer to the same logical release-name extraction.
func (s *Settings) TagPrefixes() []string {
	prefixes := []string{s.TagPrefix}
	if s.LegacyTagPrefix != "" && s.LegacyTagPrefix != s.TagPrefix {
		prefixes = append(prefixes, s.LegacyTagPrefix)
	}
	return prefixes
}

// LoadEnvFile loads KEY=VALUE pairs from the first existing candidate
// file. Variables already present in the process environment win.
func LoadEnvFile(candidates ...string) error {
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		slog.Debug("Loaded environment file", logfields.Path(path))
		return nil
	}
	return nil
}

func isYes(v string) bool {
	return strings.EqualFold(v, "yes")
}
