// Package builder drives the package-build toolchain: extra apt
// repositories, build dependency installation, and the debuild
// invocation itself.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/droidian-releng/releng-tools/internal/ci"
	"github.com/droidian-releng/releng-tools/internal/config"
	"github.com/droidian-releng/releng-tools/internal/logfields"
	"github.com/droidian-releng/releng-tools/internal/relerr"
	"github.com/droidian-releng/releng-tools/internal/run"
)

// DefaultSourcesFragment is where extra apt repositories get written.
const DefaultSourcesFragment = "/etc/apt/sources.list.d/releng-extra-repos.list"

// Builder assembles and runs the toolchain commands for one build.
type Builder struct {
	Settings config.Settings
	// SourcesFragment overrides DefaultSourcesFragment, mainly for tests.
	SourcesFragment string
}

// Run executes the full build phase inside buildRoot: apply extra
// repositories, install build dependencies, then build the package.
// Every failure is fatal.
func (b *Builder) Run(ctx context.Context, buildType ci.BuildType, buildRoot string) error {
	if err := b.applyExtraRepos(ctx, buildType); err != nil {
		return err
	}
	if err := b.installBuildDeps(ctx, buildRoot); err != nil {
		return err
	}
	return b.build(ctx, buildRoot)
}

// applyExtraRepos writes the configured extra apt sources and runs
// apt-get update. Extra repositories are a feature-branch facility:
// outside feature-branch builds they are refused unless explicitly
// forced, and the refusal happens before any apt state is touched.
func (b *Builder) applyExtraRepos(ctx context.Context, buildType ci.BuildType) error {
	if len(b.Settings.ExtraRepos) == 0 {
		return nil
	}
	if buildType != ci.BuildTypeFeatureBranch && !b.Settings.ForceExtraRepos {
		return relerr.New(relerr.CategoryPolicy, "extra repositories are only allowed on feature branch builds").
			WithContext("buildType", string(buildType))
	}

	if err := b.writeSourcesFragment(); err != nil {
		return err
	}

	if err := run.Run(ctx, run.Command{Name: "apt-get", Args: []string{"update"}}); err != nil {
		return relerr.Wrap(err, relerr.CategoryDependency, "apt-get update failed")
	}
	return nil
}

func (b *Builder) writeSourcesFragment() error {
	fragment := b.SourcesFragment
	if fragment == "" {
		fragment = DefaultSourcesFragment
	}

	slog.Info("Enabling extra repositories",
		logfields.Path(fragment),
		slog.Int("count", len(b.Settings.ExtraRepos)))

	content := strings.Join(b.Settings.ExtraRepos, "\n") + "\n"
	if err := os.WriteFile(fragment, []byte(content), 0o644); err != nil {
		return relerr.Wrap(err, relerr.CategoryFileSystem, "cannot write apt sources fragment").
			WithContext("path", fragment)
	}
	return nil
}

// installBuildDeps installs the package's build dependencies via
// mk-build-deps, which turns debian/control into a throwaway deps
// package and installs it through apt.
func (b *Builder) installBuildDeps(ctx context.Context, buildRoot string) error {
	cmd := run.Command{
		Name: "mk-build-deps",
		Args: []string{
			"--install",
			"--remove",
			"--tool", "apt-get -y -o Debug::pkgProblemResolver=yes --no-install-recommends",
			"debian/control",
		},
		Dir: buildRoot,
	}
	if err := run.Run(ctx, cmd); err != nil {
		return relerr.Wrap(err, relerr.CategoryDependency, "build dependency installation failed")
	}
	return nil
}

func (b *Builder) build(ctx context.Context, buildRoot string) error {
	cmd := run.Command{
		Name: "debuild",
		Args: b.debuildArgs(),
		Dir:  buildRoot,
	}
	slog.Info("Building package", logfields.Command(cmd.String()), logfields.Path(buildRoot))
	if err := run.Run(ctx, cmd); err != nil {
		return relerr.Wrap(err, relerr.CategoryBuild, "package build failed")
	}
	return nil
}

// debuildArgs assembles the debuild invocation. Signing is always off,
// and the build scope defaults to binary-only unless a full build is
// requested.
func (b *Builder) debuildArgs() []string {
	args := []string{"--no-lintian", "-us", "-uc"}
	if !b.Settings.FullBuild {
		args = append(args, "-b")
	}
	if b.Settings.HostArch != "" {
		args = append(args, fmt.Sprintf("--host-arch=%s", b.Settings.HostArch), "-d")
	}
	args = append(args, fmt.Sprintf("-j%d", b.Settings.Jobs))
	return args
}
