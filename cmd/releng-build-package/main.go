// releng-build-package builds the Debian package in the current
// checkout the way the surrounding CI pipeline expects: resolve the CI
// context from the environment, regenerate the changelog, stage
// non-native sources, run the build toolchain and collect artifacts.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/droidian-releng/releng-tools/internal/artifacts"
	"github.com/droidian-releng/releng-tools/internal/builder"
	"github.com/droidian-releng/releng-tools/internal/changelog"
	"github.com/droidian-releng/releng-tools/internal/ci"
	"github.com/droidian-releng/releng-tools/internal/config"
	"github.com/droidian-releng/releng-tools/internal/logfields"
	"github.com/droidian-releng/releng-tools/internal/pkginfo"
	"github.com/droidian-releng/releng-tools/internal/staging"
	"github.com/droidian-releng/releng-tools/internal/version"
	"github.com/droidian-releng/releng-tools/internal/workspace"
)

var CLI struct {
	WorkingDir string           `short:"C" help:"Package checkout to build" default:"."`
	Verbose    bool             `short:"v" help:"Enable verbose logging"`
	Version    kong.VersionFlag `help:"Print version and exit"`
}

func main() {
	kong.Parse(&CLI,
		kong.Description("CI package build orchestrator"),
		kong.Vars{"version": version.Version},
	)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := runBuild(context.Background()); err != nil {
		slog.Error("Build failed", logfields.Error(err))
		fmt.Fprintf(os.Stderr, "E: %v\n", err)
		os.Exit(1)
	}
}

func runBuild(ctx context.Context) error {
	workingRoot, err := filepath.Abs(CLI.WorkingDir)
	if err != nil {
		return err
	}

	// Container runs may ship their CI variables in an env file
	// alongside the checkout; real process env always wins.
	if err := config.LoadEnvFile(filepath.Join(workingRoot, ".releng.env")); err != nil {
		return err
	}

	settings, err := config.Load(workingRoot)
	if err != nil {
		return err
	}

	bctx, err := ci.Resolve(ci.Snapshot(), ci.Options{
		TagPrefixes:  settings.TagPrefixes(),
		BranchPrefix: settings.BranchPrefix,
		WorkingRoot:  workingRoot,
	})
	if err != nil {
		return err
	}

	slog.Info("Resolved build context",
		logfields.Provider(string(bctx.Provider)),
		logfields.Branch(bctx.Branch),
		logfields.Tag(bctx.Tag),
		logfields.Commit(bctx.Commit),
		logfields.BuildType(string(bctx.BuildType)),
		logfields.Comment(bctx.Comment))

	err = changelog.Invoke(ctx, bctx, changelog.InvokeOptions{
		WorkingRoot:      workingRoot,
		TagPrefixes:      settings.TagPrefixes(),
		BranchPrefix:     settings.BranchPrefix,
		RestoreCommitted: bctx.Provider == ci.ProviderLocalContainer,
	})
	if err != nil {
		return err
	}

	desc, err := pkginfo.Read(workingRoot)
	if err != nil {
		return err
	}
	slog.Info("Package descriptor",
		logfields.Package(desc.Name),
		logfields.Version(desc.Version),
		slog.Bool("native", desc.IsNative))

	buildRoot := workingRoot
	var ws *workspace.Manager
	if !desc.IsNative {
		ws = workspace.NewManager("")
		if err := ws.Create(); err != nil {
			return err
		}

		// Tag builds may carry no branch name; the checkout's HEAD is
		// the packaging revision either way.
		branch := bctx.Branch
		if branch == "" {
			branch = "HEAD"
		}

		area, err := staging.Prepare(ctx, desc, staging.Options{
			WorkingRoot:   workingRoot,
			Branch:        branch,
			BuildRoot:     ws.BuildRoot(desc.Name),
			StagingParent: ws.Path(),
		})
		if err != nil {
			return err
		}
		buildRoot = area.BuildRoot
	}

	b := &builder.Builder{Settings: *settings}
	if err := b.Run(ctx, bctx.BuildType, buildRoot); err != nil {
		return err
	}

	if !desc.IsNative {
		moved, err := artifacts.Relocate(ws.Path(), filepath.Dir(workingRoot))
		if err != nil {
			return err
		}
		slog.Info("Build finished", slog.Int("artifacts", len(moved)))
		return nil
	}

	slog.Info("Build finished")
	return nil
}
