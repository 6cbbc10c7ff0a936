// releng-build-changelog regenerates debian/changelog from the git
// history of a package checkout. releng-build-package invokes it once
// per run, but it works standalone too.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/droidian-releng/releng-tools/internal/changelog"
	"github.com/droidian-releng/releng-tools/internal/logfields"
	"github.com/droidian-releng/releng-tools/internal/pkginfo"
	"github.com/droidian-releng/releng-tools/internal/version"
)

var CLI struct {
	Commit                    string           `help:"The commit to search from. Defaults to the current HEAD"`
	GitRepository             string           `help:"The git repository to search on. Defaults to the current directory" default:"."`
	Tag                       string           `help:"The eventual tag that specifies the base version of the package"`
	TagPrefix                 []string         `help:"The prefix of the tag supplied with --tag" default:"droidian/,hybris-mobian/"`
	Branch                    string           `help:"The branch where the commit is on. Defaults to the current branch"`
	BranchPrefix              string           `help:"The prefix marking feature branches" default:"feature/"`
	RollingRelease            string           `help:"The branch used for rolling releases" default:"droidian"`
	RollingReleaseReplacement string           `help:"The actual release used on rolling releases" default:"trixie"`
	Comment                   string           `help:"A slugified comment that is set as version suffix" default:"release"`
	Verbose                   bool             `short:"v" help:"Enable verbose logging"`
	Version                   kong.VersionFlag `help:"Print version and exit"`
}

func main() {
	kong.Parse(&CLI,
		kong.Description("Builds a debian/changelog file from a git history tree"),
		kong.Vars{"version": version.Version},
	)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if err := generate(); err != nil {
		slog.Error("Changelog generation failed", logfields.Error(err))
		fmt.Fprintf(os.Stderr, "E: %v\n", err)
		os.Exit(1)
	}
}

func generate() error {
	workingRoot, err := filepath.Abs(CLI.GitRepository)
	if err != nil {
		return err
	}

	gen, err := changelog.NewGenerator(workingRoot, changelog.GeneratorOptions{
		Commit:                    CLI.Commit,
		Tag:                       CLI.Tag,
		TagPrefixes:               CLI.TagPrefix,
		Branch:                    CLI.Branch,
		BranchPrefix:              CLI.BranchPrefix,
		RollingRelease:            CLI.RollingRelease,
		RollingReleaseReplacement: CLI.RollingReleaseReplacement,
		Comment:                   CLI.Comment,
	})
	if err != nil {
		return err
	}

	name, err := pkginfo.SourceName(workingRoot)
	if err != nil {
		return err
	}

	// Resolve the version up front: once the changelog is rewritten the
	// changelog-based fallback would read this run's own output.
	resolved, err := gen.Version()
	if err != nil {
		return err
	}
	fmt.Printf("I: Resulting version is %s\n", resolved)

	return gen.Write(name, filepath.Join(workingRoot, "debian", "changelog"))
}
