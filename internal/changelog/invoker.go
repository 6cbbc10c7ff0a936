package changelog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/droidian-releng/releng-tools/internal/ci"
	"github.com/droidian-releng/releng-tools/internal/logfields"
	"github.com/droidian-releng/releng-tools/internal/relerr"
	"github.com/droidian-releng/releng-tools/internal/run"
	git "github.com/go-git/go-git/v5"
)

// GeneratorCommand is the changelog generator binary the orchestrator
// delegates to. Any program honoring the same CLI contract works.
const GeneratorCommand = "releng-build-changelog"

// InvokeOptions configures one generator invocation.
type InvokeOptions struct {
	WorkingRoot  string
	TagPrefixes  []string
	BranchPrefix string
	// RestoreCommitted restores the version-controlled changelog before
	// regeneration, so a previous run's generated changelog cannot leak
	// into this run's version baseline. Container-mode runs only.
	RestoreCommitted bool
}

// BuildArgs assembles the generator command line from the resolved
// build context: commit, comment, prefixes, and exactly one of --tag
// (production) or --branch.
func BuildArgs(bc *ci.BuildContext, opts InvokeOptions) []string {
	args := []string{
		"--commit", bc.Commit,
		"--comment", bc.Comment,
	}
	for _, p := range opts.TagPrefixes {
		args = append(args, "--tag-prefix", p)
	}
	args = append(args, "--branch-prefix", opts.BranchPrefix)

	if bc.IsProduction() {
		args = append(args, "--tag", bc.Tag)
	} else {
		args = append(args, "--branch", bc.Branch)
	}
	return args
}

// Invoke runs the external changelog generator for the resolved
// context. Generation is deterministic given identical inputs, so a
// failure is fatal and never retried.
func Invoke(ctx context.Context, bc *ci.BuildContext, opts InvokeOptions) error {
	if opts.RestoreCommitted {
		if err := restoreCommittedChangelog(opts.WorkingRoot); err != nil {
			return err
		}
	}

	cmd := run.Command{
		Name: GeneratorCommand,
		Args: BuildArgs(bc, opts),
		Dir:  opts.WorkingRoot,
	}
	slog.Info("Generating changelog", logfields.Command(cmd.String()))
	if err := run.Run(ctx, cmd); err != nil {
		return relerr.Wrap(err, relerr.CategoryChangelog, "changelog generation failed")
	}
	return nil
}

// restoreCommittedChangelog writes the HEAD copy of debian/changelog
// back into the working tree when one is tracked. A changelog absent
// from HEAD is fine: the package has never shipped a committed one.
func restoreCommittedChangelog(workingRoot string) error {
	repo, err := git.PlainOpen(workingRoot)
	if err != nil {
		return relerr.Wrap(err, relerr.CategoryGit, "cannot open repository").
			WithContext("path", workingRoot)
	}
	head, err := repo.Head()
	if err != nil {
		return relerr.Wrap(err, relerr.CategoryGit, "cannot resolve HEAD")
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return relerr.Wrap(err, relerr.CategoryGit, "cannot load HEAD commit")
	}

	file, err := commit.File("debian/changelog")
	if err != nil {
		slog.Debug("No committed changelog to restore")
		return nil
	}
	contents, err := file.Contents()
	if err != nil {
		return relerr.Wrap(err, relerr.CategoryGit, "cannot read committed changelog")
	}

	path := filepath.Join(workingRoot, "debian", "changelog")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return relerr.Wrap(err, relerr.CategoryFileSystem, "cannot restore committed changelog")
	}
	slog.Debug("Restored committed changelog", logfields.Path(path))
	return nil
}
