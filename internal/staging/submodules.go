package staging

import (
	"context"
	"log/slog"
	"sort"

	"github.com/droidian-releng/releng-tools/internal/logfields"
	"github.com/droidian-releng/releng-tools/internal/relerr"
	"github.com/droidian-releng/releng-tools/internal/run"
	git "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// updateSubmodules initializes the staged tree's submodules.
//
// When the branch's .gitmodules differs from upstream's, a plain
// recursive update is not enough: submodules added on the branch are
// absent from the upstream commit's tree. In that case the branch's
// .gitmodules and every submodule path it names are checked out
// individually before re-syncing. The submodule plumbing itself is
// delegated to the git CLI; go-git's recursive submodule support does
// not cover gitlinks missing from the checked-out tree.
func updateSubmodules(ctx context.Context, source *git.Repository, opts Options, upstream, branch plumbing.Hash) error {
	upstreamModules, err := gitmodulesAt(source, upstream)
	if err != nil {
		return err
	}
	branchModules, err := gitmodulesAt(source, branch)
	if err != nil {
		return err
	}
	if upstreamModules == "" && branchModules == "" {
		return nil
	}

	if upstreamModules != "" {
		if err := gitIn(ctx, opts.BuildRoot, "submodule", "update", "--init", "--recursive"); err != nil {
			return err
		}
	}

	if branchModules == upstreamModules {
		return nil
	}

	slog.Debug("Submodule layout differs from upstream, checking out branch descriptors",
		logfields.Branch(opts.Branch))

	if branchModules == "" {
		// Submodules removed on the branch: the staged copies are
		// harmless, the archive excludes their descriptors anyway.
		return nil
	}

	if err := gitIn(ctx, opts.BuildRoot, "checkout", branch.String(), "--", ".gitmodules"); err != nil {
		return err
	}
	paths, err := submodulePaths(branchModules)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := gitIn(ctx, opts.BuildRoot, "checkout", branch.String(), "--", path); err != nil {
			return err
		}
	}

	if err := gitIn(ctx, opts.BuildRoot, "submodule", "sync", "--recursive"); err != nil {
		return err
	}
	return gitIn(ctx, opts.BuildRoot, "submodule", "update", "--init", "--recursive")
}

// gitmodulesAt returns the .gitmodules content at a commit, or "" when
// the commit carries none.
func gitmodulesAt(repo *git.Repository, hash plumbing.Hash) (string, error) {
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return "", relerr.Wrap(err, relerr.CategoryGit, "cannot load commit").
			WithContext("commit", hash.String())
	}
	file, err := commit.File(".gitmodules")
	if err != nil {
		return "", nil
	}
	contents, err := file.Contents()
	if err != nil {
		return "", relerr.Wrap(err, relerr.CategoryGit, "cannot read .gitmodules").
			WithContext("commit", hash.String())
	}
	return contents, nil
}

// submodulePaths parses the submodule paths out of .gitmodules content.
func submodulePaths(gitmodules string) ([]string, error) {
	modules := gitcfg.NewModules()
	if err := modules.Unmarshal([]byte(gitmodules)); err != nil {
		return nil, relerr.Wrap(err, relerr.CategoryGit, "cannot parse .gitmodules")
	}

	var paths []string
	for _, sm := range modules.Submodules {
		if sm.Path != "" {
			paths = append(paths, sm.Path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// gitIn runs a git command inside dir, mapping failures to git errors.
func gitIn(ctx context.Context, dir string, args ...string) error {
	_, stderr, err := run.Capture(ctx, run.Command{Name: "git", Args: args, Dir: dir})
	if err != nil {
		return relerr.Wrap(err, relerr.CategoryGit, "git command failed").
			WithContext("args", args).
			WithContext("stderr", stderr)
	}
	return nil
}
