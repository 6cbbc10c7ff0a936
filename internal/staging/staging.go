// Package staging assembles the isolated build tree for non-native
// packages: an upstream checkout, the orig tarball, and the single
// autogenerated patch capturing the branch's delta.
package staging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/droidian-releng/releng-tools/internal/logfields"
	"github.com/droidian-releng/releng-tools/internal/pkginfo"
	"github.com/droidian-releng/releng-tools/internal/relerr"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// PatchName is the one patch the regenerated series ever contains.
// Any manually maintained quilt patches are superseded by it.
const PatchName = "0001-autogenerated-by-releng-build-package.patch"

// Options locates the trees one staging run works with.
type Options struct {
	// WorkingRoot is the primary checkout.
	WorkingRoot string
	// Branch is the branch whose delta against upstream becomes the
	// autogenerated patch.
	Branch string
	// BuildRoot is where the isolated tree is assembled.
	BuildRoot string
	// StagingParent receives the orig tarball (and later the build
	// artifacts), conventionally the parent of BuildRoot.
	StagingParent string
}

// Area is the prepared staging area.
type Area struct {
	BuildRoot   string
	OrigTarball string
}

// Prepare stages a non-native package build. Each step is fatal on
// failure: a half-built staging area cannot safely be reused.
func Prepare(ctx context.Context, desc *pkginfo.Descriptor, opts Options) (*Area, error) {
	if desc.IsNative {
		return nil, relerr.New(relerr.CategoryInternal, "staging requested for a native package").
			WithContext("package", desc.Name)
	}

	source, err := git.PlainOpen(opts.WorkingRoot)
	if err != nil {
		return nil, relerr.Wrap(err, relerr.CategoryGit, "cannot open working repository").
			WithContext("path", opts.WorkingRoot)
	}

	ref := desc.UpstreamRef()
	upstreamHash, err := source.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, relerr.Wrap(err, relerr.CategoryUpstreamTag, "upstream ref does not exist").
			WithContext("ref", ref).
			WithContext("package", desc.Name)
	}

	branchHash, err := source.ResolveRevision(plumbing.Revision(opts.Branch))
	if err != nil {
		return nil, relerr.Wrap(err, relerr.CategoryGit, "cannot resolve build branch").
			WithContext("branch", opts.Branch)
	}

	slog.Info("Staging non-native package",
		logfields.Package(desc.Name),
		logfields.Version(desc.OrigVersion),
		logfields.Path(opts.BuildRoot))

	if err := checkoutUpstream(opts.WorkingRoot, opts.BuildRoot, *upstreamHash); err != nil {
		return nil, err
	}

	if err := updateSubmodules(ctx, source, opts, *upstreamHash, *branchHash); err != nil {
		return nil, err
	}

	tarball := filepath.Join(opts.StagingParent, fmt.Sprintf("%s_%s.orig.tar.gz", desc.Name, desc.OrigVersion))
	if err := writeOrigTarball(opts.BuildRoot, tarball, fmt.Sprintf("%s-%s", desc.Name, desc.OrigVersion)); err != nil {
		return nil, err
	}

	if err := writePatchSeries(source, *upstreamHash, *branchHash, opts.WorkingRoot); err != nil {
		return nil, err
	}

	// The staged tree must build with the current packaging metadata:
	// upstream by construction has none.
	stagedDebian := filepath.Join(opts.BuildRoot, "debian")
	if err := os.RemoveAll(stagedDebian); err != nil {
		return nil, relerr.Wrap(err, relerr.CategoryFileSystem, "cannot clear staged debian directory")
	}
	if err := copyDir(filepath.Join(opts.WorkingRoot, "debian"), stagedDebian); err != nil {
		return nil, relerr.Wrap(err, relerr.CategoryFileSystem, "cannot copy debian directory into staging")
	}

	slog.Info("Staging area ready", logfields.Path(opts.BuildRoot))
	return &Area{BuildRoot: opts.BuildRoot, OrigTarball: tarball}, nil
}

// checkoutUpstream clones the working checkout into buildRoot and
// checks out the upstream commit there. The clone keeps the primary
// working directory untouched whatever happens during the build.
func checkoutUpstream(workingRoot, buildRoot string, upstream plumbing.Hash) error {
	clone, err := git.PlainClone(buildRoot, false, &git.CloneOptions{
		URL:  workingRoot,
		Tags: git.AllTags,
	})
	if err != nil {
		return relerr.Wrap(err, relerr.CategoryGit, "cannot clone working tree into staging area").
			WithContext("path", buildRoot)
	}

	wt, err := clone.Worktree()
	if err != nil {
		return relerr.Wrap(err, relerr.CategoryGit, "cannot open staging worktree")
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: upstream, Force: true}); err != nil {
		return relerr.Wrap(err, relerr.CategoryGit, "cannot check out upstream commit").
			WithContext("commit", upstream.String())
	}
	return nil
}
