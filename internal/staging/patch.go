package staging

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/droidian-releng/releng-tools/internal/relerr"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// writePatchSeries diffs the upstream and packaging commits directly
// and renders every non-packaging change into a single quilt patch
// under workingRoot/debian/patches, together with a series file naming
// it. An empty diff still produces the series file, pointing at an
// empty patch, so dpkg-source sees a consistent 3.0 (quilt) layout.
func writePatchSeries(repo *git.Repository, upstream, branch plumbing.Hash, workingRoot string) error {
	patch, err := renderPatch(repo, upstream, branch)
	if err != nil {
		return err
	}

	patchesDir := filepath.Join(workingRoot, "debian", "patches")
	if err := os.MkdirAll(patchesDir, 0o755); err != nil {
		return relerr.Wrap(err, relerr.CategoryFileSystem, "cannot create patches directory").
			WithContext("path", patchesDir)
	}
	if err := os.WriteFile(filepath.Join(patchesDir, PatchName), []byte(patch), 0o644); err != nil {
		return relerr.Wrap(err, relerr.CategoryFileSystem, "cannot write autogenerated patch")
	}
	if err := os.WriteFile(filepath.Join(patchesDir, "series"), []byte(PatchName+"\n"), 0o644); err != nil {
		return relerr.Wrap(err, relerr.CategoryFileSystem, "cannot write patch series")
	}
	return nil
}

// renderPatch produces the unified diff of upstream..branch restricted
// to upstream source paths. Packaging files never enter the patch, the
// staged debian directory carries them instead.
func renderPatch(repo *git.Repository, upstream, branch plumbing.Hash) (string, error) {
	upstreamTree, err := treeAt(repo, upstream)
	if err != nil {
		return "", err
	}
	branchTree, err := treeAt(repo, branch)
	if err != nil {
		return "", err
	}

	changes, err := object.DiffTree(upstreamTree, branchTree)
	if err != nil {
		return "", relerr.Wrap(err, relerr.CategoryGit, "cannot diff upstream against packaging branch")
	}

	var kept object.Changes
	for _, change := range changes {
		if packagingPath(change.From.Name) && packagingPath(change.To.Name) {
			continue
		}
		kept = append(kept, change)
	}
	if len(kept) == 0 {
		return "", nil
	}

	filePatch, err := kept.Patch()
	if err != nil {
		return "", relerr.Wrap(err, relerr.CategoryGit, "cannot render upstream patch")
	}
	return filePatch.String(), nil
}

// packagingPath reports whether a change path (possibly empty for one
// side of an add/delete) belongs to packaging rather than upstream
// source. Empty names count as packaging so a change is kept only when
// a real upstream path appears on either side.
func packagingPath(name string) bool {
	if name == "" {
		return true
	}
	if name == ".gitmodules" {
		return true
	}
	return name == "debian" || strings.HasPrefix(name, "debian/")
}

func treeAt(repo *git.Repository, hash plumbing.Hash) (*object.Tree, error) {
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, relerr.Wrap(err, relerr.CategoryGit, "cannot load commit").
			WithContext("commit", hash.String())
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, relerr.Wrap(err, relerr.CategoryGit, "cannot load tree").
			WithContext("commit", hash.String())
	}
	return tree, nil
}
