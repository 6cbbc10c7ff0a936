package staging

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/droidian-releng/releng-tools/internal/relerr"
)

// writeOrigTarball archives the staged source tree into a gzipped
// tarball at tarballPath, with every entry living under dirPrefix.
// Packaging metadata and git bookkeeping are left out: dpkg-source
// expects the pristine upstream source, and the autogenerated patch
// carries everything else.
func writeOrigTarball(buildRoot, tarballPath, dirPrefix string) error {
	out, err := os.Create(tarballPath)
	if err != nil {
		return relerr.Wrap(err, relerr.CategoryFileSystem, "cannot create orig tarball").
			WithContext("path", tarballPath)
	}
	defer out.Close()

	gzw := gzip.NewWriter(out)
	tw := tar.NewWriter(gzw)

	walkErr := filepath.WalkDir(buildRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(buildRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if excludedFromOrig(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = dirPrefix + "/" + rel
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		return err
	})
	if walkErr != nil {
		return relerr.Wrap(walkErr, relerr.CategoryFileSystem, "cannot archive upstream source").
			WithContext("buildRoot", buildRoot)
	}

	if err := tw.Close(); err != nil {
		return relerr.Wrap(err, relerr.CategoryFileSystem, "cannot finalize orig tarball")
	}
	if err := gzw.Close(); err != nil {
		return relerr.Wrap(err, relerr.CategoryFileSystem, "cannot finalize orig tarball")
	}
	return out.Close()
}

// excludedFromOrig reports whether a tree entry stays out of the
// upstream archive. The debian directory, git metadata (including the
// .git gitlink files submodule checkouts leave behind) and the
// submodule/attribute descriptors are all packaging concerns, not
// upstream source.
func excludedFromOrig(rel string) bool {
	if rel == "debian" || strings.HasPrefix(rel, "debian/") {
		return true
	}
	switch path.Base(rel) {
	case ".git", ".gitmodules", ".gitattributes":
		return true
	}
	return false
}
