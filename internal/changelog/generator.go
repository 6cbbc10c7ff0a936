// Package changelog generates debian/changelog files from git history
// and drives the generator from the build orchestrator.
package changelog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/droidian-releng/releng-tools/internal/pkginfo"
	"github.com/droidian-releng/releng-tools/internal/relerr"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// DefaultRollingRelease is the branch used for rolling releases and the
// suite it currently maps to.
const (
	DefaultRollingRelease            = "droidian"
	DefaultRollingReleaseReplacement = "trixie"
)

var slugForbidden = regexp.MustCompile(`[^a-z0-9_]+`)

// GeneratorOptions configures changelog generation for one repository.
type GeneratorOptions struct {
	// Commit is the upmost commit to look at; empty means HEAD.
	Commit string
	// Tag specifies the base version directly (production builds).
	Tag string
	// TagPrefixes are the acceptable release tag prefixes.
	TagPrefixes []string
	// Branch is the branch being built, when Tag is unset.
	Branch string
	// BranchPrefix marks feature branches.
	BranchPrefix string
	// RollingRelease and RollingReleaseReplacement map the rolling
	// branch name onto an actual suite.
	RollingRelease            string
	RollingReleaseReplacement string
	// Comment becomes the version suffix slug.
	Comment string
}

// Generator derives a package version and emits changelog stanzas from
// the git history of a working tree.
type Generator struct {
	repo        *git.Repository
	workingRoot string
	opts        GeneratorOptions
	comment     string
	commit      plumbing.Hash

	// tags maps commit hashes to full tag names, restricted to release
	// prefixes and upstream/ imports.
	tags        map[plumbing.Hash]string
	versionHint string

	native  *bool
	version string
	release string
}

// NewGenerator opens the repository at workingRoot and prepares tag and
// hint lookups.
func NewGenerator(workingRoot string, opts GeneratorOptions) (*Generator, error) {
	if opts.Comment == "" {
		opts.Comment = "release"
	}
	if opts.RollingRelease == "" {
		opts.RollingRelease = DefaultRollingRelease
	}
	if opts.RollingReleaseReplacement == "" {
		opts.RollingReleaseReplacement = DefaultRollingReleaseReplacement
	}

	repo, err := git.PlainOpen(workingRoot)
	if err != nil {
		return nil, relerr.Wrap(err, relerr.CategoryGit, "cannot open git repository").
			WithContext("path", workingRoot)
	}

	if opts.Tag == "" && opts.Branch == "" {
		head, err := repo.Head()
		if err == nil && head.Name().IsBranch() {
			opts.Branch = head.Name().Short()
		}
	}

	g := &Generator{
		repo:        repo,
		workingRoot: workingRoot,
		opts:        opts,
		comment:     slugify(strings.Replace(opts.Comment, opts.BranchPrefix, "", 1)),
		tags:        make(map[plumbing.Hash]string),
	}

	if opts.Commit != "" {
		g.commit = plumbing.NewHash(opts.Commit)
	} else {
		head, err := repo.Head()
		if err != nil {
			return nil, relerr.Wrap(err, relerr.CategoryGit, "cannot resolve HEAD")
		}
		g.commit = head.Hash()
	}

	if err := g.indexTags(); err != nil {
		return nil, err
	}

	hintPath := filepath.Join(workingRoot, "debian", "droidian-version-hint")
	if data, err := os.ReadFile(hintPath); err == nil {
		g.versionHint = strings.TrimSpace(string(data))
	}

	return g, nil
}

// indexTags collects release and upstream tags keyed by the commit they
// point at, peeling annotated tags.
func (g *Generator) indexTags() error {
	iter, err := g.repo.Tags()
	if err != nil {
		return relerr.Wrap(err, relerr.CategoryGit, "cannot list tags")
	}
	defer iter.Close()

	return iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if !hasAnyPrefix(name, g.opts.TagPrefixes) && !strings.HasPrefix(name, "upstream/") {
			return nil
		}

		hash := ref.Hash()
		if tagObj, err := g.repo.TagObject(hash); err == nil {
			commit, err := tagObj.Commit()
			if err != nil {
				return nil
			}
			hash = commit.Hash
		}
		g.tags[hash] = name
		return nil
	})
}

func (g *Generator) isNative() (bool, error) {
	if g.native != nil {
		return *g.native, nil
	}
	native, err := pkginfo.IsNative(g.workingRoot)
	if err != nil {
		return false, err
	}
	g.native = &native
	return native, nil
}

// Version derives the package version.
//
// Template: <starting_version>(+|~)git<timestamp>.<short_commit>.<comment>
//
// The starting version comes from the first strategy that yields one:
// the explicit tag, the nearest release/upstream tag pair for non-native
// packages, the nearest release tag, an existing debian/changelog, and
// finally "0.0.0".
func (g *Generator) Version() (string, error) {
	if g.version != "" {
		return g.version, nil
	}

	native, err := g.isNative()
	if err != nil {
		return "", err
	}

	starting := ""
	if g.opts.Tag != "" {
		starting = lastSegment(multiReplace(g.opts.Tag, g.opts.TagPrefixes, ""))
	}
	if starting == "" && !native {
		starting = g.versionFromNonNativeTags()
	}
	if starting == "" {
		starting = g.versionFromNearestTag()
	}
	if starting == "" {
		starting = g.versionFromChangelog()
	}
	if starting == "" {
		starting = "0.0.0"
	}

	commit, err := g.repo.CommitObject(g.commit)
	if err != nil {
		return "", relerr.Wrap(err, relerr.CategoryGit, "cannot resolve build commit").
			WithContext("commit", g.commit.String())
	}

	// A non-native version without a debian revision was picked up from
	// an upstream/ tag: add revision -1 and switch to ~ so the final
	// version sorts before the eventual release.
	template := "%s+git%s"
	if !native && !strings.Contains(starting, "-") {
		template = "%s-1~git%s"
	}

	suffix := strings.Join([]string{
		commit.Committer.When.Format("20060102150405"),
		g.commit.String()[:7],
		g.comment,
	}, ".")
	g.version = fmt.Sprintf(template, starting, suffix)

	if !native && !strings.Contains(g.version, "-") {
		return "", relerr.New(relerr.CategoryChangelog,
			"non-native package but no debian revision specified while tagging").
			WithContext("version", g.version)
	}
	return g.version, nil
}

// versionFromNonNativeTags walks the history for the nearest release or
// upstream tag, accounting for epochs carried by the release tag.
func (g *Generator) versionFromNonNativeTags() string {
	var ordered []string
	iter, err := g.repo.Log(&git.LogOptions{From: g.commit, Order: git.LogOrderCommitterTime})
	if err != nil {
		return ""
	}
	_ = iter.ForEach(func(c *object.Commit) error {
		if name, ok := g.tags[c.Hash]; ok {
			ordered = append(ordered, name)
		}
		return nil
	})
	ordered = append(ordered, g.versionHint)

	latestUpstream := ""
	for _, tag := range ordered {
		switch {
		case tag == "":
			continue
		case hasAnyPrefix(tag, g.opts.TagPrefixes):
			sanitized := lastSegment(multiReplace(tag, g.opts.TagPrefixes, ""))
			if latestUpstream == "" {
				return sanitized
			}
			// A newer upstream import exists: keep its version, but
			// carry over an epoch declared by the release tag.
			if epoch, _, found := strings.Cut(sanitized, "%"); found {
				return epoch + ":" + latestUpstream
			}
			return latestUpstream
		case strings.HasPrefix(tag, "upstream/") && latestUpstream == "":
			latestUpstream = strings.TrimPrefix(tag, "upstream/")
		}
	}
	return latestUpstream
}

// versionFromNearestTag finds the nearest release-prefixed tag reachable
// from the build commit and extracts the version segment.
func (g *Generator) versionFromNearestTag() string {
	iter, err := g.repo.Log(&git.LogOptions{From: g.commit, Order: git.LogOrderCommitterTime})
	if err != nil {
		return ""
	}
	defer iter.Close()

	found := ""
	_ = iter.ForEach(func(c *object.Commit) error {
		if name, ok := g.tags[c.Hash]; ok && hasAnyPrefix(name, g.opts.TagPrefixes) {
			stripped := multiReplace(name, g.opts.TagPrefixes, "")
			parts := strings.Split(stripped, "/")
			if len(parts) > 1 {
				found = parts[1]
			} else {
				found = parts[0]
			}
			return storer.ErrStop
		}
		return nil
	})
	return found
}

// versionFromChangelog picks the version out of an existing
// debian/changelog, when one is present.
func (g *Generator) versionFromChangelog() string {
	f, err := os.Open(filepath.Join(g.workingRoot, "debian", "changelog"))
	if err != nil {
		return ""
	}
	defer f.Close()

	var name, version string
	if _, err := fmt.Fscanf(f, "%s (%s", &name, &version); err != nil {
		return ""
	}
	return strings.TrimSuffix(version, ")")
}

// Release resolves the target suite for the changelog stanzas.
func (g *Generator) Release() (string, error) {
	if g.release != "" {
		return g.release, nil
	}

	switch {
	case g.opts.Tag != "":
		g.release = firstSegment(multiReplace(g.opts.Tag, g.opts.TagPrefixes, ""))
	case g.opts.Branch != "":
		g.release = firstSegment(strings.Replace(g.opts.Branch, g.opts.BranchPrefix, "", 1))
	default:
		return "", relerr.New(relerr.CategoryChangelog, "at least one of tag and branch must be specified")
	}

	if g.release == g.opts.RollingRelease && g.opts.RollingReleaseReplacement != "" {
		g.release = g.opts.RollingReleaseReplacement
	}
	return g.release, nil
}

// sanitizeTagVersion maps the tag-safe characters back to their debian
// version equivalents.
func sanitizeTagVersion(version string) string {
	return strings.ReplaceAll(strings.ReplaceAll(version, "_", "~"), "%", ":")
}

// slugify lowercases and collapses every run of non slug characters to
// a single dot.
func slugify(s string) string {
	return slugForbidden.ReplaceAllString(strings.ToLower(s), ".")
}

// multiReplace removes the first occurrence of each match from s.
func multiReplace(s string, matches []string, replacement string) string {
	for _, m := range matches {
		if m == "" {
			continue
		}
		s = strings.Replace(s, m, replacement, 1)
	}
	return s
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func firstSegment(s string) string {
	if i := strings.Index(s, "/"); i >= 0 {
		return s[:i]
	}
	return s
}

func lastSegment(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}
