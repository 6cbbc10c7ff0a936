package changelog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/droidian-releng/releng-tools/internal/relerr"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// stanzaTemplate is the Debian changelog stanza layout.
const stanzaTemplate = `%s (%s) %s; urgency=medium

%s

 -- %s <%s>  %s

`

// debianDateFormat matches RFC 2822 dates as used in changelog trailers.
const debianDateFormat = "Mon, 02 Jan 2006 15:04:05 -0700"

// entry accumulates the commits belonging to one changelog stanza.
// Iteration runs newest to oldest, so the entry's author and date come
// from the newest commit and messages are prepended to stay in
// chronological order.
type entry struct {
	author  string
	mail    string
	date    string
	order   []string
	content map[string][]string
}

func newEntry(c *object.Commit) *entry {
	return &entry{
		author:  c.Author.Name,
		mail:    c.Author.Email,
		date:    c.Author.When.Format(debianDateFormat),
		content: make(map[string][]string),
	}
}

func (e *entry) add(c *object.Commit) {
	author := c.Author.Name
	if _, seen := e.content[author]; !seen {
		e.order = append(e.order, author)
	}
	// First line only; prepended so the stanza reads oldest first.
	message, _, _ := strings.Cut(c.Message, "\n")
	e.content[author] = append([]string{message}, e.content[author]...)
}

// render formats the entry body, grouping by author when more than one
// contributed.
func (e *entry) render() string {
	var blocks []string
	for _, author := range e.order {
		var lines []string
		for _, message := range e.content[author] {
			lines = append(lines, "  * "+message)
		}
		block := strings.Join(lines, "\n")
		if len(e.order) > 1 {
			block = fmt.Sprintf("  [ %s ]\n%s", author, block)
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n")
}

// Write generates the changelog for packageName and writes it to path.
func (g *Generator) Write(packageName, path string) error {
	stanzas, err := g.Stanzas(packageName)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return relerr.Wrap(err, relerr.CategoryFileSystem, "cannot create changelog directory")
	}
	if err := os.WriteFile(path, []byte(strings.Join(stanzas, "")), 0o644); err != nil {
		return relerr.Wrap(err, relerr.CategoryFileSystem, "cannot write changelog")
	}
	return nil
}

// Stanzas walks the history from the build commit and renders one
// changelog stanza per release tag span. Shallow clones terminate the
// walk at the first commit whose parent is unreachable.
func (g *Generator) Stanzas(packageName string) ([]string, error) {
	version, err := g.Version()
	if err != nil {
		return nil, err
	}
	release, err := g.Release()
	if err != nil {
		return nil, err
	}

	// Release tags only (upstream/ imports never delimit stanzas), with
	// their prefixes stripped to "<release>/<version>" form.
	spans := make(map[string]string)
	for hash, name := range g.tags {
		if hasAnyPrefix(name, g.opts.TagPrefixes) {
			spans[hash.String()] = multiReplace(name, g.opts.TagPrefixes, "")
		}
	}

	// The current release/version pair is the top span.
	nearest := release + "/" + version

	iter, err := g.repo.Log(&git.LogOptions{From: g.commit, Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, relerr.Wrap(err, relerr.CategoryGit, "cannot walk history")
	}
	defer iter.Close()

	var stanzas []string
	var current *entry

	walkErr := iter.ForEach(func(c *object.Commit) error {
		last := isLastReachable(c)
		tagged := false
		if _, ok := spans[c.Hash.String()]; ok && c.Hash != g.commit {
			tagged = true
		}

		if tagged || last {
			spanRelease, spanVersion, found := strings.Cut(nearest, "/")
			if !found {
				spanVersion = nearest
				spanRelease = release
			}

			if last {
				if current == nil {
					current = newEntry(c)
				}
				current.add(c)
			}
			if current == nil {
				// Consecutive tags with no commits in between.
				current = newEntry(c)
				current.add(c)
			}

			stanzas = append(stanzas, fmt.Sprintf(stanzaTemplate,
				packageName,
				sanitizeTagVersion(spanVersion),
				spanRelease,
				current.render(),
				current.author,
				current.mail,
				current.date,
			))
			current = nil

			if last {
				return storer.ErrStop
			}
			nearest = spans[c.Hash.String()]
		}

		if current == nil {
			current = newEntry(c)
		}
		current.add(c)
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, plumbing.ErrObjectNotFound) {
		return nil, relerr.Wrap(walkErr, relerr.CategoryGit, "history walk failed")
	}
	return stanzas, nil
}

// isLastReachable reports whether c is the oldest commit we can walk:
// either a root commit or, on shallow clones, a commit whose recorded
// parent object is absent.
func isLastReachable(c *object.Commit) bool {
	if c.NumParents() == 0 {
		return true
	}
	if _, err := c.Parent(0); err != nil {
		return true
	}
	return false
}
