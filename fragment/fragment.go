// Package fragment loads named capability fragments ("skills") from a
// search path of directories.
//
// A fragment named "review" resolves to the first of
//
//	<dir>/review/SKILL.md
//	<dir>/review.md
//
// found in search-path order. A document may open with a metadata block:
// a "---" line on the first line, closed by the next "---" line. The block
// is parsed as YAML into [Meta] and stripped; the rest of the document is
// the fragment body, returned verbatim.
package fragment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmora/runctl"
)

// Marker opens and closes the metadata block.
const Marker = "---"

// skillFile is the document name inside a fragment directory.
const skillFile = "SKILL.md"

// validID restricts fragment identifiers to a single path element.
var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Meta is the optional metadata block of a fragment document.
type Meta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// Fragment is a loaded capability fragment.
type Fragment struct {
	ID   string
	Body string
	Meta Meta

	// Path is the document the fragment was loaded from.
	Path string
}

// Loader resolves fragment identifiers against a search path.
// A Loader holds no cache; every Load reads from disk.
type Loader struct {
	dirs []string
}

// NewLoader creates a loader over dirs, searched in order. Empty entries
// are dropped.
func NewLoader(dirs ...string) *Loader {
	l := &Loader{}
	for _, d := range dirs {
		if d != "" {
			l.dirs = append(l.dirs, d)
		}
	}
	return l
}

// Dirs returns the search path.
func (l *Loader) Dirs() []string {
	return append([]string(nil), l.dirs...)
}

// Load reads the fragment named id. Returns an error matching
// [runctl.ErrNotFound] when no document resolves, including for ids that
// are not a valid single path element.
func (l *Loader) Load(id string) (Fragment, error) {
	if !validID.MatchString(id) || strings.Contains(id, "..") {
		return Fragment{}, fmt.Errorf("%w: fragment %q: invalid identifier", runctl.ErrNotFound, id)
	}
	for _, dir := range l.dirs {
		for _, path := range candidates(dir, id) {
			data, err := os.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return Fragment{}, fmt.Errorf("fragment %q: %w", id, err)
			}
			f := Parse(id, string(data))
			f.Path = path
			return f, nil
		}
	}
	return Fragment{}, fmt.Errorf("%w: fragment %q: searched %s",
		runctl.ErrNotFound, id, strings.Join(l.dirs, ", "))
}

// LoadAll loads ids in order. The first failure aborts.
func (l *Loader) LoadAll(ids []string) ([]Fragment, error) {
	out := make([]Fragment, 0, len(ids))
	for _, id := range ids {
		f, err := l.Load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// List returns every resolvable fragment, sorted by id. When the same id
// exists in several directories, the one Load would pick wins.
func (l *Loader) List() ([]Fragment, error) {
	seen := make(map[string]bool)
	var out []Fragment
	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fragment: list %s: %w", dir, err)
		}
		for _, e := range entries {
			id := e.Name()
			if !e.IsDir() {
				var ok bool
				if id, ok = strings.CutSuffix(id, ".md"); !ok {
					continue
				}
			}
			if seen[id] || !validID.MatchString(id) {
				continue
			}
			f, err := l.Load(id)
			if errors.Is(err, runctl.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			seen[id] = true
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func candidates(dir, id string) []string {
	return []string{
		filepath.Join(dir, id, skillFile),
		filepath.Join(dir, id+".md"),
	}
}

// Parse splits a fragment document into metadata and body. A document
// without a closed metadata block is all body. Malformed YAML inside a
// closed block leaves Meta empty; the block is still stripped.
func Parse(id, doc string) Fragment {
	f := Fragment{ID: id, Body: doc}
	header, body, ok := splitMeta(doc)
	if !ok {
		return f
	}
	f.Body = body
	_ = yaml.Unmarshal([]byte(header), &f.Meta)
	return f
}

// splitMeta returns the text between the opening and closing marker lines
// and everything after the closing line.
func splitMeta(doc string) (header, body string, ok bool) {
	first, rest, found := strings.Cut(doc, "\n")
	if !found || !isMarker(first) {
		return "", "", false
	}
	offset := 0
	for {
		line := rest[offset:]
		nl := strings.IndexByte(line, '\n')
		if nl >= 0 {
			line = line[:nl]
		}
		if isMarker(line) {
			end := offset + len(line)
			if nl >= 0 {
				end++
			}
			return rest[:offset], rest[end:], true
		}
		if nl < 0 {
			return "", "", false
		}
		offset += nl + 1
	}
}

func isMarker(line string) bool {
	return strings.TrimRight(line, "\r") == Marker
}
