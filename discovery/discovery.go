// Package discovery lists the documented artifacts that DocTests are built
// from: Go doc comments, fenced blocks in Markdown files and whole text
// files.
package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caffeineduck/doctest"
	"github.com/caffeineduck/doctest/parser"
)

// Artifact is a named piece of documentation text.
type Artifact struct {
	Name     string
	Text     string
	Location doctest.Location
}

// Finder lists documented artifacts.
type Finder interface {
	ListDocumented(ctx context.Context) ([]Artifact, error)
}

// FinderFunc adapts a function to Finder.
type FinderFunc func(ctx context.Context) ([]Artifact, error)

func (f FinderFunc) ListDocumented(ctx context.Context) ([]Artifact, error) { return f(ctx) }

// Multi concatenates the artifacts of several finders.
func Multi(finders ...Finder) Finder {
	return FinderFunc(func(ctx context.Context) ([]Artifact, error) {
		var out []Artifact
		for _, f := range finders {
			arts, err := f.ListDocumented(ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, arts...)
		}
		return out, nil
	})
}

// Collect parses every artifact into a DocTest. Each DocTest gets its own
// copy of globals.
func Collect(ctx context.Context, finder Finder, p *parser.Parser, globals doctest.Environment) ([]*doctest.DocTest, error) {
	arts, err := finder.ListDocumented(ctx)
	if err != nil {
		return nil, err
	}
	tests := make([]*doctest.DocTest, 0, len(arts))
	for _, a := range arts {
		t, err := p.DocTest(a.Text, globals, a.Name, a.Location)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.Location.File, err)
		}
		tests = append(tests, t)
	}
	return tests, nil
}

// expand resolves paths into a sorted list of files. Directories are walked
// for files whose extension is in exts; explicitly named files are always
// kept. Hidden directories, testdata and vendor are skipped.
func expand(ctx context.Context, paths []string, exts ...string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(root)
			continue
		}

		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && skipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if hasExt(path, exts) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
		sort.Strings(found)
		for _, f := range found {
			add(f)
		}
	}
	return files, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "testdata" || name == "vendor"
}

func hasExt(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// lineOf returns the 0-based line of byte offset off in src.
func lineOf(src []byte, off int) int {
	if off > len(src) {
		off = len(src)
	}
	return strings.Count(string(src[:off]), "\n")
}
