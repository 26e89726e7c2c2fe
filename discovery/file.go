package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/caffeineduck/doctest"
)

// FileFinder lists whole files, each as one artifact named by its base
// name.
type FileFinder struct {
	Paths []string
	// Extensions filters files found by walking directories, e.g. ".txt".
	// Empty keeps every file.
	Extensions []string
	// DocBlock strips C-style doc block decoration from each file.
	DocBlock bool
}

func (f *FileFinder) ListDocumented(ctx context.Context) ([]Artifact, error) {
	files, err := expand(ctx, f.Paths, f.Extensions...)
	if err != nil {
		return nil, err
	}

	out := make([]Artifact, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		text := string(data)
		if f.DocBlock {
			text = StripDocBlock(text)
		}
		out = append(out, Artifact{
			Name:     filepath.Base(path),
			Text:     text,
			Location: doctest.Location{File: path, Line: 0},
		})
	}
	return out, nil
}

var docBlockLine = regexp.MustCompile(`(?m)^[ \t]*/?\*+/?(.*)$`)

// StripDocBlock removes the "/**", " * " and " */" decoration of a doc
// block, keeping one output line per input line.
//
//	StripDocBlock("/**\n * > 1\n * 1\n */") == "\n > 1\n 1\n"
func StripDocBlock(s string) string {
	return docBlockLine.ReplaceAllString(s, "$1")
}
