package discovery

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/caffeineduck/doctest"
)

// MarkdownFinder lists the fenced code blocks of Markdown files. Blocks are
// named FILE#N, counting only the blocks that are listed, and located at
// their first content line.
type MarkdownFinder struct {
	// Paths are files or directories; directories are walked for .md and
	// .markdown files.
	Paths []string
	// Languages selects blocks by the first word of their info string.
	// Empty selects every fenced block.
	Languages []string
}

func (f *MarkdownFinder) ListDocumented(ctx context.Context) ([]Artifact, error) {
	files, err := expand(ctx, f.Paths, ".md", ".markdown")
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	var out []Artifact
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		out = append(out, f.blocks(md, path, src)...)
	}
	return out, nil
}

func (f *MarkdownFinder) blocks(md goldmark.Markdown, path string, src []byte) []Artifact {
	doc := md.Parser().Parse(text.NewReader(src))

	var out []Artifact
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := block.Lines()
		if lines.Len() == 0 || !f.wants(string(block.Language(src))) {
			return ast.WalkSkipChildren, nil
		}

		var buf bytes.Buffer
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		out = append(out, Artifact{
			Name:     fmt.Sprintf("%s#%d", path, len(out)+1),
			Text:     buf.String(),
			Location: doctest.Location{File: path, Line: lineOf(src, lines.At(0).Start)},
		})
		return ast.WalkSkipChildren, nil
	})
	return out
}

func (f *MarkdownFinder) wants(lang string) bool {
	if len(f.Languages) == 0 {
		return true
	}
	for _, l := range f.Languages {
		if l == lang {
			return true
		}
	}
	return false
}
