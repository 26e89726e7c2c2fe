package discovery

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/caffeineduck/doctest"
)

// GoFinder lists the doc comments of Go source files: the package clause
// and top-level functions, methods, types, constants and variables.
// Artifacts are named "pkg", "pkg.Name" or "pkg.Type.Method". Comment
// markers are removed line by line so example line numbers stay true to
// the file.
type GoFinder struct {
	// Paths are files or directories; directories are walked for .go files.
	Paths []string
	// IncludeEmpty also lists declarations without a doc comment.
	IncludeEmpty bool
	// IncludeTests also reads _test.go files.
	IncludeTests bool
}

func (f *GoFinder) ListDocumented(ctx context.Context) ([]Artifact, error) {
	files, err := expand(ctx, f.Paths, ".go")
	if err != nil {
		return nil, err
	}

	var out []Artifact
	for _, path := range files {
		if !f.IncludeTests && strings.HasSuffix(path, "_test.go") {
			continue
		}
		arts, err := f.listFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, arts...)
	}
	return out, nil
}

func (f *GoFinder) listFile(path string) ([]Artifact, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	pkg := file.Name.Name

	var out []Artifact
	add := func(name string, doc *ast.CommentGroup, at token.Pos) {
		if strings.HasSuffix(name, "._") {
			return
		}
		if doc == nil {
			if !f.IncludeEmpty {
				return
			}
			out = append(out, Artifact{
				Name:     name,
				Location: doctest.Location{File: path, Line: fset.Position(at).Line - 1},
			})
			return
		}
		out = append(out, Artifact{
			Name:     name,
			Text:     commentText(doc),
			Location: doctest.Location{File: path, Line: fset.Position(doc.Pos()).Line - 1},
		})
	}

	if file.Doc != nil {
		add(pkg, file.Doc, file.Package)
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			name := pkg + "." + d.Name.Name
			if d.Recv != nil && len(d.Recv.List) > 0 {
				name = pkg + "." + receiverName(d.Recv.List[0].Type) + "." + d.Name.Name
			}
			add(name, d.Doc, d.Pos())
		case *ast.GenDecl:
			if d.Tok == token.IMPORT || len(d.Specs) == 0 {
				continue
			}
			if !d.Lparen.IsValid() {
				// Unparenthesized: the doc is attached to the declaration.
				add(pkg+"."+specName(d.Specs[0]), d.Doc, d.Pos())
				continue
			}
			if d.Doc != nil {
				add(pkg+"."+specName(d.Specs[0]), d.Doc, d.Pos())
			}
			for _, spec := range d.Specs {
				add(pkg+"."+specName(spec), specDoc(spec), spec.Pos())
			}
		}
	}
	return out, nil
}

// commentText strips comment markers from a doc comment, one output line
// per source line. "//go:" directives become blank lines.
func commentText(cg *ast.CommentGroup) string {
	var b strings.Builder
	for _, c := range cg.List {
		text := c.Text
		if strings.HasPrefix(text, "//") {
			text = text[2:]
			if strings.HasPrefix(text, "go:") || strings.HasPrefix(text, "line ") {
				text = ""
			}
			text = strings.TrimPrefix(text, " ")
		} else {
			text = strings.TrimSuffix(strings.TrimPrefix(text, "/*"), "*/")
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String()
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.IndexExpr:
		return receiverName(t.X)
	case *ast.IndexListExpr:
		return receiverName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return "?"
}

func specName(spec ast.Spec) string {
	switch s := spec.(type) {
	case *ast.TypeSpec:
		return s.Name.Name
	case *ast.ValueSpec:
		if len(s.Names) > 0 {
			return s.Names[0].Name
		}
	}
	return "?"
}

func specDoc(spec ast.Spec) *ast.CommentGroup {
	switch s := spec.(type) {
	case *ast.TypeSpec:
		return s.Doc
	case *ast.ValueSpec:
		return s.Doc
	}
	return nil
}
