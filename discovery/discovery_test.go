package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/doctest"
	"github.com/caffeineduck/doctest/parser"
)

const goSource = `// Package calc adds numbers.
//
//	> 1 + 1
//	2
package calc

// Add returns a+b.
func Add(a, b int) int { return a + b }

type T struct{}

// Double doubles.
func (t *T) Double() {}

func undocumented() {}

// Limit caps things.
const Limit = 3

var (
	// Verbose enables chatter.
	Verbose bool
	quiet   bool
)
`

const markdownSource = "# Guide\n" +
	"\n" +
	"```lua\n" +
	"> 1 + 2\n" +
	"3\n" +
	"```\n" +
	"\n" +
	"```go\n" +
	"fmt.Println(\"no\")\n" +
	"```\n" +
	"\n" +
	"```lua\n" +
	"> x = 1\n" +
	"```\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func names(arts []Artifact) []string {
	out := make([]string, len(arts))
	for i, a := range arts {
		out[i] = a.Name
	}
	return out
}

func TestGoFinder(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "calc.go", goSource)
	writeFile(t, dir, "calc_test.go", "// Package calc tests.\npackage calc\n")
	writeFile(t, dir, "testdata/skip.go", "// Package skip.\npackage skip\n")

	arts, err := (&GoFinder{Paths: []string{dir}}).ListDocumented(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"calc", "calc.Add", "calc.T.Double", "calc.Limit", "calc.Verbose"}, names(arts))

	assert.Equal(t, Artifact{
		Name:     "calc",
		Text:     "Package calc adds numbers.\n\n\t> 1 + 1\n\t2\n",
		Location: doctest.Location{File: path, Line: 0},
	}, arts[0])
	assert.Equal(t, 6, arts[1].Location.Line)
	assert.Equal(t, "Add returns a+b.\n", arts[1].Text)
	assert.Equal(t, 11, arts[2].Location.Line)
	assert.Equal(t, 16, arts[3].Location.Line)
	assert.Equal(t, 20, arts[4].Location.Line)
}

func TestGoFinderIncludeEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "calc.go", goSource)

	arts, err := (&GoFinder{Paths: []string{dir}, IncludeEmpty: true}).ListDocumented(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"calc", "calc.Add", "calc.T", "calc.T.Double", "calc.undocumented",
		"calc.Limit", "calc.Verbose", "calc.quiet",
	}, names(arts))
	assert.Empty(t, arts[2].Text)
	assert.Equal(t, 9, arts[2].Location.Line)
}

func TestGoFinderIncludeTests(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "calc_test.go", "// Package calc tests.\npackage calc\n")

	arts, err := (&GoFinder{Paths: []string{dir}, IncludeTests: true}).ListDocumented(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"calc"}, names(arts))
}

func TestGoFinderErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.go", "package\n")

	_, err := (&GoFinder{Paths: []string{dir}}).ListDocumented(context.Background())
	assert.ErrorContains(t, err, "parse")

	_, err = (&GoFinder{Paths: []string{filepath.Join(dir, "missing")}}).ListDocumented(context.Background())
	assert.Error(t, err)
}

func TestMarkdownFinder(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "guide.md", markdownSource)

	arts, err := (&MarkdownFinder{Paths: []string{dir}, Languages: []string{"lua"}}).ListDocumented(context.Background())
	require.NoError(t, err)
	require.Len(t, arts, 2)

	assert.Equal(t, Artifact{
		Name:     path + "#1",
		Text:     "> 1 + 2\n3\n",
		Location: doctest.Location{File: path, Line: 3},
	}, arts[0])
	assert.Equal(t, path+"#2", arts[1].Name)
	assert.Equal(t, "> x = 1\n", arts[1].Text)
	assert.Equal(t, 12, arts[1].Location.Line)

	all, err := (&MarkdownFinder{Paths: []string{path}}).ListDocumented(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFileFinder(t *testing.T) {
	dir := t.TempDir()
	txt := writeFile(t, dir, "b.txt", "> 1\n1\n")
	writeFile(t, dir, "a.txt", "text\n")
	writeFile(t, dir, "c.md", "skip\n")

	arts, err := (&FileFinder{Paths: []string{dir}, Extensions: []string{".txt"}}).ListDocumented(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names(arts))
	assert.Equal(t, Artifact{Name: "b.txt", Text: "> 1\n1\n", Location: doctest.Location{File: txt}}, arts[1])
}

func TestStripDocBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"doc block", "/**\n * > 1\n * 1\n */", "\n > 1\n 1\n"},
		{"plain text", "> 1\n1\n", "> 1\n1\n"},
		{"single line", "/** > 1 */", " > 1 "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripDocBlock(tt.in))
		})
	}
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "calc.go", goSource)
	p := parser.MustNew(parser.LuaSyntax(), nil)
	globals := doctest.Environment{"x": 1}

	tests, err := Collect(context.Background(), &GoFinder{Paths: []string{path}}, p, globals)
	require.NoError(t, err)
	require.Len(t, tests, 5)

	pkg := tests[0]
	assert.Equal(t, "calc", pkg.Name)
	require.Len(t, pkg.Examples, 1)
	assert.Equal(t, "1 + 1\n", pkg.Examples[0].Source)
	assert.Equal(t, "2\n", pkg.Examples[0].Want)
	assert.Equal(t, 2, pkg.Examples[0].Line)
	assert.Empty(t, tests[1].Examples)

	pkg.Env["x"] = 2
	assert.Equal(t, 1, tests[1].Env["x"], "environments are independent")
	assert.Equal(t, 1, globals["x"])
}

func TestCollectParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.txt", "  > 1\n 1\n")
	p := parser.MustNew(parser.LuaSyntax(), nil)

	_, err := Collect(context.Background(), &FileFinder{Paths: []string{dir}}, p, nil)
	var perr *parser.ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestMulti(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "x\n")
	writeFile(t, dir, "guide.md", markdownSource)

	f := Multi(&FileFinder{Paths: []string{dir}, Extensions: []string{".txt"}}, &MarkdownFinder{Paths: []string{dir}})
	arts, err := f.ListDocumented(context.Background())
	require.NoError(t, err)
	assert.Len(t, arts, 4)
}
