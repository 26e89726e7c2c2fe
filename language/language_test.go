package language

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/doctest/executor"
	"github.com/caffeineduck/doctest/parser"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name     string
		wantName string
		argv0    string
	}{
		{"python", "python", "python"},
		{"py", "python", "python"},
		{"js", "javascript", "qjs"},
		{"javascript", "javascript", "qjs"},
		{"php", "php", "php"},
		{"lua", "lua", "lua"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.wantName, p.Name)
			assert.Equal(t, tt.argv0, p.Argv[0])
			assert.Contains(t, p.Argv, executor.CodePlaceholder)

			_, ok = parser.SyntaxByName(p.Syntax)
			assert.True(t, ok, "syntax %q", p.Syntax)
		})
	}

	_, ok := Lookup("cobol")
	assert.False(t, ok)
}

func TestLookupCopiesArgv(t *testing.T) {
	p, _ := Lookup("python")
	p.Argv[0] = "changed"

	again, _ := Lookup("python")
	assert.Equal(t, "python", again.Argv[0])
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"javascript", "lua", "php", "python"}, Names())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "python.wasm")
	require.NoError(t, os.WriteFile(path, []byte("\x00asm"), 0o644))

	p, _ := Lookup("python")
	lang, err := p.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "python", lang.Name())
	assert.Equal(t, []string{"python", "-c", "print(1)"}, lang.Args("print(1)"))

	lang, err = p.Load(path, []string{"python3", "-I", "-c", executor.CodePlaceholder})
	require.NoError(t, err)
	assert.Equal(t, []string{"python3", "-I", "-c", "x"}, lang.Args("x"))

	_, err = p.Load(filepath.Join(t.TempDir(), "missing.wasm"), nil)
	assert.ErrorContains(t, err, "preset python")
}
