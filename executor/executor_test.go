package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/doctest"
	"github.com/caffeineduck/doctest/hostfunc"
)

const mockWasm = "testdata/mock.wasm"

// mockLanguage loads the mock interpreter built from testdata/mock.go.
func mockLanguage(t *testing.T) *ModuleLanguage {
	t.Helper()
	if _, err := os.Stat(mockWasm); err != nil {
		t.Skip("testdata/mock.wasm not built; run: GOOS=wasip1 GOARCH=wasm go build -o testdata/mock.wasm testdata/mock.go")
	}
	lang, err := LoadModule("mock", mockWasm, []string{"mock", CodePlaceholder})
	require.NoError(t, err)
	return lang
}

func newExecutor(t *testing.T, registry *hostfunc.Registry, opts ...ExecutorOption) *Executor {
	t.Helper()
	exec, err := New(registry, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })
	return exec
}

func TestExecutorClose(t *testing.T) {
	exec, err := New(nil)
	require.NoError(t, err)
	assert.NoError(t, exec.Close())
	assert.NoError(t, exec.Close())

	res := exec.Run(context.Background(), NewModuleLanguage("x", []byte("\x00asm"), nil), "")
	assert.True(t, errors.Is(res.Error, ErrClosed))
}

func TestExecutorInvalidModule(t *testing.T) {
	exec := newExecutor(t, nil)
	bad := NewModuleLanguage("bad", []byte("not wasm"), nil)

	res := exec.Run(context.Background(), bad, "x")
	require.Error(t, res.Error)
	assert.Contains(t, res.Error.Error(), "compile bad")

	_, err := exec.NewSession(bad)
	assert.Error(t, err)

	_, err = New(nil, WithPrecompile(bad))
	assert.Error(t, err)
}

func TestExecutorDiskCache(t *testing.T) {
	dir := t.TempDir()
	exec := newExecutor(t, nil, WithDiskCache(dir), WithMemoryLimit(MemoryLimit64MB))
	assert.NotNil(t, exec.cache)
}

func TestLoadModule(t *testing.T) {
	_, err := LoadModule("missing", filepath.Join(t.TempDir(), "nope.wasm"), nil)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "lang.wasm")
	require.NoError(t, os.WriteFile(path, []byte("\x00asm"), 0o644))
	lang, err := LoadModule("lang", path, []string{"lang", "-c", CodePlaceholder, "--flag"})
	require.NoError(t, err)

	assert.Equal(t, "lang", lang.Name())
	assert.Equal(t, []byte("\x00asm"), lang.Module())
	assert.Equal(t, []string{"lang", "-c", "print(1)", "--flag"}, lang.Args("print(1)"))
}

func TestModuleLanguageWrapCode(t *testing.T) {
	lang := NewModuleLanguage("lang", nil, []string{"lang"})
	assert.Equal(t, "x", lang.WrapCode("x"))
	assert.Equal(t, []string{"lang", "x"}, lang.Args("x"))
	assert.Equal(t, []string{"lang"}, lang.Args(""), "empty code is not appended")

	lang.Prelude = "import host"
	lang.SessionPrelude = "SESSION = True\n"
	assert.Equal(t, "import host\nx", lang.WrapCode("x"))
	assert.Equal(t, "SESSION = True\n", lang.SessionInit())
}

func TestModuleLanguageLoadPreludes(t *testing.T) {
	dir := t.TempDir()
	prelude := filepath.Join(dir, "prelude.py")
	session := filepath.Join(dir, "session.py")
	require.NoError(t, os.WriteFile(prelude, []byte("import host"), 0o644))
	require.NoError(t, os.WriteFile(session, []byte("serve()\n"), 0o644))

	lang := NewModuleLanguage("python", nil, []string{"python", "-c"})
	require.NoError(t, lang.LoadPreludes(prelude, session))
	assert.Equal(t, "import host\nx", lang.WrapCode("x"))
	assert.Equal(t, "serve()\n", lang.SessionInit())

	lang = NewModuleLanguage("python", nil, nil)
	require.NoError(t, lang.LoadPreludes("", ""))
	assert.Empty(t, lang.SessionInit())

	err := lang.LoadPreludes("", filepath.Join(dir, "missing.py"))
	assert.ErrorContains(t, err, "load python prelude")
}

func TestSandboxStartFailure(t *testing.T) {
	exec := newExecutor(t, nil)
	sb := exec.Sandbox(NewModuleLanguage("bad", []byte("not wasm"), nil))

	env := doctest.Environment{}
	res := sb.Execute(context.Background(), "x", env)
	assert.Error(t, res.Error)
	assert.NotContains(t, res.Env, SessionKeyPrefix+"bad")
}

func TestRunMock(t *testing.T) {
	lang := mockLanguage(t)
	exec := newExecutor(t, nil)

	res := exec.Run(context.Background(), lang, "hello\nstderr careful")
	require.NoError(t, res.Error)
	assert.Equal(t, "hello\ncareful\n", res.Output)

	res = exec.Run(context.Background(), lang, "raise boom")
	assert.Error(t, res.Error)
}

func TestRunMockHostCall(t *testing.T) {
	lang := mockLanguage(t)
	exec := newExecutor(t, nil)
	kv := hostfunc.NewKV(hostfunc.DefaultKVConfig())
	_, err := kv.Set(context.Background(), map[string]any{"key": "a", "value": "from host"})
	require.NoError(t, err)

	res := exec.Run(context.Background(), lang, `host kv_get {"key":"a"}`, WithKV(kv))
	require.NoError(t, res.Error)
	assert.Equal(t, "from host\n", res.Output)
}
