package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/doctest"
	"github.com/caffeineduck/doctest/hostfunc"
)

func run(t *testing.T, sb *Lua, env doctest.Environment, source string) doctest.Result {
	t.Helper()
	return sb.Execute(context.Background(), source, env)
}

func TestLuaExpressions(t *testing.T) {
	tests := []struct {
		source string
		output string
	}{
		{"1 + 1\n", "2\n"},
		{"7 / 2\n", "3.5\n"},
		{"'a' .. 'b'\n", "ab\n"},
		{"1, 'two'\n", "1\ttwo\n"},
		{"nil\n", "nil\n"},
		{"print('hi')\n", "hi\n"},
		{"print(1, true, nil)\n", "1\ttrue\tnil\n"},
		{"x = 1\n", ""},
		{"string.upper('doc')\n", "DOC\n"},
		{"math.max(3, 9)\n", "9\n"},
		{"type(os)\n", "nil\n"},
		{"type(io)\n", "nil\n"},
		{"type(require)\n", "nil\n"},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.source), func(t *testing.T) {
			env := doctest.Environment{}
			defer env.Clear()

			res := run(t, NewLua(), env, tt.source)
			require.NoError(t, res.Error)
			assert.Equal(t, tt.output, res.Output)
		})
	}
}

func TestLuaEnvironmentPersists(t *testing.T) {
	sb := NewLua()
	env := doctest.Environment{}
	defer env.Clear()

	res := run(t, sb, env, "x = 5\n")
	require.NoError(t, res.Error)
	assert.Equal(t, float64(5), res.Env["x"])

	res = run(t, sb, res.Env, "function double(n)\n  return n * 2\nend\n")
	require.NoError(t, res.Error)

	res = run(t, sb, res.Env, "double(x)\n")
	require.NoError(t, res.Error)
	assert.Equal(t, "10\n", res.Output)

	res = run(t, sb, res.Env, "x = nil\n")
	require.NoError(t, res.Error)
	assert.NotContains(t, res.Env, "x")
	assert.Contains(t, res.Env, "double")
}

func TestLuaSeedsGlobals(t *testing.T) {
	type point struct{ X, Y int }
	env := doctest.Environment{
		"name":  "doc",
		"n":     3,
		"items": []any{"a", "b"},
		"pt":    point{1, 2},
	}
	defer env.Clear()

	sb := NewLua()
	res := run(t, sb, env, "name .. n\n")
	require.NoError(t, res.Error)
	assert.Equal(t, "doc3\n", res.Output)

	res = run(t, sb, env, "#items\n")
	require.NoError(t, res.Error)
	assert.Equal(t, "2\n", res.Output)

	assert.Equal(t, point{1, 2}, env["pt"], "opaque values survive the round trip")
}

func TestLuaRejectsBuiltinBindings(t *testing.T) {
	for _, name := range []string{"print", "string", "host"} {
		t.Run(name, func(t *testing.T) {
			env := doctest.Environment{name: "shadow"}
			defer env.Clear()

			res := run(t, NewLua(WithRegistry(hostfunc.NewRegistry())), env, "1\n")
			require.Error(t, res.Error)
			assert.Contains(t, res.Error.Error(), `binding "`+name+`" shadows a Lua builtin`)
			assert.NotContains(t, env, StateKey)
		})
	}
}

func TestLuaSeparateEnvironments(t *testing.T) {
	sb := NewLua()
	a, b := doctest.Environment{}, doctest.Environment{}
	defer a.Clear()
	defer b.Clear()

	require.NoError(t, run(t, sb, a, "x = 1\n").Error)
	res := run(t, sb, b, "x\n")
	require.NoError(t, res.Error)
	assert.Equal(t, "nil\n", res.Output)
}

func TestLuaErrors(t *testing.T) {
	sb := NewLua()

	t.Run("raised", func(t *testing.T) {
		env := doctest.Environment{}
		defer env.Clear()

		res := run(t, sb, env, "print('before')\nerror('boom')\n")
		require.Error(t, res.Error)
		assert.Equal(t, "boom", res.Error.Error())
		assert.Equal(t, "before\n", res.Output)

		var tb doctest.Traceback
		require.True(t, errors.As(res.Error, &tb))
		assert.True(t, strings.HasPrefix(tb.Traceback(), "error: boom\n"))
	})

	t.Run("runtime", func(t *testing.T) {
		env := doctest.Environment{}
		defer env.Clear()

		res := run(t, sb, env, "missing()\n")
		require.Error(t, res.Error)
		assert.Contains(t, res.Error.Error(), "attempt to call")
		assert.False(t, strings.HasPrefix(res.Error.Error(), "<string>"))
	})

	t.Run("syntax", func(t *testing.T) {
		env := doctest.Environment{}
		defer env.Clear()

		res := run(t, sb, env, "x = = 1\n")
		require.Error(t, res.Error)
		assert.Empty(t, res.Output)
	})

	t.Run("state survives an error", func(t *testing.T) {
		env := doctest.Environment{}
		defer env.Clear()

		require.NoError(t, run(t, sb, env, "x = 2\n").Error)
		require.Error(t, run(t, sb, env, "error('x')\n").Error)
		res := run(t, sb, env, "x\n")
		require.NoError(t, res.Error)
		assert.Equal(t, "2\n", res.Output)
	})
}

func TestLuaTimeout(t *testing.T) {
	env := doctest.Environment{}
	defer env.Clear()

	res := run(t, NewLua(WithTimeout(50*time.Millisecond)), env, "while true do end\n")
	assert.Error(t, res.Error)
}

func TestLuaHostFunctions(t *testing.T) {
	registry := hostfunc.NewRegistry()
	hostfunc.NewKV(hostfunc.DefaultKVConfig()).Register(registry)
	registry.Register("sum", func(_ context.Context, args map[string]any) (any, error) {
		total := 0.0
		for _, v := range args["values"].([]any) {
			total += v.(float64)
		}
		return total, nil
	})

	sb := NewLua(WithRegistry(registry))
	env := doctest.Environment{}
	defer env.Clear()

	res := run(t, sb, env, "host.kv_set{key = 'a', value = 'b'}\n")
	require.NoError(t, res.Error)
	assert.Equal(t, "ok\n", res.Output)

	res = run(t, sb, env, "host.kv_get{key = 'a'}\n")
	require.NoError(t, res.Error)
	assert.Equal(t, "b\n", res.Output)

	res = run(t, sb, env, "table.concat(host.kv_keys(), ',')\n")
	require.NoError(t, res.Error)
	assert.Equal(t, "a\n", res.Output)

	res = run(t, sb, env, "host.sum{values = {1, 2, 3}}\n")
	require.NoError(t, res.Error)
	assert.Equal(t, "6\n", res.Output)

	res = run(t, sb, env, "host.kv_get{}\n")
	require.Error(t, res.Error)
	assert.Contains(t, res.Error.Error(), "kv_get: key required")

	assert.NotContains(t, env, "host")
}

func TestLuaClearClosesState(t *testing.T) {
	sb := NewLua()
	env := doctest.Environment{}

	require.NoError(t, run(t, sb, env, "x = 1\n").Error)
	st, ok := env[StateKey].(*state)
	require.True(t, ok)

	require.NoError(t, env.Clear())
	assert.True(t, st.closed)
	assert.Empty(t, env)

	res := run(t, sb, env, "x\n")
	require.NoError(t, res.Error)
	assert.Equal(t, "nil\n", res.Output)
	require.NoError(t, env.Clear())
}
