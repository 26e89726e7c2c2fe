// Package sandbox evaluates documentation snippets in an embedded Lua
// interpreter.
//
// Each [doctest.Environment] owns one interpreter state, created on first
// use and closed when the environment is cleared. Snippets are evaluated
// REPL style: an expression prints its values, a statement prints nothing.
//
//	sb := sandbox.NewLua(sandbox.WithTimeout(time.Second))
//	env := doctest.Environment{"n": 20}
//	res := sb.Execute(ctx, "n + 1", env)
//	fmt.Print(res.Output) // 21
//
// Only the base, package, table, string and math libraries are loaded, so
// snippets cannot reach the file system or the clock.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/caffeineduck/doctest"
	"github.com/caffeineduck/doctest/hostfunc"
)

// StateKey is the environment binding that holds the interpreter state.
const StateKey = "__lua_state__"

var chunkPosition = regexp.MustCompile(`^<string>:\d+:\s*`)

// Error is a Lua error raised by a snippet.
type Error struct {
	Message string
	Stack   string
}

func (e *Error) Error() string { return e.Message }

// Traceback renders the error the way the Lua prompt syntax expects it,
// followed by the interpreter stack.
func (e *Error) Traceback() string {
	if e.Stack == "" {
		return "error: " + e.Message + "\n"
	}
	return "error: " + e.Message + "\n" + strings.TrimRight(e.Stack, "\n") + "\n"
}

func newError(err error) error {
	var api *lua.ApiError
	if !errors.As(err, &api) {
		return &Error{Message: err.Error()}
	}
	msg := err.Error()
	if api.Object != nil {
		msg = api.Object.String()
	}
	return &Error{Message: chunkPosition.ReplaceAllString(msg, ""), Stack: api.StackTrace}
}

// Lua is a doctest.Sandbox backed by gopher-lua.
type Lua struct {
	registry *hostfunc.Registry
	timeout  time.Duration
}

type LuaOption func(*Lua)

// WithRegistry exposes the registry's functions as fields of the global
// host table.
func WithRegistry(r *hostfunc.Registry) LuaOption {
	return func(s *Lua) { s.registry = r }
}

// WithTimeout bounds the execution time of a single snippet.
func WithTimeout(d time.Duration) LuaOption {
	return func(s *Lua) { s.timeout = d }
}

func NewLua(opts ...LuaOption) *Lua {
	s := &Lua{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute evaluates source against env. Bindings made by the snippet are
// mirrored back into the returned environment.
func (s *Lua) Execute(ctx context.Context, source string, env doctest.Environment) doctest.Result {
	start := time.Now()
	if env == nil {
		env = doctest.Environment{}
	}

	st, err := s.state(env)
	if err != nil {
		return doctest.Result{Env: env, Error: err, Duration: time.Since(start)}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := st.exec(ctx, source)
	st.mirror(env)

	return doctest.Result{
		Env:      env,
		Output:   out,
		Error:    err,
		Duration: time.Since(start),
	}
}

func (s *Lua) state(env doctest.Environment) (*state, error) {
	if st, ok := env[StateKey].(*state); ok && !st.closed {
		return st, nil
	}
	st, err := newState(s.registry)
	if err != nil {
		return nil, err
	}
	for k, v := range env {
		if k == StateKey {
			continue
		}
		if st.builtin[k] {
			st.Close()
			return nil, fmt.Errorf("binding %q shadows a Lua builtin", k)
		}
		st.L.SetGlobal(k, toLua(st.L, v))
	}
	env[StateKey] = st
	return st, nil
}

// state is one interpreter plus the buffer its print writes to.
type state struct {
	L       *lua.LState
	out     bytes.Buffer
	ctx     context.Context
	builtin map[string]bool
	closed  bool
}

func newState(registry *hostfunc.Registry) (*state, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	st := &state{L: L, ctx: context.Background()}

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, err
		}
	}

	L.SetGlobal("print", L.NewFunction(st.print))
	// Loaders would otherwise read from disk.
	for _, name := range []string{"dofile", "loadfile", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	if registry != nil {
		host := L.NewTable()
		for _, name := range registry.List() {
			fn, _ := registry.Get(name)
			L.SetField(host, name, L.NewFunction(st.hostCall(name, fn)))
		}
		L.SetGlobal("host", host)
	}

	st.builtin = make(map[string]bool)
	L.G.Global.ForEach(func(k, _ lua.LValue) {
		if name, ok := k.(lua.LString); ok {
			st.builtin[string(name)] = true
		}
	})
	return st, nil
}

func (st *state) print(L *lua.LState) int {
	top := L.GetTop()
	for i := 1; i <= top; i++ {
		if i > 1 {
			st.out.WriteByte('\t')
		}
		st.out.WriteString(L.ToStringMeta(L.Get(i)).String())
	}
	st.out.WriteByte('\n')
	return 0
}

func (st *state) hostCall(name string, fn hostfunc.Func) lua.LGFunction {
	return func(L *lua.LState) int {
		args := map[string]any{}
		if tbl, ok := L.Get(1).(*lua.LTable); ok {
			if m, ok := tableToGo(tbl).(map[string]any); ok {
				args = m
			}
		}
		res, err := fn(st.ctx, args)
		if err != nil {
			L.RaiseError("%s: %v", name, err)
			return 0
		}
		L.Push(toLua(L, res))
		return 1
	}
}

func (st *state) exec(ctx context.Context, source string) (string, error) {
	st.out.Reset()
	st.ctx = ctx
	L := st.L

	fn, err := L.LoadString("return " + source)
	if err != nil {
		if fn, err = L.LoadString(source); err != nil {
			return "", newError(err)
		}
	}

	L.SetContext(ctx)
	defer L.RemoveContext()

	base := L.GetTop()
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.SetTop(base)
		return st.out.String(), newError(err)
	}

	if n := L.GetTop() - base; n > 0 {
		values := make([]string, n)
		for i := range values {
			values[i] = L.ToStringMeta(L.Get(base + 1 + i)).String()
		}
		st.out.WriteString(strings.Join(values, "\t"))
		st.out.WriteByte('\n')
	}
	L.SetTop(base)
	return st.out.String(), nil
}

// mirror copies user globals into env and drops bindings the snippet
// removed.
func (st *state) mirror(env doctest.Environment) {
	seen := make(map[string]bool)
	st.L.G.Global.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok || st.builtin[string(name)] {
			return
		}
		seen[string(name)] = true
		env[string(name)] = fromLua(v)
	})
	for k := range env {
		if k != StateKey && !seen[k] && !st.builtin[k] {
			delete(env, k)
		}
	}
}

// Close releases the interpreter.
func (st *state) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	st.L.Close()
	return nil
}
