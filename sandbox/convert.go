package sandbox

import (
	lua "github.com/yuin/gopher-lua"
)

// toLua converts a Go value into a Lua value. Values with no Lua
// counterpart travel as userdata and convert back unchanged.
func toLua(L *lua.LState, v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return v
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case int:
		return lua.LNumber(v)
	case int32:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case uint:
		return lua.LNumber(v)
	case uint32:
		return lua.LNumber(v)
	case uint64:
		return lua.LNumber(v)
	case float32:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case []string:
		t := L.NewTable()
		for _, s := range v {
			t.Append(lua.LString(s))
		}
		return t
	case []any:
		t := L.NewTable()
		for _, e := range v {
			t.Append(toLua(L, e))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, e := range v {
			t.RawSetString(k, toLua(L, e))
		}
		return t
	}
	ud := L.NewUserData()
	ud.Value = v
	return ud
}

// fromLua converts scalars to Go values and keeps tables and functions as
// Lua values so they survive a round trip.
func fromLua(v lua.LValue) any {
	switch v := v.(type) {
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case lua.LBool:
		return bool(v)
	case *lua.LUserData:
		return v.Value
	}
	if v == lua.LNil {
		return nil
	}
	return v
}

// tableToGo converts a table into a []any when it is a sequence and a
// map[string]any otherwise.
func tableToGo(t *lua.LTable) any {
	n := t.MaxN()
	count := 0
	t.ForEach(func(lua.LValue, lua.LValue) { count++ })

	if n > 0 && n == count {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, valueToGo(t.RawGetInt(i)))
		}
		return out
	}

	out := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		out[k.String()] = valueToGo(v)
	})
	return out
}

func valueToGo(v lua.LValue) any {
	if t, ok := v.(*lua.LTable); ok {
		return tableToGo(t)
	}
	return fromLua(v)
}
