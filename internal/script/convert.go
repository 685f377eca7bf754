package script

import (
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// ToLua converts JSON-like Go values into Lua values. Anything else is passed
// as its fmt representation.
func ToLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case string:
		return lua.LString(x)
	case []byte:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint:
		return lua.LNumber(x)
	case uint32:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case map[string]any:
		t := L.NewTable()
		for _, k := range sortedKeys(x) {
			t.RawSetString(k, ToLua(L, x[k]))
		}
		return t
	case map[string]string:
		t := L.NewTable()
		for k, val := range x {
			t.RawSetString(k, lua.LString(val))
		}
		return t
	case []any:
		t := L.NewTable()
		for _, val := range x {
			t.Append(ToLua(L, val))
		}
		return t
	case []string:
		t := L.NewTable()
		for _, val := range x {
			t.Append(lua.LString(val))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(v))
	}
}

// FromLua converts a Lua value back to Go. Tables with a non-empty array part
// become []any, other tables map[string]any. Numbers come back as float64.
func FromLua(v lua.LValue) any {
	switch x := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		return float64(x)
	case lua.LString:
		return string(x)
	case *lua.LTable:
		if n := x.MaxN(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, FromLua(x.RawGetInt(i)))
			}
			return out
		}
		out := map[string]any{}
		x.ForEach(func(k, val lua.LValue) {
			out[k.String()] = FromLua(val)
		})
		return out
	default:
		return v.String()
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
