package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// LuaGlobal is the name the host table is published under.
const LuaGlobal = "platform"

// InjectPlatformTable publishes info as the read-only global "platform".
// Call it before any user code runs.
//
// Besides the plain fields the table offers two helpers:
//
//	platform.when(cond, value)         -- value if cond, else nil
//	platform.by_arch{x64 = a, arm64 = b, default = c}
func InjectPlatformTable(L *lua.LState, info *Info) error {
	t := L.NewTable()

	for key, value := range map[string]string{
		"os":          info.OS,
		"arch":        info.Arch,
		"arch_raw":    info.ArchRaw,
		"kernel_arch": info.KernelArch,
		"product":     info.Platform,
		"version":     info.Version,
	} {
		t.RawSetString(key, lua.LString(value))
	}
	for key, value := range map[string]bool{
		"is_windows": info.IsWindows(),
		"is_x64":     info.IsX64(),
		"is_x86":     info.IsX86(),
		"is_arm64":   info.IsARM64(),
	} {
		t.RawSetString(key, lua.LBool(value))
	}

	t.RawSetString("when", L.NewFunction(luaWhen))
	t.RawSetString("by_arch", L.NewFunction(func(L *lua.LState) int {
		choices := L.CheckTable(1)
		v := choices.RawGetString(info.Arch)
		if v == lua.LNil {
			v = choices.RawGetString("default")
		}
		L.Push(v)
		return 1
	}))

	L.SetGlobal(LuaGlobal, readOnly(L, t))
	return nil
}

func luaWhen(L *lua.LState) int {
	if L.CheckBool(1) {
		L.Push(L.Get(2))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

// readOnly wraps t in a proxy whose writes raise an error.
func readOnly(L *lua.LState, t *lua.LTable) *lua.LTable {
	meta := L.NewTable()
	meta.RawSetString("__index", t)
	meta.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s table is read-only", LuaGlobal)
		return 0
	}))
	meta.RawSetString("__metatable", lua.LString("locked"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, meta)
	return proxy
}
