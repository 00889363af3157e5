package config

import (
	lua "github.com/yuin/gopher-lua"
)

// blockedGlobals are removed from every config VM: system access (os, io),
// code loading, debug hooks and raw table access that would get around the
// read-only platform table.
var blockedGlobals = []string{
	"os",
	"io",
	"require",
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"module",
	"debug",
	"rawset",
	"rawget",
	"setmetatable",
	"getmetatable",
	"setfenv",
	"getfenv",
	"collectgarbage",
}

// sandboxLuaVM configures a Lua VM to run in a restricted sandbox.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM creates a new Lua VM with sandboxing applied.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{
		CallStackSize: 256,
		RegistrySize:  1024 * 8,
	})
	sandboxLuaVM(L)
	return L
}
