package config

import (
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestSandboxLuaVM(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
		errMsg  string
	}{
		{name: "string operations allowed", code: `x = string.upper("hello")`},
		{name: "table operations allowed", code: `t = {1, 2, 3}; table.insert(t, 4)`},
		{name: "math operations allowed", code: `x = math.floor(3.7) + math.max(1, 2)`},
		{name: "basic functions allowed", code: `x = type("a"); y = tostring(1); z = tonumber("2"); for k, v in pairs({a = 1}) do end`},

		{name: "os.execute blocked", code: `os.execute("whoami")`, wantErr: true, errMsg: "attempt to index"},
		{name: "os.getenv blocked", code: `x = os.getenv("PATH")`, wantErr: true, errMsg: "attempt to index"},
		{name: "io.open blocked", code: `f = io.open("C:/Windows/win.ini")`, wantErr: true, errMsg: "attempt to index"},
		{name: "require blocked", code: `m = require("socket")`, wantErr: true, errMsg: "attempt to call"},
		{name: "dofile blocked", code: `dofile("evil.lua")`, wantErr: true, errMsg: "attempt to call"},
		{name: "loadstring blocked", code: `f = loadstring("return 1")`, wantErr: true, errMsg: "attempt to call"},
		{name: "debug blocked", code: `debug.getinfo(1)`, wantErr: true, errMsg: "attempt to index"},
		{name: "rawset blocked", code: `rawset({}, "a", 1)`, wantErr: true, errMsg: "attempt to call"},
		{name: "setmetatable blocked", code: `setmetatable({}, {})`, wantErr: true, errMsg: "attempt to call"},
		{name: "collectgarbage blocked", code: `collectgarbage()`, wantErr: true, errMsg: "attempt to call"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			L := newSandboxedVM()
			defer L.Close()

			err := L.DoString(tt.code)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DoString(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("DoString(%q) error = %v, want substring %q", tt.code, err, tt.errMsg)
			}
		})
	}
}

func TestNewSandboxedVM_KeepsSafeLibraries(t *testing.T) {
	L := newSandboxedVM()
	defer L.Close()

	for _, name := range blockedGlobals {
		if L.GetGlobal(name).Type() != lua.LTNil {
			t.Errorf("%s should be removed", name)
		}
	}
	for _, name := range []string{"string", "table", "math"} {
		if L.GetGlobal(name).Type() != lua.LTTable {
			t.Errorf("%s should be available", name)
		}
	}
}
