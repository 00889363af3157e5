// Package config loads storeagent settings from a sandboxed Lua file.
//
// The file defines a global storeagent table:
//
//	storeagent = {
//	  cache_dir = "D:/packages",
//	  listing = { ring = "Retail", timeout = "60s" },
//	  fetch = { retries = 2, max_bytes = 4 * 1024 * 1024 * 1024 },
//	  deploy = { backend = "powershell", timeout = "30m" },
//	  trust = { backend = "certutil", store = "TrustedPeople" },
//	  select = { preferred_arch = platform.is_arm64 and "arm64" or "x64" },
//	  output = { path = "install_result.json", format = "json" },
//	}
//
// Every field is optional and falls back to Defaults. Durations are either a
// number of seconds or a Go duration string.
//
// # Sandbox
//
// gopher-lua runs the file with os, io, debug and every code loading function
// removed, along with the raw table accessors that could bypass the read-only
// platform table. string, table and math stay available.
//
// # Platform table
//
// When a platform.Detector is given, a read-only platform table describes the
// host (os, arch, version, is_windows, is_x64, is_arm64 and friends) plus a
// platform.when(cond, value) helper.
package config
