// Package platform detects the host the agent runs on and exposes it to the
// Lua configuration.
//
// Architecture values use the tokens found in store package file names
// (x64, x86, arm64) so callers can compare them with a classified candidate
// directly. Host details come from gopsutil; when the kernel architecture
// cannot be read, the Go runtime architecture is used instead.
package platform

import "context"

// Package architecture tokens.
const (
	ArchX64   = "x64"
	ArchX86   = "x86"
	ArchARM64 = "arm64"
)

// Info contains platform detection information.
type Info struct {
	OS         string // "windows", "linux", "darwin"
	Arch       string // package token: "x64", "x86", "arm64"
	ArchRaw    string // runtime.GOARCH
	KernelArch string // as reported by the kernel, e.g. "x86_64" (may be empty)
	Platform   string // OS product name from gopsutil (may be empty)
	Version    string // OS version, e.g. "10.0.22631 Build 22631" (may be empty)
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// IsX64 returns true if the host runs a 64-bit x86 kernel.
func (i *Info) IsX64() bool {
	return i.Arch == ArchX64
}

// IsX86 returns true if the host runs a 32-bit x86 kernel.
func (i *Info) IsX86() bool {
	return i.Arch == ArchX86
}

// IsARM64 returns true if the host runs a 64-bit ARM kernel.
func (i *Info) IsARM64() bool {
	return i.Arch == ArchARM64
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector returns a fixed Info. It is used when the host is already
// known, and in tests.
type StaticDetector struct {
	Info *Info
	Err  error
}

// Detect returns the configured info and error.
func (s StaticDetector) Detect(context.Context) (*Info, error) {
	return s.Info, s.Err
}
