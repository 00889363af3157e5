package platform

import (
	"fmt"
	"strings"
)

// archMap maps GOARCH and kernel architecture names onto package tokens.
var archMap = map[string]string{
	"amd64":   ArchX64,
	"x86_64":  ArchX64,
	"x64":     ArchX64,
	"386":     ArchX86,
	"i386":    ArchX86,
	"i686":    ArchX86,
	"x86":     ArchX86,
	"arm64":   ArchARM64,
	"aarch64": ArchARM64,
}

// normalizeArch converts an architecture name to a package token.
func normalizeArch(arch string) (string, error) {
	if token, ok := archMap[strings.ToLower(strings.TrimSpace(arch))]; ok {
		return token, nil
	}
	return "", fmt.Errorf("unsupported architecture: %q (supported: x64, x86, arm64)", arch)
}

// NormalizeArch is the exported form of normalizeArch for flag and config values.
func NormalizeArch(arch string) (string, error) {
	return normalizeArch(arch)
}
