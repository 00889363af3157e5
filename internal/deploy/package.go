package deploy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrPackageNotFound means no installed package matched a lookup.
var ErrPackageNotFound = errors.New("package not installed")

// Mode selects deployment behavior for one package.
type Mode int

const (
	// ModeNone installs without touching running apps.
	ModeNone Mode = iota
	// ModeForceShutdown closes running instances of the package first.
	ModeForceShutdown
)

func (m Mode) String() string {
	if m == ModeForceShutdown {
		return "force-shutdown"
	}
	return "none"
}

// Version is a four-part package version.
type Version struct {
	Major, Minor, Build, Revision uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// ParseVersion parses "a.b.c.d". Missing trailing parts are zero.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || len(parts) > 4 || parts[0] == "" {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}

	var nums [4]uint16
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		nums[i] = uint16(n)
	}
	return Version{Major: nums[0], Minor: nums[1], Build: nums[2], Revision: nums[3]}, nil
}

// Package is an installed package as reported by the platform.
type Package struct {
	Name            string
	FullName        string
	FamilyName      string
	Version         Version
	InstallLocation string
}

// Platform is the package deployment service.
type Platform interface {
	AddPackage(ctx context.Context, path string, mode Mode) (Operation, error)
	RemovePackage(ctx context.Context, fullName string) (Operation, error)
	// FindPackage returns the package of familyName installed for user (the
	// current user when empty), or ErrPackageNotFound.
	FindPackage(ctx context.Context, user, familyName string) (*Package, error)
}
