// Package candidate classifies package artifacts discovered in a store
// listing.
//
// Listings carry no structured metadata, so every attribute is recovered from
// the file name: extension, processor architecture, whether the artifact is a
// shared framework dependency, and a best-effort package family name.
// Classification is a pure function of the URL.
package candidate

import (
	"net/url"
	"path"
	"strings"
)

// Extension is a lower-cased package file extension.
type Extension string

const (
	ExtMSIX       Extension = ".msix"
	ExtMSIXBundle Extension = ".msixbundle"
	ExtAPPX       Extension = ".appx"
)

// Architecture is the processor architecture encoded in a package file name.
type Architecture string

const (
	ArchX64     Architecture = "x64"
	ArchX86     Architecture = "x86"
	ArchARM64   Architecture = "arm64"
	ArchNeutral Architecture = "neutral"
)

// String returns the architecture token.
func (a Architecture) String() string {
	return string(a)
}

// PublisherSuffix is the publisher id hash carried by Microsoft store package
// names. It anchors family name recovery.
const PublisherSuffix = "wekyb3d8bbwe"

// NeutralBundleMarker identifies an architecture independent bundle.
const NeutralBundleMarker = "_neutral_~"

// dependencyMarkers flag shared runtime packages. Matching is case-insensitive.
var dependencyMarkers = []string{"Framework", "VCLibs", "NET.Native", "UI.Xaml"}

// archTokens are checked in order; the first match wins.
var archTokens = []struct {
	token string
	arch  Architecture
}{
	{"_x64_", ArchX64},
	{"_x86_", ArchX86},
	{"_arm64_", ArchARM64},
}

// Candidate is one discovered package artifact. All fields except Priority are
// derived by Classify; Priority is assigned by the selection step.
type Candidate struct {
	FileName     string
	URL          *url.URL
	Extension    Extension
	Architecture Architecture
	IsDependency bool
	FamilyName   string
	Priority     int
}

// Classify derives a Candidate from a listing URL. It reports false when the
// URL has no file name or does not point at an installable package type.
func Classify(rawURL string) (Candidate, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Path == "" {
		return Candidate{}, false
	}

	fileName := path.Base(u.Path)
	if fileName == "" || fileName == "." || fileName == "/" {
		return Candidate{}, false
	}

	ext, ok := ParseExtension(fileName)
	if !ok {
		return Candidate{}, false
	}

	return Candidate{
		FileName:     fileName,
		URL:          u,
		Extension:    ext,
		Architecture: ArchitectureOf(fileName),
		IsDependency: IsDependencyName(fileName),
		FamilyName:   FamilyNameOf(fileName),
	}, true
}

// ClassifyAll classifies every URL, keeping order and dropping skipped entries.
func ClassifyAll(urls []string) []Candidate {
	out := make([]Candidate, 0, len(urls))
	for _, raw := range urls {
		if c, ok := Classify(raw); ok {
			out = append(out, c)
		}
	}
	return out
}

// ParseExtension returns the package extension of fileName if it is one of
// .msix, .msixbundle or .appx (any case).
func ParseExtension(fileName string) (Extension, bool) {
	ext := Extension(strings.ToLower(path.Ext(fileName)))
	switch ext {
	case ExtMSIX, ExtMSIXBundle, ExtAPPX:
		return ext, true
	default:
		return "", false
	}
}

// ArchitectureOf returns the architecture token found in fileName, or neutral.
func ArchitectureOf(fileName string) Architecture {
	for _, at := range archTokens {
		if strings.Contains(fileName, at.token) {
			return at.arch
		}
	}
	return ArchNeutral
}

// IsDependencyName reports whether fileName matches a shared runtime marker.
// This is a naming heuristic; false negatives are accepted.
func IsDependencyName(fileName string) bool {
	lower := strings.ToLower(fileName)
	for _, marker := range dependencyMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// FamilyNameOf recovers a package family name from the underscore separated
// file name convention Name_Version_Arch_ResourceId_PublisherId.ext.
//
// The second-to-last segment is tried first. Store names usually carry the
// publisher id in the last segment, so that one is tried next with the
// extension removed. An empty string means no identity could be recovered.
func FamilyNameOf(fileName string) string {
	parts := strings.Split(fileName, "_")
	if len(parts) < 4 {
		return ""
	}

	if seg := parts[len(parts)-2]; strings.Contains(seg, PublisherSuffix) {
		return parts[0] + "_" + seg
	}

	last := strings.TrimSuffix(parts[len(parts)-1], path.Ext(parts[len(parts)-1]))
	if strings.Contains(last, PublisherSuffix) {
		return parts[0] + "_" + last
	}

	return ""
}
