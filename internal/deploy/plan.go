package deploy

import (
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/candidate"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/fetch"
)

// frameworkMarker flags framework packages by name. Matching is
// case-sensitive.
const frameworkMarker = "Framework"

// Step is one deployment in a plan.
type Step struct {
	Artifact   fetch.Artifact
	Mode       Mode
	Dependency bool
}

// Plan orders artifacts for deployment. Dependencies (.appx files and names
// containing "Framework") come first, then main packages (.msix and
// .msixbundle), each group in input order. Every artifact appears at most
// once; other types are dropped.
func Plan(artifacts []fetch.Artifact) []Step {
	var deps, mains []Step
	for _, a := range artifacts {
		ext := extensionOf(a)
		switch {
		case ext == candidate.ExtAPPX || strings.Contains(a.FileName(), frameworkMarker):
			deps = append(deps, Step{Artifact: a, Mode: ModeNone, Dependency: true})
		case ext == candidate.ExtMSIX || ext == candidate.ExtMSIXBundle:
			mains = append(mains, Step{Artifact: a, Mode: ModeForceShutdown})
		}
	}
	return append(deps, mains...)
}

func extensionOf(a fetch.Artifact) candidate.Extension {
	if a.Source != nil && a.Source.Extension != "" {
		return a.Source.Extension
	}
	return candidate.Extension(strings.ToLower(filepath.Ext(a.Path)))
}
