// Package selection decides which discovered candidates are worth
// downloading and in which order.
package selection

import (
	"slices"
	"strings"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/candidate"
)

// Priority tiers; lower values are downloaded first.
const (
	PriorityNeutralBundle = 0
	PriorityPreferredArch = 10
	PriorityDependency    = 50
	PriorityOther         = 100
)

// Selector filters and orders candidates. The zero value prefers x64.
type Selector struct {
	PreferredArch candidate.Architecture
}

// Select applies the default Selector.
func Select(cands []candidate.Candidate) []candidate.Candidate {
	return Selector{}.Select(cands)
}

// Select keeps installable candidates, assigns each a priority and returns
// them ordered by priority, then non-dependencies before dependencies. The
// input slice is not modified.
func (s Selector) Select(cands []candidate.Candidate) []candidate.Candidate {
	out := make([]candidate.Candidate, 0, len(cands))
	for _, c := range cands {
		if !keep(c) {
			continue
		}
		c.Priority = s.priority(c)
		out = append(out, c)
	}

	slices.SortStableFunc(out, func(a, b candidate.Candidate) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		switch {
		case a.IsDependency == b.IsDependency:
			return 0
		case a.IsDependency:
			return 1
		default:
			return -1
		}
	})

	return out
}

func (s Selector) preferred() candidate.Architecture {
	if s.PreferredArch == "" {
		return candidate.ArchX64
	}
	return s.PreferredArch
}

func keep(c candidate.Candidate) bool {
	switch c.Extension {
	case candidate.ExtMSIX, candidate.ExtMSIXBundle:
		return true
	case candidate.ExtAPPX:
		return c.IsDependency
	default:
		return false
	}
}

func (s Selector) priority(c candidate.Candidate) int {
	switch {
	case c.Extension == candidate.ExtMSIXBundle && strings.Contains(c.FileName, candidate.NeutralBundleMarker):
		return PriorityNeutralBundle
	case c.Extension == candidate.ExtMSIX && c.Architecture == s.preferred():
		return PriorityPreferredArch
	case c.IsDependency:
		return PriorityDependency
	default:
		return PriorityOther
	}
}
