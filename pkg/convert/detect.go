package convert

import (
	"sync"

	"github.com/philipparndt/gocad/pkg/freecad"
)

// Capabilities describes which optional conversion tools exist on this
// system.
type Capabilities struct {
	// FreeCAD is the located kernel executable, nil when not installed.
	FreeCAD *freecad.Tool
}

var (
	detectOnce sync.Once
	detected   Capabilities
)

// Detect probes the system once per process and returns the cached result.
// Callers that need different candidates (configuration, tests) should use
// DetectWith instead.
func Detect() Capabilities {
	detectOnce.Do(func() {
		detected = DetectWith(nil)
	})
	return detected
}

// DetectWith probes for the given FreeCAD candidates. A nil list probes
// the defaults.
func DetectWith(freecadCandidates []string) Capabilities {
	var caps Capabilities
	if tool, err := freecad.Locate(freecadCandidates...); err == nil {
		caps.FreeCAD = tool
	}
	return caps
}

// DefaultBackends is the standard chain: direct STL decode, then the two
// in-process STEP readers, then the external kernel. In-process backends
// come first because they are cheap and cover already-polygonal files; the
// kernel is the expensive last resort that handles everything else.
func DefaultBackends(caps Capabilities) []Backend {
	return []Backend{
		NewSTLBackend(),
		NewTessellatedBackend(),
		NewFacetedBackend(),
		NewFreeCADBackend(caps.FreeCAD),
	}
}
