package convert

import (
	"context"
	"time"

	"github.com/philipparndt/gocad/pkg/mesh"
)

// Backend is one conversion strategy. Implementations must be safe for
// concurrent use; the pipeline calls them from multiple goroutines.
type Backend interface {
	// Name identifies the backend in attempt logs.
	Name() string

	// Accepts reports whether the backend can read the given format.
	Accepts(f Format) bool

	// Available reports whether the backend can run on this system.
	Available() bool

	// Convert turns the source into a raw mesh. Failures should be
	// *BackendError values classified with one of the recoverable
	// sentinels; anything else aborts the whole pipeline run.
	Convert(ctx context.Context, src Source, opts Options) (*mesh.Mesh, error)
}

// Outcome states how a single backend attempt ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Attempt is one entry of the per-run diagnostic log: which backend ran,
// how it ended, and how long it took. Attempts are ordered and never
// persisted beyond the run.
type Attempt struct {
	Backend string        `json:"backend"`
	Outcome Outcome       `json:"outcome"`
	Err     string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Options tune a pipeline run. The zero value selects all defaults.
type Options struct {
	// MergeEpsilon is the vertex merge tolerance. Non-positive derives it
	// from the mesh bounding box.
	MergeEpsilon float64

	// Timeout bounds a single external kernel run. Zero selects the
	// kernel's default.
	Timeout time.Duration

	// DeflectionRatio controls external tessellation fineness as a
	// fraction of the bounding box diagonal. Zero selects the default.
	DeflectionRatio float64

	// ScratchBase overrides where kernel scratch directories are created.
	ScratchBase string
}
