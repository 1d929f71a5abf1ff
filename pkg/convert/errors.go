package convert

import (
	"errors"
	"fmt"
	"strings"
)

// Classification sentinels. The first three are recoverable: the pipeline
// records them in the attempt log and moves to the next backend. The last
// one is terminal and reaches the user.
var (
	// ErrBackendUnavailable means the backend's tool or library is not
	// installed on this system.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrParse means the backend could not turn the input into a mesh.
	ErrParse = errors.New("parse failed")

	// ErrTimeout means the backend exceeded its conversion time budget.
	ErrTimeout = errors.New("conversion timed out")

	// ErrNoBackend means every candidate backend was exhausted.
	ErrNoBackend = errors.New("no conversion backend succeeded")
)

// BackendError is a single backend's failure, classified by one of the
// recoverable sentinels so the pipeline can decide to continue.
type BackendError struct {
	Backend string
	Kind    error
	Err     error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Backend, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// recoverable reports whether the pipeline may continue with the next
// backend after this error.
func recoverable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, ErrParse) ||
		errors.Is(err, ErrTimeout)
}

// PipelineError is the terminal failure after all backends were tried. It
// carries the full attempt log and remediation text telling the user what
// to install.
type PipelineError struct {
	Attempts    []Attempt
	Remediation string
}

func (e *PipelineError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrNoBackend.Error())
	for _, a := range e.Attempts {
		sb.WriteString(fmt.Sprintf("\n  %s: %s", a.Backend, a.Outcome))
		if a.Err != "" {
			sb.WriteString(" (" + a.Err + ")")
		}
	}
	return sb.String()
}

func (e *PipelineError) Unwrap() error {
	return ErrNoBackend
}

// remediation is shown when a STEP file could not be converted by any
// installed backend.
const remediation = `To enable STEP conversion, install FreeCAD:
  macOS:   brew install --cask freecad
  Linux:   sudo apt install freecad
  Windows: download from freecad.org

Alternatively, export the model from your CAD tool as STL (or as STEP
AP242 with tessellated geometry) and convert that file instead.`
