package convert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/philipparndt/gocad/pkg/mesh"
)

// Pipeline tries its backends in order until one yields a usable mesh.
// The successful mesh is normalized before it is returned. A Pipeline is
// immutable after construction and safe for concurrent Convert calls.
type Pipeline struct {
	backends []Backend
	opts     Options

	// OnAttempt, when set, observes every attempt as it completes. Used
	// for live progress reporting.
	OnAttempt func(Attempt)
}

// New builds a pipeline over an explicit backend chain.
func New(backends []Backend, opts Options) *Pipeline {
	return &Pipeline{backends: backends, opts: opts}
}

// NewDefault builds a pipeline over the standard chain using the
// process-wide capability probe.
func NewDefault(opts Options) *Pipeline {
	return New(DefaultBackends(Detect()), opts)
}

// Convert runs the source through the backend chain. It returns the
// normalized mesh, the ordered attempt log (including the successful
// attempt), and an error only when no backend succeeded or the context
// ended. Backends that do not accept the source format are skipped without
// an attempt entry.
func (p *Pipeline) Convert(ctx context.Context, src Source) (*mesh.Mesh, []Attempt, error) {
	if src.Format == FormatUnknown {
		return nil, nil, fmt.Errorf("source %q has no recognized format", src.Name)
	}

	var attempts []Attempt
	for _, backend := range p.backends {
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}
		if !backend.Accepts(src.Format) {
			continue
		}

		if !backend.Available() {
			attempts = p.record(attempts, Attempt{
				Backend: backend.Name(),
				Outcome: OutcomeFailure,
				Err:     ErrBackendUnavailable.Error(),
			})
			continue
		}

		start := time.Now()
		m, err := backend.Convert(ctx, src, p.opts)
		elapsed := time.Since(start)

		if err != nil {
			if recoverable(err) {
				attempts = p.record(attempts, Attempt{
					Backend: backend.Name(),
					Outcome: OutcomeFailure,
					Err:     err.Error(),
					Elapsed: elapsed,
				})
				continue
			}
			// Cancellation or a backend bug: abort the whole run.
			return nil, attempts, err
		}

		if err := validateResult(m); err != nil {
			attempts = p.record(attempts, Attempt{
				Backend: backend.Name(),
				Outcome: OutcomeFailure,
				Err:     err.Error(),
				Elapsed: elapsed,
			})
			continue
		}

		m.Normalize(p.opts.MergeEpsilon)
		if m.IsEmpty() {
			attempts = p.record(attempts, Attempt{
				Backend: backend.Name(),
				Outcome: OutcomeFailure,
				Err:     "all faces degenerate after normalization",
				Elapsed: elapsed,
			})
			continue
		}

		attempts = p.record(attempts, Attempt{
			Backend: backend.Name(),
			Outcome: OutcomeSuccess,
			Elapsed: elapsed,
		})
		return m, attempts, nil
	}

	return nil, attempts, &PipelineError{Attempts: attempts, Remediation: remediationFor(src.Format)}
}

func (p *Pipeline) record(attempts []Attempt, a Attempt) []Attempt {
	attempts = append(attempts, a)
	if p.OnAttempt != nil {
		p.OnAttempt(a)
	}
	return attempts
}

// validateResult guards the pipeline contract: backends never hand over an
// empty or inconsistent mesh.
func validateResult(m *mesh.Mesh) error {
	if m == nil || m.IsEmpty() {
		return errors.New("backend produced an empty mesh")
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("backend produced an inconsistent mesh: %w", err)
	}
	return nil
}

func remediationFor(f Format) string {
	if f == FormatSTEP {
		return remediation
	}
	return "The file could not be read by any backend. Check that it is a valid model file."
}
