package convert

import (
	"context"
	"errors"
	"fmt"

	"github.com/philipparndt/gocad/pkg/freecad"
	"github.com/philipparndt/gocad/pkg/mesh"
	"github.com/philipparndt/gocad/pkg/step"
	"github.com/philipparndt/gocad/pkg/stl"
)

// NewSTLBackend decodes STL input directly. Always available; geometry
// passes through unchanged up to vertex merging.
func NewSTLBackend() Backend {
	return stlBackend{}
}

type stlBackend struct{}

func (stlBackend) Name() string { return "stl" }
func (stlBackend) Accepts(f Format) bool { return f == FormatSTL }
func (stlBackend) Available() bool { return true }

func (b stlBackend) Convert(_ context.Context, src Source, opts Options) (*mesh.Mesh, error) {
	model, err := stl.Parse(src.Data)
	if err != nil {
		return nil, &BackendError{Backend: b.Name(), Kind: ErrParse, Err: err}
	}
	m := model.Mesh(opts.MergeEpsilon)
	if m.IsEmpty() {
		return nil, &BackendError{Backend: b.Name(), Kind: ErrParse, Err: errors.New("no triangles in input")}
	}
	return m, nil
}

// NewTessellatedBackend reads AP242 tessellated geometry straight from the
// STEP container, no kernel needed.
func NewTessellatedBackend() Backend {
	return tessellatedBackend{}
}

type tessellatedBackend struct{}

func (tessellatedBackend) Name() string { return "step-tessellated" }
func (tessellatedBackend) Accepts(f Format) bool { return f == FormatSTEP }
func (tessellatedBackend) Available() bool { return true }

func (b tessellatedBackend) Convert(_ context.Context, src Source, _ Options) (*mesh.Mesh, error) {
	m, err := step.ParseTessellated(src.Data)
	if err != nil {
		return nil, &BackendError{Backend: b.Name(), Kind: ErrParse, Err: err}
	}
	if m.IsEmpty() {
		return nil, &BackendError{Backend: b.Name(), Kind: ErrParse, Err: errors.New("tessellated sets carry no triangles")}
	}
	return m, nil
}

// NewFacetedBackend reads the faceted B-rep STEP dialect: planar faces
// bounded by poly loops.
func NewFacetedBackend() Backend {
	return facetedBackend{}
}

type facetedBackend struct{}

func (facetedBackend) Name() string { return "step-faceted" }
func (facetedBackend) Accepts(f Format) bool { return f == FormatSTEP }
func (facetedBackend) Available() bool { return true }

func (b facetedBackend) Convert(_ context.Context, src Source, _ Options) (*mesh.Mesh, error) {
	m, err := step.ParseFaceted(src.Data)
	if err != nil {
		return nil, &BackendError{Backend: b.Name(), Kind: ErrParse, Err: err}
	}
	return m, nil
}

// NewFreeCADBackend delegates to an external FreeCAD process. A nil tool
// makes the backend report itself unavailable, which keeps it in the
// attempt log with a clear reason.
func NewFreeCADBackend(tool *freecad.Tool) Backend {
	return &freecadBackend{tool: tool}
}

type freecadBackend struct {
	tool *freecad.Tool
}

func (b *freecadBackend) Name() string { return "freecad" }
func (b *freecadBackend) Accepts(f Format) bool { return f == FormatSTEP }
func (b *freecadBackend) Available() bool { return b.tool != nil }

func (b *freecadBackend) Convert(ctx context.Context, src Source, opts Options) (*mesh.Mesh, error) {
	if b.tool == nil {
		return nil, &BackendError{Backend: b.Name(), Kind: ErrBackendUnavailable, Err: freecad.ErrNotFound}
	}

	data, err := b.tool.ConvertToSTL(ctx, src.Data, freecad.Options{
		Timeout:         opts.Timeout,
		DeflectionRatio: opts.DeflectionRatio,
		ScratchBase:     opts.ScratchBase,
	})
	if err != nil {
		switch {
		case errors.Is(err, freecad.ErrTimedOut):
			return nil, &BackendError{Backend: b.Name(), Kind: ErrTimeout, Err: err}
		case errors.Is(err, context.Canceled):
			return nil, err
		default:
			return nil, &BackendError{Backend: b.Name(), Kind: ErrParse, Err: err}
		}
	}

	model, err := stl.Parse(data)
	if err != nil {
		return nil, &BackendError{Backend: b.Name(), Kind: ErrParse, Err: fmt.Errorf("kernel output unreadable: %w", err)}
	}
	m := model.Mesh(opts.MergeEpsilon)
	if m.IsEmpty() {
		return nil, &BackendError{Backend: b.Name(), Kind: ErrParse, Err: errors.New("kernel produced an empty mesh")}
	}
	return m, nil
}
