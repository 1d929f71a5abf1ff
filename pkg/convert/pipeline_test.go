package convert

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/philipparndt/gocad/pkg/geometry"
	"github.com/philipparndt/gocad/pkg/mesh"
	"github.com/philipparndt/gocad/pkg/stl"
)

type fakeBackend struct {
	name      string
	format    Format
	available bool
	m         func() *mesh.Mesh
	err       error
	calls     int
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Accepts(fm Format) bool { return fm == f.format }
func (f *fakeBackend) Available() bool { return f.available }

func (f *fakeBackend) Convert(_ context.Context, _ Source, _ Options) (*mesh.Mesh, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.m(), nil
}

func cubeMesh(size float64) *mesh.Mesh {
	s := size
	return &mesh.Mesh{
		Vertices: []geometry.Vector3{
			geometry.NewVector3(0, 0, 0),
			geometry.NewVector3(s, 0, 0),
			geometry.NewVector3(s, s, 0),
			geometry.NewVector3(0, s, 0),
			geometry.NewVector3(0, 0, s),
			geometry.NewVector3(s, 0, s),
			geometry.NewVector3(s, s, s),
			geometry.NewVector3(0, s, s),
		},
		Faces: [][3]int{
			{0, 2, 1}, {0, 3, 2},
			{4, 5, 6}, {4, 6, 7},
			{0, 1, 5}, {0, 5, 4},
			{3, 7, 6}, {3, 6, 2},
			{0, 4, 7}, {0, 7, 3},
			{1, 2, 6}, {1, 6, 5},
		},
	}
}

func stepSource(data string) Source {
	return Source{Name: "part.step", Format: FormatSTEP, Data: []byte(data)}
}

func TestConvertFallsBackInOrder(t *testing.T) {
	first := &fakeBackend{name: "first", format: FormatSTEP, available: true,
		err: &BackendError{Backend: "first", Kind: ErrParse, Err: errors.New("bad data")}}
	second := &fakeBackend{name: "second", format: FormatSTEP, available: true,
		err: &BackendError{Backend: "second", Kind: ErrTimeout}}
	third := &fakeBackend{name: "third", format: FormatSTEP, available: true,
		m: func() *mesh.Mesh { return cubeMesh(2) }}

	p := New([]Backend{first, second, third}, Options{})
	m, attempts, err := p.Convert(context.Background(), stepSource("x"))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if m == nil || len(m.Faces) != 12 {
		t.Fatalf("mesh failed: %+v", m)
	}

	if len(attempts) != 3 {
		t.Fatalf("attempt count failed: expected 3, got %d", len(attempts))
	}
	if attempts[0].Backend != "first" || attempts[0].Outcome != OutcomeFailure {
		t.Errorf("attempt 0 failed: %+v", attempts[0])
	}
	if attempts[1].Backend != "second" || attempts[1].Outcome != OutcomeFailure {
		t.Errorf("attempt 1 failed: %+v", attempts[1])
	}
	if attempts[2].Backend != "third" || attempts[2].Outcome != OutcomeSuccess {
		t.Errorf("attempt 2 failed: %+v", attempts[2])
	}

	// No backend runs twice.
	if first.calls != 1 || second.calls != 1 || third.calls != 1 {
		t.Errorf("call counts failed: %d %d %d", first.calls, second.calls, third.calls)
	}
}

func TestConvertStopsAtFirstSuccess(t *testing.T) {
	first := &fakeBackend{name: "first", format: FormatSTEP, available: true,
		m: func() *mesh.Mesh { return cubeMesh(1) }}
	second := &fakeBackend{name: "second", format: FormatSTEP, available: true,
		m: func() *mesh.Mesh { return cubeMesh(1) }}

	p := New([]Backend{first, second}, Options{})
	_, attempts, err := p.Convert(context.Background(), stepSource("x"))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(attempts) != 1 {
		t.Errorf("attempt count failed: expected 1, got %d", len(attempts))
	}
	if second.calls != 0 {
		t.Errorf("second backend ran %d times, expected 0", second.calls)
	}
}

func TestConvertSkipsOtherFormats(t *testing.T) {
	stepOnly := &fakeBackend{name: "step-only", format: FormatSTEP, available: true,
		m: func() *mesh.Mesh { return cubeMesh(1) }}
	stlOnly := &fakeBackend{name: "stl-only", format: FormatSTL, available: true,
		m: func() *mesh.Mesh { return cubeMesh(1) }}

	p := New([]Backend{stepOnly, stlOnly}, Options{})
	src := Source{Name: "part.stl", Format: FormatSTL, Data: []byte("x")}
	_, attempts, err := p.Convert(context.Background(), src)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if stepOnly.calls != 0 {
		t.Errorf("step backend ran on STL input")
	}
	// Skipped backends leave no attempt entry.
	if len(attempts) != 1 || attempts[0].Backend != "stl-only" {
		t.Errorf("attempts failed: %+v", attempts)
	}
}

func TestConvertRecordsUnavailableBackend(t *testing.T) {
	missing := &fakeBackend{name: "missing", format: FormatSTEP, available: false}
	working := &fakeBackend{name: "working", format: FormatSTEP, available: true,
		m: func() *mesh.Mesh { return cubeMesh(1) }}

	p := New([]Backend{missing, working}, Options{})
	_, attempts, err := p.Convert(context.Background(), stepSource("x"))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if missing.calls != 0 {
		t.Error("unavailable backend must not be invoked")
	}
	if len(attempts) != 2 {
		t.Fatalf("attempt count failed: expected 2, got %d", len(attempts))
	}
	if attempts[0].Err != ErrBackendUnavailable.Error() {
		t.Errorf("attempt 0 error failed: %q", attempts[0].Err)
	}
}

func TestConvertExhaustedBackends(t *testing.T) {
	first := &fakeBackend{name: "first", format: FormatSTEP, available: true,
		err: &BackendError{Backend: "first", Kind: ErrParse}}
	second := &fakeBackend{name: "second", format: FormatSTEP, available: false}

	p := New([]Backend{first, second}, Options{})
	_, attempts, err := p.Convert(context.Background(), stepSource("x"))
	if err == nil {
		t.Fatal("expected error when all backends fail")
	}
	if !errors.Is(err, ErrNoBackend) {
		t.Errorf("expected ErrNoBackend, got %v", err)
	}

	var pipeErr *PipelineError
	if !errors.As(err, &pipeErr) {
		t.Fatalf("expected PipelineError, got %T", err)
	}
	if len(pipeErr.Attempts) != 2 || len(attempts) != 2 {
		t.Errorf("attempts failed: %+v", pipeErr.Attempts)
	}
	if !bytes.Contains([]byte(pipeErr.Remediation), []byte("FreeCAD")) {
		t.Errorf("remediation failed: %q", pipeErr.Remediation)
	}
}

func TestConvertRejectsEmptyMesh(t *testing.T) {
	empty := &fakeBackend{name: "empty", format: FormatSTEP, available: true,
		m: func() *mesh.Mesh { return &mesh.Mesh{} }}
	working := &fakeBackend{name: "working", format: FormatSTEP, available: true,
		m: func() *mesh.Mesh { return cubeMesh(1) }}

	p := New([]Backend{empty, working}, Options{})
	m, attempts, err := p.Convert(context.Background(), stepSource("x"))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if m.IsEmpty() {
		t.Error("expected non-empty mesh from fallback")
	}
	if attempts[0].Outcome != OutcomeFailure {
		t.Errorf("attempt 0 failed: %+v", attempts[0])
	}
}

func TestConvertNormalizesResult(t *testing.T) {
	inverted := cubeMesh(2)
	for i := range inverted.Faces {
		inverted.Faces[i][1], inverted.Faces[i][2] = inverted.Faces[i][2], inverted.Faces[i][1]
	}
	backend := &fakeBackend{name: "b", format: FormatSTEP, available: true,
		m: func() *mesh.Mesh { return inverted }}

	p := New([]Backend{backend}, Options{})
	m, _, err := p.Convert(context.Background(), stepSource("x"))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if volume := m.SignedVolume(); math.Abs(volume-8.0) > 1e-9 {
		t.Errorf("normalized volume failed: expected 8.0, got %v", volume)
	}
}

func TestConvertCancelledContext(t *testing.T) {
	backend := &fakeBackend{name: "b", format: FormatSTEP, available: true,
		m: func() *mesh.Mesh { return cubeMesh(1) }}
	p := New([]Backend{backend}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.Convert(ctx, stepSource("x"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if backend.calls != 0 {
		t.Error("backend must not run after cancellation")
	}
}

func TestConvertOnAttempt(t *testing.T) {
	first := &fakeBackend{name: "first", format: FormatSTEP, available: true,
		err: &BackendError{Backend: "first", Kind: ErrParse}}
	second := &fakeBackend{name: "second", format: FormatSTEP, available: true,
		m: func() *mesh.Mesh { return cubeMesh(1) }}

	p := New([]Backend{first, second}, Options{})
	var seen []Attempt
	p.OnAttempt = func(a Attempt) { seen = append(seen, a) }

	_, attempts, err := p.Convert(context.Background(), stepSource("x"))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(seen) != len(attempts) {
		t.Fatalf("hook count failed: expected %d, got %d", len(attempts), len(seen))
	}
	for i := range seen {
		if seen[i] != attempts[i] {
			t.Errorf("hook attempt %d differs: %+v vs %+v", i, seen[i], attempts[i])
		}
	}
}

func TestConvertUnknownFormat(t *testing.T) {
	p := New(nil, Options{})
	_, _, err := p.Convert(context.Background(), Source{Name: "file.xyz"})
	if err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestSTLBackendThroughPipeline(t *testing.T) {
	var buf bytes.Buffer
	if err := stl.Write(&buf, cubeMesh(2), "cube"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	p := New([]Backend{NewSTLBackend()}, Options{})
	src := Source{Name: "cube.stl", Format: FormatSTL, Data: buf.Bytes()}
	m, attempts, err := p.Convert(context.Background(), src)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if len(m.Vertices) != 8 || len(m.Faces) != 12 {
		t.Errorf("mesh failed: %d vertices, %d faces", len(m.Vertices), len(m.Faces))
	}
	if math.Abs(m.SignedVolume()-8.0) > 1e-9 {
		t.Errorf("volume failed: got %v", m.SignedVolume())
	}
	if len(attempts) != 1 || attempts[0].Backend != "stl" {
		t.Errorf("attempts failed: %+v", attempts)
	}
}

const facetedCubeStep = `ISO-10303-21;
HEADER;
FILE_DESCRIPTION((''),'2;1');
FILE_NAME('cube.step','2024-01-01',(''),(''),'','','');
FILE_SCHEMA(('CONFIG_CONTROL_DESIGN'));
ENDSEC;
DATA;
#1=CARTESIAN_POINT('',(0.,0.,0.));
#2=CARTESIAN_POINT('',(2.,0.,0.));
#3=CARTESIAN_POINT('',(2.,2.,0.));
#4=CARTESIAN_POINT('',(0.,2.,0.));
#5=CARTESIAN_POINT('',(0.,0.,2.));
#6=CARTESIAN_POINT('',(2.,0.,2.));
#7=CARTESIAN_POINT('',(2.,2.,2.));
#8=CARTESIAN_POINT('',(0.,2.,2.));
#11=POLY_LOOP('',(#1,#4,#3,#2));
#12=FACE_OUTER_BOUND('',#11,.T.);
#13=FACE('',(#12));
#21=POLY_LOOP('',(#5,#6,#7,#8));
#22=FACE_OUTER_BOUND('',#21,.T.);
#23=FACE('',(#22));
#31=POLY_LOOP('',(#1,#2,#6,#5));
#32=FACE_OUTER_BOUND('',#31,.T.);
#33=FACE('',(#32));
#41=POLY_LOOP('',(#4,#8,#7,#3));
#42=FACE_OUTER_BOUND('',#41,.T.);
#43=FACE('',(#42));
#51=POLY_LOOP('',(#1,#5,#8,#4));
#52=FACE_OUTER_BOUND('',#51,.T.);
#53=FACE('',(#52));
#61=POLY_LOOP('',(#2,#3,#7,#6));
#62=FACE_OUTER_BOUND('',#61,.T.);
#63=FACE('',(#62));
#70=CLOSED_SHELL('',(#13,#23,#33,#43,#53,#63));
#71=FACETED_BREP('',#70);
ENDSEC;
END-ISO-10303-21;
`

func TestStepFallbackOnRealFile(t *testing.T) {
	// A faceted B-rep file: the tessellated reader must fail and the chain
	// must land on the faceted reader.
	p := New([]Backend{NewSTLBackend(), NewTessellatedBackend(), NewFacetedBackend()}, Options{})
	m, attempts, err := p.Convert(context.Background(), stepSource(facetedCubeStep))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if len(attempts) != 2 {
		t.Fatalf("attempt count failed: expected 2, got %+v", attempts)
	}
	if attempts[0].Backend != "step-tessellated" || attempts[0].Outcome != OutcomeFailure {
		t.Errorf("attempt 0 failed: %+v", attempts[0])
	}
	if attempts[1].Backend != "step-faceted" || attempts[1].Outcome != OutcomeSuccess {
		t.Errorf("attempt 1 failed: %+v", attempts[1])
	}

	if math.Abs(m.SignedVolume()-8.0) > 1e-9 {
		t.Errorf("volume failed: got %v", m.SignedVolume())
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]Format{
		"model.step": FormatSTEP,
		"model.STP":  FormatSTEP,
		"model.stl":  FormatSTL,
		"model.STL":  FormatSTL,
		"model.txt":  FormatUnknown,
		"model":      FormatUnknown,
	}
	for path, expected := range cases {
		if got := FormatFromPath(path); got != expected {
			t.Errorf("FormatFromPath(%q) failed: expected %q, got %q", path, expected, got)
		}
	}
}

func TestDefaultBackendOrder(t *testing.T) {
	backends := DefaultBackends(Capabilities{})
	expected := []string{"stl", "step-tessellated", "step-faceted", "freecad"}
	if len(backends) != len(expected) {
		t.Fatalf("backend count failed: expected %d, got %d", len(expected), len(backends))
	}
	for i, b := range backends {
		if b.Name() != expected[i] {
			t.Errorf("backend %d failed: expected %q, got %q", i, expected[i], b.Name())
		}
	}
	// Without a located kernel the freecad backend reports unavailable.
	if backends[3].Available() {
		t.Error("freecad backend must be unavailable without a tool")
	}
}
