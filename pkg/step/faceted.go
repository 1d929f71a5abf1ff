package step

import (
	"fmt"

	"github.com/philipparndt/gocad/pkg/geometry"
	"github.com/philipparndt/gocad/pkg/mesh"
)

// ParseFaceted extracts FACETED_BREP solids: planar faces bounded by
// POLY_LOOPs over CARTESIAN_POINTs. Loops with more than three points are
// fan-triangulated; a bound with sense .F. is traversed in reverse. Files
// without any faceted B-rep fail so the caller can fall back.
func ParseFaceted(data []byte) (*mesh.Mesh, error) {
	file, err := Parse(data)
	if err != nil {
		return nil, err
	}

	breps := file.ByType("FACETED_BREP")
	if len(breps) == 0 {
		return nil, fmt.Errorf("no faceted B-rep geometry")
	}

	m := &mesh.Mesh{}
	pointIndex := make(map[int]int)
	for _, brep := range breps {
		if err := appendBrep(file, brep, m, pointIndex); err != nil {
			return nil, fmt.Errorf("FACETED_BREP #%d: %w", brep.ID, err)
		}
	}
	if m.IsEmpty() {
		return nil, fmt.Errorf("faceted B-rep carries no polygonal loops")
	}
	return m, nil
}

func appendBrep(file *File, brep Entity, m *mesh.Mesh, pointIndex map[int]int) error {
	shell, ok := findRefOfType(file, brep.Args, "CLOSED_SHELL", "OPEN_SHELL")
	if !ok {
		return fmt.Errorf("no shell reference")
	}

	faces := collectRefs(shell.Args)
	for _, faceRef := range faces {
		face, ok := file.Entities[faceRef]
		if !ok {
			continue
		}
		for _, bound := range faceBounds(file, face) {
			if err := appendBound(file, bound, m, pointIndex); err != nil {
				return fmt.Errorf("face #%d: %w", face.ID, err)
			}
		}
	}
	return nil
}

// faceBounds gathers the FACE_OUTER_BOUND / FACE_BOUND entities referenced
// by a face, whether they appear as direct arguments or inside a list.
func faceBounds(file *File, face Entity) []Entity {
	var bounds []Entity
	for _, ref := range collectRefs(face.Args) {
		e, ok := file.Entities[ref]
		if !ok {
			continue
		}
		if e.Type == "FACE_OUTER_BOUND" || e.Type == "FACE_BOUND" {
			bounds = append(bounds, e)
		}
	}
	return bounds
}

func appendBound(file *File, bound Entity, m *mesh.Mesh, pointIndex map[int]int) error {
	loop, ok := findRefOfType(file, bound.Args, "POLY_LOOP")
	if !ok {
		// Bounds over edge loops belong to exact B-rep geometry, which a
		// CAD kernel handles. Skip them here.
		return nil
	}

	reversed := false
	for _, arg := range bound.Args {
		if arg.Kind == KindEnum && arg.Str == "F" {
			reversed = true
		}
	}

	var polygon []int
	for _, ref := range collectRefs(loop.Args) {
		point, ok := file.Entities[ref]
		if !ok || point.Type != "CARTESIAN_POINT" {
			return fmt.Errorf("POLY_LOOP #%d references #%d which is not a point", loop.ID, ref)
		}
		idx, ok := pointIndex[point.ID]
		if !ok {
			coords, err := cartesianCoords(point)
			if err != nil {
				return err
			}
			idx = len(m.Vertices)
			m.Vertices = append(m.Vertices, coords)
			pointIndex[point.ID] = idx
		}
		polygon = append(polygon, idx)
	}

	if len(polygon) < 3 {
		return fmt.Errorf("POLY_LOOP #%d has %d points, need at least 3", loop.ID, len(polygon))
	}
	if reversed {
		for i, j := 0, len(polygon)-1; i < j; i, j = i+1, j-1 {
			polygon[i], polygon[j] = polygon[j], polygon[i]
		}
	}

	for i := 1; i < len(polygon)-1; i++ {
		m.Faces = append(m.Faces, [3]int{polygon[0], polygon[i], polygon[i+1]})
	}
	return nil
}

func cartesianCoords(point Entity) (geometry.Vector3, error) {
	for _, arg := range point.Args {
		if arg.Kind != KindList || len(arg.List) != 3 {
			continue
		}
		var c [3]float64
		valid := true
		for i, n := range arg.List {
			if n.Kind != KindNumber {
				valid = false
				break
			}
			c[i] = n.Number
		}
		if valid {
			return geometry.NewVector3(c[0], c[1], c[2]), nil
		}
	}
	return geometry.Vector3{}, fmt.Errorf("CARTESIAN_POINT #%d has no coordinate triple", point.ID)
}

// findRefOfType resolves the first argument referencing an entity of one of
// the given types.
func findRefOfType(file *File, args []Value, types ...string) (Entity, bool) {
	for _, arg := range args {
		e, ok := file.Ref(arg)
		if !ok {
			continue
		}
		for _, t := range types {
			if e.Type == t {
				return e, true
			}
		}
	}
	return Entity{}, false
}

// collectRefs returns every reference in args, looking one list level deep.
func collectRefs(args []Value) []int {
	var refs []int
	for _, arg := range args {
		switch arg.Kind {
		case KindRef:
			refs = append(refs, arg.Ref)
		case KindList:
			for _, item := range arg.List {
				if item.Kind == KindRef {
					refs = append(refs, item.Ref)
				}
			}
		}
	}
	return refs
}
