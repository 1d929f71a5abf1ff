package step

import (
	"fmt"

	"github.com/philipparndt/gocad/pkg/geometry"
	"github.com/philipparndt/gocad/pkg/mesh"
)

// ParseTessellated extracts AP242 tessellated geometry: every
// TRIANGULATED_FACE_SET and TRIANGULATED_SURFACE_SET with its
// COORDINATES_LIST. Files without any tessellated set fail, which lets the
// caller fall back to other strategies.
//
// Schema order is (name, coordinates, pnmax, normals, pnindex, triangles);
// arguments are located by shape rather than by blind position so that
// slightly off-spec exporters still read.
func ParseTessellated(data []byte) (*mesh.Mesh, error) {
	file, err := Parse(data)
	if err != nil {
		return nil, err
	}

	var sets []Entity
	for _, id := range file.order {
		e := file.Entities[id]
		if e.Type == "TRIANGULATED_FACE_SET" || e.Type == "TRIANGULATED_SURFACE_SET" {
			sets = append(sets, e)
		}
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("no tessellated geometry")
	}

	m := &mesh.Mesh{}
	for _, set := range sets {
		if err := appendTessellatedSet(file, set, m); err != nil {
			return nil, fmt.Errorf("%s #%d: %w", set.Type, set.ID, err)
		}
	}
	return m, nil
}

func appendTessellatedSet(file *File, set Entity, m *mesh.Mesh) error {
	points, err := tessellatedPoints(file, set)
	if err != nil {
		return err
	}

	// Triangles are the last list-of-triples argument; the normals list
	// earlier in the record has the same shape.
	var triangles [][3]float64
	for i := len(set.Args) - 1; i >= 0; i-- {
		if t, ok := asTriples(set.Args[i]); ok && len(t) > 0 {
			triangles = t
			break
		}
	}
	if triangles == nil {
		return nil // empty set, nothing to add
	}

	var pnindex []float64
	for _, arg := range set.Args {
		if flat, ok := asFlatNumbers(arg); ok && len(flat) > 0 {
			pnindex = flat
			break
		}
	}

	offset := len(m.Vertices)
	for _, p := range points {
		m.Vertices = append(m.Vertices, geometry.NewVector3(p[0], p[1], p[2]))
	}

	resolve := func(raw float64) (int, error) {
		idx := int(raw)
		if pnindex != nil {
			if idx < 1 || idx > len(pnindex) {
				return 0, fmt.Errorf("triangle index %d outside pnindex of length %d", idx, len(pnindex))
			}
			idx = int(pnindex[idx-1])
		}
		if idx < 1 || idx > len(points) {
			return 0, fmt.Errorf("vertex index %d outside coordinate list of length %d", idx, len(points))
		}
		return offset + idx - 1, nil
	}

	for _, tri := range triangles {
		a, err := resolve(tri[0])
		if err != nil {
			return err
		}
		b, err := resolve(tri[1])
		if err != nil {
			return err
		}
		c, err := resolve(tri[2])
		if err != nil {
			return err
		}
		m.Faces = append(m.Faces, [3]int{a, b, c})
	}
	return nil
}

// tessellatedPoints resolves the COORDINATES_LIST reference of a set and
// returns its point triples.
func tessellatedPoints(file *File, set Entity) ([][3]float64, error) {
	for _, arg := range set.Args {
		coords, ok := file.Ref(arg)
		if !ok || coords.Type != "COORDINATES_LIST" {
			continue
		}
		for _, carg := range coords.Args {
			if points, ok := asTriples(carg); ok {
				return points, nil
			}
		}
		return nil, fmt.Errorf("COORDINATES_LIST #%d has no point list", coords.ID)
	}
	return nil, fmt.Errorf("no COORDINATES_LIST reference")
}

// asTriples accepts a list whose elements are all three-number lists.
func asTriples(v Value) ([][3]float64, bool) {
	if v.Kind != KindList {
		return nil, false
	}
	out := make([][3]float64, 0, len(v.List))
	for _, item := range v.List {
		if item.Kind != KindList || len(item.List) != 3 {
			return nil, false
		}
		var triple [3]float64
		for i, n := range item.List {
			if n.Kind != KindNumber {
				return nil, false
			}
			triple[i] = n.Number
		}
		out = append(out, triple)
	}
	return out, true
}

// asFlatNumbers accepts a list of plain numbers.
func asFlatNumbers(v Value) ([]float64, bool) {
	if v.Kind != KindList {
		return nil, false
	}
	out := make([]float64, 0, len(v.List))
	for _, item := range v.List {
		if item.Kind != KindNumber {
			return nil, false
		}
		out = append(out, item.Number)
	}
	return out, true
}
