// Package mesh holds the indexed triangle mesh that every converter backend
// produces and every analyzer and writer consumes.
package mesh

import (
	"fmt"
	"math"

	"github.com/philipparndt/gocad/pkg/geometry"
)

// DefaultEpsilonRatio scales the bounding box diagonal into the default
// vertex merge tolerance.
const DefaultEpsilonRatio = 1e-9

// minEpsilon keeps the merge tolerance meaningful for degenerate or
// zero-extent inputs.
const minEpsilon = 1e-12

// Mesh is an indexed triangle mesh. Faces reference Vertices by position;
// windings are counter-clockwise when viewed from outside once the mesh has
// been normalized.
type Mesh struct {
	Vertices []geometry.Vector3
	Faces    [][3]int
}

// FromTriangles builds an indexed mesh from a triangle soup, merging
// vertices closer than epsilon. A non-positive epsilon derives the tolerance
// from the soup's bounding box. Faces whose corners collapse onto a single
// merged vertex are skipped.
func FromTriangles(triangles []geometry.Triangle, epsilon float64) *Mesh {
	if epsilon <= 0 {
		bbox := geometry.NewBoundingBox()
		for _, tri := range triangles {
			bbox.Extend(tri.V1)
			bbox.Extend(tri.V2)
			bbox.Extend(tri.V3)
		}
		epsilon = EpsilonFor(bbox)
	}

	merger := newVertexMerger(epsilon, len(triangles))
	m := &Mesh{Faces: make([][3]int, 0, len(triangles))}
	for _, tri := range triangles {
		a := merger.add(tri.V1)
		b := merger.add(tri.V2)
		c := merger.add(tri.V3)
		if a == b || b == c || a == c {
			continue
		}
		m.Faces = append(m.Faces, [3]int{a, b, c})
	}
	m.Vertices = merger.vertices
	return m
}

// EpsilonFor derives the default merge tolerance for a model of the given
// extent.
func EpsilonFor(bbox geometry.BoundingBox) float64 {
	eps := bbox.Diagonal() * DefaultEpsilonRatio
	if eps < minEpsilon {
		eps = minEpsilon
	}
	return eps
}

// Validate reports the first face referencing a vertex that does not exist.
func (m *Mesh) Validate() error {
	for i, face := range m.Faces {
		for _, idx := range face {
			if idx < 0 || idx >= len(m.Vertices) {
				return fmt.Errorf("face %d references vertex %d, mesh has %d vertices", i, idx, len(m.Vertices))
			}
		}
	}
	return nil
}

// IsEmpty reports whether the mesh has no faces.
func (m *Mesh) IsEmpty() bool {
	return len(m.Faces) == 0
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		Vertices: make([]geometry.Vector3, len(m.Vertices)),
		Faces:    make([][3]int, len(m.Faces)),
	}
	copy(c.Vertices, m.Vertices)
	copy(c.Faces, m.Faces)
	return c
}

// BoundingBox returns the axis-aligned bounds over all vertices.
func (m *Mesh) BoundingBox() geometry.BoundingBox {
	bbox := geometry.NewBoundingBox()
	for _, v := range m.Vertices {
		bbox.Extend(v)
	}
	return bbox
}

// Triangles expands the mesh back into a triangle soup with computed
// normals.
func (m *Mesh) Triangles() []geometry.Triangle {
	triangles := make([]geometry.Triangle, 0, len(m.Faces))
	for _, face := range m.Faces {
		v1 := m.Vertices[face[0]]
		v2 := m.Vertices[face[1]]
		v3 := m.Vertices[face[2]]
		tri := geometry.Triangle{V1: v1, V2: v2, V3: v3}
		tri.Normal = tri.CalculateNormal()
		triangles = append(triangles, tri)
	}
	return triangles
}

// FaceNormal returns the unit normal of face i, or the zero vector for a
// degenerate face.
func (m *Mesh) FaceNormal(i int) geometry.Vector3 {
	face := m.Faces[i]
	a := m.Vertices[face[0]]
	b := m.Vertices[face[1]]
	c := m.Vertices[face[2]]
	n := b.Sub(a).Cross(c.Sub(a))
	if n.Length() == 0 {
		return geometry.Vector3{}
	}
	return n.Normalize()
}

// FaceArea returns the area of face i.
func (m *Mesh) FaceArea(i int) float64 {
	face := m.Faces[i]
	a := m.Vertices[face[0]]
	b := m.Vertices[face[1]]
	c := m.Vertices[face[2]]
	return b.Sub(a).Cross(c.Sub(a)).Length() / 2
}

// SurfaceArea returns the sum of all face areas.
func (m *Mesh) SurfaceArea() float64 {
	total := 0.0
	for i := range m.Faces {
		total += m.FaceArea(i)
	}
	return total
}

// SignedVolume returns the signed tetrahedron sum over all faces. It is
// positive for a closed, outward-wound surface.
func (m *Mesh) SignedVolume() float64 {
	total := 0.0
	for _, face := range m.Faces {
		a := m.Vertices[face[0]]
		b := m.Vertices[face[1]]
		c := m.Vertices[face[2]]
		total += a.Dot(b.Cross(c))
	}
	return total / 6.0
}

// VertexNormals returns per-vertex normals, area-weighted over the incident
// faces. Vertices without any non-degenerate face get an up vector so
// downstream writers always see unit normals.
func (m *Mesh) VertexNormals() []geometry.Vector3 {
	normals := make([]geometry.Vector3, len(m.Vertices))
	for _, face := range m.Faces {
		a := m.Vertices[face[0]]
		b := m.Vertices[face[1]]
		c := m.Vertices[face[2]]
		// The cross product length doubles as the area weight.
		weighted := b.Sub(a).Cross(c.Sub(a))
		for _, idx := range face {
			normals[idx] = normals[idx].Add(weighted)
		}
	}
	for i, n := range normals {
		if n.Length() == 0 {
			normals[i] = geometry.NewVector3(0, 0, 1)
			continue
		}
		normals[i] = n.Normalize()
	}
	return normals
}

// vertexMerger deduplicates vertices with a uniform spatial grid sized to
// the merge tolerance. Neighboring cells are probed so near-duplicates
// straddling a cell boundary still merge.
type vertexMerger struct {
	epsilon  float64
	grid     map[[3]int64][]int
	vertices []geometry.Vector3
}

func newVertexMerger(epsilon float64, hint int) *vertexMerger {
	return &vertexMerger{
		epsilon:  epsilon,
		grid:     make(map[[3]int64][]int, hint),
		vertices: make([]geometry.Vector3, 0, hint),
	}
}

func (vm *vertexMerger) cell(p geometry.Vector3) [3]int64 {
	return [3]int64{
		int64(math.Floor(p.X / vm.epsilon)),
		int64(math.Floor(p.Y / vm.epsilon)),
		int64(math.Floor(p.Z / vm.epsilon)),
	}
}

func (vm *vertexMerger) add(p geometry.Vector3) int {
	base := vm.cell(p)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				key := [3]int64{base[0] + dx, base[1] + dy, base[2] + dz}
				for _, idx := range vm.grid[key] {
					if vm.vertices[idx].Distance(p) <= vm.epsilon {
						return idx
					}
				}
			}
		}
	}
	idx := len(vm.vertices)
	vm.vertices = append(vm.vertices, p)
	vm.grid[base] = append(vm.grid[base], idx)
	return idx
}
