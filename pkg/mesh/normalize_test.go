package mesh

import (
	"math"
	"testing"

	"github.com/philipparndt/gocad/pkg/geometry"
)

func TestNormalizeFixesMixedWindings(t *testing.T) {
	m := cubeMesh(2)
	// Invert a few faces; adjacency propagation has to restore them.
	m.flipFace(1)
	m.flipFace(5)
	m.flipFace(10)

	m.Normalize(0)

	volume := m.SignedVolume()
	if math.Abs(volume-8.0) > 1e-9 {
		t.Errorf("SignedVolume after Normalize failed: expected 8.0, got %v", volume)
	}
}

func TestNormalizeFlipsInvertedMesh(t *testing.T) {
	m := cubeMesh(2)
	// Consistently inward-wound mesh has negative volume until normalized.
	for i := range m.Faces {
		m.flipFace(i)
	}
	if m.SignedVolume() >= 0 {
		t.Fatal("test setup failed: inverted cube should have negative volume")
	}

	m.Normalize(0)

	if math.Abs(m.SignedVolume()-8.0) > 1e-9 {
		t.Errorf("SignedVolume after Normalize failed: expected 8.0, got %v", m.SignedVolume())
	}
}

func TestNormalizeDropsDegenerateFaces(t *testing.T) {
	m := cubeMesh(2)
	// A sliver with two nearly coincident corners.
	m.Vertices = append(m.Vertices, geometry.NewVector3(0, 0, 1e-14))
	m.Faces = append(m.Faces, [3]int{0, 1, 8})

	m.Normalize(1e-9)

	if len(m.Faces) != 12 {
		t.Errorf("Face count failed: expected 12, got %d", len(m.Faces))
	}
}

func TestNormalizeCompactsUnreferencedVertices(t *testing.T) {
	m := cubeMesh(2)
	m.Vertices = append(m.Vertices, geometry.NewVector3(50, 50, 50))

	m.Normalize(0)

	if len(m.Vertices) != 8 {
		t.Errorf("Vertex count failed: expected 8, got %d", len(m.Vertices))
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate after Normalize failed: %v", err)
	}
}

func TestNormalizeMergesDuplicateVertices(t *testing.T) {
	m := cubeMesh(2)
	// Duplicate a corner and point one face at the duplicate.
	m.Vertices = append(m.Vertices, m.Vertices[0].Add(geometry.NewVector3(1e-13, 0, 0)))
	m.Faces[0][0] = 8

	m.Normalize(1e-9)

	if len(m.Vertices) != 8 {
		t.Errorf("Vertex count failed: expected 8, got %d", len(m.Vertices))
	}
	if math.Abs(m.SignedVolume()-8.0) > 1e-6 {
		t.Errorf("SignedVolume failed: expected 8.0, got %v", m.SignedVolume())
	}
}

func TestNormalizeTwoComponents(t *testing.T) {
	a := cubeMesh(1)
	b := cubeMesh(1)

	// Second cube translated away and inverted.
	offset := geometry.NewVector3(10, 0, 0)
	base := len(a.Vertices)
	for _, v := range b.Vertices {
		a.Vertices = append(a.Vertices, v.Add(offset))
	}
	for _, face := range b.Faces {
		a.Faces = append(a.Faces, [3]int{face[0] + base, face[2] + base, face[1] + base})
	}

	a.Normalize(0)

	volume := a.SignedVolume()
	if math.Abs(volume-2.0) > 1e-9 {
		t.Errorf("SignedVolume failed: expected 2.0, got %v", volume)
	}
}

func TestNormalizeEmptyMesh(t *testing.T) {
	m := &Mesh{}
	m.Normalize(0)

	if !m.IsEmpty() {
		t.Error("IsEmpty failed after normalizing an empty mesh")
	}
}
