package mesh

import "github.com/philipparndt/gocad/pkg/geometry"

// Normalize cleans the mesh in place after decoding: vertices within
// epsilon merge into one, faces thinner than the tolerance are dropped,
// unreferenced vertices are compacted away, and windings are re-oriented so
// each connected component encloses a non-negative volume. A non-positive
// epsilon derives the tolerance from the bounding box.
func (m *Mesh) Normalize(epsilon float64) {
	if epsilon <= 0 {
		epsilon = EpsilonFor(m.BoundingBox())
	}
	m.mergeVertices(epsilon)
	m.dropDegenerateFaces(epsilon)
	m.compact()
	m.orientFaces()
}

func (m *Mesh) mergeVertices(epsilon float64) {
	merger := newVertexMerger(epsilon, len(m.Vertices))
	remap := make([]int, len(m.Vertices))
	for i, v := range m.Vertices {
		remap[i] = merger.add(v)
	}

	faces := m.Faces[:0]
	for _, face := range m.Faces {
		a, b, c := remap[face[0]], remap[face[1]], remap[face[2]]
		if a == b || b == c || a == c {
			continue
		}
		faces = append(faces, [3]int{a, b, c})
	}
	m.Faces = faces
	m.Vertices = merger.vertices
}

// dropDegenerateFaces removes faces whose altitude falls below the merge
// tolerance, which covers exact zero-area faces as well as slivers left
// behind by vertex merging.
func (m *Mesh) dropDegenerateFaces(epsilon float64) {
	faces := m.Faces[:0]
	for _, face := range m.Faces {
		a := m.Vertices[face[0]]
		b := m.Vertices[face[1]]
		c := m.Vertices[face[2]]
		ab := b.Sub(a)
		ac := c.Sub(a)
		bc := c.Sub(b)
		longest := ab.Length()
		if l := ac.Length(); l > longest {
			longest = l
		}
		if l := bc.Length(); l > longest {
			longest = l
		}
		doubleArea := ab.Cross(ac).Length()
		if longest == 0 || doubleArea <= epsilon*longest {
			continue
		}
		faces = append(faces, face)
	}
	m.Faces = faces
}

// compact drops vertices no face references and renumbers the rest.
func (m *Mesh) compact() {
	remap := make([]int, len(m.Vertices))
	for i := range remap {
		remap[i] = -1
	}
	kept := make([]geometry.Vector3, 0, len(m.Vertices))
	for fi, face := range m.Faces {
		for k, idx := range face {
			if remap[idx] < 0 {
				remap[idx] = len(kept)
				kept = append(kept, m.Vertices[idx])
			}
			m.Faces[fi][k] = remap[idx]
		}
	}
	m.Vertices = kept
}

// orientFaces walks each connected component over manifold edges, flipping
// neighbors so shared edges run in opposite directions, then flips the
// whole component when its signed volume comes out negative. The seed face
// keeps the winding the source format gave it.
func (m *Mesh) orientFaces() {
	if len(m.Faces) == 0 {
		return
	}

	adjacency := make(map[[2]int][]int, len(m.Faces)*3/2)
	for i, face := range m.Faces {
		for _, e := range faceEdges(face) {
			adjacency[undirectedEdge(e)] = append(adjacency[undirectedEdge(e)], i)
		}
	}

	visited := make([]bool, len(m.Faces))
	for seed := range m.Faces {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		component := []int{seed}
		queue := []int{seed}
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			for _, e := range faceEdges(m.Faces[i]) {
				shared := adjacency[undirectedEdge(e)]
				// Non-manifold edges give no orientation signal.
				if len(shared) != 2 {
					continue
				}
				for _, j := range shared {
					if j == i || visited[j] {
						continue
					}
					if hasDirectedEdge(m.Faces[j], e) {
						m.flipFace(j)
					}
					visited[j] = true
					component = append(component, j)
					queue = append(queue, j)
				}
			}
		}
		if m.componentSignedVolume(component) < 0 {
			for _, i := range component {
				m.flipFace(i)
			}
		}
	}
}

func (m *Mesh) flipFace(i int) {
	m.Faces[i][1], m.Faces[i][2] = m.Faces[i][2], m.Faces[i][1]
}

func (m *Mesh) componentSignedVolume(faces []int) float64 {
	total := 0.0
	for _, i := range faces {
		face := m.Faces[i]
		a := m.Vertices[face[0]]
		b := m.Vertices[face[1]]
		c := m.Vertices[face[2]]
		total += a.Dot(b.Cross(c))
	}
	return total / 6.0
}

func faceEdges(face [3]int) [3][2]int {
	return [3][2]int{
		{face[0], face[1]},
		{face[1], face[2]},
		{face[2], face[0]},
	}
}

func undirectedEdge(e [2]int) [2]int {
	if e[0] > e[1] {
		return [2]int{e[1], e[0]}
	}
	return e
}

func hasDirectedEdge(face [3]int, e [2]int) bool {
	for _, fe := range faceEdges(face) {
		if fe == e {
			return true
		}
	}
	return false
}
