// Package analysis derives geometric and topological statistics from a
// triangle mesh: counts, watertightness, volume, surface area, bounds and
// convexity. The report is flat and JSON-serializable so presentation
// layers can consume it directly.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/philipparndt/gocad/pkg/geometry"
	"github.com/philipparndt/gocad/pkg/mesh"
)

// ErrInvalidMesh means a structurally malformed mesh reached the analyzer,
// for example a face referencing a vertex that does not exist.
var ErrInvalidMesh = errors.New("invalid mesh")

// convexTolerance is the relative hull deviation below which a part still
// counts as convex. Tessellation noise keeps the deviation of a genuinely
// convex part slightly above zero.
const convexTolerance = 1e-6

// Report holds every statistic derived from one mesh. Optional fields are
// pointers: Volume is nil for a non-watertight mesh (undefined, not zero),
// Convex and HullDeviation are nil when the convex hull routine rejects the
// vertex set.
type Report struct {
	Vertices int `json:"vertices"`
	Faces    int `json:"faces"`
	Edges    int `json:"edges"`

	// Euler is V - E + F, a coarse topology sanity check. 2 for a single
	// genus-0 solid.
	Euler int `json:"euler"`

	Watertight bool     `json:"watertight"`
	Volume     *float64 `json:"volume,omitempty"`

	SurfaceArea float64 `json:"surface_area"`

	BoundsMin         [3]float64 `json:"bounds_min"`
	BoundsMax         [3]float64 `json:"bounds_max"`
	Dimensions        [3]float64 `json:"dimensions"`
	BoundingBoxVolume float64    `json:"bounding_box_volume"`

	// Centroid is area-weighted over face centroids, not vertex-averaged,
	// so uneven tessellation density does not bias it.
	Centroid [3]float64 `json:"centroid"`

	Convex        *bool    `json:"convex,omitempty"`
	HullDeviation *float64 `json:"hull_deviation,omitempty"`
}

// Genus returns the surface genus implied by the Euler characteristic.
// Meaningful for watertight single-component meshes only.
func (r *Report) Genus() int {
	return (2 - r.Euler) / 2
}

// Analyze computes the full report for a mesh. It is a pure function of its
// input: the same mesh always yields an identical report. The only failure
// is ErrInvalidMesh for a structurally malformed input.
func Analyze(m *mesh.Mesh) (*Report, error) {
	if m == nil || m.IsEmpty() {
		return nil, fmt.Errorf("%w: mesh has no faces", ErrInvalidMesh)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMesh, err)
	}

	r := &Report{
		Vertices:    len(m.Vertices),
		Faces:       len(m.Faces),
		SurfaceArea: m.SurfaceArea(),
	}

	edges, watertight := edgeTopology(m)
	r.Edges = edges
	r.Euler = r.Vertices - r.Edges + r.Faces
	r.Watertight = watertight

	// Volume is well-defined only for a closed surface. Normalization has
	// already made windings consistent, so the signed sum is positive up to
	// rounding; the magnitude guards against a globally inverted input.
	if watertight {
		volume := math.Abs(m.SignedVolume())
		r.Volume = &volume
	}

	bbox := m.BoundingBox()
	r.BoundsMin = bbox.Min.Array()
	r.BoundsMax = bbox.Max.Array()
	r.Dimensions = bbox.Size().Array()
	r.BoundingBoxVolume = bbox.Volume()
	r.Centroid = surfaceCentroid(m).Array()

	// Hull-derived metrics are omitted rather than defaulted when the hull
	// routine rejects the vertex set or the volume is undefined.
	if r.Volume != nil {
		if hull, err := geometry.ConvexHull(m.Vertices); err == nil {
			if hullVolume := hull.Volume(); hullVolume > 0 {
				deviation := (hullVolume - *r.Volume) / hullVolume
				if deviation < 0 {
					deviation = 0
				}
				convex := deviation <= convexTolerance
				r.HullDeviation = &deviation
				r.Convex = &convex
			}
		}
	}

	return r, nil
}

// edgeTopology counts unique undirected edges and checks watertightness:
// every edge must border exactly two faces, traversed once in each
// direction so the two windings agree.
func edgeTopology(m *mesh.Mesh) (edges int, watertight bool) {
	type use struct {
		total   int
		forward int
	}
	uses := make(map[[2]int]use, len(m.Faces)*3/2)

	for _, face := range m.Faces {
		corners := [3][2]int{
			{face[0], face[1]},
			{face[1], face[2]},
			{face[2], face[0]},
		}
		for _, e := range corners {
			key := e
			forward := 1
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
				forward = 0
			}
			u := uses[key]
			u.total++
			u.forward += forward
			uses[key] = u
		}
	}

	watertight = true
	for _, u := range uses {
		if u.total != 2 || u.forward != 1 {
			watertight = false
			break
		}
	}
	return len(uses), watertight
}

// surfaceCentroid is the area-weighted mean of the face centroids.
func surfaceCentroid(m *mesh.Mesh) geometry.Vector3 {
	var weighted geometry.Vector3
	total := 0.0
	for i, face := range m.Faces {
		area := m.FaceArea(i)
		center := m.Vertices[face[0]].
			Add(m.Vertices[face[1]]).
			Add(m.Vertices[face[2]]).
			Mul(1.0 / 3.0)
		weighted = weighted.Add(center.Mul(area))
		total += area
	}
	if total == 0 {
		return m.BoundingBox().Center()
	}
	return weighted.Mul(1.0 / total)
}
