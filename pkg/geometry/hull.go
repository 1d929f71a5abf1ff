package geometry

import (
	"fmt"
)

// Hull is the convex hull of a point set as a closed triangle surface.
// Face windings are consistent and outward-facing.
type Hull struct {
	Vertices []Vector3
	Faces    [][3]int
}

type hullFace struct {
	v       [3]int
	normal  Vector3 // unit, outward
	origin  Vector3
	outside []int
	alive   bool
}

func (f *hullFace) distance(p Vector3) float64 {
	return f.normal.Dot(p.Sub(f.origin))
}

// ConvexHull computes the convex hull of at least four non-coplanar points
// using the quickhull method. Degenerate inputs (fewer than four points,
// collinear or coplanar point sets) fail with an error so callers can omit
// hull-derived metrics instead of reporting a bogus value.
func ConvexHull(points []Vector3) (*Hull, error) {
	if len(points) < 4 {
		return nil, fmt.Errorf("need at least 4 points for a 3D hull, got %d", len(points))
	}

	bbox := NewBoundingBox()
	for _, p := range points {
		bbox.Extend(p)
	}
	eps := bbox.Diagonal() * 1e-10
	if eps < 1e-12 {
		eps = 1e-12
	}

	faces, err := initialTetrahedron(points, eps)
	if err != nil {
		return nil, err
	}

	// Distribute the remaining points over the initial faces.
	claimed := make([]bool, len(points))
	for _, f := range faces {
		claimed[f.v[0]] = true
		claimed[f.v[1]] = true
		claimed[f.v[2]] = true
	}
	for i, p := range points {
		if claimed[i] {
			continue
		}
		for _, f := range faces {
			if f.distance(p) > eps {
				f.outside = append(f.outside, i)
				break
			}
		}
	}

	queue := make([]*hullFace, 0, len(faces))
	queue = append(queue, faces...)

	for len(queue) > 0 {
		face := queue[0]
		queue = queue[1:]
		if !face.alive || len(face.outside) == 0 {
			continue
		}

		// Farthest outside point becomes a new hull vertex.
		far, farDist := -1, eps
		for _, idx := range face.outside {
			if d := face.distance(points[idx]); d > farDist {
				far, farDist = idx, d
			}
		}
		if far < 0 {
			face.outside = nil
			continue
		}
		p := points[far]

		// All faces visible from p get replaced. Their boundary with the
		// surviving faces is the horizon.
		var visible []*hullFace
		for _, f := range faces {
			if f.alive && f.distance(p) > eps {
				visible = append(visible, f)
			}
		}

		visibleEdges := make(map[[2]int]bool)
		for _, f := range visible {
			visibleEdges[[2]int{f.v[0], f.v[1]}] = true
			visibleEdges[[2]int{f.v[1], f.v[2]}] = true
			visibleEdges[[2]int{f.v[2], f.v[0]}] = true
		}

		var orphans []int
		for _, f := range visible {
			f.alive = false
			for _, idx := range f.outside {
				if idx != far {
					orphans = append(orphans, idx)
				}
			}
			f.outside = nil
		}

		var created []*hullFace
		for edge := range visibleEdges {
			if visibleEdges[[2]int{edge[1], edge[0]}] {
				continue // interior edge of the visible region
			}
			nf := newHullFace(points, edge[0], edge[1], far)
			faces = append(faces, nf)
			created = append(created, nf)
		}

		for _, idx := range orphans {
			q := points[idx]
			for _, f := range created {
				if f.distance(q) > eps {
					f.outside = append(f.outside, idx)
					break
				}
			}
		}
		for _, f := range created {
			if len(f.outside) > 0 {
				queue = append(queue, f)
			}
		}
	}

	return assembleHull(points, faces), nil
}

// Volume returns the enclosed volume via the signed tetrahedron sum.
func (h *Hull) Volume() float64 {
	total := 0.0
	for _, f := range h.Faces {
		a := h.Vertices[f[0]]
		b := h.Vertices[f[1]]
		c := h.Vertices[f[2]]
		total += a.Dot(b.Cross(c))
	}
	return total / 6.0
}

func newHullFace(points []Vector3, a, b, c int) *hullFace {
	pa, pb, pc := points[a], points[b], points[c]
	return &hullFace{
		v:      [3]int{a, b, c},
		normal: pb.Sub(pa).Cross(pc.Sub(pa)).Normalize(),
		origin: pa,
		alive:  true,
	}
}

// initialTetrahedron picks four points spanning a non-zero volume and builds
// the seed faces with outward windings.
func initialTetrahedron(points []Vector3, eps float64) ([]*hullFace, error) {
	// Extreme points along each axis give a robust starting pair.
	extremes := make([]int, 0, 6)
	for axis := 0; axis < 3; axis++ {
		lo, hi := 0, 0
		for i, p := range points {
			if p.Array()[axis] < points[lo].Array()[axis] {
				lo = i
			}
			if p.Array()[axis] > points[hi].Array()[axis] {
				hi = i
			}
		}
		extremes = append(extremes, lo, hi)
	}

	e0, e1, best := extremes[0], extremes[1], -1.0
	for _, i := range extremes {
		for _, j := range extremes {
			if d := points[i].Distance(points[j]); d > best {
				e0, e1, best = i, j, d
			}
		}
	}
	if best <= eps {
		return nil, fmt.Errorf("points are coincident")
	}

	// Farthest point from the e0-e1 line.
	dir := points[e1].Sub(points[e0])
	e2, best := -1, eps
	for i, p := range points {
		d := dir.Cross(p.Sub(points[e0])).Length() / dir.Length()
		if d > best {
			e2, best = i, d
		}
	}
	if e2 < 0 {
		return nil, fmt.Errorf("points are collinear")
	}

	// Farthest point from the e0-e1-e2 plane.
	normal := dir.Cross(points[e2].Sub(points[e0])).Normalize()
	e3, best := -1, eps
	for i, p := range points {
		if d := abs(normal.Dot(p.Sub(points[e0]))); d > best {
			e3, best = i, d
		}
	}
	if e3 < 0 {
		return nil, fmt.Errorf("points are coplanar")
	}

	centroid := points[e0].Add(points[e1]).Add(points[e2]).Add(points[e3]).Mul(0.25)
	tetra := [][3]int{
		{e0, e1, e2},
		{e0, e2, e3},
		{e0, e3, e1},
		{e1, e3, e2},
	}
	faces := make([]*hullFace, 0, 4)
	for _, tri := range tetra {
		f := newHullFace(points, tri[0], tri[1], tri[2])
		if f.distance(centroid) > 0 {
			f = newHullFace(points, tri[0], tri[2], tri[1])
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// assembleHull compacts the surviving faces into an indexed surface.
func assembleHull(points []Vector3, faces []*hullFace) *Hull {
	remap := make(map[int]int)
	hull := &Hull{}
	for _, f := range faces {
		if !f.alive {
			continue
		}
		var tri [3]int
		for k, idx := range f.v {
			mapped, ok := remap[idx]
			if !ok {
				mapped = len(hull.Vertices)
				hull.Vertices = append(hull.Vertices, points[idx])
				remap[idx] = mapped
			}
			tri[k] = mapped
		}
		hull.Faces = append(hull.Faces, tri)
	}
	return hull
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
