// Package spatial provides a read-only spatial index over a triangle mesh.
// It answers nearest-surface-point, ray-intersection and point-containment
// queries for the support generation stages. Once built, an index is
// immutable and safe for concurrent use.
package spatial

import (
	"errors"
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"

	"github.com/chazu/scaffold/pkg/mesh"
)

// ErrEmptyMesh is returned by Build for a mesh with no triangles.
var ErrEmptyMesh = errors.New("spatial: mesh has no triangles")

// rectPad inflates degenerate triangle bounding boxes so the R-tree accepts
// axis-aligned triangles with zero extent along one axis.
const rectPad = 1e-9

// nearestCandidates is how many R-tree neighbors are refined with an exact
// point-triangle distance during NearestPoint queries.
const nearestCandidates = 32

// insideRayDir is the direction used for containment parity tests. It is
// slightly tilted off the axes so the ray does not graze axis-aligned edges.
var insideRayDir = v3.Vec{X: 0.000931, Y: 0.001173, Z: 1}.Normalize()

// Hit describes a ray-surface intersection.
type Hit struct {
	T        float64 // distance along the (unit) ray direction
	Point    v3.Vec
	Normal   v3.Vec // unit face normal of the hit triangle
	Triangle int
}

type triEntry struct {
	rect rtreego.Rect
	tri  [3]v3.Vec
	idx  int
}

func (e *triEntry) Bounds() rtreego.Rect {
	return e.rect
}

// Mesh is an immutable spatial index over the triangles of a source mesh.
// The index references the source's geometry; the source must not be
// mutated while the index is alive.
type Mesh struct {
	src  *mesh.Mesh
	tree *rtreego.Rtree
	bb   mesh.BBox
}

// Build constructs the index in O(n log n). It fails with ErrEmptyMesh if
// the mesh has zero triangles.
func Build(m *mesh.Mesh) (*Mesh, error) {
	if m == nil || m.TriangleCount() == 0 {
		return nil, ErrEmptyMesh
	}
	if err := m.CheckIndices(); err != nil {
		return nil, fmt.Errorf("spatial: %w", err)
	}

	entries := make([]rtreego.Spatial, 0, m.TriangleCount())
	for i := 0; i < m.TriangleCount(); i++ {
		t := m.Triangle(i)
		r, err := triRect(t)
		if err != nil {
			return nil, fmt.Errorf("spatial: triangle %d: %w", i, err)
		}
		entries = append(entries, &triEntry{rect: r, tri: t, idx: i})
	}

	return &Mesh{
		src:  m,
		tree: rtreego.NewTree(3, 8, 16, entries...),
		bb:   m.BoundingBox(),
	}, nil
}

// Source returns the indexed mesh.
func (s *Mesh) Source() *mesh.Mesh {
	return s.src
}

// BoundingBox returns the bounding box of the indexed mesh.
func (s *Mesh) BoundingBox() mesh.BBox {
	return s.bb
}

func triRect(t [3]v3.Vec) (rtreego.Rect, error) {
	min := t[0].Min(t[1]).Min(t[2])
	max := t[0].Max(t[1]).Max(t[2])
	return rtreego.NewRect(
		rtreego.Point{min.X, min.Y, min.Z},
		[]float64{
			max.X - min.X + rectPad,
			max.Y - min.Y + rectPad,
			max.Z - min.Z + rectPad,
		})
}

// NearestPoint returns the closest point on the mesh surface to p, the
// index of the triangle containing it and the distance. Candidates come
// from the R-tree ordered by box distance and are refined exactly.
func (s *Mesh) NearestPoint(p v3.Vec) (v3.Vec, int, float64) {
	pt := rtreego.Point{p.X, p.Y, p.Z}
	k := nearestCandidates
	if n := s.src.TriangleCount(); n < k {
		k = n
	}
	best := v3.Vec{}
	bestIdx := -1
	bestDist := math.Inf(1)
	for _, sp := range s.tree.NearestNeighbors(k, pt) {
		e := sp.(*triEntry)
		q := closestPointOnTriangle(p, e.tri)
		if d := q.Sub(p).Length(); d < bestDist {
			best, bestIdx, bestDist = q, e.idx, d
		}
	}
	return best, bestIdx, bestDist
}

// DistanceToSurface returns the unsigned distance from p to the surface.
func (s *Mesh) DistanceToSurface(p v3.Vec) float64 {
	_, _, d := s.NearestPoint(p)
	return d
}

// RayHit casts a ray from origin along dir (need not be normalized) and
// returns the first surface hit, or ok == false if the ray misses.
func (s *Mesh) RayHit(origin, dir v3.Vec) (Hit, bool) {
	d := dir.Normalize()
	hits := s.rayHits(origin, d)
	if len(hits) == 0 {
		return Hit{}, false
	}
	return hits[0], true
}

// Inside reports whether p lies inside the solid, decided by the parity of
// surface crossings along a fixed probe direction.
func (s *Mesh) Inside(p v3.Vec) bool {
	if !s.bb.Contains(p) {
		return false
	}
	return len(s.rayHits(p, insideRayDir))%2 == 1
}

// rayHits returns all intersections of the ray with the surface, sorted by
// distance, with duplicates from shared edges collapsed. dir must be unit.
func (s *Mesh) rayHits(origin, dir v3.Vec) []Hit {
	// Clip the ray against the mesh bounding box to bound the search rect.
	tMax := rayExitDistance(origin, dir, s.bb)
	if tMax <= 0 {
		return nil
	}
	end := origin.Add(dir.MulScalar(tMax))
	min := origin.Min(end)
	max := origin.Max(end)
	rect, err := rtreego.NewRect(
		rtreego.Point{min.X, min.Y, min.Z},
		[]float64{max.X - min.X + rectPad, max.Y - min.Y + rectPad, max.Z - min.Z + rectPad})
	if err != nil {
		return nil
	}

	var hits []Hit
	for _, sp := range s.tree.SearchIntersect(rect) {
		e := sp.(*triEntry)
		if t, ok := rayTriangle(origin, dir, e.tri); ok && t > 1e-9 {
			n := e.tri[1].Sub(e.tri[0]).Cross(e.tri[2].Sub(e.tri[0]))
			if l := n.Length(); l > 1e-12 {
				n = n.DivScalar(l)
			}
			hits = append(hits, Hit{
				T:        t,
				Point:    origin.Add(dir.MulScalar(t)),
				Normal:   n,
				Triangle: e.idx,
			})
		}
	}
	sortHits(hits)
	return dedupeHits(hits)
}

func sortHits(hits []Hit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].T < hits[j-1].T; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

// dedupeHits collapses hits at nearly identical distances, which occur when
// a ray passes exactly through a shared edge or vertex.
func dedupeHits(hits []Hit) []Hit {
	out := hits[:0]
	for i, h := range hits {
		if i > 0 && h.T-hits[i-1].T < 1e-9 {
			continue
		}
		out = append(out, h)
	}
	return out
}

// rayExitDistance returns the distance at which a ray starting inside or
// before the box leaves it, or 0 if the ray never enters.
func rayExitDistance(origin, dir v3.Vec, bb mesh.BBox) float64 {
	tNear := math.Inf(-1)
	tFar := math.Inf(1)
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}
	lo := [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	hi := [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	for i := 0; i < 3; i++ {
		if math.Abs(d[i]) < 1e-15 {
			if o[i] < lo[i] || o[i] > hi[i] {
				return 0
			}
			continue
		}
		t1 := (lo[i] - o[i]) / d[i]
		t2 := (hi[i] - o[i]) / d[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tNear = math.Max(tNear, t1)
		tFar = math.Min(tFar, t2)
	}
	if tFar < tNear || tFar < 0 {
		return 0
	}
	return tFar
}
