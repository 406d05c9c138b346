// Package pad builds the flat base structure anchoring the model and its
// supports to the build surface. The pad is extruded from the union of the
// model and support footprints, with an optional raised rim wall. All
// dimensions are in millimeters.
package pad

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/polyclip-go"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/scaffold/pkg/mesh"
	"github.com/chazu/scaffold/pkg/slicer"
)

// ErrDegenerate is returned when the unioned footprint has no area; such a
// pad could never hold anything.
var ErrDegenerate = errors.New("pad: degenerate footprint")

// errRimCollapse marks a footprint ring whose rim inset folded over itself.
// The ring is still extruded, just without the recess.
var errRimCollapse = errors.New("pad: rim inset collapsed")

// Config holds the pad shape parameters. Immutable, passed by value.
type Config struct {
	// Thickness is the height of the solid base plate.
	Thickness float64 `toml:"thickness"`

	// WallHeight raises a rim wall above the plate ("winged" pad). Zero
	// produces a plain slab.
	WallHeight float64 `toml:"wall_height"`

	// WallThickness is the horizontal thickness of the rim wall.
	WallThickness float64 `toml:"wall_thickness"`

	// BrimSize expands the footprint outward before extrusion.
	BrimSize float64 `toml:"brim_size"`
}

// DefaultConfig returns the stock pad parameters.
func DefaultConfig() Config {
	return Config{
		Thickness:     1.0,
		WallHeight:    0,
		WallThickness: 1.0,
		BrimSize:      3.0,
	}
}

// FullHeight is the total Z extent of the generated pad.
func (c Config) FullHeight() float64 {
	return c.Thickness + c.WallHeight
}

// blueprintPlanes is how many planes just above the model base are sliced
// and unioned to obtain a stable footprint.
const blueprintPlanes = 3

// blueprintStep is the spacing of those planes.
const blueprintStep = 0.1

// Blueprint projects the model near its base into its footprint contours.
func Blueprint(m *mesh.Mesh, closing float64) ([]slicer.ExPolygon, error) {
	if m == nil || m.IsEmpty() {
		return nil, nil
	}
	minZ := m.BoundingBox().Min.Z
	heights := make([]float64, blueprintPlanes)
	for i := range heights {
		heights[i] = minZ + blueprintStep*float64(i+1)
	}
	layers, err := slicer.Slice(m, heights, closing, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("pad blueprint: %w", err)
	}

	var u polyclip.Polygon
	for _, l := range layers {
		u = u.Construct(polyclip.UNION, slicer.ToPolyclip(l.Polygons))
	}
	return slicer.FromPolyclip(u), nil
}

// Create unions the support and model footprints and extrudes the pad
// solid. The result spans z in [0, cfg.FullHeight()] exactly; the caller
// positions it under the model. Holes in the footprint are filled: the pad
// plate is solid. A ring that cannot carry the rim recess is extruded as a
// plain full-height slab instead; only a footprint with no usable area at
// all is ErrDegenerate.
func Create(supportContours, modelContours []slicer.ExPolygon, cfg Config) (*mesh.Mesh, error) {
	u := slicer.ToPolyclip(supportContours).
		Construct(polyclip.UNION, slicer.ToPolyclip(modelContours))
	merged := slicer.FromPolyclip(u)

	// Outer contours only: cavities in the footprint stay covered.
	var outers [][]v2.Vec
	for _, e := range merged {
		if len(e.Outer) >= 3 && e.Area() > 0 {
			outers = append(outers, e.Outer)
		}
	}
	if len(outers) == 0 {
		return nil, ErrDegenerate
	}
	if cfg.BrimSize > 0 {
		outers = dilate(outers, cfg.BrimSize)
	}

	m := mesh.New()
	built := 0
	for _, ring := range outers {
		ring = cleanRing(ring)
		if len(ring) < 3 {
			continue
		}
		if cfg.WallHeight > 0 && extrudeTray(m, ring, cfg) == nil {
			built++
			continue
		}
		// Plain slab. With a rim configured this is the degraded shape
		// for rings whose inset collapsed, extruded to full height so
		// the pad top stays where the caller expects it.
		top := cfg.Thickness
		if cfg.WallHeight > 0 {
			top = cfg.FullHeight()
		}
		if err := extrudeSlab(m, ring, 0, top); err == nil {
			built++
		}
	}
	if built == 0 {
		return nil, ErrDegenerate
	}
	return m, nil
}

// dilateSegments is the arc resolution of the rounded corners produced by
// the brim dilation.
const dilateSegments = 12

// dilate expands the rings outward by delta: the union of each ring with
// one rectangle per edge and one disk per vertex, computed through the
// clipper. Unlike a plain miter offset this cannot self-intersect, so the
// resulting rings are always simple.
func dilate(rings [][]v2.Vec, delta float64) [][]v2.Vec {
	var pieces []polyclip.Polygon
	add := func(ring []v2.Vec) {
		if ringArea(ring) < 0 {
			ring = reversed(ring)
		}
		pieces = append(pieces, slicer.ToPolyclip([]slicer.ExPolygon{{Outer: ring}}))
	}
	for _, ring := range rings {
		add(ring)
		for i, a := range ring {
			b := ring[(i+1)%len(ring)]
			en := edgeNormal(a, b)
			if en.X == 0 && en.Y == 0 {
				continue
			}
			off := en.MulScalar(delta)
			add([]v2.Vec{a.Sub(off), b.Sub(off), b.Add(off), a.Add(off)})
			add(diskRing(a, delta))
		}
	}

	// Pairwise union tree. Folding pieces into one accumulator would go
	// quadratic on footprints with hundreds of contours.
	for len(pieces) > 1 {
		var next []polyclip.Polygon
		for i := 0; i < len(pieces); i += 2 {
			if i+1 == len(pieces) {
				next = append(next, pieces[i])
				break
			}
			next = append(next, pieces[i].Construct(polyclip.UNION, pieces[i+1]))
		}
		pieces = next
	}

	var out [][]v2.Vec
	for _, e := range slicer.FromPolyclip(pieces[0]) {
		if len(e.Outer) >= 3 {
			out = append(out, e.Outer)
		}
	}
	return out
}

// diskRing approximates a disk around c as a counterclockwise polygon. The
// first vertex sits at angle zero so an axis-aligned dilation stays exact.
func diskRing(c v2.Vec, r float64) []v2.Vec {
	ring := make([]v2.Vec, dilateSegments)
	for i := range ring {
		ang := 2 * math.Pi * float64(i) / dilateSegments
		ring[i] = v2.Vec{X: c.X + r*math.Cos(ang), Y: c.Y + r*math.Sin(ang)}
	}
	return ring
}

// extrudeSlab adds the solid plate under one footprint ring, spanning z in
// [z0, z1]. No geometry is emitted if the ring cannot be triangulated.
func extrudeSlab(m *mesh.Mesh, ring []v2.Vec, z0, z1 float64) error {
	tris, err := triangulate(ring)
	if err != nil {
		return fmt.Errorf("pad plate: %w", err)
	}

	n := len(ring)
	bottom := make([]uint32, n)
	top := make([]uint32, n)
	for i, p := range ring {
		bottom[i] = m.AddVertex(v3.Vec{X: p.X, Y: p.Y, Z: z0})
		top[i] = m.AddVertex(v3.Vec{X: p.X, Y: p.Y, Z: z1})
	}
	for _, t := range tris {
		m.AddTriangle(bottom[t[0]], bottom[t[2]], bottom[t[1]]) // facing -z
		m.AddTriangle(top[t[0]], top[t[1]], top[t[2]])          // facing +z
	}
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		m.AddTriangle(bottom[i], bottom[j], top[j])
		m.AddTriangle(bottom[i], top[j], top[i])
	}
	return nil
}

// extrudeTray adds a winged pad for one footprint ring as a single closed
// shell: the outer wall rises to the rim top and the plate floor is
// recessed inside the rim. Stacking a separate rim solid on a plate would
// share every welded seam edge between four faces; one shell keeps the
// seams two-manifold. Nothing is emitted on error so the caller can fall
// back to a slab.
func extrudeTray(m *mesh.Mesh, outer []v2.Vec, cfg Config) error {
	inner := offsetRing(outer, -cfg.WallThickness)
	if ringArea(inner) <= 0 || !simpleRing(inner) {
		return errRimCollapse
	}
	for i := range inner {
		if inner[i].Sub(inner[(i+1)%len(inner)]).Length() < 1e-6 {
			return errRimCollapse
		}
	}
	outTris, err := triangulate(outer)
	if err != nil {
		return fmt.Errorf("pad rim: %w", err)
	}
	inTris, err := triangulate(inner)
	if err != nil {
		return fmt.Errorf("pad rim: %w", err)
	}

	z0, z1 := cfg.Thickness, cfg.FullHeight()
	n := len(outer)
	ob := make([]uint32, n)  // outer ring at the base
	ot := make([]uint32, n)  // outer ring at the rim top
	it := make([]uint32, n)  // inner ring at the rim top
	ifl := make([]uint32, n) // inner ring at the recessed floor
	for i := 0; i < n; i++ {
		ob[i] = m.AddVertex(v3.Vec{X: outer[i].X, Y: outer[i].Y, Z: 0})
		ot[i] = m.AddVertex(v3.Vec{X: outer[i].X, Y: outer[i].Y, Z: z1})
		it[i] = m.AddVertex(v3.Vec{X: inner[i].X, Y: inner[i].Y, Z: z1})
		ifl[i] = m.AddVertex(v3.Vec{X: inner[i].X, Y: inner[i].Y, Z: z0})
	}
	for _, t := range outTris {
		m.AddTriangle(ob[t[0]], ob[t[2]], ob[t[1]]) // base, facing -z
	}
	for _, t := range inTris {
		m.AddTriangle(ifl[t[0]], ifl[t[1]], ifl[t[2]]) // floor, facing +z
	}
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		// Outer wall, full height.
		m.AddTriangle(ob[i], ob[j], ot[j])
		m.AddTriangle(ob[i], ot[j], ot[i])
		// Rim top annulus.
		m.AddTriangle(ot[i], ot[j], it[j])
		m.AddTriangle(ot[i], it[j], it[i])
		// Inner wall, down into the recess.
		m.AddTriangle(ifl[i], it[i], it[j])
		m.AddTriangle(ifl[i], it[j], ifl[j])
	}
	return nil
}

// offsetRing displaces a counterclockwise ring outward by delta (inward for
// negative delta) along vertex bisectors, preserving the vertex count. The
// miter length is clamped so spiky corners cannot explode. On concave rings
// the result may self-intersect; callers must check before extruding.
func offsetRing(ring []v2.Vec, delta float64) []v2.Vec {
	if delta == 0 {
		return ring
	}
	n := len(ring)
	out := make([]v2.Vec, n)
	for i := 0; i < n; i++ {
		prev := ring[(i+n-1)%n]
		cur := ring[i]
		next := ring[(i+1)%n]

		n1 := edgeNormal(prev, cur)
		n2 := edgeNormal(cur, next)
		bis := n1.Add(n2)
		l := bis.Length()
		if l < 1e-9 {
			// 180 degree spike: fall back to one edge normal.
			bis, l = n1, 1
		}
		bis = bis.DivScalar(l)
		// Miter scale, clamped at sharp corners.
		dot := bis.Dot(n1)
		if dot < 0.25 {
			dot = 0.25
		}
		out[i] = cur.Add(bis.MulScalar(delta / dot))
	}
	return out
}

// edgeNormal returns the outward unit normal of edge a->b of a
// counterclockwise ring.
func edgeNormal(a, b v2.Vec) v2.Vec {
	d := b.Sub(a)
	l := d.Length()
	if l < 1e-12 {
		return v2.Vec{}
	}
	return v2.Vec{X: d.Y / l, Y: -d.X / l}
}

// ringArea returns the signed area of a closed ring, positive for
// counterclockwise winding.
func ringArea(ring []v2.Vec) float64 {
	a := 0.0
	for i, p := range ring {
		q := ring[(i+1)%len(ring)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

func reversed(ring []v2.Vec) []v2.Vec {
	out := make([]v2.Vec, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

// cleanRing drops consecutive near-duplicate vertices, including a last
// vertex that repeats the first.
func cleanRing(ring []v2.Vec) []v2.Vec {
	out := ring[:0:0]
	for _, p := range ring {
		if len(out) > 0 && p.Sub(out[len(out)-1]).Length() < 1e-9 {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[len(out)-1].Sub(out[0]).Length() < 1e-9 {
		out = out[:len(out)-1]
	}
	return out
}

// simpleRing reports whether no two non-adjacent edges of the ring cross.
func simpleRing(ring []v2.Vec) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		a, b := ring[i], ring[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i || (j+1)%n == i || (i+1)%n == j {
				continue
			}
			c, d := ring[j], ring[(j+1)%n]
			if segmentsCross(a, b, c, d) {
				return false
			}
		}
	}
	return true
}

// segmentsCross reports a proper crossing of segments ab and cd.
func segmentsCross(a, b, c, d v2.Vec) bool {
	d1 := cross2(c, d, a)
	d2 := cross2(c, d, b)
	d3 := cross2(a, b, c)
	d4 := cross2(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}
