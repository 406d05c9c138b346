// Package slicer cuts a triangle mesh at an ordered sequence of Z heights
// into per-layer 2D contour sets. Layers are computed in parallel and
// reassembled in height order so results are deterministic.
package slicer

import (
	"github.com/ctessum/polyclip-go"
	v2 "github.com/deadsy/sdfx/vec/v2"
)

// ExPolygon is one outer contour (counterclockwise) plus zero or more hole
// contours (clockwise), all lying in a single Z plane. Contours are closed
// implicitly: the last point connects back to the first.
type ExPolygon struct {
	Outer []v2.Vec
	Holes [][]v2.Vec
}

// Layer is the contour set produced by slicing at one height. A plane that
// misses the mesh yields a layer with no polygons; that is not an error.
type Layer struct {
	Z        float64
	Polygons []ExPolygon
}

// signedArea returns the area of a closed ring, positive for
// counterclockwise winding.
func signedArea(ring []v2.Vec) float64 {
	a := 0.0
	for i, p := range ring {
		q := ring[(i+1)%len(ring)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

// Area returns the area of the polygon, holes subtracted.
func (e ExPolygon) Area() float64 {
	a := signedArea(e.Outer)
	if a < 0 {
		a = -a
	}
	for _, h := range e.Holes {
		ha := signedArea(h)
		if ha < 0 {
			ha = -ha
		}
		a -= ha
	}
	return a
}

// Area returns the total polygon area of the layer.
func (l Layer) Area() float64 {
	a := 0.0
	for _, p := range l.Polygons {
		a += p.Area()
	}
	return a
}

// pointInRing reports whether p is strictly inside the closed ring, by the
// even-odd rule.
func pointInRing(p v2.Vec, ring []v2.Vec) bool {
	inside := false
	n := len(ring)
	for i := 0; i < n; i++ {
		a, b := ring[i], ring[(i+1)%n]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)/(b.Y-a.Y)*(b.X-a.X)
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// Contains reports whether p lies inside the polygon and outside its holes.
func (e ExPolygon) Contains(p v2.Vec) bool {
	if !pointInRing(p, e.Outer) {
		return false
	}
	for _, h := range e.Holes {
		if pointInRing(p, h) {
			return false
		}
	}
	return true
}

// ToPolyclip converts a contour set to the clipping library representation.
func ToPolyclip(polys []ExPolygon) polyclip.Polygon {
	var out polyclip.Polygon
	for _, e := range polys {
		out = append(out, ringToContour(e.Outer))
		for _, h := range e.Holes {
			out = append(out, ringToContour(h))
		}
	}
	return out
}

func ringToContour(ring []v2.Vec) polyclip.Contour {
	c := make(polyclip.Contour, len(ring))
	for i, p := range ring {
		c[i] = polyclip.Point{X: p.X, Y: p.Y}
	}
	return c
}

func contourToRing(c polyclip.Contour) []v2.Vec {
	ring := make([]v2.Vec, len(c))
	for i, p := range c {
		ring[i] = v2.Vec{X: p.X, Y: p.Y}
	}
	return ring
}

// FromPolyclip groups the contours of a clipping result into ExPolygons.
// A contour contained in an odd number of other contours is a hole of the
// innermost containing outer. Winding is normalized: outers
// counterclockwise, holes clockwise.
func FromPolyclip(p polyclip.Polygon) []ExPolygon {
	n := len(p)
	if n == 0 {
		return nil
	}
	rings := make([][]v2.Vec, n)
	for i, c := range p {
		rings[i] = contourToRing(c)
	}

	depth := make([]int, n)
	parent := make([]int, n)
	for i := range rings {
		parent[i] = -1
		if len(rings[i]) == 0 {
			continue
		}
		probe := rings[i][0]
		bestArea := 0.0
		for j := range rings {
			if i == j || len(rings[j]) < 3 {
				continue
			}
			if pointInRing(probe, rings[j]) {
				depth[i]++
				a := signedArea(rings[j])
				if a < 0 {
					a = -a
				}
				if parent[i] == -1 || a < bestArea {
					parent[i] = j
					bestArea = a
				}
			}
		}
	}

	outerOf := make(map[int]int) // ring index -> output ExPolygon index
	var out []ExPolygon
	for i := range rings {
		if depth[i]%2 == 0 {
			outerOf[i] = len(out)
			out = append(out, ExPolygon{Outer: orient(rings[i], true)})
		}
	}
	for i := range rings {
		if depth[i]%2 == 1 && parent[i] >= 0 {
			if oi, ok := outerOf[parent[i]]; ok {
				out[oi].Holes = append(out[oi].Holes, orient(rings[i], false))
			}
		}
	}
	return out
}

// orient returns the ring wound counterclockwise (ccw true) or clockwise.
func orient(ring []v2.Vec, ccw bool) []v2.Vec {
	if (signedArea(ring) > 0) == ccw {
		return ring
	}
	rev := make([]v2.Vec, len(ring))
	for i, p := range ring {
		rev[len(ring)-1-i] = p
	}
	return rev
}
