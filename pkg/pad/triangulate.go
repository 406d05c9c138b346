package pad

import (
	"errors"

	v2 "github.com/deadsy/sdfx/vec/v2"
)

var errTriangulate = errors.New("pad: cannot triangulate ring")

// triangulate ear-clips a simple counterclockwise ring into triangles,
// returned as index triples into the ring. Footprint contours from the
// clipper are simple by construction, so the plain O(n^2) clip suffices.
func triangulate(ring []v2.Vec) ([][3]int, error) {
	n := len(ring)
	if n < 3 {
		return nil, errTriangulate
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	tris := make([][3]int, 0, n-2)

	for len(idx) > 3 {
		clipped := false
		for i := 0; i < len(idx); i++ {
			a := idx[(i+len(idx)-1)%len(idx)]
			b := idx[i]
			c := idx[(i+1)%len(idx)]
			if !isEar(ring, idx, a, b, c) {
				continue
			}
			tris = append(tris, [3]int{a, b, c})
			idx = append(idx[:i], idx[i+1:]...)
			clipped = true
			break
		}
		if !clipped {
			// Collinear runs can starve the ear test. Clip any convex
			// corner rather than giving up on a valid ring.
			for i := 0; i < len(idx); i++ {
				a := idx[(i+len(idx)-1)%len(idx)]
				b := idx[i]
				c := idx[(i+1)%len(idx)]
				if cross2(ring[a], ring[b], ring[c]) >= 0 {
					tris = append(tris, [3]int{a, b, c})
					idx = append(idx[:i], idx[i+1:]...)
					clipped = true
					break
				}
			}
		}
		if !clipped {
			return nil, errTriangulate
		}
	}
	tris = append(tris, [3]int{idx[0], idx[1], idx[2]})
	return tris, nil
}

// isEar reports whether corner a-b-c is convex and empty of the remaining
// ring vertices.
func isEar(ring []v2.Vec, idx []int, a, b, c int) bool {
	if cross2(ring[a], ring[b], ring[c]) <= 0 {
		return false
	}
	for _, k := range idx {
		if k == a || k == b || k == c {
			continue
		}
		if pointInTriangle(ring[k], ring[a], ring[b], ring[c]) {
			return false
		}
	}
	return true
}

// cross2 is the z component of (b-a) x (c-a); positive for a left turn.
func cross2(a, b, c v2.Vec) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func pointInTriangle(p, a, b, c v2.Vec) bool {
	d1 := cross2(a, b, p)
	d2 := cross2(b, c, p)
	d3 := cross2(c, a, p)
	neg := d1 < 0 || d2 < 0 || d3 < 0
	pos := d1 > 0 || d2 > 0 || d3 > 0
	return !(neg && pos)
}
