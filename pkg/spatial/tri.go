package spatial

import (
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// rayTriangle intersects a ray with a triangle (Moeller-Trumbore, no
// backface culling). dir must be a unit vector. Returns the hit distance.
func rayTriangle(origin, dir v3.Vec, tri [3]v3.Vec) (float64, bool) {
	const eps = 1e-12

	e1 := tri[1].Sub(tri[0])
	e2 := tri[2].Sub(tri[0])
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if det > -eps && det < eps {
		return 0, false // ray parallel to triangle plane
	}
	inv := 1 / det

	t := origin.Sub(tri[0])
	u := t.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := t.Cross(e1)
	v := dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	return e2.Dot(q) * inv, true
}

// closestPointOnTriangle returns the point of the triangle closest to p,
// handling all vertex, edge and face regions.
func closestPointOnTriangle(p v3.Vec, tri [3]v3.Vec) v3.Vec {
	a, b, c := tri[0], tri[1], tri[2]

	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)
	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}

	bp := p.Sub(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return a.Add(ab.MulScalar(v))
	}

	cp := p.Sub(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return a.Add(ac.MulScalar(w))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).MulScalar(w))
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return a.Add(ab.MulScalar(v)).Add(ac.MulScalar(w))
}
