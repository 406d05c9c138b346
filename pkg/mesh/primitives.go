package mesh

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Primitive builders append geometry into the receiving mesh so that a
// builder composing many small elements works against a single growable
// buffer. Each call contributes a closed shell.

// basisFor returns two unit vectors orthogonal to axis and to each other.
// axis must be non-zero; it does not need to be normalized.
func basisFor(axis v3.Vec) (u, v v3.Vec) {
	a := axis.Normalize()
	ref := v3.Vec{X: 1}
	if math.Abs(a.X) > 0.9 {
		ref = v3.Vec{Y: 1}
	}
	u = a.Cross(ref).Normalize()
	v = a.Cross(u)
	return u, v
}

// AddTube appends a capped frustum from p0 (radius r0) to p1 (radius r1)
// with segs radial segments. The axis may be arbitrary; with r0 == r1 this
// is a cylinder, with one radius zero a cone.
func (m *Mesh) AddTube(p0, p1 v3.Vec, r0, r1 float64, segs int) {
	if segs < 3 {
		segs = 3
	}
	axis := p1.Sub(p0)
	if axis.Length() < 1e-12 {
		return
	}
	u, v := basisFor(axis)

	// The radial sampling is offset by half a step so that a tube ring
	// never lands on the vertex grid of a sphere sharing its center and
	// radius. Butted shells would otherwise weld along the seam and turn
	// every seam edge non-manifold.
	ring0 := make([]uint32, segs)
	ring1 := make([]uint32, segs)
	for i := 0; i < segs; i++ {
		ang := 2 * math.Pi * (float64(i) + 0.5) / float64(segs)
		dir := u.MulScalar(math.Cos(ang)).Add(v.MulScalar(math.Sin(ang)))
		ring0[i] = m.AddVertex(p0.Add(dir.MulScalar(r0)))
		ring1[i] = m.AddVertex(p1.Add(dir.MulScalar(r1)))
	}

	// Side wall.
	for i := 0; i < segs; i++ {
		j := (i + 1) % segs
		m.AddTriangle(ring0[i], ring0[j], ring1[j])
		m.AddTriangle(ring0[i], ring1[j], ring1[i])
	}

	// End caps, fanned around the axis endpoints.
	c0 := m.AddVertex(p0)
	c1 := m.AddVertex(p1)
	for i := 0; i < segs; i++ {
		j := (i + 1) % segs
		m.AddTriangle(c0, ring0[j], ring0[i])
		m.AddTriangle(c1, ring1[i], ring1[j])
	}
}

// AddSphere appends a UV sphere centered at c with the given radius and
// segs segments in both directions.
func (m *Mesh) AddSphere(c v3.Vec, radius float64, segs int) {
	if segs < 3 {
		segs = 3
	}
	heightSegs := segs

	// Vertex grid, poles included as degenerate rows.
	rows := make([][]uint32, heightSegs+1)
	for y := 0; y <= heightSegs; y++ {
		elev := math.Pi * float64(y) / float64(heightSegs)
		rows[y] = make([]uint32, segs+1)
		for x := 0; x <= segs; x++ {
			ang := 2 * math.Pi * float64(x) / float64(segs)
			p := v3.Vec{
				X: c.X + radius*math.Sin(elev)*math.Cos(ang),
				Y: c.Y + radius*math.Sin(elev)*math.Sin(ang),
				Z: c.Z + radius*math.Cos(elev),
			}
			rows[y][x] = m.AddVertex(p)
		}
	}

	for y := 0; y < heightSegs; y++ {
		for x := 0; x < segs; x++ {
			a, b := rows[y][x], rows[y][x+1]
			d, e := rows[y+1][x], rows[y+1][x+1]
			if y > 0 {
				m.AddTriangle(a, d, b)
			}
			if y < heightSegs-1 {
				m.AddTriangle(b, d, e)
			}
		}
	}
}

// AddBox appends an axis-aligned box spanning min..max.
func (m *Mesh) AddBox(min, max v3.Vec) {
	var idx [8]uint32
	k := 0
	for _, z := range []float64{min.Z, max.Z} {
		for _, y := range []float64{min.Y, max.Y} {
			for _, x := range []float64{min.X, max.X} {
				idx[k] = m.AddVertex(v3.Vec{X: x, Y: y, Z: z})
				k++
			}
		}
	}
	// Bottom (z = min.Z, facing -Z), top (facing +Z), then the four sides.
	quads := [6][4]uint32{
		{idx[0], idx[2], idx[3], idx[1]}, // bottom
		{idx[4], idx[5], idx[7], idx[6]}, // top
		{idx[0], idx[1], idx[5], idx[4]}, // -y
		{idx[2], idx[6], idx[7], idx[3]}, // +y
		{idx[0], idx[4], idx[6], idx[2]}, // -x
		{idx[1], idx[3], idx[7], idx[5]}, // +x
	}
	for _, q := range quads {
		m.AddTriangle(q[0], q[1], q[2])
		m.AddTriangle(q[0], q[2], q[3])
	}
}
