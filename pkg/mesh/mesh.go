// Package mesh provides the indexed triangle mesh representation shared by
// every stage of the support-generation pipeline, along with primitive
// builders, validity checking and STL I/O helpers. All dimensions are in
// millimeters.
package mesh

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Mesh is an indexed triangle mesh. Vertices holds one position per vertex
// and Indices holds 3 vertex indices per triangle, counterclockwise when
// viewed from outside the solid.
type Mesh struct {
	Vertices []v3.Vec
	Indices  []uint32
}

// New returns an empty mesh.
func New() *Mesh {
	return &Mesh{}
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Indices) == 0
}

// Triangle returns the three vertex positions of triangle i.
func (m *Mesh) Triangle(i int) [3]v3.Vec {
	return [3]v3.Vec{
		m.Vertices[m.Indices[i*3]],
		m.Vertices[m.Indices[i*3+1]],
		m.Vertices[m.Indices[i*3+2]],
	}
}

// AddVertex appends a vertex and returns its index.
func (m *Mesh) AddVertex(v v3.Vec) uint32 {
	m.Vertices = append(m.Vertices, v)
	return uint32(len(m.Vertices) - 1)
}

// AddTriangle appends one triangle by vertex indices.
func (m *Mesh) AddTriangle(a, b, c uint32) {
	m.Indices = append(m.Indices, a, b, c)
}

// Merge appends all geometry of other into m, offsetting indices. The
// receiver grows in place; other is not modified.
func (m *Mesh) Merge(other *Mesh) {
	base := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, other.Vertices...)
	for _, idx := range other.Indices {
		m.Indices = append(m.Indices, base+idx)
	}
}

// Translate moves every vertex by d.
func (m *Mesh) Translate(d v3.Vec) {
	for i := range m.Vertices {
		m.Vertices[i] = m.Vertices[i].Add(d)
	}
}

// CheckIndices verifies that every triangle index references a valid vertex.
func (m *Mesh) CheckIndices() error {
	n := uint32(len(m.Vertices))
	for i, idx := range m.Indices {
		if idx >= n {
			return fmt.Errorf("triangle %d references vertex %d, mesh has %d vertices", i/3, idx, n)
		}
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("index count %d is not a multiple of 3", len(m.Indices))
	}
	return nil
}

// BBox is an axis-aligned bounding box.
type BBox struct {
	Min, Max v3.Vec
}

// EmptyBBox returns a box that contains nothing; extending it with any point
// yields a box containing exactly that point.
func EmptyBBox() BBox {
	inf := math.Inf(1)
	return BBox{
		Min: v3.Vec{X: inf, Y: inf, Z: inf},
		Max: v3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
}

// Extend grows the box to include p.
func (b *BBox) Extend(p v3.Vec) {
	b.Min = b.Min.Min(p)
	b.Max = b.Max.Max(p)
}

// Size returns the edge lengths of the box.
func (b BBox) Size() v3.Vec {
	return b.Max.Sub(b.Min)
}

// ZExtent returns the height of the box.
func (b BBox) ZExtent() float64 {
	return b.Max.Z - b.Min.Z
}

// Contains reports whether p lies inside or on the box.
func (b BBox) Contains(p v3.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// BoundingBox returns the axis-aligned bounding box of the mesh.
// An empty mesh yields the empty box.
func (m *Mesh) BoundingBox() BBox {
	bb := EmptyBBox()
	for _, v := range m.Vertices {
		bb.Extend(v)
	}
	return bb
}

// TriangleNormal returns the unit face normal of triangle i.
// Degenerate triangles yield the zero vector.
func (m *Mesh) TriangleNormal(i int) v3.Vec {
	t := m.Triangle(i)
	n := t[1].Sub(t[0]).Cross(t[2].Sub(t[0]))
	l := n.Length()
	if l < 1e-12 {
		return v3.Vec{}
	}
	return n.DivScalar(l)
}

// Triangles3 converts the mesh into the sdf package's triangle soup
// representation, used for STL export.
func (m *Mesh) Triangles3() []*sdf.Triangle3 {
	tris := make([]*sdf.Triangle3, 0, m.TriangleCount())
	for i := 0; i < m.TriangleCount(); i++ {
		t := m.Triangle(i)
		tris = append(tris, &sdf.Triangle3{t[0], t[1], t[2]})
	}
	return tris
}
