package mesh

import (
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxBoundingBox(t *testing.T) {
	m := New()
	m.AddBox(v3.Vec{X: -1, Y: -2, Z: 0}, v3.Vec{X: 3, Y: 4, Z: 5})

	require.Equal(t, 12, m.TriangleCount())
	bb := m.BoundingBox()
	assert.Equal(t, v3.Vec{X: -1, Y: -2, Z: 0}, bb.Min)
	assert.Equal(t, v3.Vec{X: 3, Y: 4, Z: 5}, bb.Max)
	assert.InDelta(t, 5.0, bb.ZExtent(), 1e-12)
}

func TestPrimitivesAreManifold(t *testing.T) {
	tests := []struct {
		name  string
		build func(m *Mesh)
	}{
		{"box", func(m *Mesh) {
			m.AddBox(v3.Vec{}, v3.Vec{X: 10, Y: 10, Z: 10})
		}},
		{"cylinder", func(m *Mesh) {
			m.AddTube(v3.Vec{}, v3.Vec{Z: 20}, 2, 2, 24)
		}},
		{"frustum", func(m *Mesh) {
			m.AddTube(v3.Vec{Z: 1}, v3.Vec{X: 3, Z: 15}, 2, 0.5, 16)
		}},
		{"sphere", func(m *Mesh) {
			m.AddSphere(v3.Vec{X: 1, Y: 2, Z: 3}, 4, 16)
		}},
		{"two shells", func(m *Mesh) {
			m.AddSphere(v3.Vec{}, 1, 12)
			m.AddTube(v3.Vec{Z: -10}, v3.Vec{}, 0.5, 0.5, 12)
		}},
		{"ball capping a tube", func(m *Mesh) {
			// The tube's end ring lies exactly on the ball's equator;
			// welding must not fuse the two shells into a non-manifold
			// seam.
			m.AddSphere(v3.Vec{Z: 10}, 0.5, 24)
			m.AddTube(v3.Vec{Z: 10}, v3.Vec{}, 0.5, 0.5, 24)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			tt.build(m)
			require.NoError(t, m.CheckIndices())
			rep := Validate(m)
			assert.False(t, rep.NeedsRepair(), "validation: %+v", rep)
		})
	}
}

func TestValidateDetectsOpenEdges(t *testing.T) {
	m := New()
	a := m.AddVertex(v3.Vec{})
	b := m.AddVertex(v3.Vec{X: 1})
	c := m.AddVertex(v3.Vec{Y: 1})
	m.AddTriangle(a, b, c)

	rep := Validate(m)
	assert.True(t, rep.NeedsRepair())
	assert.Equal(t, 3, rep.OpenEdges)
}

func TestMergeOffsetsIndices(t *testing.T) {
	a := New()
	a.AddBox(v3.Vec{}, v3.Vec{X: 1, Y: 1, Z: 1})
	b := New()
	b.AddBox(v3.Vec{X: 5}, v3.Vec{X: 6, Y: 1, Z: 1})

	a.Merge(b)
	require.NoError(t, a.CheckIndices())
	assert.Equal(t, 24, a.TriangleCount())
	assert.False(t, Validate(a).NeedsRepair())
}

func TestTranslate(t *testing.T) {
	m := New()
	m.AddBox(v3.Vec{}, v3.Vec{X: 1, Y: 1, Z: 1})
	m.Translate(v3.Vec{Z: -3})
	bb := m.BoundingBox()
	assert.InDelta(t, -3, bb.Min.Z, 1e-12)
	assert.InDelta(t, -2, bb.Max.Z, 1e-12)
}

func TestSTLRoundTrip(t *testing.T) {
	m := New()
	m.AddBox(v3.Vec{}, v3.Vec{X: 2, Y: 3, Z: 4})

	path := t.TempDir() + "/box.stl"
	require.NoError(t, SaveSTL(path, m))

	got, err := LoadSTL(path)
	require.NoError(t, err)
	assert.Equal(t, m.TriangleCount(), got.TriangleCount())
	// Welding on load should recover the 8 shared box corners.
	assert.Equal(t, 8, got.VertexCount())
	assert.False(t, Validate(got).NeedsRepair())
}
