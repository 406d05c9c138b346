package pad

import (
	"testing"

	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/scaffold/pkg/mesh"
	"github.com/chazu/scaffold/pkg/slicer"
)

func square(x0, y0, x1, y1 float64) slicer.ExPolygon {
	return slicer.ExPolygon{Outer: []v2.Vec{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
	}}
}

func TestFullHeight(t *testing.T) {
	cfg := Config{Thickness: 1.5, WallHeight: 2.5}
	assert.InDelta(t, 4.0, cfg.FullHeight(), 1e-12)
}

func TestCreateSlab(t *testing.T) {
	cfg := DefaultConfig()
	m, err := Create([]slicer.ExPolygon{square(0, 0, 10, 10)}, nil, cfg)
	require.NoError(t, err)
	require.False(t, m.IsEmpty())

	bb := m.BoundingBox()
	assert.InDelta(t, 0, bb.Min.Z, 1e-9)
	assert.InDelta(t, cfg.FullHeight(), bb.Max.Z, 1e-9, "pad z extent must equal the configured full height")
	assert.False(t, mesh.Validate(m).NeedsRepair())
}

func TestCreateWinged(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WallHeight = 3
	m, err := Create([]slicer.ExPolygon{square(0, 0, 20, 20)}, nil, cfg)
	require.NoError(t, err)

	bb := m.BoundingBox()
	assert.InDelta(t, cfg.Thickness+3, bb.Max.Z, 1e-9)
	assert.False(t, mesh.Validate(m).NeedsRepair())
}

func TestCreateConcaveWinged(t *testing.T) {
	// Two overlapping squares union into a concave L. A plain miter offset
	// of its brim self-intersects at the inner corner; the pad must still
	// come out closed and manifold instead of aborting.
	cfg := DefaultConfig()
	cfg.WallHeight = 3
	cfg.BrimSize = 2
	m, err := Create(
		[]slicer.ExPolygon{square(0, 0, 30, 10)},
		[]slicer.ExPolygon{square(0, 0, 10, 30)},
		cfg,
	)
	require.NoError(t, err)
	require.False(t, m.IsEmpty())

	bb := m.BoundingBox()
	assert.InDelta(t, cfg.FullHeight(), bb.ZExtent(), 1e-9)
	rep := mesh.Validate(m)
	assert.False(t, rep.NeedsRepair(), "validation: %+v", rep)
}

func TestCreateDisjointFootprints(t *testing.T) {
	// Far-apart footprints produce one plate each; both must be closed.
	cfg := DefaultConfig()
	m, err := Create(
		[]slicer.ExPolygon{square(0, 0, 5, 5), square(50, 0, 55, 5)},
		nil,
		cfg,
	)
	require.NoError(t, err)
	rep := mesh.Validate(m)
	assert.False(t, rep.NeedsRepair(), "validation: %+v", rep)
}

func TestDilateConcave(t *testing.T) {
	l := []v2.Vec{
		{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 2},
		{X: 2, Y: 2}, {X: 2, Y: 4}, {X: 0, Y: 4},
	}
	out := dilate([][]v2.Vec{l}, 1)
	require.Len(t, out, 1)
	assert.True(t, simpleRing(out[0]), "dilated ring must be simple")
	assert.Greater(t, ringArea(out[0]), ringArea(l))
}

func TestCreateBrim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BrimSize = 5
	m, err := Create([]slicer.ExPolygon{square(0, 0, 10, 10)}, nil, cfg)
	require.NoError(t, err)

	bb := m.BoundingBox()
	assert.InDelta(t, -5, bb.Min.X, 1e-6)
	assert.InDelta(t, 15, bb.Max.X, 1e-6)
}

func TestCreateUnionsFootprints(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BrimSize = 0
	// Overlapping support and model footprints merge into one plate.
	m, err := Create(
		[]slicer.ExPolygon{square(0, 0, 10, 10)},
		[]slicer.ExPolygon{square(5, 0, 15, 10)},
		cfg,
	)
	require.NoError(t, err)

	bb := m.BoundingBox()
	assert.InDelta(t, 0, bb.Min.X, 1e-6)
	assert.InDelta(t, 15, bb.Max.X, 1e-6)
	assert.False(t, mesh.Validate(m).NeedsRepair())
}

func TestCreateDegenerate(t *testing.T) {
	_, err := Create(nil, nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestBlueprint(t *testing.T) {
	m := mesh.New()
	m.AddBox(v3.Vec{}, v3.Vec{X: 20, Y: 20, Z: 20})

	fp, err := Blueprint(m, 0.05)
	require.NoError(t, err)
	require.Len(t, fp, 1)

	area := 0.0
	for _, e := range fp {
		area += e.Area()
	}
	assert.InDelta(t, 400, area, 1e-6)
}

func TestBlueprintEmpty(t *testing.T) {
	fp, err := Blueprint(nil, 0.05)
	require.NoError(t, err)
	assert.Empty(t, fp)
}

func TestTriangulate(t *testing.T) {
	ringArea := func(ring []v2.Vec, tris [][3]int) float64 {
		a := 0.0
		for _, tr := range tris {
			a += cross2(ring[tr[0]], ring[tr[1]], ring[tr[2]]) / 2
		}
		return a
	}

	sq := []v2.Vec{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}}
	tris, err := triangulate(sq)
	require.NoError(t, err)
	assert.Len(t, tris, 2)
	assert.InDelta(t, 16, ringArea(sq, tris), 1e-9)

	// Concave L shape.
	l := []v2.Vec{
		{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 2},
		{X: 2, Y: 2}, {X: 2, Y: 4}, {X: 0, Y: 4},
	}
	tris, err = triangulate(l)
	require.NoError(t, err)
	assert.Len(t, tris, 4)
	assert.InDelta(t, 12, ringArea(l, tris), 1e-9)
}

func TestTriangulateTooSmall(t *testing.T) {
	_, err := triangulate([]v2.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}})
	assert.Error(t, err)
}

func TestOffsetRing(t *testing.T) {
	sq := []v2.Vec{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}}

	out := offsetRing(sq, 1)
	assert.InDelta(t, -1, out[0].X, 1e-9)
	assert.InDelta(t, -1, out[0].Y, 1e-9)
	assert.InDelta(t, 5, out[2].X, 1e-9)

	in := offsetRing(sq, -1)
	assert.InDelta(t, 1, in[0].X, 1e-9)
	assert.InDelta(t, 3, in[2].X, 1e-9)

	same := offsetRing(sq, 0)
	assert.Equal(t, sq, same)
}
