package spatial

import (
	"sync"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/scaffold/pkg/mesh"
)

func cube(t *testing.T, size float64) *Mesh {
	t.Helper()
	m := mesh.New()
	m.AddBox(v3.Vec{}, v3.Vec{X: size, Y: size, Z: size})
	s, err := Build(m)
	require.NoError(t, err)
	return s
}

func TestBuildEmptyMesh(t *testing.T) {
	_, err := Build(mesh.New())
	assert.ErrorIs(t, err, ErrEmptyMesh)

	_, err = Build(nil)
	assert.ErrorIs(t, err, ErrEmptyMesh)
}

func TestNearestPoint(t *testing.T) {
	s := cube(t, 20)

	// Outside, above the center of the top face.
	p, tri, d := s.NearestPoint(v3.Vec{X: 10, Y: 10, Z: 25})
	assert.InDelta(t, 5, d, 1e-9)
	assert.InDelta(t, 20, p.Z, 1e-9)
	assert.GreaterOrEqual(t, tri, 0)

	// Outside, beyond a corner.
	_, _, d = s.NearestPoint(v3.Vec{X: -3, Y: -4, Z: 0})
	assert.InDelta(t, 5, d, 1e-9)
}

func TestRayHit(t *testing.T) {
	s := cube(t, 20)

	hit, ok := s.RayHit(v3.Vec{X: 10, Y: 10, Z: 30}, v3.Vec{Z: -1})
	require.True(t, ok)
	assert.InDelta(t, 10, hit.T, 1e-9)
	assert.InDelta(t, 20, hit.Point.Z, 1e-9)

	_, ok = s.RayHit(v3.Vec{X: 10, Y: 10, Z: 30}, v3.Vec{Z: 1})
	assert.False(t, ok)

	// From inside, first exit.
	hit, ok = s.RayHit(v3.Vec{X: 10, Y: 10, Z: 10}, v3.Vec{X: 1})
	require.True(t, ok)
	assert.InDelta(t, 10, hit.T, 1e-9)
}

func TestInside(t *testing.T) {
	s := cube(t, 20)

	assert.True(t, s.Inside(v3.Vec{X: 10, Y: 10, Z: 10}))
	assert.True(t, s.Inside(v3.Vec{X: 1, Y: 1, Z: 1}))
	assert.False(t, s.Inside(v3.Vec{X: 30, Y: 10, Z: 10}))
	assert.False(t, s.Inside(v3.Vec{X: 10, Y: 10, Z: 20.5}))
}

func TestConcurrentQueries(t *testing.T) {
	s := cube(t, 20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := v3.Vec{X: float64(i), Y: 10, Z: 25}
			s.NearestPoint(p)
			s.Inside(p)
			s.RayHit(p, v3.Vec{Z: -1})
		}(i)
	}
	wg.Wait()
}

func TestBoundingBox(t *testing.T) {
	s := cube(t, 20)
	bb := s.BoundingBox()
	assert.Equal(t, v3.Vec{}, bb.Min)
	assert.Equal(t, v3.Vec{X: 20, Y: 20, Z: 20}, bb.Max)
}
