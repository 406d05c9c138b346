package pipeline

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/scaffold/pkg/mesh"
	"github.com/chazu/scaffold/pkg/support"
)

func cube20() *mesh.Mesh {
	m := mesh.New()
	m.AddBox(v3.Vec{}, v3.Vec{X: 20, Y: 20, Z: 20})
	return m
}

// testConfig slices coarsely so pipeline tests stay fast.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LayerHeight = 1
	cfg.ClosingRadius = 0.05
	return cfg
}

func TestRunRestingCube(t *testing.T) {
	// A cube resting directly on the pad needs no pillars at all: its only
	// overhang is the bottom face, which the pad itself carries.
	cfg := testConfig()
	cfg.Support.ObjectElevation = 0

	res, err := Run(cube20(), cfg, Hooks{}, nil)
	require.NoError(t, err)
	assert.True(t, res.Support.IsEmpty())
	assert.Empty(t, res.Tree.Failures)

	require.NotNil(t, res.Pad)
	bb := res.Pad.BoundingBox()
	assert.InDelta(t, 0, bb.Max.Z, 1e-9, "pad top must carry the model base")
	assert.InDelta(t, cfg.Pad.FullHeight(), bb.ZExtent(), 1e-9)
	assert.LessOrEqual(t, bb.Min.X, 0.0, "pad must cover the model footprint")
	assert.GreaterOrEqual(t, bb.Max.X, 20.0)
}

func TestRunElevatedCube(t *testing.T) {
	cfg := testConfig()
	cfg.Support.ObjectElevation = 5

	res, err := Run(cube20(), cfg, Hooks{}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Points)
	assert.Empty(t, res.Tree.Failures)
	require.False(t, res.Support.IsEmpty())

	sb := res.Support.BoundingBox()
	assert.InDelta(t, -5, sb.Min.Z, 1e-9, "pillars must reach the pad plane")
	srep := mesh.Validate(res.Support)
	assert.False(t, srep.NeedsRepair(), "support validation: %+v", srep)

	pb := res.Pad.BoundingBox()
	assert.InDelta(t, -5, pb.Max.Z, 1e-9)
	assert.InDelta(t, cfg.Pad.FullHeight(), pb.ZExtent(), 1e-9)
	assert.False(t, mesh.Validate(res.Pad).NeedsRepair())
}

func TestRunCollectsRoutingFailures(t *testing.T) {
	// A wide slab under a floating box blocks every pillar route from the
	// box; those points are reported, not fatal.
	m := mesh.New()
	m.AddBox(v3.Vec{}, v3.Vec{X: 40, Y: 40, Z: 2})
	m.AddBox(v3.Vec{X: 18, Y: 18, Z: 10}, v3.Vec{X: 22, Y: 22, Z: 12})

	cfg := testConfig()
	cfg.Support.ObjectElevation = 5

	res, err := Run(m, cfg, Hooks{}, nil)
	require.NoError(t, err, "unresolved points must not abort the run")
	require.NotEmpty(t, res.Tree.Failures)
	for _, f := range res.Tree.Failures {
		assert.ErrorIs(t, f.Err, support.ErrCollision)
	}
	assert.False(t, res.Support.IsEmpty(), "routable points still get pillars")

	// The concave unioned footprint under this forest must still yield a
	// closed pad; Run errors with ErrGeometryDegenerate if any generated
	// mesh comes out non-manifold.
	require.NotNil(t, res.Pad)
	assert.False(t, res.Pad.IsEmpty())
}

// hollowCube returns a 20 mm cube with a closed interior cavity, its inner
// shell wound toward the cavity.
func hollowCube() *mesh.Mesh {
	m := cube20()
	inner := mesh.New()
	inner.AddBox(v3.Vec{X: 5, Y: 5, Z: 5}, v3.Vec{X: 15, Y: 15, Z: 15})
	for i := 0; i < len(inner.Indices); i += 3 {
		inner.Indices[i+1], inner.Indices[i+2] = inner.Indices[i+2], inner.Indices[i+1]
	}
	m.Merge(inner)
	return m
}

func TestRunNoTouchHollowCube(t *testing.T) {
	// The cavity ceiling attracts support points whose pillars cannot escape
	// the cavity; those are collected as unresolved. Every routed support
	// must still keep clear of the model.
	cfg := testConfig()
	cfg.Support.ObjectElevation = 5
	cfg.Support.HeadPenetration = -0.1

	res, err := Run(hollowCube(), cfg, Hooks{}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Collisions)
	assert.False(t, res.Support.IsEmpty())
}

func TestRunNoTouchValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Support.ObjectElevation = 5
	cfg.Support.HeadPenetration = -0.1

	res, err := Run(cube20(), cfg, Hooks{}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Collisions, "with a clearance margin the support may never touch the model")
}

func TestRunInputErrors(t *testing.T) {
	_, err := Run(nil, testConfig(), Hooks{}, nil)
	assert.ErrorIs(t, err, ErrInput)

	_, err = Run(mesh.New(), testConfig(), Hooks{}, nil)
	assert.ErrorIs(t, err, ErrInput)

	bad := cube20()
	bad.Indices[0] = 999
	_, err = Run(bad, testConfig(), Hooks{}, nil)
	assert.ErrorIs(t, err, ErrInput)
}

func TestRunCancelled(t *testing.T) {
	res, err := Run(cube20(), testConfig(), Hooks{Cancel: func() bool { return true }}, nil)
	assert.ErrorIs(t, err, ErrCancelled)
	require.NotNil(t, res, "partial results accompany cancellation")
}

func TestRunProgress(t *testing.T) {
	var mu sync.Mutex
	last := map[string]float64{}
	hooks := Hooks{Progress: func(stage string, frac float64) {
		mu.Lock()
		defer mu.Unlock()
		assert.GreaterOrEqual(t, frac, last[stage], "progress must be monotonic per stage")
		assert.LessOrEqual(t, frac, 1.0)
		last[stage] = frac
	}}

	cfg := testConfig()
	cfg.Support.ObjectElevation = 5
	_, err := Run(cube20(), cfg, hooks, nil)
	require.NoError(t, err)

	for _, stage := range []string{StageSlice, StagePoints, StageTree, StagePad} {
		assert.InDelta(t, 1.0, last[stage], 1e-9, "stage %s must complete", stage)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
layer_height = 0.1

[support]
object_elevation = 7.5
head_penetration = -0.2

[pad]
wall_height = 2.0
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, cfg.LayerHeight, 1e-12)
	assert.InDelta(t, 7.5, cfg.Support.ObjectElevation, 1e-12)
	assert.InDelta(t, -0.2, cfg.Support.HeadPenetration, 1e-12)
	assert.InDelta(t, 2.0, cfg.Pad.WallHeight, 1e-12)
	// Keys absent from the file keep their defaults.
	assert.InDelta(t, DefaultConfig().Support.PillarRadius, cfg.Support.PillarRadius, 1e-12)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	require.NoError(t, os.WriteFile(path, []byte("layer_height = -1\n"), 0o644))

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrInput)
}

func TestConfigCheck(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Check())

	cfg.Support.PillarRadius = 0
	assert.ErrorIs(t, cfg.Check(), ErrInput)
}
