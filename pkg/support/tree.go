package support

import (
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/scaffold/pkg/mesh"
	"github.com/chazu/scaffold/pkg/slicer"
)

// The tree is an arena of elements referenced by index. Junctions record the
// pillars feeding them, never back-pointers, so ownership stays acyclic and
// independent subtrees can be built in parallel.

// pillarSeamInset is how far a pillar's top ring is pulled below the ball
// it meets, keeping the two butted end caps from welding together.
const pillarSeamInset = 1e-3

// Head is a pinhead: a front ball touching the model, a conical neck and a
// back ball shared with the supporting pillar.
type Head struct {
	Front  v3.Vec  // front ball center
	Back   v3.Vec  // back ball center
	FrontR float64 // front ball radius
	BackR  float64 // back ball radius
	Pillar int     // arena index of the supporting pillar, -1 if unresolved
}

// Pillar is a vertical column. Bottom either rests on the pad plane
// (Junction < 0) or feeds a junction.
type Pillar struct {
	Top, Bottom v3.Vec
	Radius      float64
	Junction    int  // arena index of the junction this pillar feeds, or -1
	OnGround    bool // true when Bottom sits on the pad plane
}

// Junction merges two or more pillars into a shared trunk.
type Junction struct {
	Pos     v3.Vec
	Radius  float64
	Feeders []int // pillar indices merging here
	Trunk   int   // pillar index of the descending trunk
}

// Bridge is a near-horizontal connector stabilizing two pillars.
type Bridge struct {
	From, To v3.Vec
	Radius   float64
}

// RoutingFailure attributes an unresolved point to its cause. Failures are
// collected, not fatal to the run.
type RoutingFailure struct {
	PointIndex int
	Point      Point
	Err        error
}

func (f RoutingFailure) Error() string {
	return fmt.Sprintf("point %d at (%.2f, %.2f, %.2f): %v",
		f.PointIndex, f.Point.Pos.X, f.Point.Pos.Y, f.Point.Pos.Z, f.Err)
}

// Tree is the generated support structure. It is owned exclusively by the
// builder until returned, after which it is read-only.
type Tree struct {
	Heads     []Head
	Pillars   []Pillar
	Junctions []Junction
	Bridges   []Bridge
	Failures  []RoutingFailure

	cfg     Config
	groundZ float64
	merged  *mesh.Mesh
}

// GroundZ returns the pad plane the tree stands on.
func (t *Tree) GroundZ() float64 {
	return t.groundZ
}

// MergedMesh concatenates all element geometries into one mesh, built into
// a single growable buffer. A tree with no elements yields an empty mesh,
// which is a valid result. The mesh is cached after the first call.
func (t *Tree) MergedMesh() *mesh.Mesh {
	if t.merged != nil {
		return t.merged
	}
	m := mesh.New()
	segs := t.cfg.Segments

	for _, h := range t.Heads {
		if h.Pillar < 0 {
			continue
		}
		m.AddSphere(h.Front, h.FrontR, segs)
		m.AddTube(h.Front, h.Back, h.FrontR, h.BackR, segs)
		m.AddSphere(h.Back, h.BackR, segs)
	}
	for _, p := range t.Pillars {
		// Sink the top ring slightly below the ball the pillar butts
		// against, so the two end caps never weld into one another.
		// The ball always covers the gap.
		top := p.Top
		top.Z -= pillarSeamInset
		if top.Z <= p.Bottom.Z {
			continue
		}
		m.AddTube(top, p.Bottom, p.Radius, p.Radius, segs)
		if p.OnGround && t.cfg.BaseHeight > 0 {
			footTop := p.Bottom
			footTop.Z += t.cfg.BaseHeight
			m.AddTube(footTop, p.Bottom, p.Radius, 2*p.Radius, segs)
		}
	}
	for _, j := range t.Junctions {
		m.AddSphere(j.Pos, j.Radius, segs)
	}
	for _, b := range t.Bridges {
		m.AddTube(b.From, b.To, b.Radius, b.Radius, segs)
	}

	t.merged = m
	return m
}

// Slice cuts the merged support mesh at the given heights, for collision
// checks against the model slices.
func (t *Tree) Slice(heights []float64, closing float64) ([]slicer.Layer, error) {
	return slicer.Slice(t.MergedMesh(), heights, closing, nil, nil)
}

// mergedRadius combines two pillar radii so the trunk's cross section is at
// least the sum of its feeders'.
func mergedRadius(r1, r2 float64) float64 {
	return math.Sqrt(r1*r1 + r2*r2)
}
