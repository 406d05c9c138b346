package support

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/scaffold/pkg/slicer"
	"github.com/chazu/scaffold/pkg/spatial"
)

// ErrCollision marks a point whose pillar could not be routed without
// violating the penetration margin after the bounded reroute attempts.
var ErrCollision = errors.New("support: collision unresolved")

// rerouteDirections is the number of lateral directions probed per reroute
// ring. Probing order is fixed so routing is deterministic.
const rerouteDirections = 8

// routed is the outcome of routing a single point, produced on a worker and
// merged into the arena in point order.
type routed struct {
	head      Head
	pillarTop v3.Vec
	bridge    *Bridge // reroute connector, if the direct path collided
	err       error
}

// BuildTree routes every support point into the scaffold: pinhead, pillar
// down to the pad plane, then a serialized merge pass that joins nearby
// pillars into junctions and adds stabilizer bridges. Individual routing
// failures are collected on the tree, not fatal. Zero input points produce
// an empty tree, which is a success.
func BuildTree(pts []Point, sm *spatial.Mesh, cfg Config, progress slicer.ProgressFunc, cancel slicer.CancelFunc) (*Tree, error) {
	groundZ := sm.BoundingBox().Min.Z - cfg.ObjectElevation
	t := &Tree{cfg: cfg, groundZ: groundZ}
	if len(pts) == 0 {
		return t, nil
	}

	// Independent points route in parallel against the read-only index.
	results := make([]routed, len(pts))
	done := 0
	var stop bool
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range pts {
		g.Go(func() error {
			mu.Lock()
			cancelled := stop
			if !cancelled && cancel != nil && cancel() {
				stop = true
				cancelled = true
			}
			mu.Unlock()
			if cancelled {
				return nil
			}
			results[i] = routePoint(sm, pts[i], groundZ, cfg)
			mu.Lock()
			done++
			if progress != nil {
				progress(float64(done) / float64(len(pts)))
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	if stop {
		return t, ErrCancelled
	}

	// Merge worker results into the arena in point order.
	for i, r := range results {
		if r.err != nil {
			t.Failures = append(t.Failures, RoutingFailure{PointIndex: i, Point: pts[i], Err: r.err})
			continue
		}
		h := r.head
		h.Pillar = len(t.Pillars)
		t.Heads = append(t.Heads, h)
		t.Pillars = append(t.Pillars, Pillar{
			Top:      r.pillarTop,
			Bottom:   v3.Vec{X: r.pillarTop.X, Y: r.pillarTop.Y, Z: groundZ},
			Radius:   cfg.PillarRadius,
			Junction: -1,
			OnGround: true,
		})
		if r.bridge != nil {
			t.Bridges = append(t.Bridges, *r.bridge)
		}
	}

	// Junction merging depends on already-placed pillars, so it runs as a
	// single serialized pass, re-checking merged trunks for collisions.
	mergePillars(t, sm, cfg)
	addStabilizers(t, sm, cfg)
	return t, nil
}

// routePoint runs the per-point state machine: pinhead at the surface,
// then a pillar path to the pad plane, with bounded lateral reroutes. The
// terminal state is either a routed head+pillar or an unresolved error.
func routePoint(sm *spatial.Mesh, p Point, groundZ float64, cfg Config) routed {
	dir := headDirection(sm, p.Pos)

	// The tip is offset from the surface by the signed penetration: positive
	// embeds into the model, negative clears it by that margin.
	tip := p.Pos.Sub(dir.MulScalar(cfg.HeadPenetration))
	front := tip.Add(dir.MulScalar(p.HeadRadius))
	back := front.Add(dir.MulScalar(cfg.HeadWidth))
	head := Head{Front: front, Back: back, FrontR: p.HeadRadius, BackR: cfg.PillarRadius, Pillar: -1}

	if back.Z <= groundZ+cfg.BaseHeight {
		return routed{err: fmt.Errorf("%w: head below pad plane", ErrCollision)}
	}

	// Direct vertical descent. The first head-width of the path is skipped:
	// it legitimately hugs the anchoring surface.
	top := back
	if pillarClear(sm, top, groundZ, cfg) {
		return routed{head: head, pillarTop: top}
	}

	// Bounded lateral reroutes: rings of candidate offsets around the head,
	// connected by a sloped bridge within the slope limit.
	for ring := 1; ring <= cfg.MaxReroutes; ring++ {
		dist := float64(ring) * 2 * cfg.PillarRadius
		drop := dist * math.Tan(cfg.MaxBridgeSlope)
		for k := 0; k < rerouteDirections; k++ {
			ang := 2 * math.Pi * float64(k) / rerouteDirections
			cand := v3.Vec{
				X: back.X + dist*math.Cos(ang),
				Y: back.Y + dist*math.Sin(ang),
				Z: back.Z - drop,
			}
			if cand.Z <= groundZ+cfg.BaseHeight {
				continue
			}
			if !segmentClear(sm, back, cand, cfg.clearance()) {
				continue
			}
			if !pillarClear(sm, cand, groundZ, cfg) {
				continue
			}
			return routed{
				head:      head,
				pillarTop: cand,
				bridge:    &Bridge{From: back, To: cand, Radius: cfg.PillarRadius},
			}
		}
	}
	return routed{err: fmt.Errorf("%w: no clear pillar path after %d reroute rings", ErrCollision, cfg.MaxReroutes)}
}

// headDirection returns the unit direction the pinhead points along: away
// from the solid, tilted downward when the surface normal is too flat for a
// descending pillar.
func headDirection(sm *spatial.Mesh, pos v3.Vec) v3.Vec {
	_, tri, _ := sm.NearestPoint(pos)
	n := v3.Vec{Z: -1}
	if tri >= 0 {
		if tn := sm.Source().TriangleNormal(tri); tn.Length() > 0.5 {
			n = tn
		}
	}
	probe := pos.Add(n.MulScalar(1e-3))
	if sm.Inside(probe) {
		n = n.Neg()
	}
	if n.Z > -0.1 {
		// Blend toward straight down so the pillar can descend.
		n = v3.Vec{X: n.X, Y: n.Y, Z: -0.5}.Normalize()
	}
	return n
}

// pillarClear checks the vertical path from top down to the pad plane
// against the model, keeping the configured clearance. The first head-width
// below the top is exempt, since it starts next to its own anchor surface.
func pillarClear(sm *spatial.Mesh, top v3.Vec, groundZ float64, cfg Config) bool {
	start := top
	start.Z -= cfg.HeadWidth
	end := v3.Vec{X: top.X, Y: top.Y, Z: groundZ}
	if start.Z <= end.Z {
		return true
	}
	return segmentClear(sm, start, end, cfg.clearance())
}

// segmentClear samples the segment and requires every sample to stay
// outside the model by at least the clearance.
func segmentClear(sm *spatial.Mesh, from, to v3.Vec, clearance float64) bool {
	d := to.Sub(from)
	length := d.Length()
	if length < 1e-9 {
		return true
	}
	step := math.Max(clearance, 0.25)
	n := int(length/step) + 1
	for i := 0; i <= n; i++ {
		p := from.Add(d.MulScalar(float64(i) / float64(n)))
		if sm.Inside(p) || sm.DistanceToSurface(p) < clearance {
			return false
		}
	}
	return true
}

// mergePillars joins pairs of nearby ground pillars into junctions with a
// shared trunk. The trunk radius follows the combination rule that keeps
// its cross section at least the sum of the feeders'.
func mergePillars(t *Tree, sm *spatial.Mesh, cfg Config) {
	n := len(t.Pillars)
	merged := make([]bool, n)
	for i := 0; i < n; i++ {
		if merged[i] {
			continue
		}
		for j := i + 1; j < n; j++ {
			if merged[j] {
				continue
			}
			pi, pj := t.Pillars[i], t.Pillars[j]
			d := horizontalDistance(pi.Top, pj.Top)
			if d < 2*cfg.PillarRadius || d > cfg.MaxPillarLinkDistance {
				continue
			}

			zs := math.Min(pi.Top.Z, pj.Top.Z)
			halfDrop := d / 2 * math.Tan(cfg.MaxBridgeSlope)
			zm := zs - halfDrop
			if zm <= t.groundZ+cfg.BaseHeight {
				continue
			}
			jpos := v3.Vec{
				X: (pi.Top.X + pj.Top.X) / 2,
				Y: (pi.Top.Y + pj.Top.Y) / 2,
				Z: zm,
			}
			r := mergedRadius(pi.Radius, pj.Radius)

			// Re-check the merged trunk for newly introduced collisions.
			trunkBottom := v3.Vec{X: jpos.X, Y: jpos.Y, Z: t.groundZ}
			if !segmentClear(sm, jpos, trunkBottom, r-cfg.HeadPenetration) {
				continue
			}
			si := v3.Vec{X: pi.Top.X, Y: pi.Top.Y, Z: zs}
			sj := v3.Vec{X: pj.Top.X, Y: pj.Top.Y, Z: zs}
			if !segmentClear(sm, si, jpos, cfg.clearance()) || !segmentClear(sm, sj, jpos, cfg.clearance()) {
				continue
			}

			trunkIdx := len(t.Pillars)
			jIdx := len(t.Junctions)
			t.Pillars = append(t.Pillars, Pillar{
				Top:      jpos,
				Bottom:   trunkBottom,
				Radius:   r,
				Junction: -1,
				OnGround: true,
			})
			t.Junctions = append(t.Junctions, Junction{
				Pos:     jpos,
				Radius:  r,
				Feeders: []int{i, j},
				Trunk:   trunkIdx,
			})
			t.Bridges = append(t.Bridges,
				Bridge{From: si, To: jpos, Radius: pi.Radius},
				Bridge{From: sj, To: jpos, Radius: pj.Radius},
			)

			// Feeders now end where their bridges leave.
			t.Pillars[i].Bottom = si
			t.Pillars[i].Junction = jIdx
			t.Pillars[i].OnGround = false
			t.Pillars[j].Bottom = sj
			t.Pillars[j].Junction = jIdx
			t.Pillars[j].OnGround = false
			merged[i], merged[j] = true, true
			break
		}
	}
}

// maxStabilizersPerPillar bounds lateral cross-links so dense forests do
// not turn into solid walls.
const maxStabilizersPerPillar = 2

// addStabilizers links neighboring ground pillars with near-horizontal
// bridges for lateral stiffness. A pillar never takes two links along
// nearly the same horizontal direction: collinear bridges at the same
// height would share their end rings vertex for vertex and weld into a
// non-manifold seam, and a parallel second link adds no stiffness anyway.
func addStabilizers(t *Tree, sm *spatial.Mesh, cfg Config) {
	links := make(map[int]int)
	dirs := make(map[int][]v2.Vec)
	aligned := func(idx int, d v2.Vec) bool {
		for _, e := range dirs[idx] {
			if math.Abs(d.X*e.Y-d.Y*e.X) < 0.1 {
				return true
			}
		}
		return false
	}
	for i := 0; i < len(t.Pillars); i++ {
		for j := i + 1; j < len(t.Pillars); j++ {
			if links[i] >= maxStabilizersPerPillar || links[j] >= maxStabilizersPerPillar {
				continue
			}
			pi, pj := t.Pillars[i], t.Pillars[j]
			if !pi.OnGround || !pj.OnGround {
				continue
			}
			d := horizontalDistance(pi.Top, pj.Top)
			if d < 2*cfg.PillarRadius || d > cfg.MaxPillarLinkDistance {
				continue
			}
			dir := v2.Vec{X: pj.Top.X - pi.Top.X, Y: pj.Top.Y - pi.Top.Y}.DivScalar(d)
			if aligned(i, dir) || aligned(j, dir) {
				continue
			}
			zb := math.Min(pi.Top.Z, pj.Top.Z) - cfg.HeadWidth
			if zb <= t.groundZ+cfg.BaseHeight {
				continue
			}
			from := v3.Vec{X: pi.Top.X, Y: pi.Top.Y, Z: zb}
			to := v3.Vec{X: pj.Top.X, Y: pj.Top.Y, Z: zb}
			if !segmentClear(sm, from, to, cfg.clearance()) {
				continue
			}
			t.Bridges = append(t.Bridges, Bridge{From: from, To: to, Radius: cfg.PillarRadius})
			links[i]++
			links[j]++
			dirs[i] = append(dirs[i], dir)
			dirs[j] = append(dirs[j], dir)
		}
	}
}

func horizontalDistance(a, b v3.Vec) float64 {
	return v2.Vec{X: a.X - b.X, Y: a.Y - b.Y}.Length()
}
