package support

import (
	"errors"
	"math"
	"runtime"
	"sync"

	"github.com/ctessum/polyclip-go"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/scaffold/pkg/slicer"
	"github.com/chazu/scaffold/pkg/spatial"
)

// ErrCancelled is returned when a cancel callback reports true. Partial
// results accompany it.
var ErrCancelled = errors.New("support: cancelled")

// Point is one automatically placed support anchor on the model surface.
type Point struct {
	Pos        v3.Vec
	HeadRadius float64
	// Island marks points supporting a newly appearing overhang island,
	// a region with no material directly below it.
	Island bool
}

// minRegionArea filters out slicing noise when detecting overhangs.
const minRegionArea = 1e-4

// region is one flagged overhang area awaiting point placement.
type region struct {
	layer  int
	poly   slicer.ExPolygon
	island bool
}

// GeneratePoints proposes support anchors by comparing each layer's contours
// against the previous layer's. A region with no supporting material
// directly below it is an island and always receives points; a wide
// overhanging rim receives points when it exceeds the self-supporting slope.
// Within a region, candidates are placed on a deterministic grid with
// spacing derived from the head diameter, skipping spots already covered by
// an earlier point's head disk. Identical mesh and config inputs always
// produce the identical ordered point list.
func GeneratePoints(sm *spatial.Mesh, layers []slicer.Layer, cfg Config, progress slicer.ProgressFunc, cancel slicer.CancelFunc) ([]Point, error) {
	if len(layers) == 0 {
		return nil, nil
	}

	// Pass 1: flag overhang regions layer by layer. Layer pairs are
	// independent given the read-only slices, so they fan out to workers;
	// results are merged in ascending layer order to stay deterministic.
	perLayer := make([][]region, len(layers))
	var stop bool
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range layers {
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

			var prev []slicer.ExPolygon
			layerStep := math.Inf(1)
			if i > 0 {
				prev = layers[i-1].Polygons
				layerStep = layers[i].Z - layers[i-1].Z
			}
			perLayer[i] = flagRegions(i, layers[i].Polygons, prev, layerStep, cfg)
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	if stop {
		return nil, ErrCancelled
	}

	// Pass 2: place points serially in layer order so the greedy coverage
	// rule sees a stable sequence.
	var pts []Point
	for i, regions := range perLayer {
		if cancel != nil && cancel() {
			return pts, ErrCancelled
		}
		for _, r := range regions {
			pts = append(pts, placePoints(sm, r, layers[r.layer].Z, cfg, pts)...)
		}
		if progress != nil {
			progress(float64(i+1) / float64(len(layers)))
		}
	}
	return pts, nil
}

// flagRegions returns the overhang regions of one layer: the parts of its
// contours with no material in the layer below. Islands are regions fully
// disconnected from the layer below; rims are flagged only when wider than
// the slope allowance for the layer step.
func flagRegions(layer int, polys, prev []slicer.ExPolygon, layerStep float64, cfg Config) []region {
	var out []region
	prevClip := slicer.ToPolyclip(prev)
	for _, e := range polys {
		cur := slicer.ToPolyclip([]slicer.ExPolygon{e})

		if len(prev) == 0 {
			// Nothing below: the whole polygon is an island.
			out = append(out, region{layer: layer, poly: e, island: true})
			continue
		}

		supported := polyArea(slicer.FromPolyclip(cur.Construct(polyclip.INTERSECTION, prevClip)))
		island := supported < minRegionArea

		diff := slicer.FromPolyclip(cur.Construct(polyclip.DIFFERENCE, prevClip))
		for _, d := range diff {
			a := d.Area()
			if a < minRegionArea {
				continue
			}
			if island {
				out = append(out, region{layer: layer, poly: d, island: true})
				continue
			}
			// Rim width estimate; a band narrower than the slope allowance
			// is self-supporting.
			allow := layerStep / math.Tan(cfg.MaxBridgeSlope)
			if a/perimeter(d) > allow {
				out = append(out, region{layer: layer, poly: d, island: false})
			}
		}
	}
	return out
}

func polyArea(polys []slicer.ExPolygon) float64 {
	a := 0.0
	for _, p := range polys {
		a += p.Area()
	}
	return a
}

func perimeter(e slicer.ExPolygon) float64 {
	p := 0.0
	for i, v := range e.Outer {
		p += e.Outer[(i+1)%len(e.Outer)].Sub(v).Length()
	}
	return p
}

// placePoints covers one region with support points on a row-major grid,
// skipping candidates whose location is already covered by a previously
// accepted point's head disk. Each accepted candidate is anchored onto the
// actual model surface with a downward ray cast.
func placePoints(sm *spatial.Mesh, r region, z float64, cfg Config, existing []Point) []Point {
	spacing := cfg.pointSpacing()
	minB, maxB := ringBounds(r.poly.Outer)

	var out []Point
	covered := func(p v2.Vec) bool {
		for _, q := range existing {
			if sameDisk(p, q, z, cfg) {
				return true
			}
		}
		for _, q := range out {
			if sameDisk(p, q, z, cfg) {
				return true
			}
		}
		return false
	}

	row := 0
	for y := minB.Y + spacing/2; y <= maxB.Y; y += spacing {
		// Offset alternating rows for better disk coverage.
		x0 := minB.X + spacing/2
		if row%2 == 1 {
			x0 += spacing / 2
		}
		for x := x0; x <= maxB.X; x += spacing {
			p := v2.Vec{X: x, Y: y}
			if !r.poly.Contains(p) || covered(p) {
				continue
			}
			out = append(out, anchor(sm, p, z, r.island, cfg))
		}
		row++
	}

	if len(out) == 0 {
		// Tiny island that the grid missed entirely: a single point at the
		// contour centroid keeps it from printing unsupported.
		c := centroid(r.poly.Outer)
		if r.poly.Contains(c) && !covered(c) {
			out = append(out, anchor(sm, c, z, r.island, cfg))
		}
	}
	return out
}

func sameDisk(p v2.Vec, q Point, z float64, cfg Config) bool {
	const tol = 1e-6
	if math.Abs(q.Pos.Z-z) > cfg.pointSpacing() {
		return false
	}
	d := v2.Vec{X: q.Pos.X, Y: q.Pos.Y}.Sub(p).Length()
	return d <= cfg.HeadFrontRadius+tol
}

// anchor drops the 2D candidate onto the model surface. The slice plane is
// mid-layer, so the candidate sits inside the solid; the first downward
// surface crossing is the underside being supported.
func anchor(sm *spatial.Mesh, p v2.Vec, z float64, island bool, cfg Config) Point {
	pos := v3.Vec{X: p.X, Y: p.Y, Z: z}
	if hit, ok := sm.RayHit(pos, v3.Vec{Z: -1}); ok {
		pos = hit.Point
	}
	return Point{Pos: pos, HeadRadius: cfg.HeadFrontRadius, Island: island}
}

func ringBounds(ring []v2.Vec) (min, max v2.Vec) {
	min = v2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	max = v2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, p := range ring {
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
	}
	return min, max
}

func centroid(ring []v2.Vec) v2.Vec {
	var c v2.Vec
	for _, p := range ring {
		c = c.Add(p)
	}
	return c.DivScalar(float64(len(ring)))
}

// RemoveBottomPoints discards points anchored at or below the floor plane.
// With the object sitting directly on the pad those positions are already
// embedded in the pad and need no pinheads.
func RemoveBottomPoints(pts []Point, zFloor, tol float64) []Point {
	out := pts[:0]
	for _, p := range pts {
		if p.Pos.Z > zFloor+tol {
			out = append(out, p)
		}
	}
	return out
}
