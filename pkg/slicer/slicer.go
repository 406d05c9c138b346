package slicer

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/scaffold/pkg/mesh"
)

// ErrCancelled is returned when the cancel callback reports true. The layers
// computed before the abort are still returned alongside it.
var ErrCancelled = errors.New("slicer: cancelled")

// chainEps is the endpoint quantization used to chain segments that share a
// triangle edge. Gaps larger than this are handled by closing-radius healing.
const chainEps = 1e-6

// ProgressFunc receives fractional completion in [0, 1] after each work unit.
type ProgressFunc func(frac float64)

// CancelFunc is polled at least once per work unit; returning true aborts.
type CancelFunc func() bool

// LayerError attributes a contour assembly failure to one layer.
type LayerError struct {
	Index    int
	Z        float64
	Unclosed int // chains that could not be closed within the closing radius
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("layer %d (z=%.4f): %d unclosed contours after healing", e.Index, e.Z, e.Unclosed)
}

// Grid returns slicing planes covering [minZ, maxZ] at the given layer
// height, with planes placed mid-layer to avoid cutting exactly through
// horizontal facets.
func Grid(minZ, maxZ, layerHeight float64) []float64 {
	var zs []float64
	for z := minZ + layerHeight/2; z <= maxZ; z += layerHeight {
		zs = append(zs, z)
	}
	return zs
}

// Slice cuts the mesh at every height and returns one layer per height, in
// input order. closing is the healing radius used to join contour gaps left
// by floating-point slicing error. progress and cancel may be nil.
//
// Layers are independent and sliced on parallel workers; results are merged
// back in height order. On cancellation the already-produced layers are
// returned together with ErrCancelled. Per-layer assembly failures are
// collected as LayerErrors and do not abort the remaining layers.
func Slice(m *mesh.Mesh, heights []float64, closing float64, progress ProgressFunc, cancel CancelFunc) ([]Layer, error) {
	layers := make([]Layer, len(heights))
	for i, z := range heights {
		layers[i].Z = z
	}
	if m == nil || m.TriangleCount() == 0 || len(heights) == 0 {
		return layers, nil
	}

	layerErrs := make([]error, len(heights))
	done := 0
	var stop atomic.Bool
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range heights {
		g.Go(func() error {
			if stop.Load() {
				return nil
			}
			if cancel != nil && cancel() {
				stop.Store(true)
				return nil
			}
			polys, unclosed := sliceLayer(m, heights[i], closing)
			layers[i].Polygons = polys
			if unclosed > 0 {
				layerErrs[i] = &LayerError{Index: i, Z: heights[i], Unclosed: unclosed}
			}
			mu.Lock()
			done++
			if progress != nil {
				progress(float64(done) / float64(len(heights)))
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors directly

	if stop.Load() {
		return layers, ErrCancelled
	}
	return layers, errors.Join(layerErrs...)
}

// segment is one directed plane-triangle intersection. Direction follows
// z-up cross the face normal, so material lies to the left and assembled
// outer contours wind counterclockwise.
type segment struct {
	a, b v2.Vec
}

func sliceLayer(m *mesh.Mesh, z, closing float64) ([]ExPolygon, int) {
	segs := collectSegments(m, z)
	if len(segs) == 0 {
		return nil, 0
	}
	loops, unclosed := chainSegments(segs, closing)
	return assemble(loops), unclosed
}

func collectSegments(m *mesh.Mesh, z float64) []segment {
	var segs []segment
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		if s, ok := intersectTriangle(tri, z); ok {
			segs = append(segs, s)
		}
	}
	return segs
}

// intersectTriangle cuts one triangle against the plane. Vertices exactly on
// the plane count as below, so horizontal facets at z produce no segment.
func intersectTriangle(tri [3]v3.Vec, z float64) (segment, bool) {
	above := [3]bool{tri[0].Z > z, tri[1].Z > z, tri[2].Z > z}
	nAbove := 0
	for _, a := range above {
		if a {
			nAbove++
		}
	}
	if nAbove == 0 || nAbove == 3 {
		return segment{}, false
	}

	// The lone vertex on one side of the plane.
	lone := 0
	for i := range above {
		if above[i] == (nAbove == 1) {
			lone = i
		}
	}
	o1, o2 := (lone+1)%3, (lone+2)%3
	p1 := edgePlane(tri[lone], tri[o1], z)
	p2 := edgePlane(tri[lone], tri[o2], z)

	// Orient along z-up cross the face normal.
	n := tri[1].Sub(tri[0]).Cross(tri[2].Sub(tri[0]))
	dir := v2.Vec{X: -n.Y, Y: n.X}
	d := p2.Sub(p1)
	if d.X*dir.X+d.Y*dir.Y < 0 {
		p1, p2 = p2, p1
	}
	return segment{a: p1, b: p2}, true
}

func edgePlane(a, b v3.Vec, z float64) v2.Vec {
	t := (z - a.Z) / (b.Z - a.Z)
	return v2.Vec{
		X: a.X + t*(b.X-a.X),
		Y: a.Y + t*(b.Y-a.Y),
	}
}

type chainKey [2]int64

func quantize2(p v2.Vec) chainKey {
	return chainKey{
		int64(math.Round(p.X / chainEps)),
		int64(math.Round(p.Y / chainEps)),
	}
}

// chainSegments joins segments into closed loops by exact endpoint matching,
// then heals remaining gaps up to the closing radius. Returns the closed
// loops and the number of chains that stayed open.
func chainSegments(segs []segment, closing float64) ([][]v2.Vec, int) {
	starts := make(map[chainKey][]int, len(segs))
	for i, s := range segs {
		k := quantize2(s.a)
		starts[k] = append(starts[k], i)
	}
	used := make([]bool, len(segs))
	take := func(k chainKey) int {
		for _, i := range starts[k] {
			if !used[i] {
				used[i] = true
				return i
			}
		}
		return -1
	}

	var loops [][]v2.Vec
	var open [][]v2.Vec
	for i := range segs {
		if used[i] {
			continue
		}
		used[i] = true
		pts := []v2.Vec{segs[i].a, segs[i].b}
		first := quantize2(segs[i].a)
		for {
			k := quantize2(pts[len(pts)-1])
			if k == first && len(pts) > 3 {
				loops = append(loops, pts[:len(pts)-1]) // drop repeated closing point
				pts = nil
				break
			}
			j := take(k)
			if j < 0 {
				break
			}
			pts = append(pts, segs[j].b)
		}
		if pts != nil {
			open = append(open, pts)
		}
	}

	healed, unclosed := healChains(open, closing)
	return append(loops, healed...), unclosed
}

// healChains merges open chains whose ends lie within the closing radius and
// closes chains whose own ends meet within it. Chains that remain open are
// dropped and counted, unless they are short slivers of slicing noise.
func healChains(open [][]v2.Vec, closing float64) (closed [][]v2.Vec, unclosed int) {
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(open); i++ {
			for j := 0; j < len(open); j++ {
				if i == j || open[i] == nil || open[j] == nil {
					continue
				}
				if open[i][len(open[i])-1].Sub(open[j][0]).Length() <= closing {
					open[i] = append(open[i], open[j]...)
					open[j] = nil
					changed = true
				}
			}
		}
		compact := open[:0]
		for _, c := range open {
			if c != nil {
				compact = append(compact, c)
			}
		}
		open = compact
	}

	for _, c := range open {
		if len(c) >= 3 && c[len(c)-1].Sub(c[0]).Length() <= closing {
			closed = append(closed, c)
		} else if len(c) > 3 {
			unclosed++
		}
	}
	return closed, unclosed
}

// assemble groups closed loops into ExPolygons: counterclockwise loops are
// outers, clockwise loops become holes of the smallest outer containing them.
func assemble(loops [][]v2.Vec) []ExPolygon {
	const minArea = 1e-9

	var out []ExPolygon
	outerArea := []float64{}
	var holes [][]v2.Vec
	for _, l := range loops {
		a := signedArea(l)
		switch {
		case a > minArea:
			out = append(out, ExPolygon{Outer: l})
			outerArea = append(outerArea, a)
		case a < -minArea:
			holes = append(holes, l)
		}
	}

	for _, h := range holes {
		best := -1
		for i, e := range out {
			if pointInRing(h[0], e.Outer) && (best < 0 || outerArea[i] < outerArea[best]) {
				best = i
			}
		}
		if best >= 0 {
			out[best].Holes = append(out[best].Holes, h)
		}
	}
	return out
}
