package mesh

import (
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// weldEpsilon is the vertex-welding resolution used when checking edge
// topology. Vertices closer than this are treated as the same point.
const weldEpsilon = 1e-6

// ValidationReport summarizes the topological health of a mesh. A report
// with all counters at zero means the mesh is a closed, consistently
// oriented 2-manifold and needs no repair.
type ValidationReport struct {
	OpenEdges           int // edges used by exactly one triangle
	NonManifoldEdges    int // edges used by more than two triangles
	InconsistentEdges   int // edges used twice with the same direction
	DegenerateTriangles int // zero-area triangles
}

// NeedsRepair reports whether any check failed.
func (r ValidationReport) NeedsRepair() bool {
	return r.OpenEdges > 0 || r.NonManifoldEdges > 0 ||
		r.InconsistentEdges > 0 || r.DegenerateTriangles > 0
}

func (r ValidationReport) String() string {
	if !r.NeedsRepair() {
		return "manifold"
	}
	return fmt.Sprintf("open=%d nonmanifold=%d inconsistent=%d degenerate=%d",
		r.OpenEdges, r.NonManifoldEdges, r.InconsistentEdges, r.DegenerateTriangles)
}

type weldKey [3]int64

func quantize(v v3.Vec) weldKey {
	return weldKey{
		int64(math.Round(v.X / weldEpsilon)),
		int64(math.Round(v.Y / weldEpsilon)),
		int64(math.Round(v.Z / weldEpsilon)),
	}
}

// Validate checks that the mesh is a closed oriented manifold. Vertices are
// welded by position first so that meshes assembled from primitive shells
// with duplicated seam vertices validate correctly. A mesh made of several
// disjoint closed shells passes: every welded edge must be used by exactly
// two triangles, once in each direction.
func Validate(m *Mesh) ValidationReport {
	var rep ValidationReport

	// Weld vertices by quantized position.
	canon := make(map[weldKey]int, len(m.Vertices))
	remap := make([]int, len(m.Vertices))
	next := 0
	for i, v := range m.Vertices {
		k := quantize(v)
		if id, ok := canon[k]; ok {
			remap[i] = id
		} else {
			canon[k] = next
			remap[i] = next
			next++
		}
	}

	type edge struct{ a, b int }
	forward := make(map[edge]int)

	for t := 0; t < m.TriangleCount(); t++ {
		i0 := remap[m.Indices[t*3]]
		i1 := remap[m.Indices[t*3+1]]
		i2 := remap[m.Indices[t*3+2]]
		if i0 == i1 || i1 == i2 || i2 == i0 {
			rep.DegenerateTriangles++
			continue
		}
		forward[edge{i0, i1}]++
		forward[edge{i1, i2}]++
		forward[edge{i2, i0}]++
	}

	seen := make(map[edge]bool)
	for e, n := range forward {
		lo, hi := e.a, e.b
		if lo > hi {
			lo, hi = hi, lo
		}
		und := edge{lo, hi}
		if seen[und] {
			continue
		}
		seen[und] = true

		rev := forward[edge{e.b, e.a}]
		total := n + rev
		switch {
		case total == 1:
			rep.OpenEdges++
		case total > 2:
			rep.NonManifoldEdges++
		case n == 2 || rev == 2:
			rep.InconsistentEdges++
		}
	}

	return rep
}
