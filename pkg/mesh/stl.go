package mesh

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/deadsy/sdfx/render"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// The pipeline core owns no file format; these helpers exist so the CLI can
// load models and write results. Vertices are welded on load so downstream
// stages see an indexed mesh rather than a triangle soup.

// ReadSTL reads a binary or ASCII STL stream into an indexed mesh.
func ReadSTL(r io.Reader) (*Mesh, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(5)
	if err != nil {
		return nil, fmt.Errorf("stl: %w", err)
	}
	if string(head) == "solid" {
		return readSTLASCII(br)
	}
	return readSTLBinary(br)
}

// LoadSTL reads an STL file from disk.
func LoadSTL(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := ReadSTL(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// SaveSTL writes the mesh to path as binary STL via the sdfx renderer.
func SaveSTL(path string, m *Mesh) error {
	return render.SaveSTL(path, m.Triangles3())
}

type weldBuilder struct {
	mesh  *Mesh
	index map[weldKey]uint32
}

func newWeldBuilder() *weldBuilder {
	return &weldBuilder{mesh: New(), index: make(map[weldKey]uint32)}
}

func (w *weldBuilder) vertex(v v3.Vec) uint32 {
	k := quantize(v)
	if id, ok := w.index[k]; ok {
		return id
	}
	id := w.mesh.AddVertex(v)
	w.index[k] = id
	return id
}

func (w *weldBuilder) triangle(a, b, c v3.Vec) {
	ia, ib, ic := w.vertex(a), w.vertex(b), w.vertex(c)
	if ia == ib || ib == ic || ic == ia {
		return // degenerate after welding
	}
	w.mesh.AddTriangle(ia, ib, ic)
}

func readSTLBinary(r io.Reader) (*Mesh, error) {
	var header [80]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("stl: short header: %w", err)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("stl: triangle count: %w", err)
	}

	w := newWeldBuilder()
	// 12 floats (normal + 3 vertices) + attribute byte count.
	var rec [50]byte
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, fmt.Errorf("stl: triangle %d: %w", i, err)
		}
		var p [3]v3.Vec
		for j := 0; j < 3; j++ {
			off := 12 + j*12
			p[j] = v3.Vec{
				X: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off:]))),
				Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off+4:]))),
				Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off+8:]))),
			}
		}
		w.triangle(p[0], p[1], p[2])
	}
	return w.mesh, nil
}

func readSTLASCII(r io.Reader) (*Mesh, error) {
	w := newWeldBuilder()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var tri []v3.Vec
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 4 && fields[0] == "vertex" {
			var v v3.Vec
			if _, err := fmt.Sscanf(strings.Join(fields[1:], " "), "%f %f %f", &v.X, &v.Y, &v.Z); err != nil {
				return nil, fmt.Errorf("stl: bad vertex line %q: %w", sc.Text(), err)
			}
			tri = append(tri, v)
			if len(tri) == 3 {
				w.triangle(tri[0], tri[1], tri[2])
				tri = tri[:0]
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("stl: %w", err)
	}
	if len(tri) != 0 {
		return nil, fmt.Errorf("stl: truncated facet, %d trailing vertices", len(tri))
	}
	return w.mesh, nil
}
