// Package pipeline orchestrates support generation end to end: spatial
// indexing, slicing, point placement, tree building, collision validation
// and pad creation. It owns the error vocabulary callers match against and
// the progress/cancel plumbing between stages.
package pipeline

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/ctessum/polyclip-go"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/scaffold/pkg/mesh"
	"github.com/chazu/scaffold/pkg/pad"
	"github.com/chazu/scaffold/pkg/slicer"
	"github.com/chazu/scaffold/pkg/spatial"
	"github.com/chazu/scaffold/pkg/support"
)

// Stage names reported through the progress hook.
const (
	StageSlice  = "slice"
	StagePoints = "points"
	StageTree   = "tree"
	StagePad    = "pad"
)

// Hooks carries the optional progress and cancellation callbacks. Cancel is
// polled cooperatively by every stage; there are no deadlines.
type Hooks struct {
	Progress func(stage string, frac float64)
	Cancel   func() bool
}

func (h Hooks) progressFor(stage string) slicer.ProgressFunc {
	if h.Progress == nil {
		return nil
	}
	return func(frac float64) { h.Progress(stage, frac) }
}

// Result is the pipeline output. On a cancelled run the fields populated
// before the abort are retained.
type Result struct {
	ModelLayers []slicer.Layer
	Points      []support.Point
	Tree        *support.Tree
	Support     *mesh.Mesh // merged support scaffold, empty when nothing needed support
	Pad         *mesh.Mesh // positioned under the scaffold
	Collisions  []CollisionError
}

// areaEps is the per-layer intersection area below which support and model
// cross sections count as disjoint.
const areaEps = 1e-6

// Run executes the full pipeline on the model. Routing failures for
// individual points are collected on Result.Tree.Failures and logged, not
// fatal; everything else that goes wrong maps onto the package sentinels.
func Run(model *mesh.Mesh, cfg Config, hooks Hooks, logger *log.Logger) (*Result, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if model == nil || model.IsEmpty() {
		return nil, mapStageErr("input", spatial.ErrEmptyMesh)
	}
	if err := model.CheckIndices(); err != nil {
		return nil, mapStageErr("input", errors.Join(ErrInput, err))
	}
	if rep := mesh.Validate(model); rep.NeedsRepair() {
		logger.Warn("input mesh is not watertight; slicing may degrade",
			"open_edges", rep.OpenEdges, "non_manifold", rep.NonManifoldEdges)
	}

	sm, err := spatial.Build(model)
	if err != nil {
		return nil, mapStageErr("index", err)
	}

	res := &Result{}
	bb := model.BoundingBox()
	heights := slicer.Grid(bb.Min.Z, bb.Max.Z, cfg.LayerHeight)
	logger.Info("slicing model", "layers", len(heights), "layer_height", cfg.LayerHeight)

	res.ModelLayers, err = slicer.Slice(model, heights, cfg.ClosingRadius, hooks.progressFor(StageSlice), hooks.Cancel)
	if err != nil {
		return res, mapStageErr(StageSlice, err)
	}

	res.Points, err = support.GeneratePoints(sm, res.ModelLayers, cfg.Support, hooks.progressFor(StagePoints), hooks.Cancel)
	if err != nil {
		return res, mapStageErr(StagePoints, err)
	}
	if cfg.Support.ObjectElevation < cfg.LayerHeight {
		// The model rests on the pad; its bottom face needs no pillars.
		before := len(res.Points)
		res.Points = support.RemoveBottomPoints(res.Points, bb.Min.Z, cfg.LayerHeight)
		logger.Debug("removed bottom-face points", "removed", before-len(res.Points))
	}
	logger.Info("support points placed", "count", len(res.Points))

	res.Tree, err = support.BuildTree(res.Points, sm, cfg.Support, hooks.progressFor(StageTree), hooks.Cancel)
	if err != nil {
		return res, mapStageErr(StageTree, err)
	}
	for _, f := range res.Tree.Failures {
		logger.Warn("support point unresolved", "point", f.PointIndex, "err", f.Err)
	}
	res.Support = res.Tree.MergedMesh()

	if err := validateCollisions(res, cfg, logger); err != nil {
		return res, err
	}

	if err := buildPad(res, model, cfg, hooks, logger); err != nil {
		return res, err
	}

	// Generated geometry that is not a closed manifold would fail on the
	// printer; surface it as an error, not a log line.
	if !res.Support.IsEmpty() {
		if rep := mesh.Validate(res.Support); rep.NeedsRepair() {
			return res, fmt.Errorf("support mesh failed validity check (%s): %w", rep, ErrGeometryDegenerate)
		}
	}
	if res.Pad != nil && !res.Pad.IsEmpty() {
		if rep := mesh.Validate(res.Pad); rep.NeedsRepair() {
			return res, fmt.Errorf("pad mesh failed validity check (%s): %w", rep, ErrGeometryDegenerate)
		}
	}
	return res, nil
}

// validateCollisions re-slices the support scaffold and intersects it with
// the model cross sections. With a negative head penetration the support
// must never touch the model, so any overlap is an error; with an embedding
// penetration the pinheads legitimately overlap and the check is skipped.
func validateCollisions(res *Result, cfg Config, logger *log.Logger) error {
	if cfg.Support.HeadPenetration >= 0 || res.Support.IsEmpty() {
		return nil
	}

	heights := make([]float64, len(res.ModelLayers))
	for i, l := range res.ModelLayers {
		heights[i] = l.Z
	}
	supportLayers, err := res.Tree.Slice(heights, cfg.ClosingRadius)
	if err != nil {
		return mapStageErr(StageTree, err)
	}

	var errs []error
	for i, sl := range supportLayers {
		if len(sl.Polygons) == 0 || len(res.ModelLayers[i].Polygons) == 0 {
			continue
		}
		inter := slicer.ToPolyclip(sl.Polygons).
			Construct(polyclip.INTERSECTION, slicer.ToPolyclip(res.ModelLayers[i].Polygons))
		area := 0.0
		for _, p := range slicer.FromPolyclip(inter) {
			area += p.Area()
		}
		if area > areaEps {
			ce := CollisionError{Layer: i, Z: sl.Z, Area: area}
			res.Collisions = append(res.Collisions, ce)
			errs = append(errs, ce)
			logger.Error("support overlaps model", "layer", i, "z", sl.Z, "area", area)
		}
	}
	return errors.Join(errs...)
}

// buildPad unions the support footprint with the model footprint (when the
// model rests on the pad) and extrudes the pad under the scaffold.
func buildPad(res *Result, model *mesh.Mesh, cfg Config, hooks Hooks, logger *log.Logger) error {
	if hooks.Cancel != nil && hooks.Cancel() {
		return mapStageErr(StagePad, slicer.ErrCancelled)
	}

	var supportFP, modelFP []slicer.ExPolygon
	var err error
	if !res.Support.IsEmpty() {
		supportFP, err = pad.Blueprint(res.Support, cfg.ClosingRadius)
		if err != nil {
			return mapStageErr(StagePad, err)
		}
	}
	if cfg.Support.ObjectElevation < cfg.LayerHeight {
		modelFP, err = pad.Blueprint(model, cfg.ClosingRadius)
		if err != nil {
			return mapStageErr(StagePad, err)
		}
	}

	padMesh, err := pad.Create(supportFP, modelFP, cfg.Pad)
	if err != nil {
		return mapStageErr(StagePad, err)
	}

	// The pad is built spanning [0, FullHeight]; drop it so its top face
	// carries the pillar feet (and the model, when not elevated).
	groundZ := model.BoundingBox().Min.Z - cfg.Support.ObjectElevation
	padMesh.Translate(v3.Vec{Z: groundZ - cfg.Pad.FullHeight()})
	res.Pad = padMesh

	if hooks.Progress != nil {
		hooks.Progress(StagePad, 1)
	}
	logger.Info("pad created", "full_height", cfg.Pad.FullHeight(),
		"top_z", groundZ, "triangles", padMesh.TriangleCount())
	return nil
}
