package pipeline

import (
	"errors"
	"fmt"

	"github.com/chazu/scaffold/pkg/pad"
	"github.com/chazu/scaffold/pkg/slicer"
	"github.com/chazu/scaffold/pkg/spatial"
	"github.com/chazu/scaffold/pkg/support"
)

// The pipeline reports failures through four sentinel kinds. Stage packages
// keep their own local sentinels; Run maps them onto these so callers match
// with errors.Is against a single vocabulary.
var (
	// ErrInput marks an unusable input mesh: nil, empty, or with
	// out-of-range indices.
	ErrInput = errors.New("invalid input")

	// ErrGeometryDegenerate marks geometry that collapsed during
	// processing: unhealable slice contours or a zero-area pad footprint.
	ErrGeometryDegenerate = errors.New("degenerate geometry")

	// ErrCollisionUnresolved marks support elements that could not be
	// placed without intersecting the model.
	ErrCollisionUnresolved = errors.New("collision unresolved")

	// ErrCancelled is returned when the cancel predicate fired. Partial
	// results computed before the poll are still returned.
	ErrCancelled = errors.New("cancelled")
)

// mapStageErr rewraps a stage-local error into the pipeline vocabulary,
// preserving the original chain for attribution.
func mapStageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	var kind error
	var layerErr *slicer.LayerError
	switch {
	case errors.Is(err, slicer.ErrCancelled), errors.Is(err, support.ErrCancelled):
		kind = ErrCancelled
	case errors.Is(err, spatial.ErrEmptyMesh):
		kind = ErrInput
	case errors.Is(err, support.ErrCollision):
		kind = ErrCollisionUnresolved
	case errors.Is(err, pad.ErrDegenerate), errors.As(err, &layerErr):
		kind = ErrGeometryDegenerate
	default:
		return fmt.Errorf("%s: %w", stage, err)
	}
	return fmt.Errorf("%s: %w: %w", stage, kind, err)
}

// CollisionError attributes a layer where the support cross section
// overlaps the model cross section.
type CollisionError struct {
	Layer int
	Z     float64
	Area  float64
}

func (e CollisionError) Error() string {
	return fmt.Sprintf("support overlaps model at layer %d (z=%.3f), area %.4f", e.Layer, e.Z, e.Area)
}

func (e CollisionError) Unwrap() error { return ErrCollisionUnresolved }
