// Package support generates the branching support scaffold for an SLA
// print: automatic support point placement on overhang islands, and the
// pinhead/pillar/junction/bridge tree connecting those points to the pad
// plane. All dimensions are in millimeters.
package support

import "math"

// Config holds the support generation parameters. It is an immutable value
// passed explicitly into each stage so runs are reproducible.
type Config struct {
	// HeadFrontRadius is the radius of the pinhead ball touching the model.
	HeadFrontRadius float64 `toml:"head_front_radius"`

	// HeadPenetration is the signed offset of the pinhead tip relative to
	// the model surface. Positive embeds the head into the surface by that
	// depth; negative keeps it clear of the surface by that margin.
	HeadPenetration float64 `toml:"head_penetration"`

	// HeadWidth is the distance between the pinhead front and back balls.
	HeadWidth float64 `toml:"head_width"`

	// PillarRadius is the radius of support columns. The pinhead back ball
	// shares this radius.
	PillarRadius float64 `toml:"pillar_radius"`

	// ObjectElevation lifts the model above the pad plane. Zero means the
	// model sits directly on the pad.
	ObjectElevation float64 `toml:"object_elevation"`

	// BaseHeight is the height of the widened foot where a pillar stands
	// on the pad.
	BaseHeight float64 `toml:"base_height"`

	// MaxBridgeSlope is the maximum angle, in radians from horizontal, at
	// which a bridge or reroute connector remains self-supporting.
	MaxBridgeSlope float64 `toml:"max_bridge_slope"`

	// MaxPillarLinkDistance bounds the horizontal distance across which two
	// pillars may be merged into a junction or linked by a bridge.
	MaxPillarLinkDistance float64 `toml:"max_pillar_link_distance"`

	// MaxReroutes bounds the lateral reroute attempts before a colliding
	// pillar is reported as unresolved.
	MaxReroutes int `toml:"max_reroutes"`

	// Segments is the radial tessellation of meshed elements.
	Segments int `toml:"segments"`
}

// DefaultConfig returns the stock SLA support parameters.
func DefaultConfig() Config {
	return Config{
		HeadFrontRadius:       0.2,
		HeadPenetration:       0.2,
		HeadWidth:             1.0,
		PillarRadius:          0.5,
		ObjectElevation:       5.0,
		BaseHeight:            1.0,
		MaxBridgeSlope:        math.Pi / 4,
		MaxPillarLinkDistance: 10.0,
		MaxReroutes:           3,
		Segments:              24,
	}
}

// pointSpacing is the target distance between automatically placed support
// points, derived from the pinhead diameter.
func (c Config) pointSpacing() float64 {
	const spacingFactor = 6
	return spacingFactor * 2 * c.HeadFrontRadius
}

// clearance is the minimum distance the pillar axis must keep from the model
// surface. A negative penetration widens it by the configured margin.
func (c Config) clearance() float64 {
	return c.PillarRadius - c.HeadPenetration
}
