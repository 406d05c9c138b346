package pipeline

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/chazu/scaffold/pkg/pad"
	"github.com/chazu/scaffold/pkg/support"
)

// Config is the full run configuration: slicing grid plus the per-stage
// parameter sets. It maps 1:1 onto the TOML run-config file.
type Config struct {
	// LayerHeight is the slicing step in millimeters.
	LayerHeight float64 `toml:"layer_height"`

	// ClosingRadius is the contour gap-healing radius.
	ClosingRadius float64 `toml:"closing_radius"`

	Support support.Config `toml:"support"`
	Pad     pad.Config     `toml:"pad"`
}

// DefaultConfig returns the stock run parameters.
func DefaultConfig() Config {
	return Config{
		LayerHeight:   0.05,
		ClosingRadius: 0.005,
		Support:       support.DefaultConfig(),
		Pad:           pad.DefaultConfig(),
	}
}

// LoadConfig reads a TOML run-config file over the defaults: keys absent
// from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Check(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Check rejects parameter combinations no stage could work with.
func (c Config) Check() error {
	switch {
	case c.LayerHeight <= 0:
		return fmt.Errorf("%w: layer_height must be positive, got %g", ErrInput, c.LayerHeight)
	case c.ClosingRadius < 0:
		return fmt.Errorf("%w: closing_radius must not be negative, got %g", ErrInput, c.ClosingRadius)
	case c.Support.HeadFrontRadius <= 0:
		return fmt.Errorf("%w: support head radius must be positive, got %g", ErrInput, c.Support.HeadFrontRadius)
	case c.Support.PillarRadius <= 0:
		return fmt.Errorf("%w: support pillar radius must be positive, got %g", ErrInput, c.Support.PillarRadius)
	case c.Support.MaxBridgeSlope <= 0:
		return fmt.Errorf("%w: max bridge slope must be positive, got %g", ErrInput, c.Support.MaxBridgeSlope)
	case c.Pad.Thickness <= 0:
		return fmt.Errorf("%w: pad thickness must be positive, got %g", ErrInput, c.Pad.Thickness)
	}
	return nil
}
