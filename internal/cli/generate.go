package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/scaffold/pkg/mesh"
	"github.com/chazu/scaffold/pkg/pipeline"
)

// generateOpts holds the command-line flags for the generate command.
type generateOpts struct {
	configPath string // TOML run-config file, defaults apply if empty
	supportOut string // support scaffold STL path
	padOut     string // pad STL path
	merged     string // single merged STL path, skipped if empty
	elevation  float64
	hasElev    bool
}

// generateCommand creates the generate command: load a model STL, run the
// full pipeline and write the support and pad meshes.
func (c *CLI) generateCommand() *cobra.Command {
	opts := generateOpts{supportOut: "supports.stl", padOut: "pad.stl"}

	cmd := &cobra.Command{
		Use:   "generate <model.stl>",
		Short: "Generate supports and a pad for a model",
		Long: `Generate computes support points, builds the support scaffold and the
base pad for the given model, and writes both as STL.

Examples:
  scaffold generate model.stl
  scaffold generate model.stl --config run.toml --support-out s.stl --pad-out p.stl
  scaffold generate model.stl --elevation 0 --merged all.stl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.hasElev = cmd.Flags().Changed("elevation")
			return c.runGenerate(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "TOML run-config file")
	cmd.Flags().StringVar(&opts.supportOut, "support-out", opts.supportOut, "support scaffold STL output path")
	cmd.Flags().StringVar(&opts.padOut, "pad-out", opts.padOut, "pad STL output path")
	cmd.Flags().StringVar(&opts.merged, "merged", "", "additionally write model+supports+pad as one STL")
	cmd.Flags().Float64Var(&opts.elevation, "elevation", 0, "override object elevation above the pad (mm)")
	return cmd
}

func (c *CLI) runGenerate(ctx context.Context, modelPath string, opts generateOpts) error {
	cfg := pipeline.DefaultConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = pipeline.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
	}
	if opts.hasElev {
		cfg.Support.ObjectElevation = opts.elevation
	}

	model, err := mesh.LoadSTL(modelPath)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	c.Logger.Info("model loaded", "path", modelPath,
		"triangles", model.TriangleCount(), "height", model.BoundingBox().ZExtent())

	hooks := pipeline.Hooks{
		Progress: func(stage string, frac float64) {
			c.Logger.Debug("progress", "stage", stage, "done", fmt.Sprintf("%.0f%%", frac*100))
		},
		Cancel: func() bool { return ctx.Err() != nil },
	}
	res, err := pipeline.Run(model, cfg, hooks, c.Logger)
	if err != nil {
		return err
	}
	if n := len(res.Tree.Failures); n > 0 {
		c.Logger.Warn("some support points could not be routed", "unresolved", n)
	}

	if err := mesh.SaveSTL(opts.supportOut, res.Support); err != nil {
		return fmt.Errorf("write supports: %w", err)
	}
	c.Logger.Info("supports written", "path", opts.supportOut, "triangles", res.Support.TriangleCount())

	if err := mesh.SaveSTL(opts.padOut, res.Pad); err != nil {
		return fmt.Errorf("write pad: %w", err)
	}
	c.Logger.Info("pad written", "path", opts.padOut, "triangles", res.Pad.TriangleCount())

	if opts.merged != "" {
		all := mesh.New()
		all.Merge(model)
		all.Merge(res.Support)
		all.Merge(res.Pad)
		if err := mesh.SaveSTL(opts.merged, all); err != nil {
			return fmt.Errorf("write merged: %w", err)
		}
		c.Logger.Info("merged scene written", "path", opts.merged)
	}
	return nil
}
