package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/scaffold/pkg/mesh"
)

// checkCommand creates the check command: load an STL and report whether
// the mesh is watertight enough to slice.
func (c *CLI) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <model.stl>",
		Short: "Check a model mesh for slicing defects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := mesh.LoadSTL(args[0])
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}

			rep := mesh.Validate(m)
			c.Logger.Info("mesh loaded",
				"vertices", m.VertexCount(),
				"triangles", m.TriangleCount(),
				"open_edges", rep.OpenEdges,
				"non_manifold_edges", rep.NonManifoldEdges,
				"inconsistent_edges", rep.InconsistentEdges,
				"degenerate_triangles", rep.DegenerateTriangles)

			if rep.NeedsRepair() {
				return fmt.Errorf("%s: mesh needs repair before slicing", args[0])
			}
			c.Logger.Info("mesh is watertight")
			return nil
		},
	}
}
