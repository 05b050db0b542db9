package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meshpipe/meshpipe/pkg/boundingbox"
	"github.com/meshpipe/meshpipe/pkg/desc"
	"github.com/meshpipe/meshpipe/pkg/pipeline"
)

var bboxNodeType string

// bboxCmd represents the bbox command
var bboxCmd = &cobra.Command{
	Use:   "bbox <output-dir-or-artifact>",
	Short: "Load an already computed bounding box",
	Long: `Perform a single-shot bounding box check against an existing cache directory.
Unlike the continuous monitor that runs alongside an execution, this accepts a
pre-existing artifact regardless of its age.`,
	Args: cobra.ExactArgs(1),
	RunE: runBBox,
}

func init() {
	rootCmd.AddCommand(bboxCmd)
	bboxCmd.Flags().StringVar(&bboxNodeType, "node", "Meshing", "node type whose parameter tree receives the values")
}

func runBBox(cmd *cobra.Command, args []string) error {
	log := NewLogger()

	path := args[0]
	if !strings.HasSuffix(path, boundingbox.ArtifactName) {
		path = filepath.Join(path, boundingbox.ArtifactName)
	}

	nodes, err := desc.LoadDir(GetDescriptorDir())
	if err != nil {
		return err
	}
	d, ok := nodes[bboxNodeType]
	if !ok {
		return fmt.Errorf("unknown node type %q", bboxNodeType)
	}
	node := pipeline.NewNodeInstance(d, GetCacheDir())

	w := boundingbox.NewWatcher(boundingbox.Config{
		ArtifactPath: path,
		Target:       node.Params,
		CheckOnce:    true,
		Log:          log,
	})
	w.Start()
	w.Join()

	if err := w.Err(); err != nil {
		return err
	}
	if !w.Applied() {
		return fmt.Errorf("no bounding box artifact at %s", path)
	}

	box := node.Params.BoundingBox()
	fmt.Printf("translation: %g %g %g\n", box.Translation.X, box.Translation.Y, box.Translation.Z)
	fmt.Printf("rotation:    %g %g %g\n", box.Rotation.X, box.Rotation.Y, box.Rotation.Z)
	fmt.Printf("scale:       %g %g %g\n", box.Scale.X, box.Scale.Y, box.Scale.Z)
	return nil
}
