package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/kfpc/pkg/pipeline"
)

func newExportCmd() *cobra.Command {
	var (
		runtimeConfig string
		format        string
		output        string
		overwrite     bool
	)

	cmd := &cobra.Command{
		Use:   "export <pipeline.yaml>",
		Short: "Export a pipeline as DSL source or a compiled workflow manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pl, err := pipeline.Load(args[0])
			if err != nil {
				return err
			}
			if runtimeConfig != "" {
				pl.RuntimeConfig = runtimeConfig
			}
			if output == "" {
				output = pl.Name + "." + format
			}

			p, err := newProcessor()
			if err != nil {
				return err
			}
			path, err := p.Export(cmd.Context(), pl, format, output, overwrite)
			if err != nil {
				return err
			}

			fmt.Printf("Pipeline exported: %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&runtimeConfig, "runtime-config", "r", "", "Runtime configuration overriding the pipeline's own")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Export format (py, yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (defaults to <pipeline name>.<format>)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace the output file if it exists")
	return cmd
}
