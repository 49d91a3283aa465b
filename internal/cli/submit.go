package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/kfpc/pkg/pipeline"
)

func newSubmitCmd() *cobra.Command {
	var runtimeConfig string

	cmd := &cobra.Command{
		Use:   "submit <pipeline.yaml>",
		Short: "Compile a pipeline and run it on a Kubeflow Pipelines cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pl, err := pipeline.Load(args[0])
			if err != nil {
				return err
			}
			if runtimeConfig != "" {
				pl.RuntimeConfig = runtimeConfig
			}

			p, err := newProcessor()
			if err != nil {
				return err
			}
			resp, err := p.Process(cmd.Context(), pl)
			if err != nil {
				return err
			}

			fmt.Printf("Run created: %s\n", resp.RunID)
			fmt.Printf("Run details: %s\n", resp.RunURL)
			if resp.ObjectStoragePath != "" {
				fmt.Printf("Object storage: %s%s\n", resp.ObjectStorageURL, resp.ObjectStoragePath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&runtimeConfig, "runtime-config", "r", "", "Runtime configuration overriding the pipeline's own")
	return cmd
}
