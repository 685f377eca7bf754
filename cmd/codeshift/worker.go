package main

import (
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Compile requests consumed from a stream pipeline",
	Long: `Reads JSON compile requests from the pipeline's source, compiles each one and
writes the outcome to the configured sinks.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("pipeline")
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.Close()
		return e.RunPipeline(cmd.Context(), path, cfg.Metrics.Port)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().StringP("pipeline", "p", "pipeline.yml", "Pipeline file")
}
