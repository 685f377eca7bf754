package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the compile API over HTTP",
	Long:  `Starts the JSON API: POST /v1/compile, GET /v1/plugins, /healthz and /metrics.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if l, _ := cmd.Flags().GetString("listen"); l != "" {
			cfg.HTTP.Listen = l
		}
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.Close()
		return e.Serve(cmd.Context(), cfg.HTTP.Listen)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config, :8080)")
}
