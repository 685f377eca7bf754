package main

import (
	"github.com/spf13/cobra"
)

var isolateCmd = &cobra.Command{
	Use:   "isolate",
	Short: "Host isolated execution contexts for a remote codeshift",
	Long: `Serves the ExecutionContext gRPC service. Every stream is one context bound to
the plugin named in its x-codeshift-plugin header.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr, _ := cmd.Flags().GetString("listen")
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.Close()
		return e.ServeIsolate(cmd.Context(), addr)
	},
}

func init() {
	rootCmd.AddCommand(isolateCmd)
	isolateCmd.Flags().StringP("listen", "l", ":50052", "gRPC listen address")
}
