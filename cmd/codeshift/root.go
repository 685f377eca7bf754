package main

import (
	"github.com/spf13/cobra"

	"codeshift/internal/config"
	"codeshift/internal/engine"
	"codeshift/internal/logging"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "codeshift",
	Short:         "codeshift dispatches source transformations to plugins",
	Long:          `codeshift resolves a (from, to) format pair to a plugin, loads the plugin's dependencies and runs it inline or in an isolated context.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("config")
		var err error
		if cfg, err = config.Load(path); err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-json") {
			cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
		}
		logging.Configure(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "codeshift.yml", "Config file (missing file means defaults)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, log, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")
}

func bootstrap() (*engine.Engine, error) {
	return engine.Bootstrap(cfg)
}
