package main

import (
	"github.com/spf13/cobra"

	"lastmile/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "lastmile-api",
		Short:         "Route allocation and settlement engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (yaml or json); LASTMILE_ env vars override it")
	cmd.AddCommand(newServeCmd(opts), newMigrateCmd(opts))
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}
