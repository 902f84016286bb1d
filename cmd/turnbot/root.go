package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	driver     string
	dsn        string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "turnbot",
		Short:         "turnbot - round-robin turn assignment for chat workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&opts.driver, "driver", "", "store driver: sqlite3 or postgres")
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "store data source name")

	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newRotationCommand(opts),
		newInstallCommand(opts),
	)
	return cmd
}
