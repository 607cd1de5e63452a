// Package config implements the config subcommand tree.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd groups the configuration subcommands.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Inspect and maintain the csync configuration file.

The file itself is created by 'csyncd init'. These subcommands operate
on an existing one:

  show      Display current configuration
  validate  Check the file for errors
  edit      Open configuration in $EDITOR
  schema    Generate JSON schema for editor integration`,
}

func init() {
	Cmd.AddCommand(
		showCmd,
		validateCmd,
		editCmd,
		schemaCmd,
	)
}
