package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fioncat/csync/internal/cli/output"
	"github.com/fioncat/csync/pkg/config"
)

var (
	showOutput  string
	showSecrets bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the current csync configuration.

Defaults are filled in, so the output is the exact configuration the
server would run with. The admin password is redacted unless
--show-secrets is given. By default outputs YAML format.

Examples:
  # Show effective config as YAML
  csyncd config show

  # Show as JSON
  csyncd config show --output json

  # Show specific config file
  csyncd config show --config /etc/csync/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print the admin password instead of redacting it")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	if !showSecrets && cfg.Admin.Password != "" {
		cfg.Admin.Password = "<redacted>"
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, cfg)
	default:
		return output.PrintYAML(os.Stdout, cfg)
	}
}
