package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fioncat/csync/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the csync configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  csyncd config validate

  # Validate specific config file
  csyncd config validate --config /etc/csync/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load and validate configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Additional validation checks
	var warnings []string

	if cfg.Admin.Password == "" {
		warnings = append(warnings, "Admin password not set - admin access is disabled")
	}
	if !cfg.API.TLS.Enabled {
		warnings = append(warnings, "TLS is disabled - API traffic travels in cleartext")
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Database path:   %s\n", cfg.Database.Path)
	fmt.Printf("  API port:        %d\n", cfg.API.Port)
	fmt.Printf("  Events port:     %d\n", cfg.Events.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
