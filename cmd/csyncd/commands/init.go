package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fioncat/csync/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Write a sample csync configuration file with commented defaults.

Without --config the file goes to $XDG_CONFIG_HOME/csync/config.yaml.
Existing files are left alone unless --force is given.

Examples:
  # Initialize with default location
  csyncd init

  # Initialize with custom path
  csyncd init --config /etc/csync/config.yaml

  # Force overwrite existing config
  csyncd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()

	var err error
	if path == "" {
		path, err = config.InitConfig(initForce)
	} else {
		err = config.InitConfigToPath(path, initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Create a user with: csyncd user add")
	fmt.Println("  3. Start the server with: csyncd start")
	fmt.Printf("  4. Or specify custom config: csyncd start --config %s\n", path)
	fmt.Println("\nSecurity note:")
	fmt.Println("  The token signing key is generated on first start and kept under")
	fmt.Println("  the data directory. Set 'admin.password' to enable the admin user;")
	fmt.Println("  leaving it empty disables admin access entirely.")

	return nil
}
