package config

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/fioncat/csync/pkg/config"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open configuration in editor",
	Long: `Open the configuration file in your editor.

Uses $VISUAL, then $EDITOR, falling back to 'vi'. The file is
validated after the editor exits.

Examples:
  # Edit default config
  csyncd config edit

  # Edit specific config file
  csyncd config edit --config /etc/csync/config.yaml`,
	RunE: runConfigEdit,
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s\n\n"+
			"Create it first with:\n"+
			"  csyncd init --config %s",
			configPath, configPath)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor: %w", err)
	}

	// Catch mistakes now rather than at the next server start.
	if _, err := config.Load(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "\nWarning: the edited file does not load: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'csyncd config validate' after fixing it.")
		return nil
	}

	fmt.Println("Configuration OK.")
	return nil
}
