package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/daryltucker/psi-proxy/internal/assets"
	"github.com/daryltucker/psi-proxy/internal/output"
	"github.com/spf13/cobra"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the psi-proxy configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to ./psi-proxy.yaml or [path]",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := assets.DefaultConfigName
		if len(args) == 1 {
			target = args[0]
		}

		if !forceInit {
			if _, err := os.Stat(target); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			}
		}

		content, err := fs.ReadFile(assets.Defaults, assets.DefaultConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read embedded config: %w", err)
		}

		if dir := filepath.Dir(target); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(target, content, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}

		output.Logger.Info("Wrote default configuration", "path", target)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
