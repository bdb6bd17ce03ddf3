/*
PURPOSE:
  Defines the root Cobra command for the psi-proxy CLI.
  Handles global flags and command initialization.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Log level and format can be overridden per invocation.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/psi-proxy/main.go
  - Calls: Child commands (serve, audit, config init)
  - Modifies: Global logger (output.Logger) once the config is known.

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands, Root is usually empty or helps.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init() and apply them in loadConfig().

RELATED FILES:
  - cmd/psi-proxy/main.go
  - internal/config/config.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"io"

	"github.com/daryltucker/psi-proxy/internal/config"
	"github.com/daryltucker/psi-proxy/internal/output"
	"github.com/spf13/cobra"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile string

	logLevelOverride  string
	logFormatOverride string
	endpointOverride  string

	rootCmd = &cobra.Command{
		Use:   "psi-proxy",
		Short: "PageSpeed Insights proxy with a flattened report format",
		Long: `psi-proxy forwards audit requests to the PageSpeed Insights v5 API and reshapes
the report into four flat sections: overview, statistics, ruleResults and opportunities.
Use 'serve --help' for the HTTP proxy and 'audit --help' for one-shot runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./psi-proxy.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormatOverride, "log-format", "", "text or json")
	rootCmd.PersistentFlags().StringVar(&endpointOverride, "endpoint", "", "PageSpeed Insights endpoint")
}

// loadConfig loads the configuration, applies the global flag overrides and
// installs the configured logger writing to logOut.
// Command specific overrides and Validate are left to the caller.
func loadConfig(logOut io.Writer) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if logLevelOverride != "" {
		cfg.LogLevel = logLevelOverride
	}
	if logFormatOverride != "" {
		cfg.LogFormat = logFormatOverride
	}
	if endpointOverride != "" {
		cfg.Endpoint = endpointOverride
	}

	output.SetLogger(output.NewLogger(output.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: logOut,
	}))
	return cfg, nil
}
