/*
PURPOSE:
  Defines the 'audit' subcommand.
  Runs one PageSpeed audit from the terminal and prints the result.

REQUIREMENTS:
  User-specified:
  - Same request semantics as GET /psi.

  Implementation-discovered:
  - Useful validation step before deploying the proxy.
  - CSV output for spreadsheets; the raw report has no CSV form.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Runner.Audit() (via Client)
  - Uses: internal/output JSON and CSV writers

ERROR HANDLING:
  - Audit failures are returned; main prints them and exits 1.

IMPLEMENTATION RULES:
  - Results go to stdout, logs go to stderr.

USAGE:
  psi-proxy audit https://example.com --strategy desktop --format csv

RELATED FILES:
  - internal/engine/runner.go
  - internal/output/csv.go
*/

package cli

import (
	"fmt"

	"github.com/daryltucker/psi-proxy/internal/engine"
	"github.com/daryltucker/psi-proxy/internal/output"
	"github.com/spf13/cobra"
)

var (
	auditStrategy string
	auditKey      string
	auditFull     bool
	auditFormat   string
	auditCompact  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit <url>",
	Short: "Run a single audit and print the report",
	Args:  cobra.ExactArgs(1),
	Example: `  # Flattened report as JSON
  psi-proxy audit https://example.com

  # Desktop run as CSV
  psi-proxy audit https://example.com --strategy desktop --format csv

  # Raw PageSpeed document
  psi-proxy audit https://example.com --full`,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch auditFormat {
		case "json":
		case "csv":
			if auditFull {
				return fmt.Errorf("--format csv cannot be combined with --full")
			}
		default:
			return fmt.Errorf("unknown format %q (want json or csv)", auditFormat)
		}

		cfg, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		runner := engine.NewRunner(cfg, engine.NewClient(cfg, output.Logger, nil))
		res, err := runner.Audit(cmd.Context(), engine.Request{
			URL:      args[0],
			Strategy: auditStrategy,
			Key:      auditKey,
			Full:     auditFull,
		})
		if err != nil {
			msg, _ := engine.Describe(err)
			output.Logger.Debug("Audit failed", "error", err)
			return fmt.Errorf("audit of %s failed: %s", args[0], msg)
		}

		if auditFormat == "csv" {
			w, err := output.NewCSVWriter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return w.Write(*res.Flattened)
		}
		return output.NewJSONWriter(cmd.OutOrStdout(), !auditCompact).Write(res.Payload())
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVarP(&auditStrategy, "strategy", "s", "", "mobile or desktop (default from config)")
	auditCmd.Flags().StringVarP(&auditKey, "key", "k", "", "PageSpeed API key (default from config)")
	auditCmd.Flags().BoolVar(&auditFull, "full", false, "Print the raw PageSpeed document")
	auditCmd.Flags().StringVarP(&auditFormat, "format", "f", "json", "Output format: json or csv")
	auditCmd.Flags().BoolVar(&auditCompact, "compact", false, "Print JSON on a single line")
}
