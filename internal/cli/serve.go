/*
PURPOSE:
  Defines the 'serve' subcommand.
  Runs the HTTP proxy until interrupted.

REQUIREMENTS:
  User-specified:
  - Listen on :8888 by default.
  - /psi proxies PageSpeed Insights; every other path says Hello World.

  Implementation-discovered:
  - Need to load config first.
  - Apply flag overrides to config.
  - SIGINT/SIGTERM trigger a graceful shutdown.

ARCHITECTURE INTEGRATION:
  - Calls: internal/server.Run()
  - Uses: internal/config, internal/engine, internal/metrics

ERROR HANDLING:
  - Returns error if config load fails or the listener cannot be opened.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Validate -> Server.Run.

USAGE:
  psi-proxy serve --listen :8080 --metrics-addr :9090

RELATED FILES:
  - internal/cli/root.go
  - internal/server/server.go
*/

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/daryltucker/psi-proxy/internal/engine"
	"github.com/daryltucker/psi-proxy/internal/metrics"
	"github.com/daryltucker/psi-proxy/internal/output"
	"github.com/daryltucker/psi-proxy/internal/server"
	"github.com/spf13/cobra"
)

var (
	listenOverride      string
	metricsAddrOverride string
	corsOverride        []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP proxy",
	Long: `Serves GET /psi?url=...&strategy=mobile|desktop&key=...&full=1 and answers
every other path with "Hello World".

Every /psi response is HTTP 200 with a JSON envelope:
  {"code":0,"data":{...}}          on success
  {"code":1,"message":"...",...}   on failure`,
	Example: `  # Run with defaults (uses psi-proxy.yaml if present)
  psi-proxy serve

  # Listen elsewhere and expose Prometheus metrics
  psi-proxy serve --listen :8080 --metrics-addr :9090

  # Allow a browser front-end
  psi-proxy serve --cors-origins https://app.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. Load Config
		cfg, err := loadConfig(cmd.OutOrStdout())
		if err != nil {
			return err
		}

		// 2. Overrides
		if listenOverride != "" {
			cfg.ListenAddr = listenOverride
		}
		if metricsAddrOverride != "" {
			cfg.MetricsAddr = metricsAddrOverride
		}
		if len(corsOverride) > 0 {
			cfg.CORSOrigins = corsOverride
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// 3. Execution
		m := metrics.New()
		runner := engine.NewRunner(cfg, engine.NewClient(cfg, output.Logger, m))
		srv := server.New(cfg, runner, output.Logger, m)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&listenOverride, "listen", "l", "", "Address to listen on (default :8888)")
	serveCmd.Flags().StringVar(&metricsAddrOverride, "metrics-addr", "", "Serve Prometheus metrics on this address")
	serveCmd.Flags().StringSliceVar(&corsOverride, "cors-origins", nil, "Comma-separated list of allowed CORS origins")
}
