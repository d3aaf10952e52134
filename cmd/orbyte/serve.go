package orbyte

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tsahi-Elkayam/orbyte/pkg/server"
)

// NewServeCommand creates the serve command
func NewServeCommand(logger *logrus.Logger) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scoring and playbook API over HTTP",
		Long: `Serve the scoring and playbook API over HTTP until interrupted.

Routes:
  GET  /healthz
  GET  /api/v1/compliance/{framework}/score[?resource_id=...]
  GET  /api/v1/compliance/{framework}/gaps
  GET  /api/v1/sustainability/emissions[?start=...&end=...]
  GET  /api/v1/sustainability/opportunities
  GET  /api/v1/sustainability/score
  GET  /api/v1/sustainability/regions
  POST /api/v1/playbooks
  POST /api/v1/playbooks/execute
  GET  /api/v1/providers`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := GetGlobalConfig()
			if cfg == nil {
				return fmt.Errorf("configuration not loaded")
			}
			if address != "" {
				cfg.Server.Address = address
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			builder, err := a.Builder()
			if err != nil {
				return err
			}
			executor, err := a.Executor(ctx)
			if err != nil {
				return err
			}

			srv := server.New(cfg.Server, server.Dependencies{
				Compliance:     a.Calculator,
				Sustainability: a.Calculator,
				Builder:        builder,
				Executor:       executor,
				Providers:      a.Registry(ctx),
			}, logger)

			fmt.Fprintf(cmd.OutOrStdout(), "🌐 Serving on %s (Ctrl-C to stop)\n", cfg.Server.Address)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Listen address (default from config)")

	return cmd
}
