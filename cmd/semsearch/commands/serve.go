package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/semsearch-go/internal/config"
	"github.com/54b3r/semsearch-go/internal/logging"
	"github.com/54b3r/semsearch-go/internal/server"
	"github.com/54b3r/semsearch-go/internal/service"
)

// NewServeCmd constructs the `semsearch serve` command, which starts the
// HTTP JSON API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the semsearch HTTP API",
		Long: `Start the semsearch HTTP API.

Endpoints:
  GET  /api/health, /api/ready, /metrics
  GET  /api/embeddings/models
  POST /api/vectorstore/create
  GET  /api/vectorstore/list, /api/vectorstore/info?id=STORE
  POST /api/search/query, /api/search/batch
  GET  /api/search/history?limit=N

Examples:
  semsearch serve
  semsearch serve --port 9090
  EMBEDDING_PROVIDER=tei semsearch serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, cfg, err := openRuntime(cmd, func(c *config.Settings) {
				if cmd.Flags().Changed("host") {
					c.Server.Host = host
				}
				if cmd.Flags().Changed("port") {
					c.Server.Port = port
				}
			})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			log := logging.FromContext(ctx)
			log.Info("serve starting",
				slog.String("provider", rt.Factory.ProviderName()),
				slog.String("store_dir", rt.StoreRoot),
				slog.Bool("history", cfg.HistoryDB != ""),
			)

			pingers, err := buildPingers(rt)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(rt.Service, &server.Config{
				Host:          cfg.Server.Host,
				Port:          cfg.Server.Port,
				SearchTimeout: cfg.Server.SearchTimeout,
				BuildTimeout:  cfg.Server.BuildTimeout,
				Logger:        log,
				Pingers:       pingers,
				RateLimit:     cfg.Server.RateLimit,
				RateBurst:     cfg.Server.RateBurst,
				CORSOrigins:   cfg.Server.CORSOrigins,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", config.DefaultHost, "Host address to bind to (overrides SEMSEARCH_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "TCP port to listen on (overrides SEMSEARCH_PORT)")

	return cmd
}

// buildPingers returns the readiness checks for /api/ready: the default
// model's embedding provider, Qdrant when configured, and the store root.
func buildPingers(rt *service.Runtime) ([]server.Pinger, error) {
	p, err := rt.Factory.Get(rt.Factory.Default())
	if err != nil {
		return nil, err
	}
	pingers := []server.Pinger{
		server.NewNamedPinger(rt.Factory.ProviderName(), p),
	}
	if rt.Qdrant != nil {
		pingers = append(pingers, server.NewNamedPinger("qdrant", rt.Qdrant))
	}
	return append(pingers, server.NewDirPinger(rt.StoreRoot)), nil
}
