package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/MrEthical07/portalAuth/guard"
	"github.com/MrEthical07/portalAuth/internal/web"
	otelexport "github.com/MrEthical07/portalAuth/metrics/export/otel"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portal HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.ListenAddr = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			in, err := openInfra(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer in.close()

			storeCfg := portalAuth.DefaultConfig()
			storeCfg.Session.NavigateOnSuccess = false
			storeCfg.Metrics.Enabled = true
			storeCfg.Metrics.EnableLatencyHistograms = true

			registry, err := web.NewRegistry(cfg.Web.MaxDevices, func(device string) (*portalAuth.Store, error) {
				return portalAuth.New().
					WithConfig(storeCfg).
					WithProvider(in.backend.Client(device)).
					WithLogger(logger).
					Build()
			}, logger)
			if err != nil {
				return err
			}
			defer registry.Close()

			exporter, err := otelexport.NewExporter(otel.GetMeterProvider().Meter("portald"), registry)
			if err != nil {
				return err
			}
			defer exporter.Close()

			srv, err := web.NewServer(web.Options{
				Registry:     registry,
				Policy:       guard.NewPolicy(storeCfg.Routes),
				Logger:       logger,
				CookieName:   cfg.Web.CookieName,
				CookieSecure: cfg.Web.CookieSecure,
				LoadingWait:  cfg.Web.LoadingWait,
				Health:       in.backend.Ping,
			})
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           srv,
				ReadHeaderTimeout: 5 * time.Second,
				ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", slog.String("addr", cfg.ListenAddr))
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override listen_addr")
	return cmd
}
