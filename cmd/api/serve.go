package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/sst-resolve/resolve-service/internal/api/http"
	"github.com/sst-resolve/resolve-service/internal/api/http/handlers"
	"github.com/sst-resolve/resolve-service/internal/auth"
	"github.com/sst-resolve/resolve-service/internal/observability"
	"github.com/sst-resolve/resolve-service/internal/worker"
)

var (
	withoutWorkers bool
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with the outbox relay and SLA sweeper",
		RunE:  runServe,
	}
	cmd.Flags().BoolVar(&withoutWorkers, "no-workers", false, "Serve HTTP only; run the relay and sweeper elsewhere")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", zap.Error(err))
		return err
	}
	defer app.Close()

	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTLMinutes)

	server := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(server, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, app.postgres, app.redis, metrics),
		Tickets:        handlers.NewTicketsHandler(app.tickets, app.assignments, app.escalations),
		Analytics:      handlers.NewAnalyticsHandler(app.analytics),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, app.store.Repositories().Users),
	})

	var wg sync.WaitGroup
	if !withoutWorkers {
		relay := app.outboxRelay()
		sweeper := worker.NewSLASweeper(app.sweeps, cfg.SLA.SweepInterval(), logger.Named("sweeper"))
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox relay stopped", zap.Error(err))
			}
		}()
		go func() {
			defer wg.Done()
			if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("sla sweeper stopped", zap.Error(err))
			}
		}()
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.App.Addr()))
		listenErr <- server.Listen(cfg.App.Addr())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-listenErr:
		if err != nil {
			logger.Error("fiber listen", zap.Error(err))
		}
	}

	cancel()
	shutdownCtx, stop := shutdownContext()
	defer stop()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	wg.Wait()
	return nil
}
