package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"society-gate-backend/config"
	"society-gate-backend/internal/api"
	"society-gate-backend/internal/directory"
	"society-gate-backend/internal/fanout"
	"society-gate-backend/internal/gate"
	"society-gate-backend/internal/notification"
	"society-gate-backend/internal/store"
	"society-gate-backend/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and realtime server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (overrides server.port)")

	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Logging.Dev {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing := telemetry.Setup(ctx, cfg.Telemetry)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("tracer shutdown", "error", err)
		}
	}()

	gormDB, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(gormDB)

	appStore := store.NewGormStore(gormDB, store.WithResidentCache(cfg.Directory.CacheTTL))
	hub := fanout.NewHub(cfg.Realtime.ClientBuffer)

	opts := []gate.Option{gate.WithHistoryLimit(cfg.Server.HistoryLimit)}
	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, webpushOptions)
		pool.Start(ctx)
		opts = append(opts, gate.WithNotifier(pool))
	} else {
		slog.Warn("VAPID keys are not configured; resident push notifications are disabled")
	}
	svc := gate.NewService(appStore, hub, opts...)

	go directory.NewSyncer(cfg.Directory, appStore).Run(ctx)

	router := api.NewRouter(svc, appStore, hub, api.RouterOptions{
		Server:   cfg.Server,
		Realtime: cfg.Realtime,
		WebPush:  webpushOptions,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: otelhttp.NewHandler(router, cfg.Telemetry.ServiceName),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping services")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	slog.Info("server gracefully stopped")
	return nil
}
