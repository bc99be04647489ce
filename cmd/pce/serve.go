package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and27/pcengine/internal/app"
	"github.com/and27/pcengine/internal/logging"
	"github.com/and27/pcengine/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devUserHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server and webhook dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			level := cfg.Log.Level
			if cmd.Flags().Changed("log-level") || level == "" {
				level = viper.GetString("log-level")
			}
			logger, err := logging.New(logging.Config{Level: level, Format: cfg.Log.Format})
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.Server.JWTSecret == "" && !devUserHeader {
				return fmt.Errorf("jwt secret required for bearer auth (--jwt-secret or PCENGINE_JWT_SECRET)")
			}
			if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
				basePath = cfg.Server.BasePath
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := app.OpenWithConfig(ctx, app.Options{
				Workspace: viper.GetString("workspace"),
				Driver:    viper.GetString("db-driver"),
				DSN:       viper.GetString("db-dsn"),
				Logger:    logger,
			}, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:          cfg.Server.JWTSecret,
					AllowDevUserHeader: devUserHeader,
					Logger:             logger,
				},
				OAuth:  a.OAuth,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			dispatcher := server.NewWebhookDispatcher(a.Engine, cfg.Webhooks, logger.Named("webhooks"))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("serving", zap.String("addr", addr), zap.String("base_path", basePath))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return dispatcher.Run(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			fmt.Printf("Serving pcengine API on http://%s%s (OpenAPI at %s/openapi.json, metrics at /metrics)\n", addr, basePath, basePath)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devUserHeader, "dev-user-header", false, "accept X-User-Id instead of a bearer token (development only)")
	return cmd
}
