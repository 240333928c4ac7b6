package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"shared-transactions/internal/server"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateForServe(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := server.NewServer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		port, err := srv.Listen(cfg.ServerPort)
		if err != nil {
			srv.Stop(context.Background())
			return err
		}
		logger.Info("Server started successfully", "port", port)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(srv.Serve)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Stop(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			logger.Error("Server shutdown failed", "error", err)
			return err
		}
		logger.Info("Server stopped")
		return nil
	},
}
