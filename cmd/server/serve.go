package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"ledger-backend/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.cfg.Validate(); err != nil {
				return err
			}
			db, closeDB, err := rt.openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			app := server.New(rt.cfg, db, rt.log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				rt.log.Info("server listening", zap.String("port", rt.cfg.HTTPPort))
				errCh <- app.Listen(":" + rt.cfg.HTTPPort)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			rt.log.Info("shutting down")
			if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
				return err
			}
			if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
