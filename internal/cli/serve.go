package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/frontend-sniper/frontend-sniper/internal/observability"
	"github.com/frontend-sniper/frontend-sniper/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	a.logger.Info("Starting frontend-sniper",
		zap.String("version", a.version),
		zap.String("browser", a.cfg.Browser.Address()),
	)

	sess, d := a.stack()
	defer func() {
		a.logger.Info("Shutting down, leaving the browser running")
		_ = sess.Close()
		_ = observability.Sync()
	}()

	srv := server.New(a.logger, a.version, d, sess)
	err := srv.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	a.logger.Info("Server shutdown complete")
	return nil
}
