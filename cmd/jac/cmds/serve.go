package cmds

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/jac-chat/backend/internal/handler"
	chatService "github.com/zhouzirui/jac-chat/backend/internal/service/chat"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, SSE and WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, opts, err := bootstrap(cmd, false)
			if err != nil {
				return err
			}

			chatSvc := chatService.NewService(opts)
			router := handler.NewRouter(opts.Personas, chatSvc, logger)

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           router,
				ReadHeaderTimeout: 5 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			logger.Info().
				Str("addr", srv.Addr).
				Str("provider", cfg.AI.Provider).
				Str("model", cfg.Chat.Model).
				Msg("JAC backend listening")
			return runServer(ctx, srv, cfg.Server.ShutdownTimeout)
		},
	}
}

// runServer serves until ctx is done, then shuts down within timeout.
func runServer(ctx context.Context, srv *http.Server, timeout time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
