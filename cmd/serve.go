package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/quotes-crawler/internal/api"
	"github.com/JakeFAU/quotes-crawler/internal/metrics"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serves health, metrics and the /v1 API. POST /v1/crawl runs one batch and
POST /v1/load loads the records directory; each allows one run at a time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			logger := appInstance.Logger()
			metrics.Init()

			server := api.NewServer(appInstance, cfg, logger.Named("api"))
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           server.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, srv, time.Duration(cfg.Server.ShutdownGraceSeconds)*time.Second, logger)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "listen port (default server.port)")
	return cmd
}

// serve runs srv until ctx is done, then shuts it down within grace.
func serve(ctx context.Context, srv *http.Server, grace time.Duration, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
