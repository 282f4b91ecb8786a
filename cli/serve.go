package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wsiserve/logger"
	"wsiserve/routes"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Close()

	logger.Infof("Starting wsiserve %s", routes.Version())
	a, err := openApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()
	logger.Info("Databases initialized successfully")

	// a missing converter is logged; published slides are still served
	_ = a.invoker.CheckTool()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           routes.NewServer(cfg, a.routeDeps()).Routes(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("wsiserve listening on %s (upload: POST /upload, slides: GET /slides)", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.worker != nil {
		logger.Infof("Starting mirror worker for %d backends", len(cfg.Mirrors))
		g.Go(func() error {
			return a.worker.Run(gctx)
		})
	}

	g.Go(func() error {
		newHousekeeper(a).run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("wsiserve stopped")
	return nil
}
