package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/knc/internal/api"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var (
	serveAddr    string
	serveOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the admin HTTP API",
	Long: `Serve the configuration registry over HTTP for the browser console.

Endpoints live under /api/v1; /health and /metrics sit at the root.
The listen address defaults to server.addr from .kncconfig.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil || Serializer == nil {
			return errNotInitialized
		}
		addr := serveAddr
		if addr == "" {
			addr = ServerAddr
		}
		if addr == "" {
			addr = "127.0.0.1:8080"
		}

		logger := Logger
		if logger == nil {
			logger = slog.New(slog.DiscardHandler)
		}
		deps := api.Deps{
			Registry:       Registry,
			Serializer:     Serializer,
			Tester:         Tester,
			Instances:      Instances,
			Settings:       Settings,
			Logger:         logger,
			AllowedOrigins: serveOrigins,
		}
		if Metrics != nil {
			deps.Metrics = Metrics.Handler()
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", addr, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Serving on http://%s\n", ln.Addr())

		ctx, stop := signal.NotifyContext(contextOrBackground(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, &http.Server{
			Handler:           api.NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		}, ln, logger)
	},
}

// runServer serves on ln until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("admin api listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving admin api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down admin api")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down admin api: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default server.addr)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "cors-origin", nil, "Allowed CORS origins (default any)")
	rootCmd.AddCommand(serveCmd)
}
