package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/example/selfie-check/internal/handlers"
	"github.com/example/selfie-check/internal/health"
	"github.com/example/selfie-check/internal/notify"
	"github.com/example/selfie-check/internal/preview"
	"github.com/example/selfie-check/internal/screen"
	"github.com/example/selfie-check/internal/stats"
)

const healthInterval = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve selfie screens to the browser front end",
	Long: `Start the screen server. Browsers mount a screen, post camera frames to it and follow
notifications and navigation over Server-Sent Events. A gRPC health service reports SERVING while
client storage is reachable.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides LISTEN_ADDR)")
	serveCmd.Flags().String("grpc-health-addr", "", "gRPC health listen address (overrides GRPC_HEALTH_ADDR)")
	serveCmd.Flags().Bool("debug", false, "Run gin in debug mode")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	if addr := mustGetString(cmd, "addr"); addr != "" {
		a.cfg.Server.Addr = addr
	}
	if addr := mustGetString(cmd, "grpc-health-addr"); addr != "" {
		a.cfg.Server.GRPCHealthAddr = addr
	}
	if !mustGetBool(cmd, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	client, err := a.backendClient()
	if err != nil {
		return err
	}

	logger := a.logger
	previews := preview.NewRegistry()
	hub := notify.NewHub()
	screens := screen.NewManager(ctx, screen.Options{
		Client:   client,
		Previews: previews,
		Catalog:  notify.DefaultCatalog(),
		Logger:   logger,
	}, func(id string) notify.Renderer {
		return notify.StreamRenderer{Hub: hub, Stream: id}
	})

	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(logger), handlers.CORS(a.cfg.Server.AllowedOrigins))
	handlers.RegisterRoutes(r, handlers.Deps{
		Screens:     screens,
		Credentials: a.store,
		Previews:    previews,
		Hub:         hub,
		Stats:       stats.NewVerifications(),
		Logger:      logger,
	})

	server := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// SSE streams hold connections open; end them so Shutdown can drain.
	server.RegisterOnShutdown(func() {
		screens.Close()
		hub.CloseAll()
	})

	grpcServer := grpc.NewServer()
	checker := health.NewChecker(a.store, healthInterval, logger)
	checker.Register(grpcServer)
	healthListener, err := net.Listen("tcp", a.cfg.Server.GRPCHealthAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Server.GRPCHealthAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return checker.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("gRPC health listening", zap.String("addr", a.cfg.Server.GRPCHealthAddr))
		if err := grpcServer.Serve(healthListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		grpcServer.GracefulStop()
		return nil
	})
	g.Go(func() error {
		sweepIdleScreens(gctx, screens, hub, a.cfg.Server.ScreenIdleTimeout, logger)
		return nil
	})
	g.Go(func() error {
		logger.Info("screen server listening", zap.String("addr", a.cfg.Server.Addr))
		return serveHTTPServer(gctx, server, a.cfg.Server.ShutdownTimeout, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server failed", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// sweepIdleScreens unmounts abandoned screens until ctx ends. Screens with an open event stream
// count as active.
func sweepIdleScreens(ctx context.Context, screens *screen.Manager, hub *notify.Hub, maxIdle time.Duration, logger *zap.Logger) {
	if maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(maxIdle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids := screens.Sweep(maxIdle, func(id string) bool { return hub.SubscriberCount(id) > 0 })
			if len(ids) > 0 {
				logger.Info("unmounted idle screens", zap.Int("count", len(ids)), zap.Duration("max_idle", maxIdle))
			}
		}
	}
}

func serveHTTPServer(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithListener(ctx, server, shutdownTimeout, logger, nil)
}

// serveHTTPServerWithListener serves until ctx ends, then shuts down gracefully within
// shutdownTimeout. A nil listener means ListenAndServe on server.Addr.
func serveHTTPServerWithListener(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down screen server", zap.NamedError("cause", context.Cause(ctx)))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
