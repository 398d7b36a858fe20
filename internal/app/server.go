// Package app wires the order service into a running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/zoravur/orderfeed/internal/api"
	"github.com/zoravur/orderfeed/internal/config"
	"github.com/zoravur/orderfeed/internal/live"
	"github.com/zoravur/orderfeed/internal/metrics"
	"github.com/zoravur/orderfeed/internal/rpc"
	"github.com/zoravur/orderfeed/internal/service"
	"github.com/zoravur/orderfeed/internal/store/memory"
	"github.com/zoravur/orderfeed/internal/store/postgres"
)

type store interface {
	service.Store
	Close() error
}

type Server struct {
	cfg config.Config
	log *zap.Logger

	store    store
	Registry *service.Registry
	Orders   *service.Orders
	reaper   *live.Reaper

	httpServer *http.Server
	httpLn     net.Listener
	grpcServer *grpc.Server
	grpcLn     net.Listener
}

// NewServer opens the store, builds every component once and binds the
// listeners. Nothing is served until Run.
func NewServer(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *Server, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, log: logger}
	defer func() {
		if err != nil {
			s.closeAll()
		}
	}()

	if s.store, err = openStore(ctx, cfg, logger); err != nil {
		return nil, err
	}

	s.Registry = service.NewRegistry(
		live.WithBuffer(cfg.SubscriberBuffer),
		live.WithLogger(logger.Named("live")),
	)
	s.Orders = service.NewOrders(s.store, s.Registry)
	s.reaper = live.NewReaper(s.Registry, cfg.ReapInterval, logger.Named("reaper"))

	prom := metrics.NewRegistry()
	prom.MustRegister(metrics.NewLiveCollector(s.Registry.Stats))

	s.httpServer = &http.Server{
		Handler: api.SetupRoutes(api.Deps{
			Orders:   s.Orders,
			Registry: s.Registry,
			Logger:   logger,
			Metrics:  metrics.NewServerMetrics(prom, "http"),
			Gatherer: prom,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.httpLn, err = net.Listen("tcp", cfg.HTTPAddr); err != nil {
		return nil, fmt.Errorf("listen http: %w", err)
	}

	if cfg.GRPCAddr != "" {
		s.grpcServer = rpc.NewGRPCServer(s.Orders, logger, metrics.NewServerMetrics(prom, "grpc"))
		if s.grpcLn, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
			return nil, fmt.Errorf("listen grpc: %w", err)
		}
	}
	return s, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; orders are lost on exit")
		return memory.New(), nil
	default:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, err
			}
		}
		return pg, nil
	}
}

func (s *Server) HTTPAddr() string { return s.httpLn.Addr().String() }

// GRPCAddr is empty when gRPC is disabled.
func (s *Server) GRPCAddr() string {
	if s.grpcLn == nil {
		return ""
	}
	return s.grpcLn.Addr().String()
}

// Run serves until ctx is cancelled, SIGINT or SIGTERM arrives, or a
// listener fails, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer s.closeAll()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("HTTP listening", zap.String("addr", s.HTTPAddr()))
		if err := s.httpServer.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if s.grpcServer != nil {
		g.Go(func() error {
			s.log.Info("gRPC listening", zap.String("addr", s.GRPCAddr()))
			if err := s.grpcServer.Serve(s.grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error { return s.reaper.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

// shutdown ends every stream by closing the registry, then drains the
// servers within the configured timeout.
func (s *Server) shutdown() error {
	s.log.Info("Shutting down...")
	s.Registry.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if s.grpcServer != nil {
		done := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpcServer.Stop()
		}
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) closeAll() {
	if s.Registry != nil {
		s.Registry.Close()
	}
	if s.httpLn != nil {
		_ = s.httpLn.Close()
	}
	if s.grpcLn != nil {
		_ = s.grpcLn.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warn("store close", zap.Error(err))
		}
		s.store = nil
	}
}
