// Package api provides the gRPC server for the buffet trading system,
// exposing strategy, backtest, market-data and order endpoints.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Server hosts the Trading service on a gRPC listener.
type Server struct {
	grpc *grpc.Server
	addr string
	log  *slog.Logger
}

// NewServer creates a Server listening on addr that serves svc.
func NewServer(addr string, svc TradingServer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "grpc")
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(log)))
	RegisterTradingServer(gs, svc)
	return &Server{grpc: gs, addr: addr, log: log}
}

// Serve accepts connections on lis until Shutdown is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// ListenAndServe starts the gRPC listener and blocks until the context is
// cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.Shutdown()
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// Shutdown stops accepting new connections and waits for in-flight requests.
func (s *Server) Shutdown() {
	s.grpc.GracefulStop()
	s.log.Info("grpc server stopped")
}

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		if err != nil {
			log.Warn("rpc failed", "method", info.FullMethod, "code", code.String(), "elapsed", time.Since(start), "error", err)
		} else {
			log.Debug("rpc", "method", info.FullMethod, "elapsed", time.Since(start))
		}
		return resp, err
	}
}
