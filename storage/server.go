package storage

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
)

// Server exposes one Store over the shard gRPC service.
type Server struct {
	store *Store
	log   *slog.Logger
	grpc  *grpc.Server
}

// NewServer wraps a store.
func NewServer(store *Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: store, log: log}
}

// GetNeighbors implements ShardServer.
func (s *Server) GetNeighbors(ctx context.Context, req *GetNeighborsRequest) (*ShardQueryResponse, error) {
	resp, err := s.store.GetNeighbors(ctx, req)
	if err != nil {
		s.log.Error("get neighbors failed", "error", err)
	}
	return resp, err
}

// GetVertexProps implements ShardServer.
func (s *Server) GetVertexProps(ctx context.Context, req *GetVertexPropsRequest) (*ShardQueryResponse, error) {
	resp, err := s.store.GetVertexProps(ctx, req)
	if err != nil {
		s.log.Error("get vertex props failed", "error", err)
	}
	return resp, err
}

// GetEdgeProps implements ShardServer.
func (s *Server) GetEdgeProps(ctx context.Context, req *GetEdgePropsRequest) (*ShardEdgePropResponse, error) {
	resp, err := s.store.GetEdgeProps(ctx, req)
	if err != nil {
		s.log.Error("get edge props failed", "error", err)
	}
	return resp, err
}

// Serve starts a grpc server on the listener and blocks until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.grpc = grpc.NewServer()
	RegisterShardServer(s.grpc, s)
	s.log.Info("shard server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the grpc server.
func (s *Server) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}
