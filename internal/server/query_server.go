package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/service"
	pb "github.com/devrev/histtree/pkg/proto"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// QueryServerConfig holds configuration for the query server
type QueryServerConfig struct {
	MaxConnections    int
	MaxRecvMsgSize    int
	ConnectionTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// QueryServer serves stabbing queries over a threaded reader via gRPC
type QueryServer struct {
	pb.UnimplementedQueryServiceServer

	reader     *service.ThreadedReader
	grpcServer *grpc.Server
	cfg        QueryServerConfig
	logger     *zap.Logger
}

// NewQueryServer creates a query server for reader
func NewQueryServer(cfg QueryServerConfig, reader *service.ThreadedReader, logger *zap.Logger) *QueryServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	opts := []grpc.ServerOption{pb.ServerOption()}
	if cfg.MaxConnections > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(cfg.MaxConnections)))
	}
	if cfg.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize))
	}
	if cfg.ConnectionTimeout > 0 {
		opts = append(opts, grpc.ConnectionTimeout(cfg.ConnectionTimeout))
	}

	s := &QueryServer{
		reader:     reader,
		grpcServer: grpc.NewServer(opts...),
		cfg:        cfg,
		logger:     logger,
	}
	pb.RegisterQueryServiceServer(s.grpcServer, s)
	return s
}

// Serve accepts connections on lis until Stop is called
func (s *QueryServer) Serve(lis net.Listener) error {
	meta := s.reader.Metadata()
	s.logger.Info("Query server listening",
		zap.String("addr", lis.Addr().String()),
		zap.String("path", meta.FilePath),
		zap.Int64("start", meta.Start),
		zap.Int64("end", meta.End))

	if err := s.grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("query server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight queries, forcing the shutdown once the timeout passes
func (s *QueryServer) Stop() {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(s.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.logger.Info("Query server stopped")
	case <-timer.C:
		s.logger.Warn("Query server shutdown timed out, closing connections")
		s.grpcServer.Stop()
		<-done
	}
}

// QueryAll handles QueryAll requests
func (s *QueryServer) QueryAll(ctx context.Context, req *pb.QueryAllRequest) (*pb.QueryAllResponse, error) {
	jar, err := s.reader.QueryAll(ctx, req.Timestamp)
	if err != nil {
		s.logger.Error("QueryAll failed", zap.Int64("timestamp", req.Timestamp), zap.Error(err))
		return nil, errors.ToGRPCError(err)
	}
	return pb.FromJar(jar), nil
}

// Query handles Query requests
func (s *QueryServer) Query(ctx context.Context, req *pb.QueryRequest) (*pb.QueryResponse, error) {
	iv, found, err := s.reader.Query(ctx, req.Timestamp, req.Attribute)
	if err != nil {
		s.logger.Error("Query failed",
			zap.Int64("timestamp", req.Timestamp),
			zap.Uint32("attribute", req.Attribute),
			zap.Error(err))
		return nil, errors.ToGRPCError(err)
	}
	if !found {
		return &pb.QueryResponse{}, nil
	}
	return &pb.QueryResponse{Found: true, Interval: pb.FromInterval(iv)}, nil
}

// Stats handles Stats requests
func (s *QueryServer) Stats(ctx context.Context, _ *pb.StatsRequest) (*pb.StatsResponse, error) {
	stats, err := s.reader.CacheStats(ctx)
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}
	return statsResponse(s.reader.Metadata(), stats.Entries, stats.Hits, stats.Misses, s.reader.QueueDepth()), nil
}

func statsResponse(meta model.TreeMetadata, entries int, hits, misses uint64, queued int) *pb.StatsResponse {
	return &pb.StatsResponse{
		FilePath:      meta.FilePath,
		BlockSize:     meta.BlockSize,
		MaxChildren:   meta.MaxChildren,
		NodeCount:     meta.NodeCount,
		Start:         meta.Start,
		End:           meta.End,
		CacheEntries:  uint32(entries),
		CacheHits:     hits,
		CacheMisses:   misses,
		QueuedQueries: uint32(queued),
	}
}
