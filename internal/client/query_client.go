package client

import (
	"context"
	"fmt"
	"time"

	"github.com/devrev/histtree/internal/model"
	pb "github.com/devrev/histtree/pkg/proto"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QueryClient queries a remote history tree served by the query server
type QueryClient struct {
	addr    string
	timeout time.Duration
	conn    *grpc.ClientConn
	client  pb.QueryServiceClient
	logger  *zap.Logger
}

// Stats describes a remote tree and its reader
type Stats struct {
	Metadata      model.TreeMetadata
	CacheEntries  int
	CacheHits     uint64
	CacheMisses   uint64
	QueuedQueries int
}

// NewQueryClient creates a client for the query server at addr. A zero
// timeout leaves call deadlines to the caller's context.
func NewQueryClient(addr string, timeout time.Duration, logger *zap.Logger) (*QueryClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to query server at %s: %w", addr, err)
	}

	return &QueryClient{
		addr:    addr,
		timeout: timeout,
		conn:    conn,
		client:  pb.NewQueryServiceClient(conn),
		logger:  logger,
	}, nil
}

func (c *QueryClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// QueryAll returns every interval containing t
func (c *QueryClient) QueryAll(ctx context.Context, t model.Timestamp) (model.Jar, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.QueryAll(ctx, &pb.QueryAllRequest{Timestamp: t})
	if err != nil {
		return nil, fmt.Errorf("query all at %d: %w", t, err)
	}
	return resp.ToJar(), nil
}

// Query returns the most recent interval of attr containing t
func (c *QueryClient) Query(ctx context.Context, t model.Timestamp, attr model.AttributeKey) (model.Interval, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Query(ctx, &pb.QueryRequest{Timestamp: t, Attribute: attr})
	if err != nil {
		return model.Interval{}, false, fmt.Errorf("query attribute %d at %d: %w", attr, t, err)
	}
	if !resp.GetFound() || resp.GetInterval() == nil {
		return model.Interval{}, false, nil
	}
	return resp.GetInterval().ToInterval(), true, nil
}

// Stats returns metadata and cache statistics of the remote tree
func (c *QueryClient) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Stats(ctx, &pb.StatsRequest{})
	if err != nil {
		return Stats{}, fmt.Errorf("stats from %s: %w", c.addr, err)
	}

	c.logger.Debug("Fetched remote tree stats",
		zap.String("addr", c.addr),
		zap.String("path", resp.FilePath),
		zap.Uint32("nodes", resp.NodeCount))

	return Stats{
		Metadata: model.TreeMetadata{
			FilePath:    resp.FilePath,
			BlockSize:   resp.BlockSize,
			MaxChildren: resp.MaxChildren,
			NodeCount:   resp.NodeCount,
			Start:       resp.Start,
			End:         resp.End,
		},
		CacheEntries:  int(resp.CacheEntries),
		CacheHits:     resp.CacheHits,
		CacheMisses:   resp.CacheMisses,
		QueuedQueries: int(resp.QueuedQueries),
	}, nil
}

// Close closes the client connection
func (c *QueryClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
