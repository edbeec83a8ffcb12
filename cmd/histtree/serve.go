package main

import (
	"context"
	"fmt"
	"net"
	"path/filepath"

	"github.com/devrev/histtree/internal/config"
	"github.com/devrev/histtree/internal/health"
	"github.com/devrev/histtree/internal/metrics"
	"github.com/devrev/histtree/internal/server"
	"github.com/devrev/histtree/internal/service"
	"github.com/devrev/histtree/internal/storage/diskmanager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve [file]",
	Short: "serve queries over a history file via gRPC",
	Long: "Serve opens a closed history file and answers QueryAll, Query and Stats calls " +
		"until interrupted. Metrics and health probes are served over HTTP when enabled.",
	Args: cobra.MaximumNArgs(1),
	RunE: serveExec,
}

func serveExec(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(args) == 1 {
		cfg.Tree.FilePath = args[0]
	}
	if cfg.Tree.FilePath == "" {
		return fmt.Errorf("no history file: pass it as an argument or set tree.file_path")
	}
	return serve(cmd.Context(), cfg, logger)
}

// serve runs the query server until ctx is done
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg, filepath.Base(cfg.Tree.FilePath))

	reader, err := service.NewThreadedReader(cfg.HistoryFile(m, nil), cfg.WorkerOptions(), logger)
	if err != nil {
		return err
	}
	defer reader.Close()

	var disk health.DiskSource
	if cfg.Disk.Enabled {
		dm, err := diskmanager.NewDiskManager(cfg.DiskManager(), logger)
		if err != nil {
			return err
		}
		disk = dm
	}

	checker := health.NewHealthChecker(&health.HealthCheckConfig{
		QueueSize:     cfg.Worker.QueueSize,
		CheckInterval: cfg.Disk.CheckInterval,
	}, reader, disk, logger)

	ctx, cancel := context.WithCancel(ctx)
	checkerDone := make(chan struct{})
	go func() {
		defer close(checkerDone)
		checker.Start(ctx)
	}()
	defer func() {
		cancel()
		<-checkerDone
	}()

	if cfg.Metrics.Enabled {
		ms := server.NewMetricsServer(&server.MetricsServerConfig{
			Port: cfg.Metrics.Port,
			Path: cfg.Metrics.Path,
		}, reg, m, checker, disk, logger)
		if err := ms.Start(); err != nil {
			return err
		}
		defer func() {
			if err := ms.Stop(); err != nil {
				logger.Warn("Failed to stop metrics server", zap.Error(err))
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	qs := server.NewQueryServer(server.QueryServerConfig{
		MaxConnections:    cfg.Server.MaxConnections,
		MaxRecvMsgSize:    cfg.Server.MaxRecvMsgSize,
		ConnectionTimeout: cfg.Server.ConnectionTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	}, reader, logger)

	served := make(chan error, 1)
	go func() { served <- qs.Serve(lis) }()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	checker.SetReadiness(false)
	qs.Stop()
	return <-served
}
