package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/devrev/histtree/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

var (
	gFlags globalFlags

	rootCmd = &cobra.Command{
		Use:   "histtree",
		Short: "build and query history tree files",
		Long: "histtree writes time-ordered intervals into a disk-resident history tree " +
			"and answers stabbing queries over it, locally or over gRPC",
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&gFlags.configPath, "config", "c", os.Getenv("CONFIG_PATH"),
		"path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&gFlags.logLevel, "log-level", "",
		"override logging.level from the configuration")

	rootCmd.AddCommand(importCmd, queryCmd, inspectCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, falling back to defaults when no
// file was given
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if gFlags.configPath == "" {
		cfg = config.Default()
	} else if cfg, err = config.LoadConfig(gFlags.configPath); err != nil {
		return nil, err
	}
	if gFlags.logLevel != "" {
		cfg.Logging.Level = gFlags.logLevel
	}
	return cfg, nil
}

// initLogger initializes the zap logger from the logging section
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// setup loads the configuration and builds the logger every command needs
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
