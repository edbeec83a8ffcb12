package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devrev/histtree/internal/metrics"
	"github.com/devrev/histtree/internal/service"
	"github.com/devrev/histtree/internal/storage/diskmanager"
	"github.com/devrev/histtree/internal/storage/historyfile"
	"gopkg.in/yaml.v3"
)

// TreeConfig holds the construction-time geometry of a history file
type TreeConfig struct {
	FilePath       string `yaml:"file_path"`
	BlockSize      int    `yaml:"block_size"`
	MaxChildren    int    `yaml:"max_children"`
	StartTimestamp int64  `yaml:"start_timestamp"`
	CacheCapacity  int    `yaml:"cache_capacity"`
}

// WorkerConfig holds configuration of the threaded writer and reader
type WorkerConfig struct {
	QueueSize   int           `yaml:"queue_size"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// ServerConfig holds query server configuration
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	MaxConnections    int           `yaml:"max_connections"`
	MaxRecvMsgSize    int           `yaml:"max_recv_msg_size"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// DiskConfig holds disk space guard configuration
type DiskConfig struct {
	Enabled                 bool          `yaml:"enabled"`
	CheckInterval           time.Duration `yaml:"check_interval"`
	WarningThreshold        float64       `yaml:"warning_threshold"`
	ThrottleThreshold       float64       `yaml:"throttle_threshold"`
	CircuitBreakerThreshold float64       `yaml:"circuit_breaker_threshold"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete configuration of a histtree process
type Config struct {
	Tree    TreeConfig    `yaml:"tree"`
	Worker  WorkerConfig  `yaml:"worker"`
	Server  ServerConfig  `yaml:"server"`
	Disk    DiskConfig    `yaml:"disk"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Tree.BlockSize == 0 {
		cfg.Tree.BlockSize = historyfile.DefaultBlockSize
	}
	if cfg.Tree.MaxChildren == 0 {
		cfg.Tree.MaxChildren = historyfile.DefaultMaxChildren
	}
	if cfg.Tree.CacheCapacity == 0 {
		cfg.Tree.CacheCapacity = historyfile.DefaultCacheCapacity
	}

	if cfg.Worker.QueueSize == 0 {
		cfg.Worker.QueueSize = service.DefaultQueueSize
	}
	if cfg.Worker.StopTimeout == 0 {
		cfg.Worker.StopTimeout = service.DefaultStopTimeout
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 50061
	}
	if cfg.Server.MaxConnections == 0 {
		cfg.Server.MaxConnections = 1000
	}
	if cfg.Server.MaxRecvMsgSize == 0 {
		cfg.Server.MaxRecvMsgSize = 4 * 1024 * 1024
	}
	if cfg.Server.ConnectionTimeout == 0 {
		cfg.Server.ConnectionTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Disk.CheckInterval == 0 {
		cfg.Disk.CheckInterval = 10 * time.Second
	}
	if cfg.Disk.WarningThreshold == 0 {
		cfg.Disk.WarningThreshold = 80.0
	}
	if cfg.Disk.ThrottleThreshold == 0 {
		cfg.Disk.ThrottleThreshold = 90.0
	}
	if cfg.Disk.CircuitBreakerThreshold == 0 {
		cfg.Disk.CircuitBreakerThreshold = 95.0
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9091
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Tree.BlockSize <= 0 {
		return fmt.Errorf("tree.block_size must be positive")
	}
	if c.Tree.MaxChildren < 1 {
		return fmt.Errorf("tree.max_children must be at least 1")
	}
	if c.Tree.CacheCapacity < 1 {
		return fmt.Errorf("tree.cache_capacity must be at least 1")
	}
	if c.Worker.QueueSize < 1 {
		return fmt.Errorf("worker.queue_size must be at least 1")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}
	if c.Disk.ThrottleThreshold > c.Disk.CircuitBreakerThreshold {
		return fmt.Errorf("disk.throttle_threshold must not exceed disk.circuit_breaker_threshold")
	}
	if c.Disk.CircuitBreakerThreshold > 100 {
		return fmt.Errorf("disk.circuit_breaker_threshold must be at most 100")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// HistoryFile maps the tree section onto a history file configuration
func (c *Config) HistoryFile(m *metrics.Metrics, guard historyfile.SpaceGuard) *historyfile.Config {
	return &historyfile.Config{
		FilePath:       c.Tree.FilePath,
		BlockSize:      c.Tree.BlockSize,
		MaxChildren:    c.Tree.MaxChildren,
		StartTimestamp: c.Tree.StartTimestamp,
		CacheCapacity:  c.Tree.CacheCapacity,
		Metrics:        m,
		SpaceGuard:     guard,
	}
}

// WorkerOptions maps the worker section onto threaded wrapper options
func (c *Config) WorkerOptions() service.WorkerOptions {
	return service.WorkerOptions{
		QueueSize:   c.Worker.QueueSize,
		StopTimeout: c.Worker.StopTimeout,
	}
}

// DiskManager maps the disk section onto a disk manager configuration for the
// directory holding the tree file
func (c *Config) DiskManager() *diskmanager.DiskManagerConfig {
	return &diskmanager.DiskManagerConfig{
		DataDir:                 filepath.Dir(c.Tree.FilePath),
		CheckInterval:           c.Disk.CheckInterval,
		WarningThreshold:        c.Disk.WarningThreshold,
		ThrottleThreshold:       c.Disk.ThrottleThreshold,
		CircuitBreakerThreshold: c.Disk.CircuitBreakerThreshold,
	}
}
