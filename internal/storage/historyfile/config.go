package historyfile

import (
	"fmt"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/metrics"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/node"
)

const (
	DefaultBlockSize     = 64 * 1024
	DefaultMaxChildren   = 50
	DefaultCacheCapacity = 256
)

// SpaceGuard is consulted before every block write
type SpaceGuard interface {
	CheckBeforeWrite(estimatedBytes uint64) error
}

// Config is the construction-time configuration of one tree.
// Readers take the geometry from the file header and only use FilePath,
// CacheCapacity and Metrics.
type Config struct {
	FilePath       string
	BlockSize      int
	MaxChildren    int
	StartTimestamp model.Timestamp
	CacheCapacity  int

	Metrics    *metrics.Metrics
	SpaceGuard SpaceGuard
}

func (c *Config) layout() node.Layout {
	return node.Layout{BlockSize: c.BlockSize, MaxChildren: c.MaxChildren}
}

func (c *Config) setDefaults() {
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.MaxChildren == 0 {
		c.MaxChildren = DefaultMaxChildren
	}
	if c.CacheCapacity == 0 {
		c.CacheCapacity = DefaultCacheCapacity
	}
}

func (c *Config) validate() error {
	if c.FilePath == "" {
		return errors.InvalidArgument("history file path is required", nil)
	}
	if c.CacheCapacity < 0 {
		return errors.InvalidArgument(fmt.Sprintf("cache capacity must be positive, got %d", c.CacheCapacity), nil)
	}
	return c.layout().Validate()
}
