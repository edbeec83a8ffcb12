package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/devrev/histtree/internal/config"
	"github.com/devrev/histtree/internal/service"
	"github.com/devrev/histtree/internal/storage/diskmanager"
	"github.com/devrev/histtree/internal/storage/historyfile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const maxRecordSize = 1 << 20

type importFlags struct {
	output      string
	start       int64
	end         int64
	blockSize   int
	maxChildren int
}

var (
	iFlags importFlags

	importCmd = &cobra.Command{
		Use:   "import [intervals.jsonl]",
		Short: "build a history file from JSON-lines intervals",
		Long: "Import reads one interval per line, ordered by start time, and writes them " +
			"into a new history file. Input is read from stdin when no file is given.",
		Args: cobra.MaximumNArgs(1),
		RunE: importExec,
		Example: `# Build history.ht from a trace:
histtree import -o history.ht --end 1000 trace.jsonl
# Lines look like:
{"start":0,"end":5,"attribute":1,"type":"int32","value":10}`,
	}
)

func init() {
	f := importCmd.Flags()
	f.StringVarP(&iFlags.output, "output", "o", "", "history file to create (default tree.file_path)")
	f.Int64Var(&iFlags.start, "start", 0, "tree start timestamp (default tree.start_timestamp)")
	f.Int64Var(&iFlags.end, "end", 0, "tree end timestamp (default the largest interval end)")
	f.IntVar(&iFlags.blockSize, "block-size", 0, "node block size in bytes (default tree.block_size)")
	f.IntVar(&iFlags.maxChildren, "max-children", 0, "children per branch node (default tree.max_children)")
}

func importExec(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	flags := cmd.Flags()
	if iFlags.output != "" {
		cfg.Tree.FilePath = iFlags.output
	}
	if flags.Changed("start") {
		cfg.Tree.StartTimestamp = iFlags.start
	}
	if iFlags.blockSize != 0 {
		cfg.Tree.BlockSize = iFlags.blockSize
	}
	if iFlags.maxChildren != 0 {
		cfg.Tree.MaxChildren = iFlags.maxChildren
	}
	if cfg.Tree.FilePath == "" {
		return fmt.Errorf("no output file: pass --output or set tree.file_path")
	}

	in := io.Reader(os.Stdin)
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var guard historyfile.SpaceGuard
	if cfg.Disk.Enabled {
		dm, err := diskmanager.NewDiskManager(cfg.DiskManager(), logger)
		if err != nil {
			return err
		}
		guard = dm
	}

	var end *int64
	if flags.Changed("end") {
		end = &iFlags.end
	}
	return importIntervals(cmd.Context(), cfg, guard, in, end, logger)
}

// importIntervals writes every line of in to a new tree and closes it at end,
// or at the largest interval end when end is nil. A failed import leaves no file behind.
func importIntervals(ctx context.Context, cfg *config.Config, guard historyfile.SpaceGuard, in io.Reader, end *int64, logger *zap.Logger) error {
	tw, err := service.NewThreadedWriter(cfg.HistoryFile(nil, guard), cfg.WorkerOptions(), logger)
	if err != nil {
		return err
	}

	began := time.Now()
	closeAt := cfg.Tree.StartTimestamp
	count := 0

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		iv, err := parseRecord(scanner.Bytes())
		if err == nil {
			err = tw.Insert(ctx, iv)
		}
		if err != nil {
			tw.Close(ctx, closeAt)
			return discard(cfg.Tree.FilePath, fmt.Errorf("line %d: %w", line, err), logger)
		}
		if iv.End > closeAt {
			closeAt = iv.End
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		tw.Close(ctx, closeAt)
		return discard(cfg.Tree.FilePath, fmt.Errorf("read intervals: %w", err), logger)
	}

	if end != nil {
		closeAt = *end
	}
	if err := tw.Close(ctx, closeAt); err != nil {
		return discard(cfg.Tree.FilePath, err, logger)
	}

	logger.Info("Import complete",
		zap.String("path", cfg.Tree.FilePath),
		zap.Int("intervals", count),
		zap.Int64("end", closeAt),
		zap.Uint64("tasks", tw.Stats().CompletedTasks),
		zap.Duration("took", time.Since(began)))
	return nil
}

// discard removes the partial history file of a failed import and returns cause
func discard(path string, cause error, logger *zap.Logger) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove partial history file",
			zap.String("path", path),
			zap.Error(err))
	}
	return cause
}
