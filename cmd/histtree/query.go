package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/devrev/histtree/internal/client"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/service"
	"github.com/devrev/histtree/internal/storage/historyfile"
	"github.com/spf13/cobra"
)

type queryFlags struct {
	attribute uint32
	remote    string
	timeout   time.Duration
}

var (
	qFlags queryFlags

	queryCmd = &cobra.Command{
		Use:   "query <file|-> <timestamp>",
		Short: "print the intervals containing a timestamp",
		Long: "Query prints every interval containing the timestamp as JSON lines. With " +
			"--attribute only the most recent interval of that attribute is printed. With " +
			"--remote the query is sent to a running histtree server and the file argument " +
			"is ignored.",
		Args: cobra.ExactArgs(2),
		RunE: queryExec,
		Example: `histtree query history.ht 42
histtree query history.ht 42 --attribute 3
histtree query - 42 --remote localhost:50061`,
	}
)

func init() {
	f := queryCmd.Flags()
	f.Uint32VarP(&qFlags.attribute, "attribute", "a", 0, "only the most recent interval of this attribute")
	f.StringVarP(&qFlags.remote, "remote", "r", "", "address of a histtree server")
	f.DurationVar(&qFlags.timeout, "timeout", 10*time.Second, "remote call timeout")
}

// querier is answered by both the local threaded reader and the remote client
type querier interface {
	QueryAll(ctx context.Context, t model.Timestamp) (model.Jar, error)
	Query(ctx context.Context, t model.Timestamp, attr model.AttributeKey) (model.Interval, bool, error)
	Close() error
}

func queryExec(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	t, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", args[1], err)
	}

	var q querier
	if qFlags.remote != "" {
		q, err = client.NewQueryClient(qFlags.remote, qFlags.timeout, logger)
	} else {
		q, err = service.NewThreadedReader(
			&historyfile.Config{FilePath: args[0], CacheCapacity: cfg.Tree.CacheCapacity},
			cfg.WorkerOptions(), logger)
	}
	if err != nil {
		return err
	}
	defer q.Close()

	var attr *model.AttributeKey
	if cmd.Flags().Changed("attribute") {
		attr = &qFlags.attribute
	}
	return runQuery(cmd.Context(), q, t, attr, cmd.OutOrStdout())
}

func runQuery(ctx context.Context, q querier, t model.Timestamp, attr *model.AttributeKey, out io.Writer) error {
	var jar model.Jar
	if attr != nil {
		iv, found, err := q.Query(ctx, t, *attr)
		if err != nil {
			return err
		}
		if found {
			jar = model.Jar{iv}
		}
	} else {
		var err error
		if jar, err = q.QueryAll(ctx, t); err != nil {
			return err
		}
	}

	for _, iv := range jar {
		line, err := formatRecord(iv)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", line)
	}
	return nil
}
