package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/service"
	"github.com/devrev/histtree/internal/storage/historyfile"
	"github.com/devrev/histtree/internal/storage/node"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "print the header and node layout of a history file",
	Args:  cobra.ExactArgs(1),
	RunE:  inspectExec,
}

func inspectExec(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	tr, err := service.NewThreadedReader(&historyfile.Config{FilePath: args[0], CacheCapacity: cfg.Tree.CacheCapacity},
		cfg.WorkerOptions(), logger)
	if err != nil {
		return err
	}
	defer tr.Close()

	nodes, err := tr.Inspect(cmd.Context())
	if err != nil {
		return err
	}
	return printInspect(cmd.OutOrStdout(), tr.Metadata(), nodes)
}

func printInspect(out io.Writer, meta model.TreeMetadata, nodes []model.NodeSummary) error {
	fmt.Fprintf(out, "file:         %s\n", meta.FilePath)
	fmt.Fprintf(out, "range:        [%d, %d]\n", meta.Start, meta.End)
	fmt.Fprintf(out, "block size:   %d\n", meta.BlockSize)
	fmt.Fprintf(out, "max children: %d\n", meta.MaxChildren)
	fmt.Fprintf(out, "nodes:        %d (root %d)\n\n", meta.NodeCount, meta.RootSeq)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tPARENT\tLEVEL\tKIND\tSTART\tEND\tINTERVALS\tCHILDREN\tFREE\tSEALED")
	for _, n := range nodes {
		parent := fmt.Sprintf("%d", n.ParentSeq)
		if n.ParentSeq == node.NoParent {
			parent = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\t%d\t%d\t%d\t%d\t%t\n",
			n.Seq, parent, n.Level, n.Kind, n.Start, n.End, n.Intervals, n.Children, n.FreeBytes, n.IsSealed)
	}
	return w.Flush()
}
