package historyfile

import (
	"fmt"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/node"
)

const (
	queryKindAll        = "all"
	queryKindSingle     = "single"
	queryKindAttributes = "attributes"
)

// nodeSource resolves nodes during a descent. The writer serves its open
// branch from memory; everything else comes through a node cache.
type nodeSource interface {
	rootNode() (*node.Node, error)
	nodeAt(seq uint32) (*node.Node, error)
}

// walk visits every node on the root-to-leaf path whose coverage holds t
func walk(src nodeSource, t model.Timestamp, visit func(*node.Node)) error {
	n, err := src.rootNode()
	if err != nil {
		return err
	}

	for {
		visit(n)

		child, ok := n.ChildAt(t)
		if !ok {
			return nil
		}

		next, err := src.nodeAt(child.Seq)
		if err != nil {
			return err
		}
		if next.Level() >= n.Level() || next.Start() != child.Start {
			return errors.CorruptedData(
				fmt.Sprintf("node %d (level %d, start %d) does not match its pointer in node %d (level %d, start %d)",
					next.Seq(), next.Level(), next.Start(), n.Seq(), n.Level(), child.Start), nil)
		}
		n = next
	}
}

// collectAll returns every interval containing t in visitation order
func collectAll(src nodeSource, t model.Timestamp) (model.Jar, error) {
	var jar model.Jar
	err := walk(src, t, func(n *node.Node) {
		jar = n.Collect(t, jar)
	})
	if err != nil {
		return nil, err
	}
	return jar, nil
}

// collectOne returns the interval of attr containing t with the greatest start.
// Ties go to the interval visited last.
func collectOne(src nodeSource, t model.Timestamp, attr model.AttributeKey) (model.Interval, bool, error) {
	var (
		best  model.Interval
		found bool
	)
	err := walk(src, t, func(n *node.Node) {
		for _, iv := range n.Intervals() {
			if iv.Attribute != attr || !iv.Contains(t) {
				continue
			}
			if !found || iv.Start >= best.Start {
				best, found = iv, true
			}
		}
	})
	if err != nil {
		return model.Interval{}, false, err
	}
	return best, found, nil
}

// collectByAttribute groups the intervals containing t by attribute
func collectByAttribute(src nodeSource, t model.Timestamp) (map[model.AttributeKey][]model.Interval, error) {
	out := make(map[model.AttributeKey][]model.Interval)
	err := walk(src, t, func(n *node.Node) {
		for _, iv := range n.Intervals() {
			if iv.Contains(t) {
				out[iv.Attribute] = append(out[iv.Attribute], iv)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
