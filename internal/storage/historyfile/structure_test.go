package historyfile

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeAndOpen builds a closed tree from ivs and reopens it read-only
func writeAndOpen(t *testing.T, blockSize, maxChildren int, ivs []model.Interval) *Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.ht")

	w, err := Create(&Config{FilePath: path, BlockSize: blockSize, MaxChildren: maxChildren, CacheCapacity: 16}, zap.NewNop())
	require.NoError(t, err)
	for _, iv := range ivs {
		require.NoError(t, w.Insert(iv), "insert %s", iv)
	}
	require.NoError(t, w.Close(0))

	r, err := Open(&Config{FilePath: path, CacheCapacity: 16}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// checkSubtree walks n and everything below it, asserting the layout rules queries
// depend on. It returns the latest interval end in the subtree and its node count.
func checkSubtree(t *testing.T, r *Reader, n *node.Node) (model.Timestamp, int) {
	t.Helper()
	assert.True(t, n.IsSealed(), "node %d", n.Seq())

	for _, iv := range n.Intervals() {
		assert.LessOrEqual(t, n.Start(), iv.Start, "node %d holds %s", n.Seq(), iv)
		assert.LessOrEqual(t, iv.End, n.End(), "node %d holds %s", n.Seq(), iv)
	}

	last := n.End()
	count := 1
	children := n.Children()
	if len(children) > 0 {
		assert.Equal(t, n.Start(), children[0].Start, "first child of node %d", n.Seq())
	}
	for k, c := range children {
		child, err := r.nodeAt(c.Seq)
		require.NoError(t, err)
		assert.Equal(t, c.Start, child.Start(), "child %d", c.Seq)
		assert.Equal(t, n.Level()-1, child.Level(), "child %d", c.Seq)
		assert.Equal(t, n.Seq(), child.ParentSeq(), "child %d", c.Seq)

		end, sub := checkSubtree(t, r, child)
		count += sub
		if end > last {
			last = end
		}
		if k+1 < len(children) {
			next := children[k+1].Start
			assert.Less(t, c.Start, next, "children of node %d out of order", n.Seq())
			assert.Less(t, end, next, "child %d overlaps its next sibling", c.Seq)
		}
	}
	return last, count
}

func TestLayoutInvariants(t *testing.T) {
	tests := []struct {
		name        string
		blockSize   int
		maxChildren int
		n           int
		maxLen      int64
	}{
		{name: "short intervals", blockSize: 256, maxChildren: 3, n: 600, maxLen: 5},
		{name: "mixed lengths", blockSize: 256, maxChildren: 4, n: 800, maxLen: 200},
		{name: "wide fan-out", blockSize: 1024, maxChildren: 16, n: 2000, maxLen: 50},
		{name: "single child", blockSize: 128, maxChildren: 1, n: 60, maxLen: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(tt.n)))
			var ivs []model.Interval
			var start int64
			for i := 0; i < tt.n; i++ {
				start += rng.Int63n(3)
				ivs = append(ivs, model.Interval{
					Start:     start,
					End:       start + rng.Int63n(tt.maxLen),
					Attribute: uint32(rng.Intn(4)),
					Value:     model.Int32Value(int32(i)),
				})
			}

			r := writeAndOpen(t, tt.blockSize, tt.maxChildren, ivs)
			root, err := r.rootNode()
			require.NoError(t, err)
			assert.Equal(t, uint32(node.NoParent), root.ParentSeq())
			assert.Equal(t, uint16(r.Header().Height-1), root.Level())

			_, count := checkSubtree(t, r, root)
			assert.Equal(t, int(r.Header().NodeCount), count)
		})
	}
}

func TestLongIntervalsKeepTreeShallow(t *testing.T) {
	const total = 20000
	ivs := make([]model.Interval, 0, total)
	for i := int64(0); i < total; i++ {
		iv := model.Interval{Start: i, End: i, Attribute: uint32(i % 7), Value: model.Int32Value(int32(i))}
		if i%100 == 0 {
			iv.End = i + 5000
			iv.Attribute = 100
		}
		ivs = append(ivs, iv)
	}

	r := writeAndOpen(t, 4096, 16, ivs)
	h := r.Header()
	assert.LessOrEqual(t, h.Height, uint32(5))
	assert.LessOrEqual(t, h.NodeCount, uint32(400))

	root, err := r.rootNode()
	require.NoError(t, err)
	_, count := checkSubtree(t, r, root)
	assert.Equal(t, int(h.NodeCount), count)

	for _, ts := range []int64{0, 99, 100, 4999, 5000, 5100, 12345, 19999, 24900} {
		jar, err := r.QueryAll(ts)
		require.NoError(t, err)
		var want []model.Interval
		for _, iv := range ivs {
			if iv.Contains(ts) {
				want = append(want, iv)
			}
		}
		assert.ElementsMatch(t, want, []model.Interval(jar), "t=%d", ts)
	}
}

func TestSplitMovesRunningIntervalsUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.ht")
	w, err := Create(&Config{FilePath: path, BlockSize: 256, MaxChildren: 4}, zap.NewNop())
	require.NoError(t, err)

	running := model.Interval{Start: 0, End: 1000, Attribute: 9, Value: model.Int32Value(-1)}
	require.NoError(t, w.Insert(running))
	for i := int64(0); w.NodeCount() == 1; i++ {
		require.NoError(t, w.Insert(model.Interval{Start: i, End: i, Attribute: 1, Value: model.Int32Value(int32(i))}))
	}

	require.Len(t, w.branch, 2)
	assert.Contains(t, w.branch[0].Intervals(), running)
	assert.NotContains(t, w.branch[1].Intervals(), running)

	sealed, err := w.nodeAt(0)
	require.NoError(t, err)
	assert.True(t, sealed.IsSealed())
	assert.Less(t, sealed.End(), w.branch[1].Start())
	require.NoError(t, w.Close(0))
}
