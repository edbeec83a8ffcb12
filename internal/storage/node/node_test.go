package node_test

import (
	"strings"
	"testing"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLayout = node.Layout{BlockSize: 256, MaxChildren: 4}

func intInterval(start, end int64, attr uint32, v int32) model.Interval {
	return model.Interval{Start: start, End: end, Attribute: attr, Value: model.Int32Value(v)}
}

func TestLayout_Validate(t *testing.T) {
	tests := []struct {
		name    string
		layout  node.Layout
		wantErr bool
	}{
		{name: "scenario layout", layout: testLayout},
		{name: "single child", layout: node.Layout{BlockSize: 128, MaxChildren: 1}},
		{name: "no children", layout: node.Layout{BlockSize: 4096, MaxChildren: 0}, wantErr: true},
		{name: "block too small", layout: node.Layout{BlockSize: 100, MaxChildren: 4}, wantErr: true},
		{name: "block too large", layout: node.Layout{BlockSize: node.MaxBlockSize + 1, MaxChildren: 4}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.layout.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNode_PackingNeverOverflows(t *testing.T) {
	tests := []struct {
		name  string
		level uint16
		want  int
	}{
		// (256 - 44) / 32
		{name: "leaf", level: 0, want: 6},
		// (256 - 44 - 4*12) / 32
		{name: "branch", level: 1, want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := node.New(testLayout, 0, node.NoParent, tt.level, 0)
			added := 0
			for i := 0; ; i++ {
				iv := intInterval(int64(i), int64(i+1), 1, int32(i))
				if !n.CanAccept(iv) {
					break
				}
				require.NoError(t, n.Add(iv))
				assert.GreaterOrEqual(t, n.FreeBytes(), 0)
				added++
			}
			assert.Equal(t, tt.want, added)

			err := n.Add(intInterval(100, 101, 1, 0))
			assert.Error(t, err)
			assert.Equal(t, errors.ErrCodeIntervalTooLarge, errors.GetCode(err))
			assert.Equal(t, tt.want, n.IntervalCount())
		})
	}
}

func TestNode_VariableRegionAccounting(t *testing.T) {
	n := node.New(testLayout, 0, node.NoParent, 0, 0)
	big := model.Interval{Start: 0, End: 1, Attribute: 7, Value: model.StringValue(strings.Repeat("x", 100))}

	require.True(t, n.CanAccept(big))
	require.NoError(t, n.Add(big))
	assert.Equal(t, 256-44-32-100, n.FreeBytes())

	// a second 132-byte record no longer fits in the remaining 80 bytes
	assert.False(t, n.CanAccept(big))

	small := model.Interval{Start: 0, End: 1, Attribute: 7, Value: model.StringValue("abc")}
	assert.True(t, n.CanAccept(small))
	require.NoError(t, n.Add(small))
	assert.Equal(t, 256-44-64-103, n.FreeBytes())
}

func TestNode_EndTracksIntervals(t *testing.T) {
	n := node.New(testLayout, 3, 1, 0, 10)
	assert.Equal(t, int64(10), n.End())

	require.NoError(t, n.Add(intInterval(10, 15, 1, 1)))
	require.NoError(t, n.Add(intInterval(11, 12, 1, 2)))
	assert.Equal(t, int64(15), n.End())

	n.Seal()
	assert.True(t, n.IsSealed())
	assert.Equal(t, int64(15), n.End())
	for _, iv := range n.Intervals() {
		assert.LessOrEqual(t, n.Start(), iv.Start)
		assert.LessOrEqual(t, iv.End, n.End())
	}
}

func TestNode_EvictRunningIntervals(t *testing.T) {
	n := node.New(testLayout, 3, 1, 0, 10)
	short := intInterval(10, 12, 1, 1)
	long := model.Interval{Start: 11, End: 90, Attribute: 2, Value: model.StringValue("running")}
	edge := intInterval(13, 20, 1, 3)
	tail := intInterval(14, 19, 1, 4)
	for _, iv := range []model.Interval{short, long, edge, tail} {
		require.NoError(t, n.Add(iv))
	}
	before := n.FreeBytes()

	evicted, err := n.Evict(20)
	require.NoError(t, err)
	assert.Equal(t, []model.Interval{long, edge}, evicted)
	assert.Equal(t, []model.Interval{short, tail}, n.Intervals())
	assert.Equal(t, int64(19), n.End())
	assert.Equal(t, before+2*32+len("running"), n.FreeBytes())

	n.Seal()
	_, err = n.Evict(0)
	assert.Equal(t, errors.ErrCodeInternal, errors.GetCode(err))
}

func TestNode_SealEmptyClampsToStart(t *testing.T) {
	n := node.New(testLayout, 0, node.NoParent, 0, 42)
	n.Seal()
	assert.Equal(t, int64(42), n.End())
}

func TestNode_SealedIsImmutable(t *testing.T) {
	n := node.New(testLayout, 0, node.NoParent, 1, 0)
	require.NoError(t, n.Add(intInterval(0, 1, 1, 1)))
	n.Seal()

	assert.False(t, n.CanAccept(intInterval(0, 1, 1, 1)))
	assert.Error(t, n.Add(intInterval(0, 1, 1, 1)))
	assert.False(t, n.CanAcceptChild())
	assert.Error(t, n.AddChild(1, 5))
	assert.Equal(t, 1, n.IntervalCount())
}

func TestNode_Children(t *testing.T) {
	t.Run("leaf has no child slots", func(t *testing.T) {
		leaf := node.New(testLayout, 0, node.NoParent, 0, 0)
		assert.False(t, leaf.CanAcceptChild())
		err := leaf.AddChild(1, 0)
		assert.Equal(t, errors.ErrCodeNodeFull, errors.GetCode(err))
	})

	t.Run("branch fills up", func(t *testing.T) {
		branch := node.New(testLayout, 0, node.NoParent, 1, 0)
		for i := 0; i < testLayout.MaxChildren; i++ {
			require.NoError(t, branch.AddChild(uint32(i+1), int64(i*10)))
		}
		assert.False(t, branch.CanAcceptChild())
		err := branch.AddChild(9, 100)
		assert.Equal(t, errors.ErrCodeNodeFull, errors.GetCode(err))
	})

	t.Run("starts must increase", func(t *testing.T) {
		branch := node.New(testLayout, 0, node.NoParent, 1, 0)
		require.NoError(t, branch.AddChild(1, 10))
		assert.Error(t, branch.AddChild(2, 10))
		assert.Error(t, branch.AddChild(2, 5))
		assert.Equal(t, 1, branch.ChildCount())
	})
}

func TestNode_ChildAt(t *testing.T) {
	branch := node.New(testLayout, 0, node.NoParent, 1, 0)
	require.NoError(t, branch.AddChild(1, 0))
	require.NoError(t, branch.AddChild(2, 10))
	require.NoError(t, branch.AddChild(3, 20))

	tests := []struct {
		name    string
		t       int64
		wantSeq uint32
		wantOK  bool
	}{
		{name: "before first child", t: -1, wantOK: false},
		{name: "first child start", t: 0, wantSeq: 1, wantOK: true},
		{name: "inside first child", t: 9, wantSeq: 1, wantOK: true},
		{name: "second child start", t: 10, wantSeq: 2, wantOK: true},
		{name: "last child open ended", t: 1000, wantSeq: 3, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			child, ok := branch.ChildAt(tt.t)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantSeq, child.Seq)
			}
		})
	}
}

func TestNode_CollectUsesClosedRange(t *testing.T) {
	n := node.New(testLayout, 0, node.NoParent, 0, 0)
	a := intInterval(0, 5, 1, 10)
	b := intInterval(3, 8, 1, 20)
	require.NoError(t, n.Add(a))
	require.NoError(t, n.Add(b))

	assert.Equal(t, model.Jar{a, b}, n.Collect(4, nil))
	assert.Equal(t, model.Jar{a, b}, n.Collect(5, nil))
	assert.Equal(t, model.Jar{b}, n.Collect(8, nil))
	assert.Empty(t, n.Collect(9, nil))
}
