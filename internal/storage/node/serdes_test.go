package node_test

import (
	"encoding/binary"
	"testing"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/model"
	"github.com/devrev/histtree/internal/storage/node"
	"github.com/devrev/histtree/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealedLeaf(t *testing.T) *node.Node {
	t.Helper()
	n := node.New(testLayout, 7, 2, 0, 100)
	require.NoError(t, n.Add(intInterval(100, 150, 1, -3)))
	require.NoError(t, n.Add(model.Interval{Start: 101, End: 102, Attribute: 2, Value: model.StringValue("running")}))
	require.NoError(t, n.Add(model.Interval{Start: 103, End: 120, Attribute: 3, Value: model.Float32Value(1.5)}))
	require.NoError(t, n.Add(model.Interval{Start: 104, End: 104, Attribute: 4, Value: model.NullValue()}))
	n.Seal()
	return n
}

func TestEncodeDecode_Leaf(t *testing.T) {
	n := sealedLeaf(t)

	block, err := n.Encode()
	require.NoError(t, err)
	require.Len(t, block, testLayout.BlockSize)

	decoded, err := node.Decode(testLayout, block)
	require.NoError(t, err)

	assert.Equal(t, n.Summary(), decoded.Summary())
	assert.Equal(t, n.Intervals(), decoded.Intervals())
	assert.True(t, decoded.IsSealed())
}

func TestEncodeDecode_Branch(t *testing.T) {
	n := node.New(testLayout, 0, node.NoParent, 2, 0)
	require.NoError(t, n.AddChild(1, 0))
	require.NoError(t, n.AddChild(5, 40))
	require.NoError(t, n.Add(model.Interval{Start: 3, End: 90, Attribute: 9, Value: model.Int64Value(-1 << 40)}))
	require.NoError(t, n.Add(model.Interval{Start: 4, End: 91, Attribute: 9, Value: model.UInt64Value(1 << 63)}))
	n.Seal()

	block, err := n.Encode()
	require.NoError(t, err)

	decoded, err := node.Decode(testLayout, block)
	require.NoError(t, err)
	assert.Equal(t, model.NodeKindBranch, decoded.Kind())
	assert.Equal(t, n.Children(), decoded.Children())
	assert.Equal(t, n.Intervals(), decoded.Intervals())
	assert.Equal(t, uint32(node.NoParent), decoded.ParentSeq())
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(block []byte) []byte
		want    errors.ErrorCode
	}{
		{
			name:    "short block",
			corrupt: func(block []byte) []byte { return block[:100] },
			want:    errors.ErrCodeCorruptedData,
		},
		{
			name: "flipped payload byte",
			corrupt: func(block []byte) []byte {
				block[len(block)-1] ^= 0xFF
				return block
			},
			want: errors.ErrCodeChecksumFailed,
		},
		{
			name: "unknown node type",
			corrupt: func(block []byte) []byte {
				block[27] = 9
				util.StampBlock(block, 40)
				return block
			},
			want: errors.ErrCodeUnknownNodeType,
		},
		{
			name: "unknown interval type",
			corrupt: func(block []byte) []byte {
				block[node.HeaderSize+20] = 200
				util.StampBlock(block, 40)
				return block
			},
			want: errors.ErrCodeUnknownIntervalType,
		},
		{
			name: "interval count past block",
			corrupt: func(block []byte) []byte {
				binary.LittleEndian.PutUint32(block[28:], 1000)
				util.StampBlock(block, 40)
				return block
			},
			want: errors.ErrCodeCorruptedData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block, err := sealedLeaf(t).Encode()
			require.NoError(t, err)

			_, err = node.Decode(testLayout, tt.corrupt(block))
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.GetCode(err))
			assert.True(t, errors.IsFormatError(err))
		})
	}
}
