package proto

import (
	"context"
	"math"
	"testing"

	"github.com/devrev/histtree/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestInterval_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		iv   model.Interval
	}{
		{name: "null", iv: model.Interval{Start: 1, End: 2}},
		{name: "negative int32", iv: model.Interval{Start: -5, End: 7, Attribute: 3, Value: model.Int32Value(-42)}},
		{name: "max uint64", iv: model.Interval{Start: 0, End: math.MaxInt64 - 1, Value: model.UInt64Value(math.MaxUint64)}},
		{name: "float", iv: model.Interval{Start: 10, End: 10, Value: model.Float32Value(2.5)}},
		{name: "empty string", iv: model.Interval{Start: 1, End: 9, Attribute: 1, Value: model.StringValue("")}},
		{name: "string", iv: model.Interval{Start: math.MinInt64, End: 0, Attribute: math.MaxUint32, Value: model.StringValue("héllo")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := FromInterval(tt.iv).Marshal()
			require.NoError(t, err)

			var got Interval
			require.NoError(t, got.Unmarshal(b))
			assert.Equal(t, tt.iv, got.ToInterval())
		})
	}
}

func TestQueryAllResponse_KeepsOrder(t *testing.T) {
	jar := model.Jar{
		{Start: 3, End: 8, Attribute: 1, Value: model.Int64Value(2)},
		{Start: 0, End: 5, Attribute: 1, Value: model.Int64Value(1)},
		{Start: 6, End: 9, Attribute: 2, Value: model.StringValue("x")},
	}

	b, err := Codec{}.Marshal(FromJar(jar))
	require.NoError(t, err)

	var resp QueryAllResponse
	require.NoError(t, Codec{}.Unmarshal(b, &resp))
	assert.Equal(t, jar, resp.ToJar())
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	neg := int64(-7)
	b = protowire.AppendVarint(b, uint64(neg))
	b = protowire.AppendTag(b, 15, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 4)
	b = protowire.AppendTag(b, 16, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 1)

	var req QueryRequest
	require.NoError(t, req.Unmarshal(b))
	assert.Equal(t, QueryRequest{Timestamp: -7, Attribute: 4}, req)
}

func TestUnmarshal_Malformed(t *testing.T) {
	full, err := (&QueryResponse{Found: true, Interval: &Interval{Start: 1, End: 2, Str: "abc"}}).Marshal()
	require.NoError(t, err)

	tests := []struct {
		name string
		b    []byte
	}{
		{name: "truncated", b: full[:len(full)-1]},
		{name: "bad tag", b: []byte{0x80}},
		{name: "zero field number", b: []byte{0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp QueryResponse
			assert.Error(t, resp.Unmarshal(tt.b))
		})
	}
}

func TestStatsResponse_RoundTrip(t *testing.T) {
	want := StatsResponse{
		FilePath:      "/data/history.ht",
		BlockSize:     4096,
		MaxChildren:   50,
		NodeCount:     12,
		Start:         -100,
		End:           1 << 40,
		CacheEntries:  12,
		CacheHits:     99,
		CacheMisses:   3,
		QueuedQueries: 1,
	}
	b, err := want.Marshal()
	require.NoError(t, err)

	var got StatsResponse
	require.NoError(t, got.Unmarshal(b))
	assert.Equal(t, want, got)
}

func TestCodec_RejectsForeignTypes(t *testing.T) {
	c := Codec{}
	assert.Equal(t, "histtree", c.Name())

	_, err := c.Marshal("not a message")
	assert.Error(t, err)
	assert.Error(t, c.Unmarshal(nil, &struct{}{}))
}

func TestGetters_NilSafe(t *testing.T) {
	var resp *QueryResponse
	assert.False(t, resp.GetFound())
	assert.Nil(t, resp.GetInterval())
	assert.Equal(t, int64(0), resp.GetInterval().GetEnd())
	assert.Equal(t, model.Interval{Value: model.NullValue()}, resp.GetInterval().ToInterval())

	var all *QueryAllResponse
	assert.Empty(t, all.ToJar())

	var stats *StatsResponse
	assert.Equal(t, "", stats.GetFilePath())
	assert.Equal(t, uint32(0), stats.GetNodeCount())

	iv := &Interval{Start: 3, End: 9, Attribute: 2, Type: uint32(model.TypeString), Str: "x"}
	assert.Equal(t, "x", iv.GetStr())
	assert.Equal(t, int64(9), iv.GetEnd())
}

func TestUnimplementedQueryServiceServer(t *testing.T) {
	var srv QueryServiceServer = UnimplementedQueryServiceServer{}
	ctx := context.Background()

	_, err := srv.QueryAll(ctx, &QueryAllRequest{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
	_, err = srv.Query(ctx, &QueryRequest{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
	_, err = srv.Stats(ctx, &StatsRequest{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
