// Package proto holds the wire messages and gRPC service description of the
// history tree query service. Messages are encoded in the protobuf wire format
// described by query.proto.
package proto

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every request and response of the query service
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal(b []byte) error
}

// QueryAllRequest asks for every interval containing Timestamp
type QueryAllRequest struct {
	Timestamp int64
}

// QueryRequest asks for the most recent interval of Attribute containing Timestamp
type QueryRequest struct {
	Timestamp int64
	Attribute uint32
}

// Interval is the wire form of a stored interval. Bits holds fixed-width
// payloads, Str holds string payloads.
type Interval struct {
	Start     int64
	End       int64
	Attribute uint32
	Type      uint32
	Bits      uint64
	Str       string
}

// QueryAllResponse lists the matching intervals in visitation order
type QueryAllResponse struct {
	Intervals []*Interval
}

// QueryResponse carries the match, if any
type QueryResponse struct {
	Found    bool
	Interval *Interval
}

// StatsRequest asks for the served tree's metadata
type StatsRequest struct{}

// StatsResponse describes the served tree and its reader
type StatsResponse struct {
	FilePath      string
	BlockSize     uint32
	MaxChildren   uint32
	NodeCount     uint32
	Start         int64
	End           int64
	CacheEntries  uint32
	CacheHits     uint64
	CacheMisses   uint64
	QueuedQueries uint32
}

func (m *QueryAllRequest) Marshal() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, uint64(m.Timestamp))
	return b, nil
}

func (m *QueryAllRequest) Unmarshal(b []byte) error {
	*m = QueryAllRequest{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.VarintType {
			return consumeInt64(b, &m.Timestamp)
		}
		return 0
	})
}

func (m *QueryRequest) Marshal() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, uint64(m.Timestamp))
	b = appendVarint(b, 2, uint64(m.Attribute))
	return b, nil
}

func (m *QueryRequest) Unmarshal(b []byte) error {
	*m = QueryRequest{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			return consumeInt64(b, &m.Timestamp)
		case num == 2 && typ == protowire.VarintType:
			return consumeUint32(b, &m.Attribute)
		}
		return 0
	})
}

func (m *Interval) Marshal() ([]byte, error) {
	return m.appendTo(nil), nil
}

func (m *Interval) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.Start))
	b = appendVarint(b, 2, uint64(m.End))
	b = appendVarint(b, 3, uint64(m.Attribute))
	b = appendVarint(b, 4, uint64(m.Type))
	if m.Bits != 0 {
		b = protowire.AppendTag(b, 5, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, m.Bits)
	}
	if m.Str != "" {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendString(b, m.Str)
	}
	return b
}

func (m *Interval) Unmarshal(b []byte) error {
	*m = Interval{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			return consumeInt64(b, &m.Start)
		case num == 2 && typ == protowire.VarintType:
			return consumeInt64(b, &m.End)
		case num == 3 && typ == protowire.VarintType:
			return consumeUint32(b, &m.Attribute)
		case num == 4 && typ == protowire.VarintType:
			return consumeUint32(b, &m.Type)
		case num == 5 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			m.Bits = v
			return n
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Str = v
			return n
		}
		return 0
	})
}

func (m *QueryAllResponse) Marshal() ([]byte, error) {
	var b []byte
	for _, iv := range m.Intervals {
		b = appendMessage(b, 1, iv)
	}
	return b, nil
}

func (m *QueryAllResponse) Unmarshal(b []byte) error {
	*m = QueryAllResponse{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.BytesType {
			iv := &Interval{}
			n := consumeMessage(b, iv)
			m.Intervals = append(m.Intervals, iv)
			return n
		}
		return 0
	})
}

func (m *QueryResponse) Marshal() ([]byte, error) {
	var b []byte
	if m.Found {
		b = appendVarint(b, 1, 1)
	}
	if m.Interval != nil {
		b = appendMessage(b, 2, m.Interval)
	}
	return b, nil
}

func (m *QueryResponse) Unmarshal(b []byte) error {
	*m = QueryResponse{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Found = protowire.DecodeBool(v)
			return n
		case num == 2 && typ == protowire.BytesType:
			m.Interval = &Interval{}
			return consumeMessage(b, m.Interval)
		}
		return 0
	})
}

func (m *StatsRequest) Marshal() ([]byte, error) {
	return nil, nil
}

func (m *StatsRequest) Unmarshal(b []byte) error {
	return unmarshalFields(b, func(protowire.Number, protowire.Type, []byte) int { return 0 })
}

func (m *StatsResponse) Marshal() ([]byte, error) {
	var b []byte
	if m.FilePath != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.FilePath)
	}
	b = appendVarint(b, 2, uint64(m.BlockSize))
	b = appendVarint(b, 3, uint64(m.MaxChildren))
	b = appendVarint(b, 4, uint64(m.NodeCount))
	b = appendVarint(b, 5, uint64(m.Start))
	b = appendVarint(b, 6, uint64(m.End))
	b = appendVarint(b, 7, uint64(m.CacheEntries))
	b = appendVarint(b, 8, m.CacheHits)
	b = appendVarint(b, 9, m.CacheMisses)
	b = appendVarint(b, 10, uint64(m.QueuedQueries))
	return b, nil
}

func (m *StatsResponse) Unmarshal(b []byte) error {
	*m = StatsResponse{}
	return unmarshalFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			m.FilePath = v
			return n
		}
		if typ != protowire.VarintType {
			return 0
		}
		switch num {
		case 2:
			return consumeUint32(b, &m.BlockSize)
		case 3:
			return consumeUint32(b, &m.MaxChildren)
		case 4:
			return consumeUint32(b, &m.NodeCount)
		case 5:
			return consumeInt64(b, &m.Start)
		case 6:
			return consumeInt64(b, &m.End)
		case 7:
			return consumeUint32(b, &m.CacheEntries)
		case 8:
			return consumeUint64(b, &m.CacheHits)
		case 9:
			return consumeUint64(b, &m.CacheMisses)
		case 10:
			return consumeUint32(b, &m.QueuedQueries)
		}
		return 0
	})
}

// fieldFunc consumes the value of one field and returns its encoded length,
// a negative protowire error code, or 0 for an unknown field
func (x *QueryAllRequest) GetTimestamp() int64 {
	if x != nil {
		return x.Timestamp
	}
	return 0
}

func (x *QueryRequest) GetTimestamp() int64 {
	if x != nil {
		return x.Timestamp
	}
	return 0
}

func (x *QueryRequest) GetAttribute() uint32 {
	if x != nil {
		return x.Attribute
	}
	return 0
}

func (x *Interval) GetStart() int64 {
	if x != nil {
		return x.Start
	}
	return 0
}

func (x *Interval) GetEnd() int64 {
	if x != nil {
		return x.End
	}
	return 0
}

func (x *Interval) GetAttribute() uint32 {
	if x != nil {
		return x.Attribute
	}
	return 0
}

func (x *Interval) GetType() uint32 {
	if x != nil {
		return x.Type
	}
	return 0
}

func (x *Interval) GetBits() uint64 {
	if x != nil {
		return x.Bits
	}
	return 0
}

func (x *Interval) GetStr() string {
	if x != nil {
		return x.Str
	}
	return ""
}

func (x *QueryAllResponse) GetIntervals() []*Interval {
	if x != nil {
		return x.Intervals
	}
	return nil
}

func (x *QueryResponse) GetFound() bool {
	if x != nil {
		return x.Found
	}
	return false
}

func (x *QueryResponse) GetInterval() *Interval {
	if x != nil {
		return x.Interval
	}
	return nil
}

func (x *StatsResponse) GetFilePath() string {
	if x != nil {
		return x.FilePath
	}
	return ""
}

func (x *StatsResponse) GetBlockSize() uint32 {
	if x != nil {
		return x.BlockSize
	}
	return 0
}

func (x *StatsResponse) GetMaxChildren() uint32 {
	if x != nil {
		return x.MaxChildren
	}
	return 0
}

func (x *StatsResponse) GetNodeCount() uint32 {
	if x != nil {
		return x.NodeCount
	}
	return 0
}

func (x *StatsResponse) GetStart() int64 {
	if x != nil {
		return x.Start
	}
	return 0
}

func (x *StatsResponse) GetEnd() int64 {
	if x != nil {
		return x.End
	}
	return 0
}

func (x *StatsResponse) GetCacheEntries() uint32 {
	if x != nil {
		return x.CacheEntries
	}
	return 0
}

func (x *StatsResponse) GetCacheHits() uint64 {
	if x != nil {
		return x.CacheHits
	}
	return 0
}

func (x *StatsResponse) GetCacheMisses() uint64 {
	if x != nil {
		return x.CacheMisses
	}
	return 0
}

func (x *StatsResponse) GetQueuedQueries() uint32 {
	if x != nil {
		return x.QueuedQueries
	}
	return 0
}

type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

func unmarshalFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m := fn(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

// appendVarint appends a varint field, omitting zero values as proto3 does
func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendMessage(b []byte, num protowire.Number, iv *Interval) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, iv.appendTo(nil))
}

func consumeMessage(b []byte, iv *Interval) int {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	if err := iv.Unmarshal(v); err != nil {
		return errCodeMalformed
	}
	return n
}

// errCodeMalformed is reported for nested messages that fail to decode
const errCodeMalformed = -1

func consumeInt64(b []byte, dst *int64) int {
	v, n := protowire.ConsumeVarint(b)
	*dst = int64(v)
	return n
}

func consumeUint64(b []byte, dst *uint64) int {
	v, n := protowire.ConsumeVarint(b)
	*dst = v
	return n
}

func consumeUint32(b []byte, dst *uint32) int {
	v, n := protowire.ConsumeVarint(b)
	*dst = uint32(v)
	return n
}
