package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/model"
)

// FixedRecordSize is the width of one interval header in the fixed region.
//
// Layout (little endian):
//
//	[0:8)   start
//	[8:16)  end
//	[16:20) attribute
//	[20]    type tag
//	[21:24) padding
//	[24:28) inline value, or offset of the payload measured back from the block end
//	[28:32) payload length in the variable region
const FixedRecordSize = 32

// decodeFunc rebuilds a payload from its inline word and variable bytes
type decodeFunc func(inline uint32, variable []byte) (model.Value, error)

// decoderFor maps a type tag to its decoder. Unknown tags have no decoder.
func decoderFor(tag model.TypeTag) (decodeFunc, bool) {
	switch tag {
	case model.TypeNull:
		return func(uint32, []byte) (model.Value, error) { return model.NullValue(), nil }, true
	case model.TypeInt32, model.TypeUInt32, model.TypeFloat32:
		return func(inline uint32, _ []byte) (model.Value, error) {
			return model.ValueFromBits(tag, uint64(inline)), nil
		}, true
	case model.TypeInt64, model.TypeUInt64:
		return func(_ uint32, variable []byte) (model.Value, error) {
			if len(variable) != 8 {
				return model.Value{}, fmt.Errorf("%s payload is %d bytes, want 8", tag, len(variable))
			}
			return model.ValueFromBits(tag, binary.LittleEndian.Uint64(variable)), nil
		}, true
	case model.TypeString:
		return func(_ uint32, variable []byte) (model.Value, error) {
			return model.StringValue(string(variable)), nil
		}, true
	default:
		return nil, false
	}
}

// VariableSize returns the number of bytes iv needs in the variable region
func VariableSize(iv model.Interval) int {
	switch iv.Type() {
	case model.TypeInt64, model.TypeUInt64:
		return 8
	case model.TypeString:
		s, _ := iv.Value.Str()
		return len(s)
	default:
		return 0
	}
}

// Size returns the total packed size of iv across both regions
func Size(iv model.Interval) int {
	return FixedRecordSize + VariableSize(iv)
}

// Encode writes iv's fixed record at block[fixedOff:] and its variable payload, if any,
// just below the varUsed bytes already taken at the end of the block. It returns the
// new amount of variable bytes used. The caller has checked that the record fits.
func Encode(block []byte, fixedOff, varUsed int, iv model.Interval) int {
	rec := block[fixedOff : fixedOff+FixedRecordSize]
	binary.LittleEndian.PutUint64(rec[0:8], uint64(iv.Start))
	binary.LittleEndian.PutUint64(rec[8:16], uint64(iv.End))
	binary.LittleEndian.PutUint32(rec[16:20], iv.Attribute)
	rec[20] = byte(iv.Type())
	rec[21], rec[22], rec[23] = 0, 0, 0

	n := VariableSize(iv)
	if n == 0 {
		binary.LittleEndian.PutUint32(rec[24:28], uint32(iv.Value.Bits()))
		binary.LittleEndian.PutUint32(rec[28:32], 0)
		return varUsed
	}

	varUsed += n
	dst := block[len(block)-varUsed : len(block)-varUsed+n]
	if iv.Type() == model.TypeString {
		s, _ := iv.Value.Str()
		copy(dst, s)
	} else {
		binary.LittleEndian.PutUint64(dst, iv.Value.Bits())
	}
	binary.LittleEndian.PutUint32(rec[24:28], uint32(varUsed))
	binary.LittleEndian.PutUint32(rec[28:32], uint32(n))
	return varUsed
}

// Decode reads the interval whose fixed record starts at block[fixedOff:].
// varLimit is the lowest block offset the variable region may reach.
func Decode(block []byte, fixedOff, varLimit int) (model.Interval, error) {
	if fixedOff < 0 || fixedOff+FixedRecordSize > len(block) {
		return model.Interval{}, errors.CorruptedData(
			fmt.Sprintf("interval record at offset %d overruns block of %d bytes", fixedOff, len(block)), nil)
	}
	rec := block[fixedOff : fixedOff+FixedRecordSize]
	tag := model.TypeTag(rec[20])

	decode, ok := decoderFor(tag)
	if !ok {
		return model.Interval{}, errors.UnknownIntervalType(uint8(tag))
	}

	inline := binary.LittleEndian.Uint32(rec[24:28])
	length := int(binary.LittleEndian.Uint32(rec[28:32]))

	var variable []byte
	if length > 0 {
		off := int(inline)
		begin := len(block) - off
		if off < length || off > len(block) || begin < varLimit {
			return model.Interval{}, errors.CorruptedData(
				fmt.Sprintf("variable payload (offset %d, length %d) outside block", off, length), nil)
		}
		variable = block[begin : begin+length]
	}

	value, err := decode(inline, variable)
	if err != nil {
		return model.Interval{}, errors.CorruptedData("failed to decode interval payload", err)
	}

	return model.Interval{
		Start:     int64(binary.LittleEndian.Uint64(rec[0:8])),
		End:       int64(binary.LittleEndian.Uint64(rec[8:16])),
		Attribute: binary.LittleEndian.Uint32(rec[16:20]),
		Value:     value,
	}, nil
}
