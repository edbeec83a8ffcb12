package model

import (
	"fmt"
	"math"
)

// Timestamp is a point on the history time axis
type Timestamp = int64

// AttributeKey is the integer handle of a recorded attribute
type AttributeKey = uint32

// TypeTag identifies the payload variant of an interval
type TypeTag uint8

const (
	TypeNull    TypeTag = 0
	TypeInt32   TypeTag = 1
	TypeUInt32  TypeTag = 2
	TypeInt64   TypeTag = 3
	TypeUInt64  TypeTag = 4
	TypeString  TypeTag = 5
	TypeFloat32 TypeTag = 6
)

// String returns the lowercase name of the tag
func (t TypeTag) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeInt32:
		return "int32"
	case TypeUInt32:
		return "uint32"
	case TypeInt64:
		return "int64"
	case TypeUInt64:
		return "uint64"
	case TypeString:
		return "string"
	case TypeFloat32:
		return "float32"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseTypeTag returns the tag named name, as printed by String
func ParseTypeTag(name string) (TypeTag, bool) {
	for t := TypeNull; t <= TypeFloat32; t++ {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

// Known reports whether the tag names one of the supported payload variants
func (t TypeTag) Known() bool {
	return t <= TypeFloat32
}

// Value is the typed payload of an interval. The zero Value is Null.
type Value struct {
	tag  TypeTag
	bits uint64
	str  string
}

func NullValue() Value             { return Value{tag: TypeNull} }
func Int32Value(v int32) Value     { return Value{tag: TypeInt32, bits: uint64(uint32(v))} }
func UInt32Value(v uint32) Value   { return Value{tag: TypeUInt32, bits: uint64(v)} }
func Int64Value(v int64) Value     { return Value{tag: TypeInt64, bits: uint64(v)} }
func UInt64Value(v uint64) Value   { return Value{tag: TypeUInt64, bits: v} }
func StringValue(v string) Value   { return Value{tag: TypeString, str: v} }
func Float32Value(v float32) Value { return Value{tag: TypeFloat32, bits: uint64(math.Float32bits(v))} }

// Type returns the payload variant
func (v Value) Type() TypeTag { return v.tag }

// IsNull reports whether the value carries no payload
func (v Value) IsNull() bool { return v.tag == TypeNull }

func (v Value) Int32() (int32, bool)   { return int32(uint32(v.bits)), v.tag == TypeInt32 }
func (v Value) UInt32() (uint32, bool) { return uint32(v.bits), v.tag == TypeUInt32 }
func (v Value) Int64() (int64, bool)   { return int64(v.bits), v.tag == TypeInt64 }
func (v Value) UInt64() (uint64, bool) { return v.bits, v.tag == TypeUInt64 }
func (v Value) Str() (string, bool)    { return v.str, v.tag == TypeString }

func (v Value) Float32() (float32, bool) {
	return math.Float32frombits(uint32(v.bits)), v.tag == TypeFloat32
}

// Bits returns the raw numeric payload; zero for strings and nulls
func (v Value) Bits() uint64 { return v.bits }

// String formats the payload for logs and the CLI
func (v Value) String() string {
	switch v.tag {
	case TypeInt32:
		n, _ := v.Int32()
		return fmt.Sprintf("%d", n)
	case TypeUInt32:
		n, _ := v.UInt32()
		return fmt.Sprintf("%d", n)
	case TypeInt64:
		n, _ := v.Int64()
		return fmt.Sprintf("%d", n)
	case TypeUInt64:
		return fmt.Sprintf("%d", v.bits)
	case TypeFloat32:
		f, _ := v.Float32()
		return fmt.Sprintf("%g", f)
	case TypeString:
		return fmt.Sprintf("%q", v.str)
	default:
		return "null"
	}
}

// ValueFromBits rebuilds a fixed-width value from its raw payload
func ValueFromBits(tag TypeTag, bits uint64) Value {
	switch tag {
	case TypeInt32, TypeUInt32, TypeFloat32:
		return Value{tag: tag, bits: bits & math.MaxUint32}
	case TypeInt64, TypeUInt64:
		return Value{tag: tag, bits: bits}
	default:
		return Value{tag: TypeNull}
	}
}

// Interval records that an attribute held a value during [Start, End].
// Intervals are never mutated once handed to a tree.
type Interval struct {
	Start     Timestamp
	End       Timestamp
	Attribute AttributeKey
	Value     Value
}

// Type returns the payload variant of the interval
func (iv Interval) Type() TypeTag { return iv.Value.Type() }

// Contains reports whether t falls inside the closed range [Start, End]
func (iv Interval) Contains(t Timestamp) bool {
	return iv.Start <= t && t <= iv.End
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%d,%d] attr=%d %s=%s", iv.Start, iv.End, iv.Attribute, iv.Value.Type(), iv.Value)
}

// Less orders intervals by end time, then start time
func Less(a, b Interval) bool {
	if a.End != b.End {
		return a.End < b.End
	}
	return a.Start < b.Start
}

// Jar is a query result: intervals in the order they were visited
type Jar []Interval

// Len returns the number of intervals in the jar
func (j Jar) Len() int { return len(j) }

// ByAttribute returns the intervals recorded for attr, keeping visitation order
func (j Jar) ByAttribute(attr AttributeKey) Jar {
	var out Jar
	for _, iv := range j {
		if iv.Attribute == attr {
			out = append(out, iv)
		}
	}
	return out
}
