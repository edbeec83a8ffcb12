package main

import (
	"fmt"

	"github.com/devrev/histtree/internal/model"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// record is the JSON-lines form of an interval used by import and query
type record struct {
	Start     int64               `json:"start"`
	End       int64               `json:"end"`
	Attribute uint32              `json:"attribute"`
	Type      string              `json:"type,omitempty"`
	Value     jsoniter.RawMessage `json:"value,omitempty"`
}

func parseRecord(line []byte) (model.Interval, error) {
	var r record
	if err := json.Unmarshal(line, &r); err != nil {
		return model.Interval{}, err
	}

	iv := model.Interval{Start: r.Start, End: r.End, Attribute: r.Attribute}
	if r.Type == "" {
		r.Type = model.TypeNull.String()
	}
	tag, ok := model.ParseTypeTag(r.Type)
	if !ok {
		return model.Interval{}, fmt.Errorf("unknown value type %q", r.Type)
	}
	if tag != model.TypeNull && len(r.Value) == 0 {
		return model.Interval{}, fmt.Errorf("missing value for type %s", tag)
	}

	var err error
	switch tag {
	case model.TypeInt32:
		var v int32
		err = json.Unmarshal(r.Value, &v)
		iv.Value = model.Int32Value(v)
	case model.TypeUInt32:
		var v uint32
		err = json.Unmarshal(r.Value, &v)
		iv.Value = model.UInt32Value(v)
	case model.TypeInt64:
		var v int64
		err = json.Unmarshal(r.Value, &v)
		iv.Value = model.Int64Value(v)
	case model.TypeUInt64:
		var v uint64
		err = json.Unmarshal(r.Value, &v)
		iv.Value = model.UInt64Value(v)
	case model.TypeFloat32:
		var v float32
		err = json.Unmarshal(r.Value, &v)
		iv.Value = model.Float32Value(v)
	case model.TypeString:
		var v string
		err = json.Unmarshal(r.Value, &v)
		iv.Value = model.StringValue(v)
	}
	if err != nil {
		return model.Interval{}, fmt.Errorf("bad %s value %s: %w", tag, r.Value, err)
	}
	return iv, nil
}

func formatRecord(iv model.Interval) ([]byte, error) {
	r := record{Start: iv.Start, End: iv.End, Attribute: iv.Attribute, Type: iv.Type().String()}

	var v interface{}
	switch iv.Type() {
	case model.TypeInt32:
		v, _ = iv.Value.Int32()
	case model.TypeUInt32:
		v, _ = iv.Value.UInt32()
	case model.TypeInt64:
		v, _ = iv.Value.Int64()
	case model.TypeUInt64:
		v, _ = iv.Value.UInt64()
	case model.TypeFloat32:
		v, _ = iv.Value.Float32()
	case model.TypeString:
		v, _ = iv.Value.Str()
	}
	if v != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		r.Value = raw
	}
	return json.Marshal(r)
}
