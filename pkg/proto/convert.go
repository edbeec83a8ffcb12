package proto

import (
	"github.com/devrev/histtree/internal/model"
)

// FromInterval converts a stored interval to its wire form
func FromInterval(iv model.Interval) *Interval {
	out := &Interval{
		Start:     iv.Start,
		End:       iv.End,
		Attribute: iv.Attribute,
		Type:      uint32(iv.Type()),
		Bits:      iv.Value.Bits(),
	}
	if s, ok := iv.Value.Str(); ok {
		out.Str = s
	}
	return out
}

// ToInterval converts a wire interval back. Unknown payload types decode as null.
func (m *Interval) ToInterval() model.Interval {
	iv := model.Interval{Start: m.GetStart(), End: m.GetEnd(), Attribute: m.GetAttribute()}
	switch typ := m.GetType(); {
	case typ == uint32(model.TypeString):
		iv.Value = model.StringValue(m.GetStr())
	case typ <= 0xFF:
		iv.Value = model.ValueFromBits(model.TypeTag(typ), m.GetBits())
	}
	return iv
}

// FromJar converts a query result to its wire form
func FromJar(jar model.Jar) *QueryAllResponse {
	resp := &QueryAllResponse{Intervals: make([]*Interval, 0, len(jar))}
	for _, iv := range jar {
		resp.Intervals = append(resp.Intervals, FromInterval(iv))
	}
	return resp
}

// ToJar converts a wire query result back, keeping its order
func (m *QueryAllResponse) ToJar() model.Jar {
	jar := make(model.Jar, 0, len(m.GetIntervals()))
	for _, iv := range m.GetIntervals() {
		jar = append(jar, iv.ToInterval())
	}
	return jar
}
