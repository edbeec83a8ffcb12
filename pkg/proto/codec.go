package proto

import (
	"fmt"
)

// Codec marshals query service messages for grpc
type Codec struct{}

// Name is registered as the content subtype of every call
func (Codec) Name() string {
	return "histtree"
}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("histtree codec: cannot marshal %T", v)
	}
	return m.Marshal()
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("histtree codec: cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}
