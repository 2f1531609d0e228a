package remote

import "fmt"

// wireCodec is the gRPC codec for the messages of this package. It reports
// the name "proto" since the payload is protobuf wire format; clients built
// from the equivalent .proto file interoperate with it.
type wireCodec struct{}

func (wireCodec) Name() string { return "proto" }

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("remote: cannot marshal %T", v)
	}
	return m.marshal(), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("remote: cannot unmarshal into %T", v)
	}
	return m.unmarshal(data)
}
