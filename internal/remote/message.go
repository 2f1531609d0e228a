package remote

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire messages of slidetiles.decode.v1. Field numbers are part of the
// protocol and must not change.
//
//	message DecodeRequest  { string job_id = 1; string codec = 2; int64 max_output_size = 3; bytes input = 4; }
//	message DecodeResponse { bytes output = 1; }
//	message StatusRequest  {}
//	message StatusResponse { int64 workers = 1; int64 queued = 2; repeated string codecs = 3; }

// DecodeRequest asks the server to decode one block.
type DecodeRequest struct {
	JobID         string
	Codec         string
	MaxOutputSize int64
	Input         []byte
}

// DecodeResponse carries the decoded block.
type DecodeResponse struct {
	Output []byte
}

// StatusRequest asks for the server's pool state.
type StatusRequest struct{}

// StatusResponse describes the server's pool.
type StatusResponse struct {
	Workers int64
	Queued  int64
	Codecs  []string
}

// message is implemented by every wire message.
type message interface {
	marshal() []byte
	unmarshal(b []byte) error
}

func (m *DecodeRequest) marshal() []byte {
	var b []byte
	if m.JobID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.JobID)
	}
	if m.Codec != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, m.Codec)
	}
	if m.MaxOutputSize != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.MaxOutputSize))
	}
	if len(m.Input) > 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Input)
	}
	return b
}

func (m *DecodeRequest) unmarshal(b []byte) error {
	*m = DecodeRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			m.JobID = s
			return n
		case num == 2 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			m.Codec = s
			return n
		case num == 3 && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			m.MaxOutputSize = int64(x)
			return n
		case num == 4 && typ == protowire.BytesType:
			in, n := protowire.ConsumeBytes(v)
			m.Input = append([]byte(nil), in...)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, v)
	})
}

func (m *DecodeResponse) marshal() []byte {
	var b []byte
	if len(m.Output) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Output)
	}
	return b
}

func (m *DecodeResponse) unmarshal(b []byte) error {
	*m = DecodeResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		if num == 1 && typ == protowire.BytesType {
			out, n := protowire.ConsumeBytes(v)
			m.Output = append([]byte(nil), out...)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, v)
	})
}

func (*StatusRequest) marshal() []byte { return nil }

func (m *StatusRequest) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		return protowire.ConsumeFieldValue(num, typ, v)
	})
}

func (m *StatusResponse) marshal() []byte {
	var b []byte
	if m.Workers != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Workers))
	}
	if m.Queued != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Queued))
	}
	for _, c := range m.Codecs {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, c)
	}
	return b
}

func (m *StatusResponse) unmarshal(b []byte) error {
	*m = StatusResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			m.Workers = int64(x)
			return n
		case num == 2 && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			m.Queued = int64(x)
			return n
		case num == 3 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			m.Codecs = append(m.Codecs, s)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, v)
	})
}

// walk calls field for every field of b. field consumes the field value at
// the start of v and returns its length, or a negative protowire error code.
func walk(b []byte, field func(num protowire.Number, typ protowire.Type, v []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("remote: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		m := field(num, typ, b)
		if m < 0 {
			return fmt.Errorf("remote: bad field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
