package wire

import "fmt"

// CodecName is the gRPC content-subtype used on the stream call.
const CodecName = "proto"

// Codec carries Message values over gRPC.
// It satisfies google.golang.org/grpc/encoding.Codec and is installed per call
// (grpc.ForceCodec / grpc.ForceServerCodec), never registered globally.
type Codec struct{}

// Name returns the content-subtype.
func (Codec) Name() string {
	return CodecName
}

// Marshal encodes v, which must implement Message.
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("wire: cannot marshal %T", v)
	}
	return m.Marshal()
}

// Unmarshal decodes data into v, which must implement Message.
func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("wire: cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}
