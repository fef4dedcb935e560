// Package wire provides the gRPC codec shared by the broker and manager RPC
// surfaces. Both services exchange plain Go structs rather than
// protoc-generated messages, so encoding is done with msgpack instead of the
// default protobuf wire format.
package wire

import (
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype this codec registers under
// ("application/grpc+msgpack" on the wire).
const CodecName = "msgpack"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec implements google.golang.org/grpc/encoding.Codec using msgpack.
type Codec struct{}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}
