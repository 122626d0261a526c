// Package storage provides the gRPC transport between the query core and
// the shard fleet: a fan-out Client implementing hopdb.StorageClient, a
// shard Server, and a bbolt-backed Store the server answers from.
package storage

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

// CodecName is the grpc content-subtype the shard service speaks.
const CodecName = "msgpack"

// codec marshals storage messages with MessagePack. Registering it with
// grpc's encoding registry lets the service run without generated
// protobuf stubs; clients select it per-call via CallContentSubtype.
type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal %T: %w", v, err)
	}
	return data, nil
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("storage: unmarshal %T: %w", v, err)
	}
	return nil
}

func (codec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(codec{})
}
