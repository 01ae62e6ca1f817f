package rpc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

// CodecName 是 gRPC content-subtype，线上 Content-Type 为 application/grpc+cbor
const CodecName = "cbor"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("rpc: failed to init cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("rpc: failed to init cbor dec mode: %v", err))
	}
	encoding.RegisterCodec(Codec{})
}

// Codec 用 CBOR 代替 protobuf 作为 gRPC 的消息编码
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

func (Codec) Name() string { return CodecName }
