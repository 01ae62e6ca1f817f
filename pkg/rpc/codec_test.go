package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodec_Registered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, CodecName, c.Name())
}

func TestCodec_FetchResponse(t *testing.T) {
	var c Codec
	in := &FetchResponse{ID: "abc", Data: []byte{0xa1, 0x01}}

	b, err := c.Marshal(in)
	require.NoError(t, err)

	var out FetchResponse
	require.NoError(t, c.Unmarshal(b, &out))
	assert.Equal(t, *in, out)

	// 空的 Error 字段被省略
	withErr, err := c.Marshal(&FetchResponse{ID: "abc", Data: []byte{0xa1, 0x01}, Error: "x"})
	require.NoError(t, err)
	assert.Greater(t, len(withErr), len(b))
}

func TestCodec_Deterministic(t *testing.T) {
	var c Codec
	req := &FetchRequest{IDs: []string{"b", "a"}}
	b1, err := c.Marshal(req)
	require.NoError(t, err)
	b2, err := c.Marshal(req)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}
