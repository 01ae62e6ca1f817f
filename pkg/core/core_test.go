package core

import (
	"encoding/hex"
	"testing"

	"objloader/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 1. Link 测试
// -----------------------------------------------------------------------------

func TestLink_Marshal_Compliance(t *testing.T) {
	link := NewLink(mockHash("test-content"))

	data, err := link.MarshalCBOR()
	require.NoError(t, err)

	// Tag 42 (0xd82a) + ByteString 33 bytes (0x5821) + Prefix (0x00)
	expectedPrefix := "d82a582100"
	encodedHex := hex.EncodeToString(data)

	assert.Equal(t, expectedPrefix, encodedHex[:10], "Link 序列化必须包含 Tag 42 和 0x00 前缀")
}

func TestLink_Unmarshal_RoundTrip(t *testing.T) {
	originalHash := mockHash("round-trip-test")
	link := NewLink(originalHash)

	data, err := link.MarshalCBOR()
	require.NoError(t, err)

	var l2 Link
	require.NoError(t, l2.UnmarshalCBOR(data))
	assert.Equal(t, originalHash, l2.Hash)
}

func TestLink_Unmarshal_Strictness(t *testing.T) {
	// Case A: 缺少 0x00 前缀
	badPrefixHex := "d82a5820" + string(mockHash("bad"))
	badPrefixBytes, _ := hex.DecodeString(badPrefixHex)

	var l Link
	err := l.UnmarshalCBOR(badPrefixBytes)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing 0x00 multibase prefix")

	// Case B: 错误的 Tag (不是 42)
	wrongTagHex := "d82b582100" + string(mockHash("wrong"))
	wrongTagBytes, _ := hex.DecodeString(wrongTagHex)
	assert.Error(t, l.UnmarshalCBOR(wrongTagBytes))
}

func TestLink_Marshal_RejectsNonHex(t *testing.T) {
	_, err := NewLink("childA").MarshalCBOR()
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------
// 2. 节点：确定性哈希 & 内容寻址
// -----------------------------------------------------------------------------

func TestNode_CanonicalHash(t *testing.T) {
	payload := map[string]any{"name": "beam", "z": 1, "a": 2}
	children := []types.Hash{mockHash("c1"), mockHash("c2")}

	n1 := mustNewNode(t, TypeTree, children, payload)
	n2 := mustNewNode(t, TypeTree, children, payload)

	// 同样的内容 -> 同样的 ID (map key 顺序不影响结果)
	assert.Equal(t, n1.ID(), n2.ID(), "Merkle DAG 哈希计算必须具备确定性")
	assert.True(t, n1.ID().IsValid())

	// 不同的子节点 -> 不同的 ID
	n3 := mustNewNode(t, TypeTree, children[:1], payload)
	assert.NotEqual(t, n1.ID(), n3.ID())
}

func TestNode_DecodeRoundTrip(t *testing.T) {
	type meta struct {
		Name string `cbor:"n"`
		Size int64  `cbor:"s"`
	}
	orig := mustNewNode(t, TypeFile, []types.Hash{mockHash("chunk1")}, meta{Name: "a.bin", Size: 42})

	raw, err := orig.Bytes()
	require.NoError(t, err)

	decoded, err := DecodeNode(orig.ID(), raw)
	require.NoError(t, err)

	assert.Equal(t, orig.ID(), decoded.ID())
	assert.Equal(t, TypeFile, decoded.Type())
	assert.Equal(t, []types.Hash{mockHash("chunk1")}, decoded.Children())
	require.NoError(t, decoded.Verify())

	var m meta
	require.NoError(t, decoded.DecodePayload(&m))
	assert.Equal(t, "a.bin", m.Name)
	assert.Equal(t, int64(42), m.Size)
}

func TestNode_VerifyDetectsTampering(t *testing.T) {
	orig := mustNewNode(t, TypeChunk, nil, []byte("hello"))
	raw, err := orig.Bytes()
	require.NoError(t, err)

	// 用别人的 ID 解码 -> 校验失败
	forged, err := DecodeNode(mockHash("someone-else"), raw)
	require.NoError(t, err)
	assert.ErrorIs(t, forged.Verify(), ErrHashMismatch)
}

func TestDecodeNode_EmptyID(t *testing.T) {
	_, err := DecodeNode("", []byte{0xa0})
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestNode_ApproxSize(t *testing.T) {
	small := NewNodeWithID("a", "X")
	big := NewNodeWithID("b", "X", "c1", "c2", "c3")
	assert.Greater(t, small.ApproxSize(), int64(0))
	assert.Greater(t, big.ApproxSize(), small.ApproxSize())
}

// -----------------------------------------------------------------------------
// 3. Item 校验
// -----------------------------------------------------------------------------

func TestItem_Validate(t *testing.T) {
	n := NewNodeWithID("root", "X")

	assert.NoError(t, NewItem(n).Validate())
	assert.ErrorIs(t, Item{BaseID: "other", Base: n}.Validate(), ErrIDMismatch)
	assert.ErrorIs(t, Item{BaseID: "root"}.Validate(), ErrIDMismatch)
	assert.ErrorIs(t, Item{BaseID: "", Base: NewNodeWithID("", "X")}.Validate(), ErrIDMismatch)
}
