package core

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"objloader/pkg/types"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 辅助工具
// -----------------------------------------------------------------------------

// mockHash 生成一个合法的 32 字节 Hex 字符串 (64字符长度)
// 用于满足 Link 对 Hex 格式的要求
func mockHash(input string) types.Hash {
	sum := sha256.Sum256([]byte(input))
	return types.Hash(hex.EncodeToString(sum[:]))
}

// mustNewNode 创建节点，如果失败直接终止测试
func mustNewNode(t *testing.T, typ ObjectType, children []types.Hash, payload any, msgAndArgs ...any) *Node {
	t.Helper()
	n, err := NewNode(typ, children, payload)
	require.NoError(t, err, msgAndArgs...)
	return n
}
