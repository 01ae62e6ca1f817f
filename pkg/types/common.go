// pkg/types/common.go
package types

import "encoding/hex"

// Hash 代表 DAG 节点的唯一标识符 (内容寻址，通常是 SHA256 Hex String)
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

func (h Hash) IsZero() bool { return h == "" }

// IsValid 只认完整的 SHA256 Hex (64 字符)
// 注意：loader 本身并不强制 ID 格式，服务端和 Link 编码才需要
func (h Hash) IsValid() bool {
	if len(h) != 64 {
		return false
	}
	_, err := hex.DecodeString(string(h))
	return err == nil
}

// Short 返回前 8 个字符，用于日志和 CLI 输出
func (h Hash) Short() string {
	if len(h) <= 8 {
		return string(h)
	}
	return string(h[:8])
}

// Hashes 辅助转换 []string -> []Hash
func Hashes(ss []string) []Hash {
	out := make([]Hash, len(ss))
	for i, s := range ss {
		out[i] = Hash(s)
	}
	return out
}
