package chunker

import (
	"iter"
	"math"
)

// FastCDC 参数 (单位: 字节)
const (
	MinSize   = 4 * 1024  // 4KB
	AvgSize   = 8 * 1024  // 8KB
	MaxSize   = 64 * 1024 // 64KB
	NormLevel = 2
)

// Chunker 是一个无状态的切分工具
type Chunker struct {
	maskS uint64
	maskL uint64
}

func NewChunker() *Chunker {
	// 预计算掩码：归一化区域用更严的 maskS，之后放宽到 maskL
	bits := int(math.Round(math.Log2(float64(AvgSize))))
	return &Chunker{
		maskS: uint64(1<<(bits+NormLevel)) - 1,
		maskL: uint64(1<<(bits-NormLevel)) - 1,
	}
}

// Cut 返回每个块的结束 offset
// 最后一个切点总是 len(data)，尾部不足 MinSize 的数据自成一块
func (c *Chunker) Cut(data []byte) []int {
	var cutPoints []int
	offset := 0
	n := len(data)

	for offset < n {
		// 1. 剩余不足最小块，直接收尾
		if n-offset <= MinSize {
			return append(cutPoints, n)
		}

		// 2. 初始化状态
		// 每次新块开始，fp 重置为 0
		fp := uint64(0)
		idx := offset + MinSize

		// 确定边界
		normLimit := min(offset+AvgSize, n)
		maxLimit := min(offset+MaxSize, n)

		// 定义扫描闭包 (DRY)
		scan := func(limit int, mask uint64) bool {
			for ; idx < limit; idx++ {
				fp = (fp << 1) + gearTable[data[idx]]
				// 判断掩码
				if (fp & mask) == 0 {
					cutPoints = append(cutPoints, idx+1)
					offset = idx + 1
					return true
				}
			}
			return false
		}

		// A. 归一化区域 (严掩码)
		if scan(normLimit, c.maskS) {
			continue
		}

		// B. 普通区域 (宽掩码)
		if scan(maxLimit, c.maskL) {
			continue
		}

		// C. 强制切分
		cutPoints = append(cutPoints, maxLimit)
		offset = maxLimit
	}

	return cutPoints
}

// Split 依次产出每个块，块与 data 共享底层数组
func (c *Chunker) Split(data []byte) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		start := 0
		for _, end := range c.Cut(data) {
			if !yield(data[start:end]) {
				return
			}
			start = end
		}
	}
}
