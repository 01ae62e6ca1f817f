// Package queue 提供 loader 流水线里用到的三种有序缓冲区：
//
//   - Keyed: 按 key 去重、保持插入顺序、支持按区间批量取出
//   - Async: 拉取式的生产者/消费者桥 (Add 不阻塞，消费者按自己的节奏拉)
//   - Ring:  固定容量的环形缓冲，写满即阻塞 (背压)，给整条流水线一个硬内存上限
package queue

import "errors"

var (
	ErrClosed   = errors.New("queue closed")
	ErrFinished = errors.New("queue already finished")
)
