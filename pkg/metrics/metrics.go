// Package metrics 收集 loader 流水线的运行指标
//
// 组件只依赖 Loader 接口；不需要指标时传 Noop()，没有任何开销。
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewPrometheus(reg)
//	l := loader.New(backend, dl, loader.WithMetrics(m))
package metrics

import "time"

// 节点的来源
const (
	SourceCache   = "cache"
	SourceNetwork = "network"
)

// 会话结束的方式
const (
	OutcomeCompleted = "completed"
	OutcomeCanceled  = "canceled"
	OutcomeFailed    = "failed"
)

// Loader 是 loader / downloader / deferment 上报指标的入口
type Loader interface {
	// SessionStarted / SessionFinished 记录一次 Start 的生命周期
	SessionStarted()
	SessionFinished(outcome string, duration time.Duration)

	// NodeDelivered 记录一个交付给消费者的节点
	NodeDelivered(source string)

	// FetchFailed 记录一个被跳过的 ID
	FetchFailed()

	// Evicted 记录 deferment 淘汰的条目
	Evicted(count int)

	// ObserveFetchBatch 记录一次网络批量请求
	ObserveFetchBatch(ids int, duration time.Duration, err error)

	// ObservePersist 记录一次批量写缓存
	ObservePersist(items int, duration time.Duration, err error)
}

type noop struct{}

// Noop 返回一个什么都不做的实现
func Noop() Loader { return noop{} }

func (noop) SessionStarted() {}
func (noop) SessionFinished(string, time.Duration) {}
func (noop) NodeDelivered(string) {}
func (noop) FetchFailed() {}
func (noop) Evicted(int) {}
func (noop) ObserveFetchBatch(int, time.Duration, error) {}
func (noop) ObservePersist(int, time.Duration, error) {}
