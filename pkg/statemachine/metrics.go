package statemachine

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 分发统计，作为 Observer 注册到状态机
type Metrics struct {
	totalStarts       atomic.Int64 // 启动次数
	totalEvents       atomic.Int64 // 分发事件数
	totalTransitions  atomic.Int64 // 生效转换数（含内部转换）
	totalTerminations atomic.Int64 // 终止次数
}

// MetricsSnapshot 指标快照
type MetricsSnapshot struct {
	Starts       int64
	Events       int64
	Transitions  int64
	Discarded    int64 // 未声明或守卫全部拒绝的事件
	Terminations int64
}

// NewMetrics 创建指标统计
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) OnEvent(State, Event) {
	m.totalEvents.Add(1)
}

func (m *Metrics) OnTransition(from, to State, _ Event) {
	if from == InitialPseudoState {
		m.totalStarts.Add(1)
		return
	}
	m.totalTransitions.Add(1)
	if to == FinalPseudoState {
		m.totalTerminations.Add(1)
	}
}

// Snapshot 生成快照
func (m *Metrics) Snapshot() MetricsSnapshot {
	events := m.totalEvents.Load()
	transitions := m.totalTransitions.Load()
	return MetricsSnapshot{
		Starts:       m.totalStarts.Load(),
		Events:       events,
		Transitions:  transitions,
		Discarded:    events - transitions,
		Terminations: m.totalTerminations.Load(),
	}
}

// Collector 把 Metrics 导出为 Prometheus 指标
type Collector struct {
	metrics      *Metrics
	starts       *prometheus.Desc
	events       *prometheus.Desc
	transitions  *prometheus.Desc
	discarded    *prometheus.Desc
	terminations *prometheus.Desc
}

// NewCollector 创建 Prometheus 收集器，chart 作为常量标签
func NewCollector(namespace, chart string, m *Metrics) *Collector {
	labels := prometheus.Labels{"chart": chart}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, labels)
	}
	return &Collector{
		metrics:      m,
		starts:       desc("starts_total", "Machines started."),
		events:       desc("events_total", "Events dispatched to running machines."),
		transitions:  desc("transitions_total", "Transitions taken, internal ones included."),
		discarded:    desc("discarded_total", "Events discarded without a transition."),
		terminations: desc("terminations_total", "Machines that reached the final state."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.starts
	ch <- c.events
	ch <- c.transitions
	ch <- c.discarded
	ch <- c.terminations
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.metrics.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.starts, prometheus.CounterValue, float64(s.Starts))
	ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(s.Events))
	ch <- prometheus.MustNewConstMetric(c.transitions, prometheus.CounterValue, float64(s.Transitions))
	ch <- prometheus.MustNewConstMetric(c.discarded, prometheus.CounterValue, float64(s.Discarded))
	ch <- prometheus.MustNewConstMetric(c.terminations, prometheus.CounterValue, float64(s.Terminations))
}
