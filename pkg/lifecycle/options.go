package lifecycle

import (
	"os"
	"time"

	"github.com/junbin-yang/statesurf/pkg/logger"
)

// Option 管理器配置选项
type Option func(*Manager)

// WithSignals 设置触发退出的信号，不传参数表示不监听信号
func WithSignals(signals ...os.Signal) Option {
	return func(m *Manager) {
		m.signals = signals
	}
}

// WithShutdownTimeout 设置退出超时时间
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.shutdownTimeout = timeout
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WorkerOption 协程配置选项
type WorkerOption func(*worker)

// WithStopFunc 设置停止函数，退出时按注册的逆序调用
func WithStopFunc(stop StopFunc) WorkerOption {
	return func(w *worker) {
		w.stop = stop
	}
}
