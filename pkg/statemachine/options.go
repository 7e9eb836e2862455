package statemachine

import "github.com/junbin-yang/statesurf/pkg/logger"

// Option 状态机选项
type Option func(*Machine)

// WithLogger 设置调试日志输出
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		m.log = l
	}
}

// WithObserver 注册事件与转换观察者
func WithObserver(observers ...Observer) Option {
	return func(m *Machine) {
		m.observers = append(m.observers, observers...)
	}
}

// Observer 观察每次分发的事件和被执行的转换
// OnTransition 在回调之前调用，内部转换时 from == to
type Observer interface {
	OnEvent(state State, event Event)
	OnTransition(from, to State, event Event)
}
