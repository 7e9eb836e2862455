package statemachine

import (
	"context"

	"github.com/junbin-yang/statesurf/pkg/logger"
)

// Machine 层次状态机实例
// 单协程、运行至完成，不可重入；跨协程使用请通过 AsyncMachine 或 Concurrent
type Machine struct {
	chart      *Chart
	hooks      Hooks
	state      State
	started    bool
	terminated bool
	busy       bool // 正在执行回调

	log       logger.Logger
	observers []Observer
}

// NewMachine 创建未启动的状态机，hooks 由状态机独占
func NewMachine(chart *Chart, hooks Hooks, opts ...Option) *Machine {
	if chart == nil {
		panic("statemachine: chart cannot be nil")
	}
	if hooks == nil {
		hooks = NopHooks{}
	}

	m := &Machine{
		chart: chart,
		hooks: hooks,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.reset()
	return m
}

// State 返回当前叶子状态
func (m *Machine) State() State {
	return m.state
}

// Current 返回当前状态，同 State
func (m *Machine) Current() State {
	return m.state
}

// Started 是否已启动
func (m *Machine) Started() bool {
	return m.started
}

// Terminated 是否已到达终止伪状态
func (m *Machine) Terminated() bool {
	return m.terminated
}

// Chart 返回编译后的状态图
func (m *Machine) Chart() *Chart {
	return m.chart
}

// Hooks 返回宿主对象，仅在两次分发之间检查使用
func (m *Machine) Hooks() Hooks {
	return m.hooks
}

// Can 检查当前状态是否声明了该事件，未启动时按初始叶子判断
func (m *Machine) Can(event Event) bool {
	if m.terminated {
		return false
	}
	state := m.state
	if !m.started {
		state = m.chart.tree.InitialLeaf()
	}
	return m.chart.table.Has(state, event)
}

// Reset 回到启动前，不撤销宿主已发生的副作用
func (m *Machine) Reset() error {
	if m.busy {
		return ErrReentrantDispatch
	}
	m.reset()
	return nil
}

func (m *Machine) reset() {
	m.terminated = false
	m.started = false
	m.state = InitialPseudoState
}

// Start 进入初始配置；已启动或已终止时为空操作
func (m *Machine) Start() error {
	if m.busy {
		return ErrReentrantDispatch
	}
	m.start()
	return nil
}

func (m *Machine) start() {
	if m.terminated || m.started {
		return
	}
	m.busy = true
	defer func() { m.busy = false }()

	m.started = true
	leaf := m.chart.tree.InitialLeaf()
	event := m.chart.defaultEvent
	m.notifyTransition(InitialPseudoState, leaf, event)
	m.state = leaf

	path := m.chart.startPath
	for _, a := range m.chart.initialActions {
		m.hooks.Action(path[0], event, a)
	}
	m.enter(path, m.chart.startDefaulted, event)

	if m.log != nil {
		m.log.Debug("machine started",
			logger.String("chart", m.chart.name),
			logger.String("state", string(leaf)))
	}
}

// Dispatch 分发一个事件并运行至完成
// 未声明的事件和全部守卫拒绝的事件被静默丢弃，返回 nil
func (m *Machine) Dispatch(event Event) error {
	if m.busy {
		return ErrReentrantDispatch
	}
	if m.terminated {
		return nil
	}
	if !m.started {
		m.start()
		if !m.started {
			return nil
		}
	}

	m.busy = true
	defer func() { m.busy = false }()

	m.notifyEvent(m.state, event)

	candidates := m.chart.table.Lookup(m.state, event)
	if len(candidates) == 0 {
		if m.log != nil {
			m.log.Debug("event discarded",
				logger.String("state", string(m.state)),
				logger.String("event", string(event)))
		}
		return nil
	}

	// 守卫按顺序逐个求值，第一个通过的候选生效
	for _, c := range candidates {
		if c.Guard != "" && !m.hooks.Guard(m.state, event, c.Guard) {
			continue
		}
		m.fire(c, event)
		return nil
	}

	if m.log != nil {
		m.log.Debug("all guards rejected",
			logger.String("state", string(m.state)),
			logger.String("event", string(event)),
			logger.Int("candidates", len(candidates)))
	}
	return nil
}

// Trigger 实现 StateMachine 接口
func (m *Machine) Trigger(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.Dispatch(event)
}

func (m *Machine) fire(c *Candidate, event Event) {
	from := m.state

	if c.Internal {
		m.notifyTransition(from, from, event)
		for _, a := range c.Actions {
			m.hooks.Action(from, event, a)
		}
		return
	}

	m.notifyTransition(from, c.Leaf, event)

	// 退出：从当前叶子向上到作用域（不含）
	for _, s := range c.Exits {
		for _, a := range m.chart.tree.nodes[s].Exit {
			m.hooks.Action(s, event, a)
		}
		m.hooks.OnExit(s)
	}

	// 转换动作，源状态作为上下文
	for _, a := range c.Actions {
		m.hooks.Action(from, event, a)
	}

	// 进入：从作用域的子状态向下到目标叶子
	m.enter(c.Entries, c.Defaulted, event)

	m.state = c.Leaf
	if c.Leaf == FinalPseudoState {
		m.terminated = true
	}

	if m.log != nil {
		m.log.Debug("transition",
			logger.String("from", string(from)),
			logger.String("to", string(c.Leaf)),
			logger.String("event", string(event)),
			logger.Bool("terminated", m.terminated))
	}
}

// enter 依次进入 path，defaulted 之后的状态由父状态的默认子状态选出，
// 进入前先执行父状态的初始动作
func (m *Machine) enter(path []State, defaulted int, event Event) {
	for i, s := range path {
		if parent := m.chart.tree.parent[s]; i >= defaulted && parent != root {
			for _, a := range m.chart.tree.nodes[parent].InitialActions {
				m.hooks.Action(parent, event, a)
			}
		}
		m.hooks.OnEntry(s)
		for _, a := range m.chart.tree.nodes[s].Entry {
			m.hooks.Action(s, event, a)
		}
	}
}

func (m *Machine) notifyEvent(state State, event Event) {
	for _, o := range m.observers {
		o.OnEvent(state, event)
	}
}

func (m *Machine) notifyTransition(from, to State, event Event) {
	for _, o := range m.observers {
		o.OnTransition(from, to, event)
	}
}
