package statemachine

import "context"

// State 表示状态树中的一个节点
type State string

// Event 表示触发状态转换的事件
type Event string

// GuardID 守卫标识，由宿主在 Hooks.Guard 中求值
type GuardID string

// ActionID 动作标识，由宿主在 Hooks.Action 中执行
type ActionID string

const (
	// InitialPseudoState 启动前唯一合法的状态
	InitialPseudoState State = "InitialPseudoState"

	// FinalPseudoState 终止后唯一可达的状态，没有出向转换
	FinalPseudoState State = "FinalPseudoState"

	// InitEvent 内部探测用事件，所有状态机都认识
	InitEvent Event = "init"
)

// root 隐式根节点，不会被进入或退出
const root State = ""

// Hooks 宿主提供的能力接口，状态机在整个生命周期内独占持有
type Hooks interface {
	// OnEntry 进入状态时调用
	OnEntry(state State)

	// OnExit 退出状态时调用
	OnExit(state State)

	// Guard 求值守卫条件
	Guard(state State, event Event, guard GuardID) bool

	// Action 执行动作，可以修改宿主自己的数据
	Action(state State, event Event, action ActionID)
}

// HooksFuncs 用函数组装 Hooks，未设置的字段视为空操作，未设置的守卫返回 false
type HooksFuncs struct {
	Entry    func(state State)
	Exit     func(state State)
	GuardFn  func(state State, event Event, guard GuardID) bool
	ActionFn func(state State, event Event, action ActionID)
}

func (h HooksFuncs) OnEntry(state State) {
	if h.Entry != nil {
		h.Entry(state)
	}
}

func (h HooksFuncs) OnExit(state State) {
	if h.Exit != nil {
		h.Exit(state)
	}
}

func (h HooksFuncs) Guard(state State, event Event, guard GuardID) bool {
	if h.GuardFn == nil {
		return false
	}
	return h.GuardFn(state, event, guard)
}

func (h HooksFuncs) Action(state State, event Event, action ActionID) {
	if h.ActionFn != nil {
		h.ActionFn(state, event, action)
	}
}

// NopHooks 空实现，所有守卫均放行
type NopHooks struct{}

func (NopHooks) OnEntry(State)                    {}
func (NopHooks) OnExit(State)                     {}
func (NopHooks) Guard(State, Event, GuardID) bool { return true }
func (NopHooks) Action(State, Event, ActionID)    {}

// StateMachine 定义所有状态机驱动器共用的接口
type StateMachine interface {
	// Current 返回当前状态
	Current() State

	// Trigger 触发事件以转换状态
	Trigger(ctx context.Context, event Event) error

	// Can 检查当前状态是否声明了该事件
	Can(event Event) bool

	// Reset 重置状态机到启动前
	Reset() error
}
