package statemachine

import "fmt"

// CallKind 回调类型
type CallKind string

const (
	CallEntry  CallKind = "entry"
	CallExit   CallKind = "exit"
	CallGuard  CallKind = "guard"
	CallAction CallKind = "action"
)

// Call 一次回调记录
type Call struct {
	Kind   CallKind
	State  State
	Event  Event
	Guard  GuardID
	Action ActionID
	Result bool // 守卫结果
}

func (c Call) String() string {
	switch c.Kind {
	case CallEntry, CallExit:
		return fmt.Sprintf("%s %s", c.Kind, c.State)
	case CallGuard:
		return fmt.Sprintf("guard %s(%s, %s) -> %t", c.Guard, c.State, c.Event, c.Result)
	default:
		return fmt.Sprintf("action %s(%s, %s)", c.Action, c.State, c.Event)
	}
}

// Recorder 记录所有回调的 Hooks 实现，守卫和动作可以委托给自定义函数
type Recorder struct {
	Entries    []State
	Exits      []State
	Actions    []ActionID
	GuardCalls []GuardID
	Calls      []Call

	GuardFn  func(state State, event Event, guard GuardID) bool
	ActionFn func(state State, event Event, action ActionID)
	OnCall   func(call Call)
}

func (r *Recorder) OnEntry(state State) {
	r.Entries = append(r.Entries, state)
	r.record(Call{Kind: CallEntry, State: state})
}

func (r *Recorder) OnExit(state State) {
	r.Exits = append(r.Exits, state)
	r.record(Call{Kind: CallExit, State: state})
}

func (r *Recorder) Guard(state State, event Event, guard GuardID) bool {
	r.GuardCalls = append(r.GuardCalls, guard)
	ok := r.GuardFn != nil && r.GuardFn(state, event, guard)
	r.record(Call{Kind: CallGuard, State: state, Event: event, Guard: guard, Result: ok})
	return ok
}

func (r *Recorder) Action(state State, event Event, action ActionID) {
	r.Actions = append(r.Actions, action)
	r.record(Call{Kind: CallAction, State: state, Event: event, Action: action})
	if r.ActionFn != nil {
		r.ActionFn(state, event, action)
	}
}

// ResetLogs 清空记录，保留委托函数
func (r *Recorder) ResetLogs() {
	r.Entries = nil
	r.Exits = nil
	r.Actions = nil
	r.GuardCalls = nil
	r.Calls = nil
}

// Drain 取出并清空已记录的回调
func (r *Recorder) Drain() []Call {
	calls := r.Calls
	r.ResetLogs()
	return calls
}

func (r *Recorder) record(c Call) {
	r.Calls = append(r.Calls, c)
	if r.OnCall != nil {
		r.OnCall(c)
	}
}
