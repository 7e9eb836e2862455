// Package hsm 内置的嵌套状态机：s ⊃ {s1 ⊃ {s11}, s2 ⊃ {s21 ⊃ {s211}}}
package hsm

import (
	"sync"

	sm "github.com/junbin-yang/statesurf/pkg/statemachine"
)

// Name 状态图名称
const Name = "hsm"

// 状态
const (
	S    sm.State = "s"
	S1   sm.State = "s1"
	S11  sm.State = "s11"
	S2   sm.State = "s2"
	S21  sm.State = "s21"
	S211 sm.State = "s211"
)

// 事件
const (
	EventA         sm.Event = "A"
	EventB         sm.Event = "B"
	EventC         sm.Event = "C"
	EventD         sm.Event = "D"
	EventE         sm.Event = "E"
	EventF         sm.Event = "F"
	EventG         sm.Event = "G"
	EventH         sm.Event = "H"
	EventI         sm.Event = "I"
	EventTerminate sm.Event = "TERMINATE"
)

// 守卫
const (
	IsFooTrue  sm.GuardID = "isFooTrue"
	IsFooFalse sm.GuardID = "isFooFalse"
)

// 动作
const (
	SetFooTrue  sm.ActionID = "setFooTrue"
	SetFooFalse sm.ActionID = "setFooFalse"
)

// Definition 构造状态图声明，每次返回新的副本
func Definition() *sm.Definition {
	d := sm.NewDefinition(Name)
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	for _, n := range []struct{ state, parent sm.State }{
		{S, ""}, {S1, S}, {S11, S1}, {S2, S}, {S21, S2}, {S211, S21},
	} {
		must(d.AddState(n.state, n.parent))
	}
	must(d.SetInitial(S, S1))
	must(d.SetInitial(S1, S11))
	must(d.SetInitial(S2, S21))
	must(d.SetInitial(S21, S211))
	d.SetRootInitial(S2, SetFooFalse)

	must(d.AddTransition(S, S11, EventE))
	must(d.AddInternal(S, EventI, sm.WithGuard(IsFooTrue), sm.WithActions(SetFooFalse)))
	must(d.AddFinal(S, EventTerminate))

	must(d.AddTransition(S1, S1, EventA))
	must(d.AddTransition(S1, S11, EventB))
	must(d.AddTransition(S1, S2, EventC))
	must(d.AddTransition(S1, S, EventD, sm.WithGuard(IsFooFalse), sm.WithActions(SetFooTrue)))
	must(d.AddTransition(S1, S211, EventF))
	must(d.AddInternal(S1, EventI))

	must(d.AddTransition(S11, S1, EventD, sm.WithGuard(IsFooTrue), sm.WithActions(SetFooFalse)))
	must(d.AddTransition(S11, S211, EventG))
	must(d.AddTransition(S11, S, EventH))

	must(d.AddTransition(S2, S1, EventC))
	must(d.AddTransition(S2, S11, EventF))
	must(d.AddInternal(S2, EventI, sm.WithGuard(IsFooFalse), sm.WithActions(SetFooTrue)))

	must(d.AddTransition(S21, S21, EventA))
	must(d.AddTransition(S21, S211, EventB))
	must(d.AddTransition(S21, S1, EventG))

	must(d.AddTransition(S211, S21, EventD))
	must(d.AddTransition(S211, S, EventH))

	return d
}

var (
	chartOnce sync.Once
	chart     *sm.Chart
)

// Chart 返回编译后的状态图，所有状态机共享
func Chart() *sm.Chart {
	chartOnce.Do(func() {
		chart = Definition().MustCompile()
	})
	return chart
}

// NewMachine 创建状态机
func NewMachine(hooks sm.Hooks, opts ...sm.Option) *sm.Machine {
	return sm.NewMachine(Chart(), hooks, opts...)
}

// Host 带 foo 标志的宿主，记录所有回调
type Host struct {
	sm.Recorder
	Foo bool
}

// NewHost 创建宿主，foo 初始为 true
func NewHost() *Host {
	h := &Host{Foo: true}
	h.GuardFn = func(_ sm.State, _ sm.Event, guard sm.GuardID) bool {
		switch guard {
		case IsFooTrue:
			return h.Foo
		case IsFooFalse:
			return !h.Foo
		}
		return false
	}
	h.ActionFn = func(_ sm.State, _ sm.Event, action sm.ActionID) {
		switch action {
		case SetFooTrue:
			h.Foo = true
		case SetFooFalse:
			h.Foo = false
		}
	}
	return h
}
