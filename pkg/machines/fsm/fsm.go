// Package fsm 内置的扁平状态机：State1 到 State5 依次推进
package fsm

import (
	"sync"

	sm "github.com/junbin-yang/statesurf/pkg/statemachine"
)

const Name = "fsm"

const (
	State1 sm.State = "State1"
	State2 sm.State = "State2"
	State3 sm.State = "State3"
	State4 sm.State = "State4"
	State5 sm.State = "State5"
)

const (
	EventA   sm.Event = "eventA"
	EventB   sm.Event = "eventB"
	EventC   sm.Event = "eventC"
	EventD   sm.Event = "eventD"
	EventFoo sm.Event = "eventFoo"
)

const (
	GuardA sm.GuardID = "guardA"
	GuardB sm.GuardID = "guardB"
)

const (
	ActionA sm.ActionID = "actionA"
	ActionB sm.ActionID = "actionB"
)

// Definition 构造状态图声明
func Definition() *sm.Definition {
	d, err := sm.NewFlatDefinition(Name, State1, State1, State2, State3, State4, State5)
	if err != nil {
		panic(err)
	}
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	must(d.AddTransition(State1, State2, EventA))
	must(d.AddInternal(State1, sm.InitEvent))
	must(d.AddInternal(State1, EventFoo))
	must(d.AddTransition(State2, State3, EventB, sm.WithGuard(GuardA)))
	must(d.AddTransition(State3, State4, EventC, sm.WithActions(ActionA)))
	must(d.AddTransition(State4, State5, EventD, sm.WithGuard(GuardB), sm.WithActions(ActionB)))
	must(d.AddInternal(State5, sm.InitEvent))

	return d
}

var (
	chartOnce sync.Once
	chart     *sm.Chart
)

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

// Host 记录回调的宿主，守卫按 Allowed 放行
type Host struct {
	sm.Recorder
	Allowed map[sm.GuardID]bool
}

// NewHost 创建宿主，allowed 中的守卫返回 true
func NewHost(allowed ...sm.GuardID) *Host {
	h := &Host{Allowed: make(map[sm.GuardID]bool)}
	for _, g := range allowed {
		h.Allowed[g] = true
	}
	h.GuardFn = func(_ sm.State, _ sm.Event, guard sm.GuardID) bool {
		return h.Allowed[guard]
	}
	return h
}
