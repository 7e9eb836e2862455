package statemachine

import (
	"fmt"
	"slices"
)

// Definition 状态图声明，Compile 后得到不可变的 Chart
type Definition struct {
	name           string
	states         []StateNode
	index          map[State]int
	initial        State      // 根节点初始目标
	initialActions []ActionID // 根节点初始动作
	transitions    []*Transition
	events         []Event
	defaultEvent   Event
}

// NewDefinition 创建状态图声明
func NewDefinition(name string) *Definition {
	return &Definition{
		name:  name,
		index: make(map[State]int),
	}
}

// Name 返回状态图名称
func (d *Definition) Name() string {
	return d.name
}

// AddState 添加状态，parent 为空表示顶层状态
func (d *Definition) AddState(state, parent State) error {
	if _, exists := d.index[state]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateState, state)
	}
	d.index[state] = len(d.states)
	d.states = append(d.states, StateNode{ID: state, Parent: parent})
	return nil
}

// SetInitial 设置复合状态的默认子状态
// actions 在经默认子状态进入时执行，状态参数为复合状态本身
func (d *Definition) SetInitial(composite, child State, actions ...ActionID) error {
	i, ok := d.index[composite]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownState, composite)
	}
	d.states[i].Initial = child
	d.states[i].InitialActions = append([]ActionID(nil), actions...)
	return nil
}

// SetRootInitial 设置启动目标及启动时执行一次的初始动作
func (d *Definition) SetRootInitial(target State, actions ...ActionID) {
	d.initial = target
	d.initialActions = append([]ActionID(nil), actions...)
}

// AddEntryAction 追加进入动作
func (d *Definition) AddEntryAction(state State, actions ...ActionID) error {
	i, ok := d.index[state]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownState, state)
	}
	d.states[i].Entry = append(d.states[i].Entry, actions...)
	return nil
}

// AddExitAction 追加退出动作
func (d *Definition) AddExitAction(state State, actions ...ActionID) error {
	i, ok := d.index[state]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownState, state)
	}
	d.states[i].Exit = append(d.states[i].Exit, actions...)
	return nil
}

// AddTransition 添加外部转换，复合目标在进入时解析到默认叶子
func (d *Definition) AddTransition(source, target State, event Event, opts ...TransitionOption) error {
	if target == "" {
		return fmt.Errorf("%w: %s on %s has no target", ErrInvalidTransition, source, event)
	}
	return d.add(&Transition{Source: source, Target: target, Event: event}, opts)
}

// AddInternal 添加内部转换
func (d *Definition) AddInternal(source State, event Event, opts ...TransitionOption) error {
	return d.add(&Transition{Source: source, Event: event, Internal: true}, opts)
}

// AddFinal 添加终止转换
func (d *Definition) AddFinal(source State, event Event, opts ...TransitionOption) error {
	return d.AddTransition(source, FinalPseudoState, event, opts...)
}

func (d *Definition) add(tr *Transition, opts []TransitionOption) error {
	if tr.Event == "" {
		return fmt.Errorf("%w: %s has a transition without event", ErrInvalidTransition, tr.Source)
	}
	if tr.Source == "" || tr.Source == InitialPseudoState || tr.Source == FinalPseudoState {
		return fmt.Errorf("%w: invalid source %q", ErrInvalidTransition, tr.Source)
	}
	for _, opt := range opts {
		opt(tr)
	}
	d.transitions = append(d.transitions, tr)
	return nil
}

// DeclareEvents 声明事件，未被任何转换使用的事件也会进入枚举
func (d *Definition) DeclareEvents(events ...Event) {
	for _, e := range events {
		if !slices.Contains(d.events, e) {
			d.events = append(d.events, e)
		}
	}
}

// SetDefaultEvent 设置启动时传给回调的默认事件
func (d *Definition) SetDefaultEvent(event Event) {
	d.defaultEvent = event
}

// States 按声明顺序返回状态节点
func (d *Definition) States() []StateNode {
	out := make([]StateNode, len(d.states))
	copy(out, d.states)
	return out
}

// Transitions 按声明顺序返回转换
func (d *Definition) Transitions() []Transition {
	out := make([]Transition, 0, len(d.transitions))
	for _, tr := range d.transitions {
		out = append(out, *tr)
	}
	return out
}

// RootInitial 返回根节点初始目标和初始动作
func (d *Definition) RootInitial() (State, []ActionID) {
	return d.initial, append([]ActionID(nil), d.initialActions...)
}

// Events 返回排序后的事件枚举，包含 InitEvent
func (d *Definition) Events() []Event {
	events := append([]Event(nil), d.events...)
	for _, tr := range d.transitions {
		if !slices.Contains(events, tr.Event) {
			events = append(events, tr.Event)
		}
	}
	if !slices.Contains(events, InitEvent) {
		events = append(events, InitEvent)
	}
	slices.Sort(events)
	return events
}

// Guards 返回排序后的守卫枚举
func (d *Definition) Guards() []GuardID {
	var guards []GuardID
	for _, tr := range d.transitions {
		if tr.Guard != "" && !slices.Contains(guards, tr.Guard) {
			guards = append(guards, tr.Guard)
		}
	}
	slices.Sort(guards)
	return guards
}

// Actions 返回排序后的动作枚举
func (d *Definition) Actions() []ActionID {
	var actions []ActionID
	add := func(list []ActionID) {
		for _, a := range list {
			if !slices.Contains(actions, a) {
				actions = append(actions, a)
			}
		}
	}
	add(d.initialActions)
	for _, n := range d.states {
		add(n.InitialActions)
		add(n.Entry)
		add(n.Exit)
	}
	for _, tr := range d.transitions {
		add(tr.Actions)
	}
	slices.Sort(actions)
	return actions
}

// Compile 校验声明并生成展开后的转换表
func (d *Definition) Compile() (*Chart, error) {
	tree, err := NewStateTree(d.states, d.initial)
	if err != nil {
		return nil, err
	}

	for _, tr := range d.transitions {
		if !tree.Contains(tr.Source) || tr.Source == FinalPseudoState {
			return nil, fmt.Errorf("%w: source %s of %s", ErrUnknownState, tr.Source, tr.Event)
		}
		if tr.Internal {
			continue
		}
		if !tree.Contains(tr.Target) {
			return nil, fmt.Errorf("%w: target %s of %s --%s-->", ErrUnknownState, tr.Target, tr.Source, tr.Event)
		}
	}

	events := d.Events()
	defaultEvent := d.defaultEvent
	if defaultEvent == "" {
		defaultEvent = InitEvent
		for _, e := range events {
			if e != InitEvent {
				defaultEvent = e
				break
			}
		}
	} else if !slices.Contains(events, defaultEvent) {
		return nil, fmt.Errorf("%w: default event %s not declared", ErrInvalidTransition, defaultEvent)
	}

	startPath := tree.AncestorChain(tree.InitialLeaf())
	slices.Reverse(startPath)
	startDefaulted := slices.Index(startPath, tree.Initial()) + 1

	c := &Chart{
		name:           d.name,
		tree:           tree,
		table:          buildTable(tree, d.transitions),
		events:         events,
		defaultEvent:   defaultEvent,
		initialActions: append([]ActionID(nil), d.initialActions...),
		startPath:      startPath,
		startDefaulted: startDefaulted,
	}
	return c, nil
}

// MustCompile 编译失败时 panic，用于编译期固定的状态图
func (d *Definition) MustCompile() *Chart {
	c, err := d.Compile()
	if err != nil {
		panic(fmt.Sprintf("statemachine: compile %s: %v", d.name, err))
	}
	return c
}

// Chart 编译后的状态图，可被多个 Machine 共享
type Chart struct {
	name           string
	tree           *StateTree
	table          *TransitionTable
	events         []Event
	defaultEvent   Event
	initialActions []ActionID
	startPath      []State
	startDefaulted int // startPath 中从该下标起经默认子状态进入
}

// Name 返回状态图名称
func (c *Chart) Name() string { return c.name }

// Tree 返回状态树
func (c *Chart) Tree() *StateTree { return c.tree }

// Table 返回展开后的转换表
func (c *Chart) Table() *TransitionTable { return c.table }

// DefaultEvent 返回启动时使用的默认事件
func (c *Chart) DefaultEvent() Event { return c.defaultEvent }

// Events 返回事件枚举
func (c *Chart) Events() []Event { return append([]Event(nil), c.events...) }

// HasEvent 事件是否属于枚举
func (c *Chart) HasEvent(e Event) bool { return slices.Contains(c.events, e) }
