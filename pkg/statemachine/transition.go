package statemachine

import "slices"

// Transition 声明在某个状态上的转换规则
type Transition struct {
	Source   State      // 声明转换的状态
	Event    Event      // 触发事件
	Guard    GuardID    // 守卫条件，空表示无条件
	Actions  []ActionID // 按顺序执行的动作
	Target   State      // 目标状态，FinalPseudoState 表示终止
	Internal bool       // 内部转换：只执行动作，不退出也不进入
}

// TransitionOption 转换声明选项
type TransitionOption func(*Transition)

// WithGuard 设置守卫条件
func WithGuard(guard GuardID) TransitionOption {
	return func(t *Transition) {
		t.Guard = guard
	}
}

// WithActions 追加动作
func WithActions(actions ...ActionID) TransitionOption {
	return func(t *Transition) {
		t.Actions = append(t.Actions, actions...)
	}
}

// Candidate 展开到叶子状态后的候选转换，退出链和进入链已预先计算
type Candidate struct {
	Transition

	Leaf      State   // 目标叶子（复合目标沿默认子状态解析）
	Exits     []State // 最内层在前
	Entries   []State // 最外层在前
	Defaulted int     // Entries 中从该下标起经默认子状态进入
}

// transitionKey 唯一标识一组候选转换
type transitionKey struct {
	from  State
	event Event
}

// TransitionTable (叶子状态, 事件) 到有序候选列表的映射
type TransitionTable struct {
	rows map[transitionKey][]*Candidate
}

// Lookup 返回候选转换，顺序即求值顺序
func (t *TransitionTable) Lookup(state State, event Event) []*Candidate {
	return t.rows[transitionKey{from: state, event: event}]
}

// Has 是否存在 (state, event) 条目
func (t *TransitionTable) Has(state State, event Event) bool {
	_, ok := t.rows[transitionKey{from: state, event: event}]
	return ok
}

// Len 条目数量
func (t *TransitionTable) Len() int {
	return len(t.rows)
}

// Events 返回在 state 上有条目的事件
func (t *TransitionTable) Events(state State) []Event {
	var events []Event
	for k := range t.rows {
		if k.from == state {
			events = append(events, k.event)
		}
	}
	slices.Sort(events)
	return events
}

// buildTable 把声明在任意层级的转换展开到每个叶子状态
// 同一事件的候选按声明状态由内到外排列，同一状态内保持声明顺序
func buildTable(tree *StateTree, transitions []*Transition) *TransitionTable {
	bySource := make(map[State][]*Transition)
	for _, tr := range transitions {
		bySource[tr.Source] = append(bySource[tr.Source], tr)
	}

	table := &TransitionTable{rows: make(map[transitionKey][]*Candidate)}
	for _, leaf := range tree.Leaves() {
		if leaf == FinalPseudoState {
			continue
		}
		for _, src := range tree.AncestorChain(leaf) {
			for _, tr := range bySource[src] {
				key := transitionKey{from: leaf, event: tr.Event}
				table.rows[key] = append(table.rows[key], newCandidate(tree, leaf, tr))
			}
		}
	}
	return table
}

func newCandidate(tree *StateTree, leaf State, tr *Transition) *Candidate {
	c := &Candidate{Transition: *tr}
	c.Actions = append([]ActionID(nil), tr.Actions...)
	if tr.Internal {
		c.Leaf = leaf
		return c
	}

	c.Leaf = tree.DefaultLeaf(tr.Target)
	top := tree.domain(tr.Source, tr.Target)
	c.Exits = tree.pathBelow(leaf, top)

	entries := tree.pathBelow(c.Leaf, top)
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	c.Entries = entries
	c.Defaulted = slices.Index(entries, tr.Target) + 1
	return c
}
