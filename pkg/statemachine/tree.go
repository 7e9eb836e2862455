package statemachine

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"
)

// StateNode 状态树中的一个节点声明
type StateNode struct {
	ID             State      // 状态标识
	Parent         State      // 父状态，空表示挂在隐式根节点下
	Initial        State      // 默认子状态，复合状态必填
	InitialActions []ActionID // 经默认子状态进入时执行，在子状态 OnEntry 之前
	Entry          []ActionID // 进入动作，在 OnEntry 之后执行
	Exit           []ActionID // 退出动作，在 OnExit 之前执行
}

// StateTree 不可变的状态层次结构
type StateTree struct {
	nodes    map[State]*StateNode
	order    []State           // 声明顺序
	parent   map[State]State   // 状态的父状态
	children map[State][]State // 状态的子状态
	initial  State             // 根节点的初始目标，可以是任意深度的状态
}

// NewStateTree 校验并构造状态树
// initial 为空时使用第一个顶层状态
func NewStateTree(nodes []StateNode, initial State) (*StateTree, error) {
	t := &StateTree{
		nodes:    make(map[State]*StateNode, len(nodes)+1),
		order:    make([]State, 0, len(nodes)+1),
		parent:   make(map[State]State, len(nodes)+1),
		children: make(map[State][]State),
	}

	// 父子关系必须构成一棵树，借助带环检测的有向图校验
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())

	for i := range nodes {
		n := nodes[i]
		switch n.ID {
		case root:
			return nil, fmt.Errorf("%w: empty state id", ErrMalformedStateTree)
		case InitialPseudoState, FinalPseudoState:
			return nil, fmt.Errorf("%w: %s is reserved", ErrMalformedStateTree, n.ID)
		}
		if err := g.AddVertex(string(n.ID)); err != nil {
			if errors.Is(err, graph.ErrVertexAlreadyExists) {
				return nil, fmt.Errorf("%w: state %s declared twice", ErrMalformedStateTree, n.ID)
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformedStateTree, err)
		}
		n.InitialActions = append([]ActionID(nil), n.InitialActions...)
		n.Entry = append([]ActionID(nil), n.Entry...)
		n.Exit = append([]ActionID(nil), n.Exit...)
		t.nodes[n.ID] = &n
		t.order = append(t.order, n.ID)
	}

	for _, id := range t.order {
		n := t.nodes[id]
		t.parent[id] = n.Parent
		t.children[n.Parent] = append(t.children[n.Parent], id)
		if n.Parent == root {
			continue
		}
		if err := g.AddEdge(string(id), string(n.Parent)); err != nil {
			switch {
			case errors.Is(err, graph.ErrVertexNotFound):
				return nil, fmt.Errorf("%w: parent %s of %s not declared", ErrMalformedStateTree, n.Parent, id)
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				return nil, fmt.Errorf("%w: cycle through %s", ErrMalformedStateTree, id)
			default:
				return nil, fmt.Errorf("%w: %v", ErrMalformedStateTree, err)
			}
		}
	}

	for _, id := range t.order {
		n := t.nodes[id]
		if len(t.children[id]) == 0 {
			if n.Initial != root {
				return nil, fmt.Errorf("%w: leaf %s has initial %s", ErrMalformedStateTree, id, n.Initial)
			}
			if len(n.InitialActions) > 0 {
				return nil, fmt.Errorf("%w: leaf %s has initial actions", ErrMalformedStateTree, id)
			}
			continue
		}
		if n.Initial == root {
			return nil, fmt.Errorf("%w: composite %s has no initial state", ErrMalformedStateTree, id)
		}
		if t.parent[n.Initial] != id || t.nodes[n.Initial] == nil {
			return nil, fmt.Errorf("%w: initial %s is not a child of %s", ErrMalformedStateTree, n.Initial, id)
		}
	}

	if len(t.children[root]) == 0 {
		return nil, fmt.Errorf("%w: no states", ErrMalformedStateTree)
	}
	if initial == root {
		initial = t.children[root][0]
	}
	if _, ok := t.nodes[initial]; !ok {
		return nil, fmt.Errorf("%w: initial target %s not declared", ErrMalformedStateTree, initial)
	}
	t.initial = initial

	// 终止伪状态挂在根节点下
	t.nodes[FinalPseudoState] = &StateNode{ID: FinalPseudoState}
	t.order = append(t.order, FinalPseudoState)
	t.parent[FinalPseudoState] = root
	t.children[root] = append(t.children[root], FinalPseudoState)

	return t, nil
}

// Contains 状态是否属于这棵树
func (t *StateTree) Contains(s State) bool {
	_, ok := t.nodes[s]
	return ok
}

// Node 返回状态节点声明
func (t *StateTree) Node(s State) (StateNode, bool) {
	n, ok := t.nodes[s]
	if !ok {
		return StateNode{}, false
	}
	return *n, true
}

// Parent 返回父状态，顶层状态返回空
func (t *StateTree) Parent(s State) State {
	return t.parent[s]
}

// Children 返回直接子状态
func (t *StateTree) Children(s State) []State {
	return append([]State(nil), t.children[s]...)
}

// TopLevel 返回挂在根节点下的状态
func (t *StateTree) TopLevel() []State {
	return t.Children(root)
}

// Initial 返回根节点的初始目标
func (t *StateTree) Initial() State {
	return t.initial
}

// IsComposite 是否为复合状态
func (t *StateTree) IsComposite(s State) bool {
	return s != root && len(t.children[s]) > 0
}

// IsLeaf 是否为叶子状态
func (t *StateTree) IsLeaf(s State) bool {
	return t.Contains(s) && len(t.children[s]) == 0
}

// States 按声明顺序返回所有状态，终止伪状态在最后
func (t *StateTree) States() []State {
	return append([]State(nil), t.order...)
}

// Leaves 按声明顺序返回所有叶子状态
func (t *StateTree) Leaves() []State {
	leaves := make([]State, 0, len(t.order))
	for _, s := range t.order {
		if len(t.children[s]) == 0 {
			leaves = append(leaves, s)
		}
	}
	return leaves
}

// AncestorChain 从 s 向上到根（不含根）的链，最内层在前
func (t *StateTree) AncestorChain(s State) []State {
	var chain []State
	for cur := s; cur != root; cur = t.parent[cur] {
		chain = append(chain, cur)
	}
	return chain
}

// DefaultLeaf 沿默认子状态一直走到叶子，叶子返回自身
func (t *StateTree) DefaultLeaf(s State) State {
	if s == root {
		s = t.initial
	}
	for t.IsComposite(s) {
		s = t.nodes[s].Initial
	}
	return s
}

// InitialLeaf 启动时进入的叶子状态
func (t *StateTree) InitialLeaf() State {
	return t.DefaultLeaf(root)
}

// IsAncestor anc 是否为 s 的真祖先
func (t *StateTree) IsAncestor(anc, s State) bool {
	if anc == s {
		return false
	}
	for cur := t.parent[s]; cur != root; cur = t.parent[cur] {
		if cur == anc {
			return true
		}
	}
	return anc == root
}

// LCA 最近公共祖先（包含自身），没有更近的返回根节点（空）
func (t *StateTree) LCA(a, b State) State {
	seen := make(map[State]struct{})
	for _, s := range t.AncestorChain(a) {
		seen[s] = struct{}{}
	}
	for _, s := range t.AncestorChain(b) {
		if _, ok := seen[s]; ok {
			return s
		}
	}
	return root
}

// domain 计算转换的作用域：退出链与进入链都在它之下
func (t *StateTree) domain(source, target State) State {
	switch {
	case target == FinalPseudoState:
		return root
	case source == target:
		return t.parent[source]
	case t.IsAncestor(target, source):
		return target
	case t.IsAncestor(source, target):
		return source
	default:
		return t.LCA(source, target)
	}
}

// pathBelow 截取 s 的祖先链中位于 top 之下的部分，最内层在前
func (t *StateTree) pathBelow(s, top State) []State {
	var path []State
	for cur := s; cur != root && cur != top; cur = t.parent[cur] {
		path = append(path, cur)
	}
	return path
}
