// Package chart 从 PlantUML 状态图或 YAML 描述加载状态机声明，并渲染为图形描述
package chart

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	sm "github.com/junbin-yang/statesurf/pkg/statemachine"
)

var (
	// ErrSyntax 无法识别的语句
	ErrSyntax = errors.New("chart syntax error")

	// ErrUnsupported 语法合法但不支持的写法
	ErrUnsupported = errors.New("unsupported chart construct")
)

const (
	ident        = `[A-Za-z_]\w*`
	arrow        = `-+(?:left|right|up|down|l|r|u|d)?-*>`
	labelPattern = `(?:\s*:\s*(` + ident + `)?(?:\s*\[([^\]]+)\])?(?:\s*/\s*(` + ident + `(?:\s*,\s*` + ident + `)*)?)?)?`
)

var (
	reStateOpen  = regexp.MustCompile(`^state\s+(` + ident + `)(?:\s+as\s+"[^"]*")?\s*\{$`)
	reStateDecl  = regexp.MustCompile(`^state\s+(` + ident + `)(?:\s+as\s+"[^"]*")?$`)
	reClose      = regexp.MustCompile(`^\}$`)
	reInitial    = regexp.MustCompile(`^\[\*\]\s*` + arrow + `\s*(` + ident + `)` + labelPattern + `$`)
	reEntryExit  = regexp.MustCompile(`^(` + ident + `)\s*:\s*(entry|exit)(?:\s*/\s*(` + ident + `(?:\s*,\s*` + ident + `)*))?$`)
	reTransition = regexp.MustCompile(`^(` + ident + `)\s*` + arrow + `\s*(` + ident + `|\[\*\])` + labelPattern + `$`)
	reInternal   = regexp.MustCompile(`^(` + ident + `)\s*:\s*(` + ident + `)(?:\s*\[([^\]]+)\])?(?:\s*/\s*(` + ident + `(?:\s*,\s*` + ident + `)*)?)?$`)
)

// pumlNode 解析过程中的状态节点
type pumlNode struct {
	name           string
	parent         string
	declared       bool // 显式声明过，之前只被引用的节点在声明时重新挂载
	initial        string
	initialActions []sm.ActionID
	entry          []sm.ActionID
	exit           []sm.ActionID
}

type pumlTransition struct {
	line     int
	source   string
	target   string // 空表示终止
	event    string
	guard    string
	actions  []sm.ActionID
	internal bool
}

type pumlModel struct {
	nodes          map[string]*pumlNode
	order          []string
	initial        string
	initialActions []sm.ActionID
	transitions    []pumlTransition
}

// ParsePlantUML 解析 PlantUML 状态图
//
// 支持的语句：
//
//	state s1 {            复合状态
//	[*] --> s11 : / act   默认子状态及初始动作
//	s1 : entry / act      进入、退出动作
//	s1 --> s2 : E [g] / a 外部转换，目标为 [*] 表示终止
//	s1 : E [g] / a        内部转换
//
// 注释、@startuml、skinparam 等行被忽略
func ParsePlantUML(r io.Reader, name string) (*sm.Definition, error) {
	m := &pumlModel{nodes: make(map[string]*pumlNode)}
	stack := []string{""}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if skipLine(line) {
			continue
		}
		scope := stack[len(stack)-1]

		if mo := reStateOpen.FindStringSubmatch(line); mo != nil {
			m.declare(mo[1], scope)
			stack = append(stack, mo[1])
			continue
		}
		if mo := reStateDecl.FindStringSubmatch(line); mo != nil {
			m.declare(mo[1], scope)
			continue
		}
		if reClose.MatchString(line) {
			if len(stack) == 1 {
				return nil, fmt.Errorf("%w: line %d: unbalanced }", ErrSyntax, lineNo)
			}
			stack = stack[:len(stack)-1]
			continue
		}
		if mo := reInitial.FindStringSubmatch(line); mo != nil {
			if mo[2] != "" || mo[3] != "" {
				return nil, fmt.Errorf("%w: line %d: initial transition with event or guard", ErrUnsupported, lineNo)
			}
			m.ensure(mo[1], scope)
			actions := splitActions(mo[4])
			if scope == "" {
				m.initial = mo[1]
				m.initialActions = actions
			} else {
				m.nodes[scope].initial = mo[1]
				m.nodes[scope].initialActions = actions
			}
			continue
		}
		if mo := reEntryExit.FindStringSubmatch(line); mo != nil {
			n := m.ensure(mo[1], scope)
			if mo[2] == "entry" {
				n.entry = append(n.entry, splitActions(mo[3])...)
			} else {
				n.exit = append(n.exit, splitActions(mo[3])...)
			}
			continue
		}
		if mo := reTransition.FindStringSubmatch(line); mo != nil {
			if mo[3] == "" {
				return nil, fmt.Errorf("%w: line %d: transition without event", ErrUnsupported, lineNo)
			}
			m.ensure(mo[1], scope)
			target := mo[2]
			if target == "[*]" {
				target = ""
			} else {
				m.ensure(target, scope)
			}
			m.transitions = append(m.transitions, pumlTransition{
				line:    lineNo,
				source:  mo[1],
				target:  target,
				event:   mo[3],
				guard:   strings.TrimSpace(mo[4]),
				actions: splitActions(mo[5]),
			})
			continue
		}
		if mo := reInternal.FindStringSubmatch(line); mo != nil {
			m.ensure(mo[1], scope)
			m.transitions = append(m.transitions, pumlTransition{
				line:     lineNo,
				source:   mo[1],
				event:    mo[2],
				guard:    strings.TrimSpace(mo[3]),
				actions:  splitActions(mo[4]),
				internal: true,
			})
			continue
		}
		if strings.Contains(line, "->") || strings.HasPrefix(line, "state ") {
			return nil, fmt.Errorf("%w: line %d: %q", ErrSyntax, lineNo, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: unclosed state %s", ErrSyntax, stack[len(stack)-1])
	}

	return m.definition(name)
}

func skipLine(line string) bool {
	if line == "" || strings.HasPrefix(line, "'") || strings.HasPrefix(line, "@") {
		return true
	}
	for _, prefix := range []string{"skinparam", "hide ", "title ", "note ", "end note", "left to right", "top to bottom"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func splitActions(s string) []sm.ActionID {
	if s == "" {
		return nil
	}
	var actions []sm.ActionID
	for _, a := range strings.Split(s, ",") {
		actions = append(actions, sm.ActionID(strings.TrimSpace(a)))
	}
	return actions
}

// ensure 引用状态，未知状态挂在当前作用域下
func (m *pumlModel) ensure(name, scope string) *pumlNode {
	if n, ok := m.nodes[name]; ok {
		return n
	}
	n := &pumlNode{name: name, parent: scope}
	m.nodes[name] = n
	m.order = append(m.order, name)
	return n
}

// declare 显式声明状态，之前被引用时挂错的父状态在这里修正，
// 顺序也按声明位置重排
func (m *pumlModel) declare(name, scope string) {
	n := m.ensure(name, scope)
	if n.declared {
		return
	}
	n.parent = scope
	n.declared = true
	if i := slices.Index(m.order, name); i >= 0 && i != len(m.order)-1 {
		m.order = append(slices.Delete(m.order, i, i+1), name)
	}
}

func (m *pumlModel) definition(name string) (*sm.Definition, error) {
	d := sm.NewDefinition(name)

	// 父状态必须先于子状态添加
	children := make(map[string][]string)
	for _, s := range m.order {
		n := m.nodes[s]
		children[n.parent] = append(children[n.parent], s)
	}
	var walk func(parent string) error
	walk = func(parent string) error {
		for _, s := range children[parent] {
			if err := d.AddState(sm.State(s), sm.State(parent)); err != nil {
				return err
			}
			if err := walk(s); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(""); err != nil {
		return nil, err
	}
	if added := len(d.States()); added != len(m.order) {
		return nil, fmt.Errorf("%w: states form a cycle", sm.ErrMalformedStateTree)
	}

	for _, s := range m.order {
		n := m.nodes[s]
		if kids := children[s]; len(kids) > 0 {
			initial := n.initial
			if initial == "" {
				initial = kids[0]
			}
			if err := d.SetInitial(sm.State(s), sm.State(initial), n.initialActions...); err != nil {
				return nil, err
			}
		}
		if err := d.AddEntryAction(sm.State(s), n.entry...); err != nil {
			return nil, err
		}
		if err := d.AddExitAction(sm.State(s), n.exit...); err != nil {
			return nil, err
		}
	}
	d.SetRootInitial(sm.State(m.initial), m.initialActions...)

	for _, t := range m.transitions {
		var opts []sm.TransitionOption
		if t.guard != "" {
			opts = append(opts, sm.WithGuard(sm.GuardID(t.guard)))
		}
		if len(t.actions) > 0 {
			opts = append(opts, sm.WithActions(t.actions...))
		}

		var err error
		switch {
		case t.internal:
			err = d.AddInternal(sm.State(t.source), sm.Event(t.event), opts...)
		case t.target == "":
			err = d.AddFinal(sm.State(t.source), sm.Event(t.event), opts...)
		default:
			err = d.AddTransition(sm.State(t.source), sm.State(t.target), sm.Event(t.event), opts...)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", t.line, err)
		}
	}
	return d, nil
}
