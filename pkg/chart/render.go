package chart

import (
	"bytes"
	"fmt"
	"strings"

	sm "github.com/junbin-yang/statesurf/pkg/statemachine"
)

// RenderOptions 渲染选项
type RenderOptions struct {
	ShowGuards  bool
	ShowActions bool
}

// RenderOption 渲染选项函数
type RenderOption func(*RenderOptions)

// WithGuards 边标签中包含守卫
func WithGuards() RenderOption {
	return func(o *RenderOptions) { o.ShowGuards = true }
}

// WithActions 边标签中包含动作
func WithActions() RenderOption {
	return func(o *RenderOptions) { o.ShowActions = true }
}

// Render 按格式名输出：mermaid、dot、plantuml（puml）、yaml（yml）
// plantuml 和 yaml 输出完整状态图，忽略渲染选项
func Render(d *sm.Definition, format string, opts ...RenderOption) ([]byte, error) {
	switch format {
	case "mermaid":
		return []byte(Mermaid(d, opts...)), nil
	case "dot":
		return []byte(DOT(d, opts...)), nil
	case "plantuml", "puml":
		return []byte(PlantUML(d)), nil
	case "yaml", "yml":
		return ToYAML(d)
	}
	return nil, fmt.Errorf("%w: output format %q", ErrUnsupported, format)
}

func renderOptions(opts []RenderOption) RenderOptions {
	var o RenderOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// layout 按声明顺序分组的状态层次
type layout struct {
	nodes    map[sm.State]sm.StateNode
	children map[sm.State][]sm.State
}

func newLayout(d *sm.Definition) layout {
	l := layout{
		nodes:    make(map[sm.State]sm.StateNode),
		children: make(map[sm.State][]sm.State),
	}
	for _, n := range d.States() {
		l.nodes[n.ID] = n
		l.children[n.Parent] = append(l.children[n.Parent], n.ID)
	}
	return l
}

func (l layout) composite(s sm.State) bool {
	return len(l.children[s]) > 0
}

// label 生成 "event [guard] / action" 形式的标签
func label(tr sm.Transition, o RenderOptions) string {
	parts := []string{string(tr.Event)}
	if o.ShowGuards && tr.Guard != "" {
		parts = append(parts, "["+string(tr.Guard)+"]")
	}
	if o.ShowActions && len(tr.Actions) > 0 {
		parts = append(parts, "/ "+joinActions(tr.Actions))
	}
	return strings.Join(parts, " ")
}

// initialLabel 初始转换的 " : / action" 后缀，不显示或没有动作时为空
func initialLabel(actions []sm.ActionID, show bool) string {
	if !show || len(actions) == 0 {
		return ""
	}
	return " : / " + joinActions(actions)
}

// dotInitialLabel 初始转换边的 DOT 属性
func dotInitialLabel(actions []sm.ActionID, o RenderOptions) string {
	if !o.ShowActions || len(actions) == 0 {
		return ""
	}
	return fmt.Sprintf(" [label=%q]", "/ "+joinActions(actions))
}

func joinActions(actions []sm.ActionID) string {
	s := make([]string, len(actions))
	for i, a := range actions {
		s[i] = string(a)
	}
	return strings.Join(s, ", ")
}

// Mermaid 渲染为 Mermaid stateDiagram-v2
func Mermaid(d *sm.Definition, opts ...RenderOption) string {
	o := renderOptions(opts)
	l := newLayout(d)

	var buf bytes.Buffer
	buf.WriteString("stateDiagram-v2\n")
	if initial, actions := d.RootInitial(); initial != "" {
		fmt.Fprintf(&buf, "[*] --> %s%s\n", initial, initialLabel(actions, o.ShowActions))
	}

	var render func(s sm.State, indent string)
	render = func(s sm.State, indent string) {
		if !l.composite(s) {
			fmt.Fprintf(&buf, "%sstate %s\n", indent, s)
			return
		}
		fmt.Fprintf(&buf, "%sstate %s {\n", indent, s)
		if n := l.nodes[s]; n.Initial != "" {
			fmt.Fprintf(&buf, "%s\t[*] --> %s%s\n", indent, n.Initial, initialLabel(n.InitialActions, o.ShowActions))
		}
		for _, c := range l.children[s] {
			render(c, indent+"\t")
		}
		fmt.Fprintf(&buf, "%s}\n", indent)
	}
	for _, s := range l.children[""] {
		render(s, "")
	}

	for _, tr := range d.Transitions() {
		switch {
		case tr.Internal:
			fmt.Fprintf(&buf, "%s : %s\n", tr.Source, label(tr, o))
		case tr.Target == sm.FinalPseudoState:
			fmt.Fprintf(&buf, "%s --> [*] : %s\n", tr.Source, label(tr, o))
		default:
			fmt.Fprintf(&buf, "%s --> %s : %s\n", tr.Source, tr.Target, label(tr, o))
		}
	}
	return buf.String()
}

// DOT 渲染为 Graphviz 有向图，复合状态为 cluster，初始伪状态为点
func DOT(d *sm.Definition, opts ...RenderOption) string {
	o := renderOptions(opts)
	l := newLayout(d)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "digraph %q {\n", d.Name())
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  compound=true;\n")
	buf.WriteString("  node [shape=rectangle];\n")
	if initial, actions := d.RootInitial(); initial != "" {
		buf.WriteString("  __init_root [shape=point,label=\"\"];\n")
		fmt.Fprintf(&buf, "  __init_root -> %s%s;\n", l.anchor(initial), dotInitialLabel(actions, o))
	}

	var render func(s sm.State, indent string)
	render = func(s sm.State, indent string) {
		if !l.composite(s) {
			fmt.Fprintf(&buf, "%s%q;\n", indent, s)
			return
		}
		fmt.Fprintf(&buf, "%ssubgraph \"cluster_%s\" {\n", indent, s)
		fmt.Fprintf(&buf, "%s  label=%q;\n", indent, s)
		if n := l.nodes[s]; n.Initial != "" {
			fmt.Fprintf(&buf, "%s  \"__init_%s\" [shape=point,label=\"\"];\n", indent, s)
			fmt.Fprintf(&buf, "%s  \"__init_%s\" -> %s%s;\n", indent, s, l.anchor(n.Initial), dotInitialLabel(n.InitialActions, o))
		}
		for _, c := range l.children[s] {
			render(c, indent+"  ")
		}
		fmt.Fprintf(&buf, "%s}\n", indent)
	}
	for _, s := range l.children[""] {
		render(s, "  ")
	}

	final := false
	for _, tr := range d.Transitions() {
		switch {
		case tr.Internal:
			fmt.Fprintf(&buf, "  %s -> %s [label=%q,style=dashed];\n", l.anchor(tr.Source), l.anchor(tr.Source), label(tr, o))
		case tr.Target == sm.FinalPseudoState:
			final = true
			fmt.Fprintf(&buf, "  %s -> __final [label=%q];\n", l.anchor(tr.Source), label(tr, o))
		default:
			fmt.Fprintf(&buf, "  %s -> %s [label=%q];\n", l.anchor(tr.Source), l.anchor(tr.Target), label(tr, o))
		}
	}
	if final {
		buf.WriteString("  __final [shape=doublecircle,label=\"\"];\n")
	}
	buf.WriteString("}\n")
	return buf.String()
}

// anchor DOT 中边不能直接连到 cluster，复合状态用其默认叶子代替
func (l layout) anchor(s sm.State) string {
	for l.composite(s) {
		initial := l.nodes[s].Initial
		if initial == "" {
			initial = l.children[s][0]
		}
		s = initial
	}
	return fmt.Sprintf("%q", s)
}

// PlantUML 渲染为可被 ParsePlantUML 重新读取的状态图
func PlantUML(d *sm.Definition) string {
	l := newLayout(d)

	var buf bytes.Buffer
	buf.WriteString("@startuml\n")
	if initial, actions := d.RootInitial(); initial != "" {
		fmt.Fprintf(&buf, "[*] --> %s%s\n", initial, initialLabel(actions, true))
	}

	all := RenderOptions{ShowGuards: true, ShowActions: true}
	var render func(s sm.State, indent string)
	render = func(s sm.State, indent string) {
		n := l.nodes[s]
		if !l.composite(s) {
			fmt.Fprintf(&buf, "%sstate %s\n", indent, s)
		} else {
			fmt.Fprintf(&buf, "%sstate %s {\n", indent, s)
			if n.Initial != "" {
				fmt.Fprintf(&buf, "%s  [*] --> %s%s\n", indent, n.Initial, initialLabel(n.InitialActions, true))
			}
			for _, c := range l.children[s] {
				render(c, indent+"  ")
			}
			fmt.Fprintf(&buf, "%s}\n", indent)
		}
		if len(n.Entry) > 0 {
			fmt.Fprintf(&buf, "%s%s : entry / %s\n", indent, s, joinActions(n.Entry))
		}
		if len(n.Exit) > 0 {
			fmt.Fprintf(&buf, "%s%s : exit / %s\n", indent, s, joinActions(n.Exit))
		}
	}
	for _, s := range l.children[""] {
		render(s, "")
	}

	for _, tr := range d.Transitions() {
		switch {
		case tr.Internal:
			fmt.Fprintf(&buf, "%s : %s\n", tr.Source, label(tr, all))
		case tr.Target == sm.FinalPseudoState:
			fmt.Fprintf(&buf, "%s --> [*] : %s\n", tr.Source, label(tr, all))
		default:
			fmt.Fprintf(&buf, "%s --> %s : %s\n", tr.Source, tr.Target, label(tr, all))
		}
	}
	buf.WriteString("@enduml\n")
	return buf.String()
}
