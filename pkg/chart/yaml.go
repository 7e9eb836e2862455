package chart

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v2"

	sm "github.com/junbin-yang/statesurf/pkg/statemachine"
)

// FinalTarget YAML 中表示终止的目标
const FinalTarget = "[*]"

// Spec YAML 状态图描述
type Spec struct {
	Name           string      `yaml:"name"`
	Initial        string      `yaml:"initial,omitempty"`
	InitialActions []string    `yaml:"initial_actions,omitempty"`
	DefaultEvent   string      `yaml:"default_event,omitempty"`
	Events         []string    `yaml:"events,omitempty"`
	States         []StateSpec `yaml:"states"`
}

// StateSpec 状态及其子状态
type StateSpec struct {
	Name           string           `yaml:"name"`
	Initial        string           `yaml:"initial,omitempty"`
	InitialActions []string         `yaml:"initial_actions,omitempty"`
	Entry          []string         `yaml:"entry,omitempty"`
	Exit           []string         `yaml:"exit,omitempty"`
	Transitions    []TransitionSpec `yaml:"transitions,omitempty"`
	States         []StateSpec      `yaml:"states,omitempty"`
}

// TransitionSpec 转换，internal 为 true 时忽略 target
type TransitionSpec struct {
	Event    string   `yaml:"event"`
	Target   string   `yaml:"target,omitempty"`
	Guard    string   `yaml:"guard,omitempty"`
	Actions  []string `yaml:"actions,omitempty"`
	Internal bool     `yaml:"internal,omitempty"`
}

// LoadYAML 读取 YAML 状态图
func LoadYAML(r io.Reader) (*sm.Definition, error) {
	return loadYAML(r, "")
}

func loadYAML(r io.Reader, name string) (*sm.Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var spec Spec
	if err := yaml.UnmarshalStrict(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if spec.Name == "" {
		spec.Name = name
	}
	return spec.Definition()
}

// Definition 把描述转换为状态图声明
func (s *Spec) Definition() (*sm.Definition, error) {
	d := sm.NewDefinition(s.Name)

	var addStates func(parent string, states []StateSpec) error
	addStates = func(parent string, states []StateSpec) error {
		for _, st := range states {
			if err := d.AddState(sm.State(st.Name), sm.State(parent)); err != nil {
				return err
			}
			switch {
			case len(st.States) > 0:
				initial := st.Initial
				if initial == "" {
					initial = st.States[0].Name
				}
				if err := d.SetInitial(sm.State(st.Name), sm.State(initial), toActions(st.InitialActions)...); err != nil {
					return err
				}
			case len(st.InitialActions) > 0:
				return fmt.Errorf("%w: leaf %s has initial actions", sm.ErrMalformedStateTree, st.Name)
			}
			if err := d.AddEntryAction(sm.State(st.Name), toActions(st.Entry)...); err != nil {
				return err
			}
			if err := d.AddExitAction(sm.State(st.Name), toActions(st.Exit)...); err != nil {
				return err
			}
			if err := addStates(st.Name, st.States); err != nil {
				return err
			}
		}
		return nil
	}
	if err := addStates("", s.States); err != nil {
		return nil, err
	}

	// 转换在所有状态声明之后添加，目标可以前向引用
	var addTransitions func(states []StateSpec) error
	addTransitions = func(states []StateSpec) error {
		for _, st := range states {
			for _, t := range st.Transitions {
				if err := addTransition(d, sm.State(st.Name), t); err != nil {
					return err
				}
			}
			if err := addTransitions(st.States); err != nil {
				return err
			}
		}
		return nil
	}
	if err := addTransitions(s.States); err != nil {
		return nil, err
	}

	d.SetRootInitial(sm.State(s.Initial), toActions(s.InitialActions)...)
	for _, e := range s.Events {
		d.DeclareEvents(sm.Event(e))
	}
	if s.DefaultEvent != "" {
		d.SetDefaultEvent(sm.Event(s.DefaultEvent))
	}
	return d, nil
}

func addTransition(d *sm.Definition, source sm.State, t TransitionSpec) error {
	var opts []sm.TransitionOption
	if t.Guard != "" {
		opts = append(opts, sm.WithGuard(sm.GuardID(t.Guard)))
	}
	if len(t.Actions) > 0 {
		opts = append(opts, sm.WithActions(toActions(t.Actions)...))
	}

	switch {
	case t.Internal:
		if t.Target != "" {
			return fmt.Errorf("%w: internal %s on %s has a target", sm.ErrInvalidTransition, t.Event, source)
		}
		return d.AddInternal(source, sm.Event(t.Event), opts...)
	case t.Target == FinalTarget:
		return d.AddFinal(source, sm.Event(t.Event), opts...)
	default:
		return d.AddTransition(source, sm.State(t.Target), sm.Event(t.Event), opts...)
	}
}

// SpecOf 从声明生成 YAML 描述
func SpecOf(d *sm.Definition) *Spec {
	initial, initialActions := d.RootInitial()
	spec := &Spec{
		Name:           d.Name(),
		Initial:        string(initial),
		InitialActions: fromActions(initialActions),
	}

	nodes := make(map[sm.State]*StateSpec)
	children := make(map[sm.State][]sm.State)
	for _, n := range d.States() {
		nodes[n.ID] = &StateSpec{
			Name:           string(n.ID),
			Initial:        string(n.Initial),
			InitialActions: fromActions(n.InitialActions),
			Entry:          fromActions(n.Entry),
			Exit:           fromActions(n.Exit),
		}
		children[n.Parent] = append(children[n.Parent], n.ID)
	}
	for _, tr := range d.Transitions() {
		n, ok := nodes[tr.Source]
		if !ok {
			continue
		}
		t := TransitionSpec{
			Event:    string(tr.Event),
			Guard:    string(tr.Guard),
			Actions:  fromActions(tr.Actions),
			Internal: tr.Internal,
		}
		switch {
		case tr.Internal:
		case tr.Target == sm.FinalPseudoState:
			t.Target = FinalTarget
		default:
			t.Target = string(tr.Target)
		}
		n.Transitions = append(n.Transitions, t)
	}

	var build func(parent sm.State) []StateSpec
	build = func(parent sm.State) []StateSpec {
		var out []StateSpec
		for _, s := range children[parent] {
			n := nodes[s]
			n.States = build(s)
			out = append(out, *n)
		}
		return out
	}
	spec.States = build("")
	return spec
}

// ToYAML 把声明编码为 YAML
func ToYAML(d *sm.Definition) ([]byte, error) {
	return yaml.Marshal(SpecOf(d))
}

func toActions(list []string) []sm.ActionID {
	if len(list) == 0 {
		return nil
	}
	out := make([]sm.ActionID, len(list))
	for i, a := range list {
		out[i] = sm.ActionID(a)
	}
	return out
}

func fromActions(list []sm.ActionID) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = string(a)
	}
	return out
}
