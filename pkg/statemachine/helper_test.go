package statemachine

// 嵌套状态示例：s ⊃ {s1 ⊃ {s11}, s2 ⊃ {s21 ⊃ {s211}}}
func nestedDefinition() *Definition {
	d := NewDefinition("hsm")
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	must(d.AddState("s", ""))
	must(d.AddState("s1", "s"))
	must(d.AddState("s11", "s1"))
	must(d.AddState("s2", "s"))
	must(d.AddState("s21", "s2"))
	must(d.AddState("s211", "s21"))

	must(d.SetInitial("s", "s1"))
	must(d.SetInitial("s1", "s11"))
	must(d.SetInitial("s2", "s21"))
	must(d.SetInitial("s21", "s211"))
	d.SetRootInitial("s2", "setFooFalse")

	must(d.AddTransition("s", "s11", "E"))
	must(d.AddInternal("s", "I", WithGuard("isFooTrue"), WithActions("setFooFalse")))
	must(d.AddFinal("s", "TERMINATE"))

	must(d.AddTransition("s1", "s1", "A"))
	must(d.AddTransition("s1", "s11", "B"))
	must(d.AddTransition("s1", "s2", "C"))
	must(d.AddTransition("s1", "s", "D", WithGuard("isFooFalse"), WithActions("setFooTrue")))
	must(d.AddTransition("s1", "s211", "F"))
	must(d.AddInternal("s1", "I"))

	must(d.AddTransition("s11", "s1", "D", WithGuard("isFooTrue"), WithActions("setFooFalse")))
	must(d.AddTransition("s11", "s211", "G"))
	must(d.AddTransition("s11", "s", "H"))

	must(d.AddTransition("s2", "s1", "C"))
	must(d.AddTransition("s2", "s11", "F"))
	must(d.AddInternal("s2", "I", WithGuard("isFooFalse"), WithActions("setFooTrue")))

	must(d.AddTransition("s21", "s21", "A"))
	must(d.AddTransition("s21", "s211", "B"))
	must(d.AddTransition("s21", "s1", "G"))

	must(d.AddTransition("s211", "s21", "D"))
	must(d.AddTransition("s211", "s", "H"))

	return d
}

// fooHost 带一个布尔标志的宿主，守卫读取它，动作修改它
type fooHost struct {
	*Recorder
	foo bool
}

func newFooHost() *fooHost {
	h := &fooHost{Recorder: &Recorder{}, foo: true}
	h.GuardFn = func(_ State, _ Event, guard GuardID) bool {
		switch guard {
		case "isFooTrue":
			return h.foo
		case "isFooFalse":
			return !h.foo
		}
		return false
	}
	h.ActionFn = func(_ State, _ Event, action ActionID) {
		switch action {
		case "setFooTrue":
			h.foo = true
		case "setFooFalse":
			h.foo = false
		}
	}
	return h
}

func newNestedMachine(opts ...Option) (*Machine, *fooHost) {
	h := newFooHost()
	return NewMachine(nestedDefinition().MustCompile(), h, opts...), h
}
