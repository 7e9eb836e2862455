package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinition_Enumerations(t *testing.T) {
	d := nestedDefinition()

	assert.Equal(t, []Event{"A", "B", "C", "D", "E", "F", "G", "H", "I", "TERMINATE", InitEvent}, d.Events())
	assert.Equal(t, []GuardID{"isFooFalse", "isFooTrue"}, d.Guards())
	assert.Equal(t, []ActionID{"setFooFalse", "setFooTrue"}, d.Actions())

	target, actions := d.RootInitial()
	assert.Equal(t, State("s2"), target)
	assert.Equal(t, []ActionID{"setFooFalse"}, actions)
	assert.Len(t, d.States(), 6)
}

func TestDefinition_DuplicateState(t *testing.T) {
	d := NewDefinition("dup")
	require.NoError(t, d.AddState("a", ""))
	assert.ErrorIs(t, d.AddState("a", ""), ErrDuplicateState)
	assert.ErrorIs(t, d.SetInitial("x", "a"), ErrUnknownState)
	assert.ErrorIs(t, d.AddEntryAction("x", "act"), ErrUnknownState)
	assert.ErrorIs(t, d.AddExitAction("x", "act"), ErrUnknownState)
}

func TestDefinition_InvalidTransitions(t *testing.T) {
	d := NewDefinition("bad")
	require.NoError(t, d.AddState("a", ""))

	assert.ErrorIs(t, d.AddTransition("a", "", "go"), ErrInvalidTransition)
	assert.ErrorIs(t, d.AddTransition("a", "a", ""), ErrInvalidTransition)
	assert.ErrorIs(t, d.AddTransition(FinalPseudoState, "a", "go"), ErrInvalidTransition)
	assert.ErrorIs(t, d.AddInternal(InitialPseudoState, "go"), ErrInvalidTransition)

	require.NoError(t, d.AddTransition("a", "missing", "go"))
	_, err := d.Compile()
	assert.ErrorIs(t, err, ErrUnknownState)

	d2 := NewDefinition("bad2")
	require.NoError(t, d2.AddState("a", ""))
	require.NoError(t, d2.AddTransition("ghost", "a", "go"))
	_, err = d2.Compile()
	assert.ErrorIs(t, err, ErrUnknownState)

	d3 := NewDefinition("bad3")
	require.NoError(t, d3.AddState("a", ""))
	d3.SetDefaultEvent("never")
	_, err = d3.Compile()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Panics(t, func() { d3.MustCompile() })
}

func TestChart_DefaultEvent(t *testing.T) {
	chart := nestedDefinition().MustCompile()
	assert.Equal(t, Event("A"), chart.DefaultEvent())
	assert.True(t, chart.HasEvent("TERMINATE"))
	assert.True(t, chart.HasEvent(InitEvent))
	assert.False(t, chart.HasEvent("Z"))
	assert.Equal(t, "hsm", chart.Name())

	d := NewDefinition("only-init")
	require.NoError(t, d.AddState("a", ""))
	assert.Equal(t, InitEvent, d.MustCompile().DefaultEvent())

	d.DeclareEvents("z", "y", "z")
	d.SetDefaultEvent("z")
	assert.Equal(t, Event("z"), d.MustCompile().DefaultEvent())
	assert.Equal(t, []Event{InitEvent, "y", "z"}, d.Events())
}

func TestChart_TableFlattening(t *testing.T) {
	table := nestedDefinition().MustCompile().Table()

	// s211 上的 I：s2 的候选在前，s 的候选在后
	candidates := table.Lookup("s211", "I")
	require.Len(t, candidates, 2)
	assert.Equal(t, State("s2"), candidates[0].Source)
	assert.Equal(t, GuardID("isFooFalse"), candidates[0].Guard)
	assert.True(t, candidates[0].Internal)
	assert.Equal(t, State("s211"), candidates[0].Leaf)
	assert.Equal(t, State("s"), candidates[1].Source)

	// 复合目标解析到默认叶子
	c := table.Lookup("s11", "C")
	require.Len(t, c, 1)
	assert.Equal(t, State("s211"), c[0].Leaf)
	assert.Equal(t, []State{"s11", "s1"}, c[0].Exits)
	assert.Equal(t, []State{"s2", "s21", "s211"}, c[0].Entries)
	assert.Equal(t, 1, c[0].Defaulted, "s21 和 s211 经默认子状态进入")

	// 目标为源的祖先时，进入链全部由默认子状态选出
	h := table.Lookup("s11", "H")
	require.Len(t, h, 1)
	assert.Equal(t, []State{"s1", "s11"}, h[0].Entries)
	assert.Equal(t, 0, h[0].Defaulted)

	assert.False(t, table.Has("s211", "E2"))
	assert.False(t, table.Has(FinalPseudoState, "TERMINATE"))
	assert.Equal(t, []Event{"A", "B", "C", "D", "E", "F", "G", "H", "I", "TERMINATE"}, table.Events("s11"))
	// 两个叶子各 9 个事件 + TERMINATE
	assert.Equal(t, 20, table.Len())
}
