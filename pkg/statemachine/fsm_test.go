package statemachine

import (
	"context"
	"testing"
)

func newFlatMachine(t *testing.T, hooks Hooks) *Machine {
	t.Helper()
	d, err := NewFlatDefinition("flat", "idle", "idle", "running")
	if err != nil {
		t.Fatalf("创建声明失败: %v", err)
	}
	if err := d.AddTransition("idle", "running", "start"); err != nil {
		t.Fatalf("添加转换失败: %v", err)
	}
	if err := d.AddTransition("running", "idle", "stop", WithGuard("canStop")); err != nil {
		t.Fatalf("添加转换失败: %v", err)
	}
	chart, err := d.Compile()
	if err != nil {
		t.Fatalf("编译失败: %v", err)
	}
	return NewMachine(chart, hooks)
}

func TestFSM_BasicTransition(t *testing.T) {
	rec := &Recorder{}
	fsm := newFlatMachine(t, rec)

	if fsm.Current() != InitialPseudoState {
		t.Errorf("初始状态错误: got %v, want %v", fsm.Current(), InitialPseudoState)
	}

	ctx := context.Background()
	if err := fsm.Trigger(ctx, "start"); err != nil {
		t.Fatalf("触发事件失败: %v", err)
	}

	if fsm.Current() != "running" {
		t.Errorf("状态转换失败: got %v, want running", fsm.Current())
	}
	if len(rec.Exits) != 1 || rec.Exits[0] != "idle" {
		t.Errorf("退出回调错误: %v", rec.Exits)
	}
	if len(rec.Entries) != 2 || rec.Entries[1] != "running" {
		t.Errorf("进入回调错误: %v", rec.Entries)
	}
}

func TestFSM_UndeclaredEvent(t *testing.T) {
	fsm := newFlatMachine(t, &Recorder{})
	_ = fsm.Start()

	if err := fsm.Trigger(context.Background(), "invalid"); err != nil {
		t.Errorf("未声明的事件应被丢弃, got %v", err)
	}
	if fsm.Current() != "idle" {
		t.Errorf("状态不应改变: got %v", fsm.Current())
	}
}

func TestFSM_Guard(t *testing.T) {
	allow := false
	rec := &Recorder{GuardFn: func(State, Event, GuardID) bool { return allow }}
	fsm := newFlatMachine(t, rec)
	ctx := context.Background()

	_ = fsm.Trigger(ctx, "start")
	_ = fsm.Trigger(ctx, "stop")
	if fsm.Current() != "running" {
		t.Errorf("守卫应该阻止转换: got %v", fsm.Current())
	}
	if len(rec.GuardCalls) != 1 {
		t.Errorf("守卫调用次数错误: got %d, want 1", len(rec.GuardCalls))
	}

	allow = true
	_ = fsm.Trigger(ctx, "stop")
	if fsm.Current() != "idle" {
		t.Errorf("守卫放行后应转换: got %v", fsm.Current())
	}
}

func TestFSM_Reset(t *testing.T) {
	fsm := newFlatMachine(t, nil)
	_ = fsm.Trigger(context.Background(), "start")

	if err := fsm.Reset(); err != nil {
		t.Fatalf("重置失败: %v", err)
	}
	if fsm.Current() != InitialPseudoState || fsm.Started() {
		t.Errorf("重置后状态错误: got %v", fsm.Current())
	}
}

func TestFSM_Can(t *testing.T) {
	fsm := newFlatMachine(t, nil)

	if !fsm.Can("start") {
		t.Error("应该可以触发 start")
	}
	if fsm.Can("stop") {
		t.Error("不应该可以触发 stop")
	}
}

func TestFSM_DuplicateState(t *testing.T) {
	if _, err := NewFlatDefinition("dup", "a", "a", "a"); err == nil {
		t.Error("重复状态应返回错误")
	}
}

func TestRecorder_Drain(t *testing.T) {
	rec := &Recorder{}
	fsm := newFlatMachine(t, rec)
	_ = fsm.Trigger(context.Background(), "start")

	calls := rec.Drain()
	want := []string{"entry idle", "exit idle", "entry running"}
	if len(calls) != len(want) {
		t.Fatalf("回调记录错误: %v", calls)
	}
	for i, c := range calls {
		if c.String() != want[i] {
			t.Errorf("第 %d 条记录 %s, 期望 %s", i, c, want[i])
		}
	}
	if len(rec.Calls) != 0 || len(rec.Entries) != 0 {
		t.Errorf("Drain 后记录应为空: %v", rec.Calls)
	}
}
