package statemachine

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCreateSnapshot(t *testing.T) {
	m, _ := newNestedMachine()
	_ = m.Start()
	_ = m.Dispatch("G")

	snapshot := m.Snapshot(map[string]string{"owner": "test"})
	if snapshot.Chart != "hsm" {
		t.Errorf("状态图名称错误: got %v, want hsm", snapshot.Chart)
	}
	if snapshot.State != "s11" || !snapshot.Started || snapshot.Terminated {
		t.Errorf("快照内容错误: %+v", snapshot)
	}
	if snapshot.Metadata["owner"] != "test" {
		t.Errorf("元数据错误: %v", snapshot.Metadata)
	}
}

func TestRestoreSnapshot(t *testing.T) {
	m, h := newNestedMachine()
	_ = m.Start()
	_ = m.Dispatch("G")
	snapshot := m.Snapshot(nil)

	restored, h2 := newNestedMachine()
	if err := restored.Restore(snapshot); err != nil {
		t.Fatalf("恢复快照失败: %v", err)
	}
	if restored.State() != "s11" || !restored.Started() {
		t.Errorf("恢复后状态错误: got %v", restored.State())
	}
	if len(h2.Calls) != 0 {
		t.Errorf("恢复不应触发回调: %v", h2.Calls)
	}

	// 恢复后继续分发，行为与原状态机一致
	h.ResetLogs()
	_ = m.Dispatch("C")
	_ = restored.Dispatch("C")
	if restored.State() != m.State() || len(h2.Entries) != len(h.Entries) {
		t.Errorf("恢复后行为不一致: %v vs %v", h2.Entries, h.Entries)
	}
}

func TestRestoreInvalidSnapshot(t *testing.T) {
	m, _ := newNestedMachine()

	tests := []struct {
		name     string
		snapshot *Snapshot
	}{
		{name: "nil", snapshot: nil},
		{name: "other chart", snapshot: &Snapshot{Chart: "fsm", State: "s11", Started: true}},
		{name: "composite", snapshot: &Snapshot{State: "s1", Started: true}},
		{name: "unknown", snapshot: &Snapshot{State: "x", Started: true}},
		{name: "final without terminated", snapshot: &Snapshot{State: FinalPseudoState, Started: true}},
		{name: "terminated elsewhere", snapshot: &Snapshot{State: "s11", Started: true, Terminated: true}},
		{name: "not started in leaf", snapshot: &Snapshot{State: "s11"}},
	}
	for _, tt := range tests {
		if err := m.Restore(tt.snapshot); !errors.Is(err, ErrInvalidSnapshot) {
			t.Errorf("%s: 期望 ErrInvalidSnapshot, got %v", tt.name, err)
		}
	}
	if m.State() != InitialPseudoState {
		t.Errorf("失败的恢复不应修改状态: got %v", m.State())
	}

	if err := m.Restore(&Snapshot{State: FinalPseudoState, Started: true, Terminated: true}); err != nil {
		t.Fatalf("恢复终止快照失败: %v", err)
	}
	if !m.Terminated() {
		t.Error("应处于终止状态")
	}
}

func TestSnapshotMsgpack(t *testing.T) {
	m, _ := newNestedMachine()
	_ = m.Start()

	data, err := EncodeSnapshot(m.Snapshot(map[string]string{"k": "v"}))
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	snapshot, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if snapshot.State != "s211" || snapshot.Chart != "hsm" || snapshot.Metadata["k"] != "v" {
		t.Errorf("解码内容错误: %+v", snapshot)
	}

	if _, err := DecodeSnapshot([]byte{0xc1}); err == nil {
		t.Error("非法数据应返回错误")
	}
}

func TestSnapshotJSON(t *testing.T) {
	m, _ := newNestedMachine()
	_ = m.Start()

	data, err := json.Marshal(m.Snapshot(nil))
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if snapshot.State != "s211" {
		t.Errorf("状态错误: got %v, want s211", snapshot.State)
	}
}

func TestHistoryLimit(t *testing.T) {
	history := NewHistory(2)
	m, _ := newNestedMachine(WithObserver(history))

	_ = m.Start()
	_ = m.Dispatch("G")
	_ = m.Dispatch("C")

	entries := history.Entries()
	if len(entries) != 2 {
		t.Fatalf("历史记录长度错误: got %d, want 2", len(entries))
	}
	if entries[0].Event != "G" || entries[1].Event != "C" {
		t.Errorf("历史记录顺序错误: %+v", entries)
	}

	history.Clear()
	if len(history.Entries()) != 0 {
		t.Error("清空后历史记录应为空")
	}
}
