package statemachine

import (
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot 状态快照，只包含状态机自身，不包含宿主数据
type Snapshot struct {
	Chart      string            `json:"chart" msgpack:"chart"`
	State      State             `json:"state" msgpack:"state"`
	Started    bool              `json:"started" msgpack:"started"`
	Terminated bool              `json:"terminated" msgpack:"terminated"`
	Timestamp  time.Time         `json:"timestamp" msgpack:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// EncodeSnapshot 使用 msgpack 编码快照
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	return msgpack.Marshal(s)
}

// DecodeSnapshot 解码 msgpack 快照
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

// Snapshot 创建状态快照
func (m *Machine) Snapshot(metadata map[string]string) *Snapshot {
	return &Snapshot{
		Chart:      m.chart.name,
		State:      m.state,
		Started:    m.started,
		Terminated: m.terminated,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}

// Restore 恢复快照，不触发任何回调
func (m *Machine) Restore(s *Snapshot) error {
	if m.busy {
		return ErrReentrantDispatch
	}
	if s == nil {
		return fmt.Errorf("%w: nil", ErrInvalidSnapshot)
	}
	if s.Chart != "" && s.Chart != m.chart.name {
		return fmt.Errorf("%w: chart %s, machine runs %s", ErrInvalidSnapshot, s.Chart, m.chart.name)
	}

	switch {
	case s.Terminated:
		if s.State != FinalPseudoState || !s.Started {
			return fmt.Errorf("%w: terminated in %s", ErrInvalidSnapshot, s.State)
		}
	case !s.Started:
		if s.State != InitialPseudoState {
			return fmt.Errorf("%w: not started in %s", ErrInvalidSnapshot, s.State)
		}
	default:
		if s.State == FinalPseudoState || !m.chart.tree.IsLeaf(s.State) {
			return fmt.Errorf("%w: %s is not a leaf state", ErrInvalidSnapshot, s.State)
		}
	}

	m.state = s.State
	m.started = s.Started
	m.terminated = s.Terminated
	return nil
}

// HistoryEntry 一次生效的转换
type HistoryEntry struct {
	From      State     `json:"from" msgpack:"from"`
	To        State     `json:"to" msgpack:"to"`
	Event     Event     `json:"event" msgpack:"event"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

// History 记录转换历史的 Observer
type History struct {
	mu      sync.RWMutex
	limit   int
	entries []HistoryEntry
}

// NewHistory 创建历史记录，limit <= 0 表示不限制
func NewHistory(limit int) *History {
	return &History{
		limit:   limit,
		entries: make([]HistoryEntry, 0),
	}
}

func (h *History) OnEvent(State, Event) {}

func (h *History) OnTransition(from, to State, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, HistoryEntry{From: from, To: to, Event: event, Timestamp: time.Now()})
	if h.limit > 0 && len(h.entries) > h.limit {
		h.entries = append(h.entries[:0], h.entries[len(h.entries)-h.limit:]...)
	}
}

// Entries 获取历史记录副本
func (h *History) Entries() []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]HistoryEntry{}, h.entries...)
}

// Clear 清空历史记录
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make([]HistoryEntry, 0)
}
