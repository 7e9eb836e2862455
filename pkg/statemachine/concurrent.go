package statemachine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// managed 被管理的状态机，串行访问
type managed struct {
	mu      sync.Mutex
	machine StateMachine
}

// Concurrent 并发状态机管理器，每个状态机各自加锁，互不阻塞
type Concurrent struct {
	mu       sync.RWMutex
	machines map[string]*managed
}

// NewConcurrent 创建并发状态机管理器
func NewConcurrent() *Concurrent {
	return &Concurrent{
		machines: make(map[string]*managed),
	}
}

// AddMachine 添加状态机，名称不能重复
func (c *Concurrent) AddMachine(name string, machine StateMachine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.machines[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMachine, name)
	}
	c.machines[name] = &managed{machine: machine}
	return nil
}

// RemoveMachine 移除状态机
func (c *Concurrent) RemoveMachine(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.machines, name)
}

// GetMachine 获取状态机
func (c *Concurrent) GetMachine(name string) (StateMachine, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, exists := c.machines[name]
	if !exists {
		return nil, false
	}
	return m.machine, true
}

// With 在持有指定状态机锁的情况下执行 fn
func (c *Concurrent) With(name string, fn func(machine StateMachine) error) error {
	c.mu.RLock()
	m, exists := c.machines[name]
	c.mu.RUnlock()

	if !exists {
		return ErrMachineNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.machine)
}

// Trigger 触发指定状态机的事件
func (c *Concurrent) Trigger(ctx context.Context, name string, event Event) error {
	return c.With(name, func(machine StateMachine) error {
		return machine.Trigger(ctx, event)
	})
}

// TriggerAll 触发所有状态机的相同事件
func (c *Concurrent) TriggerAll(ctx context.Context, event Event) map[string]error {
	c.mu.RLock()
	machines := make(map[string]*managed, len(c.machines))
	for name, m := range c.machines {
		machines[name] = m
	}
	c.mu.RUnlock()

	results := make(map[string]error, len(machines))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for name, m := range machines {
		name, m := name, m
		g.Go(func() error {
			m.mu.Lock()
			err := m.machine.Trigger(ctx, event)
			m.mu.Unlock()

			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// GetStates 获取所有状态机的当前状态
func (c *Concurrent) GetStates() map[string]State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	states := make(map[string]State, len(c.machines))
	for name, m := range c.machines {
		m.mu.Lock()
		states[name] = m.machine.Current()
		m.mu.Unlock()
	}
	return states
}

// ResetAll 重置所有状态机
func (c *Concurrent) ResetAll() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make(map[string]error, len(c.machines))
	for name, m := range c.machines {
		m.mu.Lock()
		results[name] = m.machine.Reset()
		m.mu.Unlock()
	}
	return results
}

// Names 返回排序后的状态机名称
func (c *Concurrent) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.machines))
	for name := range c.machines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count 返回状态机数量
func (c *Concurrent) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.machines)
}
