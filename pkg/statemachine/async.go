package statemachine

import (
	"context"
	"sync"
)

// asyncEvent 排队中的事件
type asyncEvent struct {
	event Event
	ctx   context.Context
	done  chan error // 同步触发时非空
}

// AsyncMachine 由单个协程独占驱动的状态机，其他协程通过队列投递事件
type AsyncMachine struct {
	mu         sync.Mutex
	machine    *Machine
	eventQueue chan asyncEvent
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewAsyncMachine 创建异步驱动器
func NewAsyncMachine(machine *Machine, queueSize int) *AsyncMachine {
	return &AsyncMachine{
		machine:    machine,
		eventQueue: make(chan asyncEvent, queueSize),
		stopCh:     make(chan struct{}),
	}
}

// Start 启动事件处理协程
func (a *AsyncMachine) Start() {
	a.wg.Add(1)
	go a.processEvents()
}

// Stop 停止事件处理，队列中未处理的事件被丢弃
func (a *AsyncMachine) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
	a.wg.Wait()
}

// TriggerAsync 投递事件后立即返回
func (a *AsyncMachine) TriggerAsync(ctx context.Context, event Event) error {
	return a.enqueue(ctx, asyncEvent{event: event, ctx: ctx})
}

// Trigger 投递事件并等待其运行至完成
func (a *AsyncMachine) Trigger(ctx context.Context, event Event) error {
	done := make(chan error, 1)
	if err := a.enqueue(ctx, asyncEvent{event: event, ctx: ctx, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-a.stopCh:
		return ErrAsyncStopped
	}
}

func (a *AsyncMachine) enqueue(ctx context.Context, ev asyncEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-a.stopCh:
		return ErrAsyncStopped
	default:
	}
	select {
	case a.eventQueue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.stopCh:
		return ErrAsyncStopped
	}
}

// processEvents 处理事件队列
func (a *AsyncMachine) processEvents() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopCh:
			return
		case ev := <-a.eventQueue:
			err := ev.ctx.Err()
			if err == nil {
				a.mu.Lock()
				err = a.machine.Dispatch(ev.event)
				a.mu.Unlock()
			}
			if ev.done != nil {
				ev.done <- err
			}
		}
	}
}

// Current 返回当前状态
func (a *AsyncMachine) Current() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.machine.State()
}

// Can 检查当前状态是否声明了该事件
func (a *AsyncMachine) Can(event Event) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.machine.Can(event)
}

// Reset 重置状态机
func (a *AsyncMachine) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.machine.Reset()
}

// Do 在持有状态机的情况下执行 fn，用于检查宿主对象
func (a *AsyncMachine) Do(fn func(m *Machine)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.machine)
}

// QueueLength 返回队列长度
func (a *AsyncMachine) QueueLength() int {
	return len(a.eventQueue)
}
