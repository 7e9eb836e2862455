// Package lifecycle 管理常驻进程的后台协程、信号和优雅退出
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/junbin-yang/statesurf/pkg/logger"
)

// RunFunc 协程运行函数，ctx 取消后应尽快返回
type RunFunc func(ctx context.Context) error

// StopFunc 协程停止函数，用于关闭阻塞在 ctx 之外的资源（如 http.Server）
type StopFunc func(ctx context.Context) error

// HookFunc 钩子函数
type HookFunc func(ctx context.Context) error

type worker struct {
	name string
	run  RunFunc
	stop StopFunc
}

// Manager 生命周期管理器
// 任一协程返回错误、收到信号或调用 Shutdown 时进入退出流程
type Manager struct {
	mu              sync.Mutex
	workers         []*worker
	onStartup       []HookFunc
	onShutdown      []HookFunc
	signals         []os.Signal
	shutdownTimeout time.Duration
	log             logger.Logger
	running         bool
	cancel          context.CancelFunc
}

// NewManager 创建生命周期管理器
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		shutdownTimeout: 30 * time.Second,
		log:             logger.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddWorker 添加协程，只能在 Run 之前调用
func (m *Manager) AddWorker(name string, run RunFunc, opts ...WorkerOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}
	if slices.ContainsFunc(m.workers, func(w *worker) bool { return w.name == name }) {
		return fmt.Errorf("%w: %s", ErrWorkerExists, name)
	}

	w := &worker{name: name, run: run}
	for _, opt := range opts {
		opt(w)
	}
	m.workers = append(m.workers, w)
	return nil
}

// OnStartup 注册启动钩子，在协程启动前按注册顺序调用
func (m *Manager) OnStartup(fn HookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStartup = append(m.onStartup, fn)
}

// OnShutdown 注册退出钩子，在所有协程返回后按注册顺序调用
func (m *Manager) OnShutdown(fn HookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onShutdown = append(m.onShutdown, fn)
}

// Run 启动所有协程并阻塞到退出流程结束
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	workers := slices.Clone(m.workers)
	startup := slices.Clone(m.onStartup)
	m.mu.Unlock()

	if len(m.signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, m.signals...)
		defer stop()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	for _, fn := range startup {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("startup hook: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			m.log.Debug("worker started", logger.String("worker", w.name))
			err := w.run(gctx)
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			m.log.Debug("worker exited", logger.String("worker", w.name), logger.GetError(err))
			if err != nil {
				return fmt.Errorf("worker %s: %w", w.name, err)
			}
			return nil
		})
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- g.Wait() }()

	var runErr error
	select {
	case <-gctx.Done():
	case runErr = <-waitCh:
		waitCh = nil
	}
	cancel()

	return m.shutdown(workers, waitCh, runErr)
}

// Shutdown 手动触发退出，Run 返回前不会阻塞调用方
func (m *Manager) Shutdown() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// shutdown 逆序调用停止函数，等待协程返回后执行退出钩子
// waitCh 为 nil 表示协程已全部返回
func (m *Manager) shutdown(workers []*worker, waitCh <-chan error, runErr error) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()

	errs := []error{}
	for i := len(workers) - 1; i >= 0; i-- {
		w := workers[i]
		if w.stop == nil {
			continue
		}
		if err := w.stop(ctx); err != nil {
			m.log.Warn("worker stop failed", logger.String("worker", w.name), logger.GetError(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", w.name, err))
		}
	}

	if waitCh != nil {
		select {
		case runErr = <-waitCh:
		case <-ctx.Done():
			m.log.Error("shutdown timeout", logger.Duration("timeout", m.shutdownTimeout))
			return ErrShutdownTimeout
		}
	}
	errs = append([]error{runErr}, errs...)

	m.mu.Lock()
	hooks := slices.Clone(m.onShutdown)
	m.mu.Unlock()
	for _, fn := range hooks {
		if err := fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown hook: %w", err))
		}
	}
	return errors.Join(errs...)
}
