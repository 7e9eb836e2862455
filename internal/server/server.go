// Package server 通过 HTTP 管理一组运行同一状态图的状态机会话
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/junbin-yang/statesurf/pkg/logger"
	sm "github.com/junbin-yang/statesurf/pkg/statemachine"
	"github.com/junbin-yang/statesurf/pkg/statemachine/store"
)

// ErrNoStore 没有配置快照存储
var ErrNoStore = errors.New("snapshot store not configured")

// HooksFactory 为每个会话创建独占的宿主对象
type HooksFactory func(id string) sm.Hooks

// Option 服务选项
type Option func(*Server)

// WithStore 创建会话时从存储恢复，关闭时保存所有会话
func WithStore(st *store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithQueueSize 设置每个会话的事件队列长度
func WithQueueSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithNamespace 设置 Prometheus 指标的命名空间
func WithNamespace(ns string) Option {
	return func(s *Server) {
		s.namespace = ns
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// Server 会话管理服务，每个会话是一个独立协程驱动的 AsyncMachine
type Server struct {
	def       *sm.Definition
	chart     *sm.Chart
	newHooks  HooksFactory
	sessions  *sm.Concurrent
	metrics   *sm.Metrics
	registry  *prometheus.Registry
	store     *store.Store
	queueSize int
	namespace string
	log       logger.Logger
	router    *mux.Router
}

// New 创建服务，newHooks 为 nil 时每个会话使用空的 Recorder
func New(def *sm.Definition, chart *sm.Chart, newHooks HooksFactory, opts ...Option) *Server {
	s := &Server{
		def:       def,
		chart:     chart,
		newHooks:  newHooks,
		sessions:  sm.NewConcurrent(),
		metrics:   sm.NewMetrics(),
		registry:  prometheus.NewRegistry(),
		queueSize: 64,
		namespace: "statesurf",
		log:       logger.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newHooks == nil {
		s.newHooks = func(string) sm.Hooks { return &sm.Recorder{} }
	}

	s.registry.MustRegister(
		sm.NewCollector(s.namespace, chart.Name(), s.metrics),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   s.namespace,
			Name:        "sessions",
			Help:        "Live machine sessions.",
			ConstLabels: prometheus.Labels{"chart": chart.Name()},
		}, func() float64 { return float64(s.sessions.Count()) }),
	)
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Registry 返回指标注册表
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Create 创建并启动会话，存储中有同名快照时恢复快照而不启动
func (s *Server) Create(id string) (restored bool, err error) {
	if _, exists := s.sessions.GetMachine(id); exists {
		return false, fmt.Errorf("%w: %s", sm.ErrDuplicateMachine, id)
	}

	m := sm.NewMachine(s.chart, s.newHooks(id), sm.WithObserver(s.metrics), sm.WithLogger(s.log))
	restored, err = s.restore(id, m)
	if err != nil {
		return false, err
	}
	if !restored {
		if err := m.Start(); err != nil {
			return false, err
		}
	}

	a := sm.NewAsyncMachine(m, s.queueSize)
	a.Start()
	if err := s.sessions.AddMachine(id, a); err != nil {
		a.Stop()
		return false, err
	}
	s.log.Info("session created",
		logger.String("id", id),
		logger.String("state", string(a.Current())),
		logger.Bool("restored", restored))
	return restored, nil
}

func (s *Server) restore(id string, m *sm.Machine) (bool, error) {
	if s.store == nil {
		return false, nil
	}
	snap, err := s.store.Load(id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := m.Restore(snap); err != nil {
		return false, err
	}
	return true, nil
}

// Remove 停止并移除会话
func (s *Server) Remove(id string) error {
	err := s.withSession(id, func(a *sm.AsyncMachine) error {
		a.Stop()
		return nil
	})
	if err != nil {
		return err
	}
	s.sessions.RemoveMachine(id)
	s.log.Info("session removed", logger.String("id", id))
	return nil
}

// Save 保存会话快照
func (s *Server) Save(id string) error {
	if s.store == nil {
		return ErrNoStore
	}
	return s.withSession(id, func(a *sm.AsyncMachine) error {
		return s.save(id, a)
	})
}

func (s *Server) save(id string, a *sm.AsyncMachine) error {
	var snap *sm.Snapshot
	a.Do(func(m *sm.Machine) {
		snap = m.Snapshot(map[string]string{"source": "serve"})
	})
	return s.store.Save(id, snap)
}

// Close 停止所有会话，配置了存储时先保存快照
func (s *Server) Close() error {
	var errs []error
	for _, id := range s.sessions.Names() {
		err := s.withSession(id, func(a *sm.AsyncMachine) error {
			a.Stop()
			if s.store == nil {
				return nil
			}
			return s.save(id, a)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("close session %s: %w", id, err))
		}
		s.sessions.RemoveMachine(id)
	}
	return errors.Join(errs...)
}

// withSession 在持有会话锁的情况下执行 fn
func (s *Server) withSession(id string, fn func(a *sm.AsyncMachine) error) error {
	err := s.sessions.With(id, func(machine sm.StateMachine) error {
		return fn(machine.(*sm.AsyncMachine))
	})
	if errors.Is(err, sm.ErrMachineNotFound) {
		return fmt.Errorf("%w: %s", sm.ErrMachineNotFound, id)
	}
	return err
}
