package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/junbin-yang/statesurf/pkg/logger"
)

// ErrConfigNotFound 默认路径下没有找到配置文件
var ErrConfigNotFound = errors.New("no config file found")

// Manager 配置管理器，T 为配置结构体
type Manager[T any] struct {
	mu         sync.RWMutex
	defaults   T  // 重载时的初始值
	instance   *T // 当前配置
	path       string
	serializer Serializer
	opts       options
	once       sync.Once
	loadErr    error

	watcher   *fsnotify.Watcher
	watchQuit chan struct{}
	closeOnce sync.Once

	callbacks []func(old, new *T)
}

// NewManager 创建配置管理器，defaults 为未出现在文件中的字段的取值
func NewManager[T any](defaults T, opts ...Option) *Manager[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	instance := defaults
	return &Manager[T]{
		defaults:   defaults,
		instance:   &instance,
		serializer: o.serializer,
		opts:       o,
		watchQuit:  make(chan struct{}),
	}
}

// Load 加载配置文件，只生效一次
// customPath 为空时按默认路径查找
func (m *Manager[T]) Load(customPath string) error {
	m.once.Do(func() {
		m.loadErr = m.load(customPath)
	})
	return m.loadErr
}

func (m *Manager[T]) load(customPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if customPath != "" {
		if err := validateConfigPath(customPath); err != nil {
			return fmt.Errorf("invalid custom config path: %w", err)
		}
		m.path = customPath
		m.serializer = m.chooseSerializer(customPath)
	} else {
		path, serializer, err := m.findDefaultConfigPath()
		if err != nil {
			return err
		}
		m.path, m.serializer = path, serializer
	}

	instance, err := m.parse(m.path)
	if err != nil {
		return err
	}
	m.instance = instance

	if m.opts.watch {
		if err := m.startWatch(); err != nil {
			m.opts.log.Warn("config watch disabled", logger.String("path", m.path), logger.GetError(err))
		}
	}
	return nil
}

// ApplyEnv 只应用环境变量覆盖，用于没有配置文件的场景
func (m *Manager[T]) ApplyEnv() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return applyEnvOverrides(m.instance)
}

// Get 获取当前配置，返回值只读
func (m *Manager[T]) Get() *T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.instance
}

// Path 返回加载的配置文件路径
func (m *Manager[T]) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.path
}

// Save 保存当前配置到加载时的文件
func (m *Manager[T]) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.path == "" {
		return errors.New("config path not initialized")
	}
	data, err := m.serializer.Marshal(m.instance)
	if err != nil {
		return fmt.Errorf("marshal config failed: %w", err)
	}
	return writeFileAtomic(m.path, data)
}

// Reload 重新读取配置文件，成功后依次调用变更回调
func (m *Manager[T]) Reload() error {
	m.mu.RLock()
	path := m.path
	m.mu.RUnlock()

	if path == "" {
		return errors.New("config path not initialized")
	}
	if err := validateConfigPath(path); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}

	m.mu.Lock()
	instance, err := m.parse(path)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	old := m.instance
	m.instance = instance
	m.loadErr = nil
	callbacks := append([]func(old, new *T){}, m.callbacks...)
	m.mu.Unlock()

	// 回调在锁外执行
	for _, callback := range callbacks {
		callback(old, instance)
	}
	return nil
}

// OnChange 注册配置变更回调
func (m *Manager[T]) OnChange(callback func(old, new *T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// EnableWatch 动态启用/禁用配置监听
func (m *Manager[T]) EnableWatch(enable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opts.watch = enable
	if !enable {
		m.stopWatch()
		return nil
	}
	if m.path == "" {
		return errors.New("config path not initialized")
	}
	return m.startWatch()
}

// Close 停止监听
func (m *Manager[T]) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.stopWatch()
		m.mu.Unlock()
		close(m.watchQuit)
	})
}

/* ------------------------------ 内部方法 ------------------------------ */

// parse 在默认值上解析文件并应用环境变量
func (m *Manager[T]) parse(path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}

	instance := m.defaults
	if err := m.serializer.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("unmarshal failed (%s): %w", m.serializer.GetName(), err)
	}
	if err := applyEnvOverrides(&instance); err != nil {
		return nil, fmt.Errorf("apply env overrides failed: %w", err)
	}
	return &instance, nil
}

// chooseSerializer 强制格式 > 后缀识别 > 默认
func (m *Manager[T]) chooseSerializer(path string) Serializer {
	if m.opts.forceFormat != nil {
		return m.opts.forceFormat
	}
	ext := filepath.Ext(path)
	for _, format := range m.opts.formats {
		if format.GetFileExt() == ext {
			return format
		}
	}
	if ext == ".yaml" {
		return YAML
	}
	return m.opts.serializer
}

// findDefaultConfigPath 依次尝试无后缀和各格式后缀
func (m *Manager[T]) findDefaultConfigPath() (string, Serializer, error) {
	vars := pathVars(m.opts.appName)
	for _, tpl := range m.opts.defaultPaths {
		base := replacePathVars(tpl, vars)

		if err := validateConfigPath(base); err == nil {
			return base, m.chooseSerializer(base), nil
		}
		for _, format := range m.opts.formats {
			full := base + format.GetFileExt()
			if err := validateConfigPath(full); err == nil {
				if m.opts.forceFormat != nil {
					return full, m.opts.forceFormat, nil
				}
				return full, format, nil
			}
		}
	}
	return "", nil, ErrConfigNotFound
}

// startWatch 调用方持有写锁
func (m *Manager[T]) startWatch() error {
	if m.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher failed: %w", err)
	}
	if err := w.Add(m.path); err != nil {
		_ = w.Close()
		return fmt.Errorf("add watch path failed: %w", err)
	}
	m.watcher = w
	go m.watchLoop(w)
	return nil
}

// stopWatch 调用方持有写锁
func (m *Manager[T]) stopWatch() {
	if m.watcher != nil {
		_ = m.watcher.Close()
		m.watcher = nil
	}
}

// watchLoop 文件变化后防抖重载
func (m *Manager[T]) watchLoop(w *fsnotify.Watcher) {
	var debounce <-chan time.Time

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce = time.After(m.opts.debounce)
			}

		case <-debounce:
			debounce = nil
			if err := m.Reload(); err != nil {
				m.opts.log.Warn("config auto reload failed", logger.String("path", m.Path()), logger.GetError(err))
			} else {
				m.opts.log.Info("config auto reloaded", logger.String("path", m.Path()))
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			m.opts.log.Warn("config watch error", logger.GetError(err))

		case <-m.watchQuit:
			return
		}
	}
}
