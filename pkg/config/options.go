package config

import (
	"time"

	"github.com/junbin-yang/statesurf/pkg/logger"
)

type options struct {
	appName      string
	serializer   Serializer
	forceFormat  Serializer
	formats      []Serializer
	defaultPaths []string
	watch        bool
	debounce     time.Duration
	log          logger.Logger
}

func defaultOptions() options {
	return options{
		appName:    "statesurf",
		serializer: YAML,
		formats:    []Serializer{YAML, JSON, INI},
		defaultPaths: []string{
			"./{{.AppName}}",
			"{{.HomeDir}}/.{{.AppName}}/{{.AppName}}",
			"{{.ExecDir}}/{{.AppName}}",
			"/etc/{{.AppName}}/{{.AppName}}",
		},
		debounce: 500 * time.Millisecond,
		log:      logger.Default(),
	}
}

// Option 配置管理器选项
type Option func(*options)

// WithAppName 设置应用名称（用于默认配置文件名）
func WithAppName(name string) Option {
	return func(o *options) {
		o.appName = name
	}
}

// WithSerializer 设置无后缀文件使用的序列化器
func WithSerializer(s Serializer) Option {
	return func(o *options) {
		o.serializer = s
	}
}

// WithForceFormat 强制指定配置格式（无视文件后缀）
func WithForceFormat(s Serializer) Option {
	return func(o *options) {
		o.forceFormat = s
	}
}

// WithDefaultPaths 设置默认配置文件查找路径，支持 {{.AppName}} {{.ExecDir}} {{.HomeDir}}
func WithDefaultPaths(paths ...string) Option {
	return func(o *options) {
		o.defaultPaths = paths
	}
}

// WithConfigFormats 设置支持的配置格式列表
func WithConfigFormats(formats ...Serializer) Option {
	return func(o *options) {
		o.formats = formats
	}
}

// WithConfigWatch 启用配置文件监听，文件变化后经过防抖间隔自动重载
func WithConfigWatch(enable bool, debounce time.Duration) Option {
	return func(o *options) {
		o.watch = enable
		if debounce > 0 {
			o.debounce = debounce
		}
	}
}

// WithLogger 设置重载和监听错误的日志输出
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
