package config

import "errors"

// Settings statesurf 命令行与嵌入程序共用的运行配置
type Settings struct {
	Log     LogSettings     `yaml:"log" json:"log" ini:"log"`
	Store   StoreSettings   `yaml:"store" json:"store" ini:"store"`
	Machine MachineSettings `yaml:"machine" json:"machine" ini:"machine"`
	Metrics MetricsSettings `yaml:"metrics" json:"metrics" ini:"metrics"`
	Server  ServerSettings  `yaml:"server" json:"server" ini:"server"`
}

// LogSettings 日志配置
type LogSettings struct {
	Level  string `yaml:"level" json:"level" ini:"level" env:"STATESURF_LOG_LEVEL, overwrite"`
	File   string `yaml:"file" json:"file" ini:"file" env:"STATESURF_LOG_FILE, overwrite"`         // 空表示标准错误
	Format string `yaml:"format" json:"format" ini:"format" env:"STATESURF_LOG_FORMAT, overwrite"` // console 或 json
	Rotate string `yaml:"rotate" json:"rotate" ini:"rotate"`                                       // size 或 time
	MaxAge int    `yaml:"max_age" json:"max_age" ini:"max_age"`                                    // 天
}

// StoreSettings 快照存储配置
type StoreSettings struct {
	Path    string `yaml:"path" json:"path" ini:"path" env:"STATESURF_STORE_PATH, overwrite"`
	Bucket  string `yaml:"bucket" json:"bucket" ini:"bucket"`
	Timeout int    `yaml:"timeout" json:"timeout" ini:"timeout"` // 打开数据库的超时，秒
}

// MachineSettings 状态机驱动配置
type MachineSettings struct {
	QueueSize    int `yaml:"queue_size" json:"queue_size" ini:"queue_size" env:"STATESURF_QUEUE_SIZE, overwrite"`
	HistoryLimit int `yaml:"history_limit" json:"history_limit" ini:"history_limit"`
}

// MetricsSettings 指标配置
type MetricsSettings struct {
	Namespace string `yaml:"namespace" json:"namespace" ini:"namespace"`
}

// ServerSettings serve 命令配置
type ServerSettings struct {
	Addr            string `yaml:"addr" json:"addr" ini:"addr" env:"STATESURF_ADDR, overwrite"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout" ini:"shutdown_timeout"` // 秒
	Persist         bool   `yaml:"persist" json:"persist" ini:"persist"`                            // 会话快照写入 store.path
}

// DefaultSettings 默认配置
func DefaultSettings() Settings {
	return Settings{
		Log: LogSettings{
			Level:  "info",
			Rotate: "size",
			MaxAge: 7,
		},
		Store: StoreSettings{
			Path:    "statesurf.db",
			Bucket:  "snapshots",
			Timeout: 1,
		},
		Machine: MachineSettings{
			QueueSize:    64,
			HistoryLimit: 100,
		},
		Metrics: MetricsSettings{
			Namespace: "statesurf",
		},
		Server: ServerSettings{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: 10,
		},
	}
}

// LoadSettings 加载运行配置
// path 为空且默认路径下没有配置文件时，使用默认值并应用环境变量
func LoadSettings(path string, opts ...Option) (*Manager[Settings], error) {
	m := NewManager(DefaultSettings(), opts...)
	err := m.Load(path)
	if path == "" && errors.Is(err, ErrConfigNotFound) {
		return m, m.ApplyEnv()
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
