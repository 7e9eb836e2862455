package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// applyEnvOverrides 按 env 标签应用环境变量覆盖
// 标签需要带 overwrite，否则文件中已有的非零值不会被覆盖
func applyEnvOverrides(v interface{}) error {
	return envconfig.Process(context.Background(), v)
}
