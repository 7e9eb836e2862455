// statesurf 状态图校验、仿真与渲染工具
package main

import (
	"fmt"
	"os"

	"github.com/junbin-yang/statesurf/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
