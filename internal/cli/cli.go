// Package cli statesurf 命令行
package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lithammer/dedent"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/junbin-yang/statesurf/pkg/chart"
	"github.com/junbin-yang/statesurf/pkg/config"
	"github.com/junbin-yang/statesurf/pkg/logger"
	"github.com/junbin-yang/statesurf/pkg/machines/fsm"
	"github.com/junbin-yang/statesurf/pkg/machines/hsm"
	sm "github.com/junbin-yang/statesurf/pkg/statemachine"
	"github.com/junbin-yang/statesurf/pkg/statemachine/store"
)

const (
	pConfig       = "config"
	pConfigShort  = "c"
	pLogLevel     = "log-level"
	pLogFile      = "log-file"
	pInput        = "input"
	pInputShort   = "i"
	pBuiltin      = "builtin"
	pBuiltinShort = "b"
	pStore        = "store"
)

// ErrNoChart 没有指定状态图
var ErrNoChart = errors.New("one of --input or --builtin is required")

// levelValue 命令行日志级别，未设置时使用配置文件中的级别
type levelValue struct {
	level logger.Level
	set   bool
}

var _ pflag.Value = (*levelValue)(nil)

func (v *levelValue) String() string {
	if !v.set {
		return ""
	}
	return v.level.String()
}

func (v *levelValue) Set(s string) error {
	level, err := logger.ParseLevel(s)
	if err != nil {
		return err
	}
	v.level, v.set = level, true
	return nil
}

func (v *levelValue) Type() string {
	return "level"
}

// app 子命令共享的运行环境，在 PersistentPreRunE 中初始化
type app struct {
	cfg      *config.Manager[config.Settings]
	settings config.Settings
	log      *logger.ZapLogger
	level    levelValue
}

// NewRootCmd 创建根命令
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "statesurf",
		Short: "Hierarchical state machine toolkit",
		Long: strings.Trim(dedent.Dedent(`
			statesurf loads PlantUML or YAML state charts, validates them,
			runs events through the dispatch engine and renders diagrams.

			Example:
			$ statesurf validate -i hsm.puml
			$ statesurf simulate -b hsm -e G,I,A,D,D,C
			$ statesurf render -i door.yml --format dot --guards
			$ statesurf snapshot list
			$ statesurf serve -b hsm --addr :8080 --persist
		`), "\n"),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	f := root.PersistentFlags()
	f.StringP(pConfig, pConfigShort, "", "Config file, default search paths are tried when empty")
	f.Var(&a.level, pLogLevel, "Log level: debug, info, warn, error")
	f.String(pLogFile, "", "Log file, rotated by the configured policy")

	root.AddCommand(
		newValidateCmd(a),
		newSimulateCmd(a),
		newRenderCmd(a),
		newSnapshotCmd(a),
		newConfigCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup 加载配置并创建日志
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString(pConfig)
	m, err := config.LoadSettings(path, config.WithLogger(logger.Default()))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = m
	a.settings = *m.Get()

	if cmd.Flags().Changed(pLogFile) {
		a.settings.Log.File, _ = cmd.Flags().GetString(pLogFile)
	}
	level := a.level.level
	if !a.level.set {
		if level, err = logger.ParseLevel(a.settings.Log.Level); err != nil {
			return err
		}
	}
	encoding, err := logger.ParseEncoding(a.settings.Log.Format)
	if err != nil {
		return err
	}
	a.log = logger.NewWithEncoding(logOutput(a.settings.Log, cmd.ErrOrStderr()), level, encoding, logger.AddCaller())
	a.log.Debug("config loaded", logger.String("path", m.Path()), logger.String("level", level.String()))
	return nil
}

// logOutput 按配置选择日志输出
func logOutput(s config.LogSettings, fallback io.Writer) io.Writer {
	if s.File == "" {
		return fallback
	}
	cfg := &logger.RotateConfig{
		Filename:   s.File,
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     s.MaxAge,
		LocalTime:  true,
	}
	if s.Rotate == "time" {
		return logger.NewRotateByTime(cfg)
	}
	return logger.NewRotateBySize(cfg)
}

func addChartFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP(pInput, pInputShort, "", "Chart file (.puml or .yml)")
	f.StringP(pBuiltin, pBuiltinShort, "", "Built-in chart: hsm, fsm")
}

// loadChart 读取 --input 指定的文件或内置状态图
func loadChart(cmd *cobra.Command) (*sm.Definition, *sm.Chart, error) {
	input, _ := cmd.Flags().GetString(pInput)
	builtin, _ := cmd.Flags().GetString(pBuiltin)

	switch {
	case input != "" && builtin != "":
		return nil, nil, errors.New("--input and --builtin are mutually exclusive")
	case input != "":
		return chart.CompileFile(input)
	case builtin == hsm.Name:
		return hsm.Definition(), hsm.Chart(), nil
	case builtin == fsm.Name:
		return fsm.Definition(), fsm.Chart(), nil
	case builtin != "":
		return nil, nil, fmt.Errorf("unknown built-in chart %q", builtin)
	default:
		return nil, nil, ErrNoChart
	}
}

func addStoreFlag(cmd *cobra.Command) {
	cmd.Flags().String(pStore, "", "Snapshot database, overrides store.path")
}

// openStore 打开快照数据库
func (a *app) openStore(cmd *cobra.Command) (*store.Store, error) {
	path := a.settings.Store.Path
	if cmd.Flags().Changed(pStore) {
		path, _ = cmd.Flags().GetString(pStore)
	}
	s, err := store.Open(path,
		store.WithBucket(a.settings.Store.Bucket),
		store.WithTimeout(time.Duration(a.settings.Store.Timeout)*time.Second),
	)
	if err != nil {
		return nil, err
	}
	a.log.Debug("store opened", logger.String("path", path))
	return s, nil
}
