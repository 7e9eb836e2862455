package chart

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	sm "github.com/junbin-yang/statesurf/pkg/statemachine"
)

// Format 状态图文件格式
type Format string

const (
	FormatPlantUML Format = "plantuml"
	FormatYAML     Format = "yaml"
)

// FormatOf 按文件后缀识别格式
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".puml", ".plantuml", ".pu", ".uml":
		return FormatPlantUML, nil
	case ".yml", ".yaml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unknown chart format %q", ErrUnsupported, filepath.Ext(path))
	}
}

// Load 按指定格式读取状态图，name 在 YAML 未给出名称时使用
func Load(r io.Reader, format Format, name string) (*sm.Definition, error) {
	switch format {
	case FormatPlantUML:
		return ParsePlantUML(r, name)
	case FormatYAML:
		return loadYAML(r, name)
	default:
		return nil, fmt.Errorf("%w: unknown chart format %q", ErrUnsupported, format)
	}
}

// LoadFile 读取状态图文件，状态图名称默认取文件名
func LoadFile(path string) (*sm.Definition, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	d, err := Load(f, format, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// CompileFile 读取并编译状态图文件
func CompileFile(path string) (*sm.Definition, *sm.Chart, error) {
	d, err := LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	c, err := d.Compile()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, c, nil
}
