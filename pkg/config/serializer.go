package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v2"
)

// Serializer 配置文件格式
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	GetFileExt() string // 如 .yml
	GetName() string    // 如 yaml
}

// format 由编解码函数组装的 Serializer
type format struct {
	name      string
	ext       string
	marshal   func(v interface{}) ([]byte, error)
	unmarshal func(data []byte, v interface{}) error
}

func (f format) Marshal(v interface{}) ([]byte, error)      { return f.marshal(v) }
func (f format) Unmarshal(data []byte, v interface{}) error { return f.unmarshal(data, v) }
func (f format) GetFileExt() string                         { return f.ext }
func (f format) GetName() string                            { return f.name }

// 内置格式，YAML 和 JSON 遇到未知字段时报错
var (
	YAML Serializer = format{name: "yaml", ext: ".yml", marshal: yaml.Marshal, unmarshal: yaml.UnmarshalStrict}
	JSON Serializer = format{name: "json", ext: ".json", marshal: marshalJSON, unmarshal: unmarshalJSON}
	INI  Serializer = format{name: "ini", ext: ".ini", marshal: marshalINI, unmarshal: unmarshalINI}
)

func marshalJSON(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func unmarshalJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func marshalINI(v interface{}) ([]byte, error) {
	cfg := ini.Empty()
	if err := cfg.ReflectFrom(v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalINI(data []byte, v interface{}) error {
	cfg, err := ini.Load(data)
	if err != nil {
		return err
	}
	return cfg.MapTo(v)
}

// SerializerByName 按格式名称或扩展名查找内置格式
func SerializerByName(name string) (Serializer, error) {
	switch strings.TrimPrefix(strings.ToLower(name), ".") {
	case "yaml", "yml":
		return YAML, nil
	case "json":
		return JSON, nil
	case "ini":
		return INI, nil
	}
	return nil, fmt.Errorf("unsupported config format %q", name)
}
