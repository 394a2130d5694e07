package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Chop       Chop       `json:"chop"`
	Reassemble Reassemble `json:"reassemble"`
	Logging    Logging    `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Chop: 切块阶段参数。
type Chop struct {
	// Inputs: 文件/目录/通配；空或 "-" 表示 STDIN（"-" 不能与其他根混用）。
	Inputs []string `json:"inputs" validate:"dive,required"`
	// ChunkSizeWords: 以指针区分“未设置”与显式 0（后者校验失败）。
	ChunkSizeWords *int `json:"chunk_size_words,omitempty" validate:"required,gt=0"`
	// MinWordsToEmit: 0 有语义（不抑制），以指针区分“未设置”。
	MinWordsToEmit *int `json:"min_words_to_emit,omitempty" validate:"omitempty,gte=0"`
	// OutputDir: 块文件输出目录，注入 Writer 的 output_dir。
	OutputDir string `json:"output_dir" validate:"required"`
}

// Reassemble: 合并阶段参数。
type Reassemble struct {
	ChunkDir   string `json:"chunk_dir" validate:"required"`
	Suffix     string `json:"suffix" validate:"required"`
	PrefixDir  string `json:"prefix_dir" validate:"required"`
	LayoutPath string `json:"layout_path"`
	Title      string `json:"title"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader   string `json:"reader" validate:"required"`
	Writer   string `json:"writer" validate:"required"`
	Policy   string `json:"policy" validate:"required"`
	Counter  string `json:"counter" validate:"required"`
	Template string `json:"template" validate:"required"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader   json.RawMessage `json:"reader,omitempty"`
	Writer   json.RawMessage `json:"writer,omitempty"`
	Policy   json.RawMessage `json:"policy,omitempty"`
	Counter  json.RawMessage `json:"counter,omitempty"`
	Template json.RawMessage `json:"template,omitempty"`
}
