package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"

	"bookchop/internal/chopper"
	"bookchop/internal/pipeline"
	"bookchop/internal/reassemble"
	"bookchop/pkg/contract"
	"bookchop/pkg/registry"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 对最小必要边界做静态校验（结构标签 + 注册表名称）。
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w: %w", contract.ErrConfig, err)
	}
	// "-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Chop.Inputs {
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Chop.Inputs) > 1 {
		return fmt.Errorf("config: %w: '-' cannot be mixed with other roots", contract.ErrConfig)
	}
	if registry.Reader[cfg.Components.Reader] == nil {
		return fmt.Errorf("config: %w: reader %q not registered", contract.ErrConfig, cfg.Components.Reader)
	}
	if registry.Writer[cfg.Components.Writer] == nil {
		return fmt.Errorf("config: %w: writer %q not registered", contract.ErrConfig, cfg.Components.Writer)
	}
	if registry.Policy[cfg.Components.Policy] == nil {
		return fmt.Errorf("config: %w: policy %q not registered", contract.ErrConfig, cfg.Components.Policy)
	}
	if registry.Counter[cfg.Components.Counter] == nil {
		return fmt.Errorf("config: %w: counter %q not registered", contract.ErrConfig, cfg.Components.Counter)
	}
	if registry.Template[cfg.Components.Template] == nil {
		return fmt.Errorf("config: %w: template %q not registered", contract.ErrConfig, cfg.Components.Template)
	}
	return nil
}

// AssembleChop 构造切块运行的 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func AssembleChop(cfg Config, fsys afero.Fs) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	r, err := registry.Reader[cfg.Components.Reader](fsys, cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, factoryErr("reader", err)
	}
	w, err := newWriter(cfg, fsys, cfg.Chop.OutputDir)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	p, err := registry.Policy[cfg.Components.Policy](cfg.Options.Policy)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, factoryErr("policy", err)
	}
	c, err := registry.Counter[cfg.Components.Counter](cfg.Options.Counter)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, factoryErr("counter", err)
	}
	t, err := registry.Template[cfg.Components.Template](cfg.Options.Template)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, factoryErr("template", err)
	}

	comp := pipeline.Components{Reader: r, Writer: w, Policy: p, Counter: c, Template: t}
	// 未设置时交给 chopper 取默认
	minWords := -1
	if cfg.Chop.MinWordsToEmit != nil {
		minWords = *cfg.Chop.MinWordsToEmit
	}
	set := pipeline.Settings{
		Inputs: cloneStrings(cfg.Chop.Inputs),
		Chopper: chopper.Options{
			ChunkSizeWords: *cfg.Chop.ChunkSizeWords,
			MinWordsToEmit: minWords,
		},
	}
	return comp, set, nil
}

// AssembleReassemble 构造合并器、输出 Writer 与运行设置。
// output 为合并结果路径：书名由其基名派生，Writer 根目录为其所在目录。
func AssembleReassemble(cfg Config, fsys afero.Fs, output string) (*reassemble.Reassembler, contract.Writer, pipeline.ReassembleSettings, error) {
	var set pipeline.ReassembleSettings
	if err := Validate(cfg); err != nil {
		return nil, nil, set, err
	}
	if strings.TrimSpace(output) == "" {
		return nil, nil, set, fmt.Errorf("config: %w: output path is required", contract.ErrConfig)
	}
	rs, err := reassemble.New(fsys, reassemble.Options{
		ChunkDir:   cfg.Reassemble.ChunkDir,
		Suffix:     cfg.Reassemble.Suffix,
		PrefixDir:  cfg.Reassemble.PrefixDir,
		LayoutPath: cfg.Reassemble.LayoutPath,
		Title:      cfg.Reassemble.Title,
	})
	if err != nil {
		return nil, nil, set, err
	}
	w, err := newWriter(cfg, fsys, filepath.Dir(output))
	if err != nil {
		return nil, nil, set, err
	}
	set.Book = reassemble.BookName(output)
	set.Output = contract.ArtifactID(filepath.Base(output))
	return rs, w, set, nil
}

func newWriter(cfg Config, fsys afero.Fs, dir string) (contract.Writer, error) {
	raw, err := withOutputDir(cfg.Options.Writer, dir)
	if err != nil {
		return nil, factoryErr("writer", err)
	}
	w, err := registry.Writer[cfg.Components.Writer](fsys, raw)
	if err != nil {
		return nil, factoryErr("writer", err)
	}
	return w, nil
}

// withOutputDir 将 output_dir 注入 Writer 的原样 Options（覆盖已有值）。
func withOutputDir(raw json.RawMessage, dir string) (json.RawMessage, error) {
	m := map[string]any{}
	if t := bytes.TrimSpace(raw); len(t) > 0 && !bytes.Equal(t, []byte("null")) {
		if err := json.Unmarshal(t, &m); err != nil {
			return nil, err
		}
	}
	if dir != "" {
		m["output_dir"] = dir
	}
	return json.Marshal(m)
}

func factoryErr(kind string, err error) error {
	return fmt.Errorf("config: %w: %s options: %w", contract.ErrConfig, kind, err)
}
