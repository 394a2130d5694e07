package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 默认输入为 STDIN（"-"），块文件写入 ./chunks；
// - 组件名采用仓库内置实现，模板使用内置改写提示；
// - 选项给出全部键与中性默认值。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Chop.Inputs = []string{"-"}
	cfg.Chop.OutputDir = "chunks"
	cfg.Components.Template = "rewrite"
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules"],
  "no_decompress": false
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "atomic": true,
  "flat": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	cfg.Options.Policy = json.RawMessage(`{
  "separator": "",
  "banners": null,
  "contents_line": "",
  "chapter_keywords": null,
  "heading_indent": 0
}`)
	// fields 计数器无配置项，保持空对象
	cfg.Options.Counter = json.RawMessage(`{}`)
	cfg.Options.Template = json.RawMessage(`{
  "inline_template": "",
  "template_path": ""
}`)
	return cfg
}

// dotEnvKeys 为 .env 模板中列出的覆盖项。
var dotEnvKeys = []string{
	"CONFIG_FILE",
	"CHOP_INPUTS",
	"CHOP_CHUNK_SIZE_WORDS",
	"CHOP_MIN_WORDS_TO_EMIT",
	"CHOP_OUTPUT_DIR",
	"REASSEMBLE_CHUNK_DIR",
	"REASSEMBLE_SUFFIX",
	"REASSEMBLE_PREFIX_DIR",
	"REASSEMBLE_LAYOUT_PATH",
	"REASSEMBLE_TITLE",
	"LOG_LEVEL",
	"COMPONENTS_READER",
	"COMPONENTS_WRITER",
	"COMPONENTS_POLICY",
	"COMPONENTS_COUNTER",
	"COMPONENTS_TEMPLATE",
}

// WriteTemplates 在 dir 下生成 config.json 与 .env 模板；已存在的文件跳过，不覆盖。
// 返回实际写出的路径。
func WriteTemplates(fsys afero.Fs, dir string) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(DefaultTemplateConfig(), "", "  ")
	if err != nil {
		return nil, err
	}
	env := make(map[string]string, len(dotEnvKeys))
	for _, k := range dotEnvKeys {
		env[EnvPrefix+k] = ""
	}
	envBody, err := godotenv.Marshal(env)
	if err != nil {
		return nil, err
	}
	var hdr strings.Builder
	hdr.WriteString("# bookchop .env 模板（由 init-config 生成）\n")
	hdr.WriteString("# 优先级：CLI > ENV(.env) > 配置文件 > 默认值；空值表示未设置。\n\n")

	var written []string
	for _, f := range []struct {
		name string
		body string
	}{
		{"config.json", string(b) + "\n"},
		{".env", hdr.String() + envBody + "\n"},
	} {
		p := filepath.Join(dir, f.name)
		ok, err := createExcl(fsys, p, f.body)
		if err != nil {
			return written, fmt.Errorf("init-config %s: %w", p, err)
		}
		if ok {
			written = append(written, p)
		}
	}
	return written, nil
}

// createExcl 仅在文件不存在时创建；已存在返回 false。
func createExcl(fsys afero.Fs, path, body string) (bool, error) {
	f, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}
