package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"bookchop/pkg/contract"
)

// EnvPrefix 为环境变量覆盖的统一前缀。
const EnvPrefix = "BOOKCHOP_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	size, minWords := 1200, 100
	return Config{
		Chop: Chop{
			ChunkSizeWords: &size,
			MinWordsToEmit: &minWords,
			OutputDir:      ".",
		},
		Reassemble: Reassemble{
			ChunkDir:  "outputs/",
			Suffix:    ".out",
			PrefixDir: ".",
		},
		Logging: Logging{Level: "info"},
		Components: Components{
			Reader:   "fs",
			Writer:   "fs",
			Policy:   "gutenberg",
			Counter:  "fields",
			Template: "raw",
		},
	}
}

// LoadFile 读取配置文件：.yaml/.yml 按 YAML 解析，其余按 JSON；均严格拒绝未知字段。
func LoadFile(fsys afero.Fs, path string) (Config, error) {
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w: %w", contract.ErrConfig, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(b)
	default:
		return LoadJSON(b)
	}
}

// LoadJSON 从原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(raw []byte) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w: %w", contract.ErrConfig, err)
	}
	return cfg, nil
}

// LoadYAML 先解为通用树再转 JSON 严格解码；options 子树因此仍以原样 JSON 交给工厂。
func LoadYAML(raw []byte) (Config, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return Config{}, fmt.Errorf("config: %w: %w", contract.ErrConfig, err)
	}
	if len(tree) == 0 {
		return Config{}, nil
	}
	b, err := json.Marshal(tree)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w: yaml: %w", contract.ErrConfig, err)
	}
	return LoadJSON(b)
}

// Merge 按优先级合并（over 覆盖 base）。
// 非零值覆盖；切片与原样 JSON 整体替换，不做深度合并。
// 整数指针非 nil 即覆盖（含 0），交由 Validate 判定取值。
func Merge(base, over Config) (Config, error) {
	out := base
	size, minWords := over.Chop.ChunkSizeWords, over.Chop.MinWordsToEmit
	over.Chop.ChunkSizeWords, over.Chop.MinWordsToEmit = nil, nil
	if err := mergo.Merge(&out, over, mergo.WithOverride); err != nil {
		return base, fmt.Errorf("config: %w: merge: %w", contract.ErrConfig, err)
	}
	out.Chop.ChunkSizeWords = pickInt(out.Chop.ChunkSizeWords, size)
	out.Chop.MinWordsToEmit = pickInt(out.Chop.MinWordsToEmit, minWords)
	out.Chop.Inputs = cloneStrings(out.Chop.Inputs)
	return out, nil
}

// pickInt 返回 over 的副本；over 为 nil 时返回 base 的副本。
func pickInt(base, over *int) *int {
	p := base
	if over != nil {
		p = over
	}
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// LoadDotEnv 读取 .env 注入进程环境（不覆盖已有变量）；文件不存在时忽略。
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: %w: %s: %w", contract.ErrConfig, path, err)
	}
	return nil
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 BOOKCHOP_；空值视为未设置；整数非法时返回 ErrConfig。
// 支持：CHOP_*, REASSEMBLE_*, LOG_LEVEL, COMPONENTS_*, OPTIONS_*_JSON。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		nk := strings.TrimPrefix(key, EnvPrefix)
		switch nk {
		case "CHOP_INPUTS":
			over.Chop.Inputs = splitComma(val)
		case "CHOP_CHUNK_SIZE_WORDS":
			n, err := atoi(key, val)
			if err != nil {
				return Config{}, err
			}
			over.Chop.ChunkSizeWords = &n
		case "CHOP_MIN_WORDS_TO_EMIT":
			n, err := atoi(key, val)
			if err != nil {
				return Config{}, err
			}
			over.Chop.MinWordsToEmit = &n
		case "CHOP_OUTPUT_DIR":
			over.Chop.OutputDir = val
		case "REASSEMBLE_CHUNK_DIR":
			over.Reassemble.ChunkDir = val
		case "REASSEMBLE_SUFFIX":
			over.Reassemble.Suffix = val
		case "REASSEMBLE_PREFIX_DIR":
			over.Reassemble.PrefixDir = val
		case "REASSEMBLE_LAYOUT_PATH":
			over.Reassemble.LayoutPath = val
		case "REASSEMBLE_TITLE":
			over.Reassemble.Title = val
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "COMPONENTS_POLICY":
			over.Components.Policy = val
		case "COMPONENTS_COUNTER":
			over.Components.Counter = val
		case "COMPONENTS_TEMPLATE":
			over.Components.Template = val
		case "OPTIONS_READER_JSON", "OPTIONS_WRITER_JSON", "OPTIONS_POLICY_JSON", "OPTIONS_COUNTER_JSON", "OPTIONS_TEMPLATE_JSON":
			if !json.Valid([]byte(val)) {
				return Config{}, fmt.Errorf("config: %w: %s is not valid JSON", contract.ErrConfig, key)
			}
			raw := json.RawMessage(val)
			switch nk {
			case "OPTIONS_READER_JSON":
				over.Options.Reader = raw
			case "OPTIONS_WRITER_JSON":
				over.Options.Writer = raw
			case "OPTIONS_POLICY_JSON":
				over.Options.Policy = raw
			case "OPTIONS_COUNTER_JSON":
				over.Options.Counter = raw
			default:
				over.Options.Template = raw
			}
		default:
			// CONFIG_FILE 等由 CLI 读取；其余未知键忽略。
		}
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(key, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("config: %w: %s=%q is not an integer", contract.ErrConfig, key, s)
	}
	return n, nil
}
