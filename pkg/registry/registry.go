package registry

import (
	"bytes"
	"encoding/json"

	"github.com/spf13/afero"

	"bookchop/pkg/contract"
	cfields "bookchop/plugins/counter/fields"
	ctik "bookchop/plugins/counter/tiktoken"
	cuax "bookchop/plugins/counter/uax29"
	pgut "bookchop/plugins/policy/gutenberg"
	pmd "bookchop/plugins/policy/markdown"
	rfs "bookchop/plugins/reader/filesystem"
	tph "bookchop/plugins/template/placeholder"
	wfs "bookchop/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收文件系统与原样 JSON Options。
type NewReader func(fsys afero.Fs, raw json.RawMessage) (contract.Reader, error)

// NewWriter 工厂签名：接收文件系统与原样 JSON Options。
type NewWriter func(fsys afero.Fs, raw json.RawMessage) (contract.Writer, error)

// NewPolicy 工厂签名：接收原样 JSON Options。
type NewPolicy func(raw json.RawMessage) (contract.BoundaryPolicy, error)

// NewCounter 工厂签名：接收原样 JSON Options。
type NewCounter func(raw json.RawMessage) (contract.WordCounter, error)

// NewTemplate 工厂签名：接收原样 JSON Options。返回 nil 表示原样输出。
type NewTemplate func(raw json.RawMessage) (contract.Template, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件/目录/通配/STDIN Reader（透明解压）
	"fs": func(fsys afero.Fs, raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(fsys, &opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(fsys afero.Fs, raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(fsys, &opts)
	},
}

// Policy 边界策略注册表。
var Policy = map[string]NewPolicy{
	"gutenberg": func(raw json.RawMessage) (contract.BoundaryPolicy, error) {
		var opts pgut.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return pgut.New(&opts), nil
	},
	"markdown": func(raw json.RawMessage) (contract.BoundaryPolicy, error) {
		var opts pmd.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return pmd.New(&opts), nil
	},
}

// Counter 词数估计注册表。
var Counter = map[string]NewCounter{
	// fields: 空白切分（默认）
	"fields": func(raw json.RawMessage) (contract.WordCounter, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cfields.New(), nil
	},
	// uax29: Unicode 词边界
	"uax29": func(raw json.RawMessage) (contract.WordCounter, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cuax.New(), nil
	},
	// tiktoken: 按 BPE token 计数
	"tiktoken": func(raw json.RawMessage) (contract.WordCounter, error) {
		var opts ctik.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ctik.New(&opts)
	},
}

// Template 块包装模板注册表。
var Template = map[string]NewTemplate{
	// raw: 不包装，原样写出
	"raw": func(raw json.RawMessage) (contract.Template, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return nil, nil
	},
	// rewrite: 占位符模板（默认内置改写提示）
	"rewrite": func(raw json.RawMessage) (contract.Template, error) {
		var opts tph.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return tph.New(&opts)
	},
}
