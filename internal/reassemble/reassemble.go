package reassemble

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/spf13/afero"

	"bookchop/pkg/contract"
)

//go:embed layout.html.tmpl
var defaultLayout string

// Options 为合并阶段的可选配置。
type Options struct {
	// ChunkDir: 处理后块文件所在目录；为空使用 "outputs/"。
	ChunkDir string
	// Suffix: 处理后块文件后缀；为空使用 ".out"。
	Suffix string
	// PrefixDir: <book>.prefix 旁路文件所在目录；为空使用当前目录。
	PrefixDir string
	// LayoutPath: 自定义布局模板（text/template + sprig）；为空使用内置布局。
	LayoutPath string
	// Title: 文档标题；为空时使用书名。
	Title string
}

// Document 为合并结果。约束：len(Originals) == len(Rewrites)，下标一一对应。
type Document struct {
	BookName  string
	Title     string
	Prefix    string
	Sources   []string
	Originals []string
	Rewrites  []string
}

// Reassembler 将处理后的块文件合并为单个 HTML 文档。
type Reassembler struct {
	fs     afero.Fs
	opts   Options
	layout *template.Template
}

// New 创建合并器并解析布局模板。
func New(fsys afero.Fs, opts Options) (*Reassembler, error) {
	if fsys == nil {
		return nil, fmt.Errorf("reassemble: %w: nil filesystem", contract.ErrInvalidInput)
	}
	if opts.ChunkDir == "" {
		opts.ChunkDir = "outputs/"
	}
	if opts.Suffix == "" {
		opts.Suffix = ".out"
	}
	if opts.PrefixDir == "" {
		opts.PrefixDir = "."
	}
	src := defaultLayout
	if opts.LayoutPath != "" {
		b, err := afero.ReadFile(fsys, opts.LayoutPath)
		if err != nil {
			return nil, fmt.Errorf("reassemble: %w: layout %s: %v", contract.ErrConfig, opts.LayoutPath, err)
		}
		src = string(b)
	}
	tpl, err := template.New("layout").Funcs(sprig.TxtFuncMap()).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("reassemble: %w: layout: %v", contract.ErrConfig, err)
	}
	return &Reassembler{fs: fsys, opts: opts, layout: tpl}, nil
}

// Discover 按配置列出 book 的处理后块文件。
func (r *Reassembler) Discover(book string) ([]string, error) {
	return Discover(r.fs, r.opts.ChunkDir, book, r.opts.Suffix)
}

// Assemble 逐文件抽取原文与改写；标记缺失记为 Finding 并继续。
// 原文/改写数量不一致返回 ErrInvariantViolation。
func (r *Reassembler) Assemble(ctx context.Context, book string, files []string) (Document, []contract.Finding, error) {
	doc := Document{BookName: book, Title: r.opts.Title, Sources: files}
	var findings []contract.Finding
	if len(files) == 0 {
		findings = append(findings, contract.Finding{
			File: contract.NormalizeFileID(r.opts.ChunkDir),
			Kind: contract.FindingNoChunkFiles,
			Msg:  fmt.Sprintf("no %s*%s files found", book, r.opts.Suffix),
		})
	}
	for _, f := range files {
		select {
		case <-ctx.Done():
			return Document{}, findings, ctx.Err()
		default:
		}
		b, err := afero.ReadFile(r.fs, f)
		if err != nil {
			return Document{}, findings, fmt.Errorf("reassemble read %s: %w", f, err)
		}
		lines := SplitLines(string(b))
		orig, k1 := ExtractOriginal(lines)
		rew, k2 := ExtractRewrite(lines)
		for _, k := range []contract.FindingKind{k1, k2} {
			if k != "" {
				findings = append(findings, contract.Finding{File: contract.NormalizeFileID(f), Kind: k, Msg: findingMsg(k)})
			}
		}
		doc.Originals = append(doc.Originals, orig)
		doc.Rewrites = append(doc.Rewrites, rew)
	}
	if len(doc.Originals) != len(doc.Rewrites) {
		return Document{}, findings, fmt.Errorf("reassemble: %w: %d originals vs %d rewrites",
			contract.ErrInvariantViolation, len(doc.Originals), len(doc.Rewrites))
	}
	prefix, err := r.readPrefix(book)
	if err != nil {
		return Document{}, findings, err
	}
	doc.Prefix = prefix
	return doc, findings, nil
}

// readPrefix 读取 <book>.prefix；不存在返回空串。
func (r *Reassembler) readPrefix(book string) (string, error) {
	p := filepath.Join(r.opts.PrefixDir, book+".prefix")
	b, err := afero.ReadFile(r.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reassemble prefix %s: %w", p, err)
	}
	return string(b), nil
}

type chunkView struct {
	Index    int
	Source   string
	Original string
	Rewrite  string
}

type layoutData struct {
	BookName string
	Title    string
	Prefix   string
	Chunks   []chunkView
}

// Render 以布局模板输出文档；相同输入逐字节一致。
func (r *Reassembler) Render(w io.Writer, doc Document) error {
	if len(doc.Originals) != len(doc.Rewrites) {
		return fmt.Errorf("reassemble render: %w", contract.ErrInvariantViolation)
	}
	data := layoutData{BookName: doc.BookName, Title: doc.Title, Prefix: doc.Prefix}
	for i := range doc.Originals {
		cv := chunkView{Index: i, Original: doc.Originals[i], Rewrite: doc.Rewrites[i]}
		if i < len(doc.Sources) {
			cv.Source = doc.Sources[i]
		}
		data.Chunks = append(data.Chunks, cv)
	}
	return r.layout.Execute(w, data)
}

func findingMsg(k contract.FindingKind) string {
	switch k {
	case contract.FindingNoOpenFence:
		return "does not have an opening ``` fence"
	case contract.FindingNoCloseFence:
		return "does not have a closing ``` fence"
	case contract.FindingNoBeginMarker:
		return "does not have <BEGIN REWRITE> marker"
	case contract.FindingNoEndMarker:
		return "does not have <END REWRITE> marker"
	default:
		return string(k)
	}
}
