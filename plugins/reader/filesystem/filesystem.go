package filesystem

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/DataDog/zstd"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"bookchop/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 在扫描目录时跳过这些目录名（基名完全匹配，忽略大小写）。
	// 仅影响目录递归与通配展开，不影响单文件 root。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// NoDecompress: 关闭透明解压（默认按内容嗅探 gzip/bzip2/zstd）。
	NoDecompress bool `json:"no_decompress"`
}

const (
	defaultBuf = 64 * 1024
	sniffLen   = 3072
)

// FileSystem 实现基于 afero 文件系统与 STDIN 的 Reader。
// - root 可以是文件、目录（递归，字典序，先子目录后文件）或 doublestar 通配（books/**/*.txt）；
// - 压缩输入按内容嗅探，嗅探失败时按 .gz/.bz2/.zst 扩展名判定；解压后 FileID 去掉压缩扩展名；
// - 目录符号链接不跟随；指向常规文件的符号链接照常读取。
type FileSystem struct {
	fs         afero.Fs
	bufSize    int
	excludeDir map[string]struct{}
	decompress bool
	// Stdin: "-" 或空 roots 时的输入源；默认 os.Stdin。
	Stdin io.Reader
}

var _ contract.Reader = (*FileSystem)(nil)

// New 创建 FileSystem Reader；fsys 为 nil 时使用 OS 文件系统。
func New(fsys afero.Fs, opts *Options) *FileSystem {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	r := &FileSystem{fs: fsys, bufSize: defaultBuf, excludeDir: map[string]struct{}{}, decompress: true, Stdin: os.Stdin}
	if opts != nil {
		if opts.BufSize > 0 {
			r.bufSize = opts.BufSize
		}
		for _, name := range opts.ExcludeDirNames {
			if name == "" {
				continue
			}
			r.excludeDir[strings.ToLower(name)] = struct{}{}
		}
		r.decompress = !opts.NoDecompress
	}
	return r
}

// Iterate 遍历 roots，按稳定顺序对每个常规文件调用 yield。
// 支持 roots 为空或仅包含 "-" 作为 STDIN。yield 负责关闭 rc。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return r.open(contract.FileID("stdin"), io.NopCloser(r.Stdin), yield)
	}
	for _, s := range roots {
		if s == "-" {
			return fmt.Errorf("reader: %w: stdin '-' cannot be mixed with other roots", contract.ErrInvalidInput)
		}
	}
	for _, root := range roots {
		if err := r.iterateOne(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateOne(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if isPattern(root) {
		return r.iterateGlob(ctx, root, yield)
	}
	info, err := r.lstat(root)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t, err := r.fs.Stat(root)
		if err != nil {
			return err
		}
		if !t.Mode().IsRegular() {
			// 非常规目标（含目录）：忽略，不报错
			return nil
		}
		return r.openFile(root, yield)
	}
	if info.IsDir() {
		return r.walkDir(ctx, root, yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.openFile(root, yield)
}

// iterateGlob 展开 doublestar 通配；无匹配视为输入错误。
func (r *FileSystem) iterateGlob(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	base, pattern := doublestar.SplitPattern(filepath.ToSlash(root))
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("reader: %w: bad pattern %q", contract.ErrInvalidInput, root)
	}
	sub := r.fs
	if base != "." {
		sub = afero.NewBasePathFs(r.fs, filepath.FromSlash(base))
	}
	matches, err := doublestar.Glob(afero.NewIOFS(sub), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return err
	}
	sort.Strings(matches)
	n := 0
	for _, m := range matches {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		if r.excluded(m) {
			continue
		}
		n++
		if err := r.openFile(filepath.FromSlash(path.Join(base, m)), yield); err != nil {
			return err
		}
	}
	if n == 0 {
		return fmt.Errorf("reader: %w: no files match %q", contract.ErrInvalidInput, root)
	}
	return nil
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// 先目录（不跟随目录符号链接）
	for _, e := range entries {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	// 再文件
	for _, e := range entries {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if e.Mode()&os.ModeSymlink != 0 {
			t, err := r.fs.Stat(p)
			if err != nil {
				return err
			}
			if !t.Mode().IsRegular() {
				continue
			}
		} else if !e.Mode().IsRegular() {
			// 设备、FIFO 等跳过
			continue
		}
		if err := r.openFile(p, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) openFile(p string, yield func(contract.FileID, io.ReadCloser) error) error {
	f, err := r.fs.Open(p)
	if err != nil {
		return err
	}
	return r.open(contract.NormalizeFileID(p), f, yield)
}

// open 包装缓冲与透明解压后交给 yield；yield 出错时由此处关闭。
func (r *FileSystem) open(id contract.FileID, rc io.ReadCloser, yield func(contract.FileID, io.ReadCloser) error) error {
	br := bufio.NewReaderSize(rc, r.bufSize)
	out := &stackCloser{Reader: br, closers: []io.Closer{rc}}
	if r.decompress {
		dec, codec, err := wrapDecompress(br, string(id))
		if err != nil {
			_ = rc.Close()
			return fmt.Errorf("reader %s: %w", id, err)
		}
		if dec != nil {
			out.Reader = dec
			if c, ok := dec.(io.Closer); ok {
				out.closers = append([]io.Closer{c}, out.closers...)
			}
			id = contract.FileID(strings.TrimSuffix(string(id), codecExt[codec]))
		}
	}
	if err := yield(id, out); err != nil {
		_ = out.Close()
		return err
	}
	return nil
}

const (
	codecGzip  = "gzip"
	codecBzip2 = "bzip2"
	codecZstd  = "zstd"
)

var codecExt = map[string]string{codecGzip: ".gz", codecBzip2: ".bz2", codecZstd: ".zst"}

// wrapDecompress 嗅探压缩格式；非压缩输入返回 nil。
func wrapDecompress(br *bufio.Reader, name string) (io.Reader, string, error) {
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, "", err
	}
	if len(head) == 0 {
		return nil, "", nil
	}
	codec := ""
	m := mimetype.Detect(head)
	switch {
	case m.Is("application/gzip"):
		codec = codecGzip
	case m.Is("application/x-bzip2"):
		codec = codecBzip2
	case m.Is("application/zstd"):
		codec = codecZstd
	case m.Is("application/octet-stream"):
		codec = codecByExt(name)
	}
	switch codec {
	case codecGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, "", err
		}
		return zr, codec, nil
	case codecBzip2:
		return bzip2.NewReader(br), codec, nil
	case codecZstd:
		return zstd.NewReader(br), codec, nil
	}
	return nil, "", nil
}

func codecByExt(name string) string {
	ext := strings.ToLower(path.Ext(name))
	for c, e := range codecExt {
		if e == ext {
			return c
		}
	}
	return ""
}

func (r *FileSystem) lstat(p string) (os.FileInfo, error) {
	if ls, ok := r.fs.(afero.Lstater); ok {
		fi, _, err := ls.LstatIfPossible(p)
		return fi, err
	}
	return r.fs.Stat(p)
}

// excluded 判断通配匹配结果是否位于排除目录下。
func (r *FileSystem) excluded(rel string) bool {
	if len(r.excludeDir) == 0 {
		return false
	}
	parts := strings.Split(path.Dir(rel), "/")
	for _, p := range parts {
		if _, ok := r.excludeDir[strings.ToLower(p)]; ok {
			return true
		}
	}
	return false
}

func isPattern(s string) bool { return strings.ContainsAny(s, "*?[{") }

// stackCloser 组合读取端与按序关闭的底层资源（先解压器后文件）。
type stackCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
