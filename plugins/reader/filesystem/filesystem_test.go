package filesystem

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/DataDog/zstd"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookchop/pkg/contract"
)

func memFS(t *testing.T, files map[string][]byte) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fsys, name, body, 0o644))
	}
	return fsys
}

// collect 读取全部文件，返回 FileID 顺序与内容。
func collect(t *testing.T, r *FileSystem, roots ...string) ([]string, map[string]string, error) {
	t.Helper()
	var ids []string
	got := map[string]string{}
	err := r.Iterate(context.Background(), roots, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		ids = append(ids, string(id))
		got[string(id)] = string(b)
		return nil
	})
	return ids, got, err
}

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// TestIterateSingleFile 读取单文件
func TestIterateSingleFile(t *testing.T) {
	r := New(memFS(t, map[string][]byte{"books/a.txt": []byte("hello")}), nil)
	ids, got, err := collect(t, r, "books/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"books/a.txt"}, ids)
	assert.Equal(t, "hello", got["books/a.txt"])
}

// TestWalkOrder 目录递归：先子目录后文件，字典序。
func TestWalkOrder(t *testing.T) {
	r := New(memFS(t, map[string][]byte{
		"lib/z.txt":     []byte("z"),
		"lib/a.txt":     []byte("a"),
		"lib/sub/m.txt": []byte("m"),
	}), nil)
	ids, _, err := collect(t, r, "lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/sub/m.txt", "lib/a.txt", "lib/z.txt"}, ids)
}

// TestExcludeDir 跳过目录
func TestExcludeDir(t *testing.T) {
	r := New(memFS(t, map[string][]byte{
		"lib/keep.txt":     []byte("k"),
		"lib/skip/bad.txt": []byte("b"),
	}), &Options{ExcludeDirNames: []string{"SKIP", ""}})
	ids, _, err := collect(t, r, "lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/keep.txt"}, ids)

	ids, _, err = collect(t, r, "lib/**/*.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/keep.txt"}, ids)
}

// TestGlob doublestar 通配展开（含 **），无匹配报错。
func TestGlob(t *testing.T) {
	r := New(memFS(t, map[string][]byte{
		"books/en/pg1.txt": []byte("1"),
		"books/fr/pg2.txt": []byte("2"),
		"books/notes.md":   []byte("n"),
		"top.txt":          []byte("t"),
	}), nil)
	ids, _, err := collect(t, r, "books/**/*.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"books/en/pg1.txt", "books/fr/pg2.txt"}, ids)

	ids, _, err = collect(t, r, "*.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"top.txt"}, ids)

	_, _, err = collect(t, r, "books/**/*.epub")
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}

// TestDecompressGzip gzip 按内容嗅探，FileID 去掉 .gz。
func TestDecompressGzip(t *testing.T) {
	r := New(memFS(t, map[string][]byte{
		"pg1.txt.gz": gz(t, "CHAPTER I.\n"),
		"raw.bin":    gz(t, "no extension\n"),
	}), nil)
	ids, got, err := collect(t, r, "pg1.txt.gz", "raw.bin")
	require.NoError(t, err)
	assert.Equal(t, []string{"pg1.txt", "raw.bin"}, ids)
	assert.Equal(t, "CHAPTER I.\n", got["pg1.txt"])
	assert.Equal(t, "no extension\n", got["raw.bin"])
}

func TestDecompressZstd(t *testing.T) {
	data, err := zstd.Compress(nil, []byte(strings.Repeat("word ", 100)))
	require.NoError(t, err)
	r := New(memFS(t, map[string][]byte{"pg2.txt.zst": data}), nil)
	ids, got, err := collect(t, r, "pg2.txt.zst")
	require.NoError(t, err)
	assert.Equal(t, []string{"pg2.txt"}, ids)
	assert.Equal(t, strings.Repeat("word ", 100), got["pg2.txt"])
}

// TestNoDecompress 关闭解压时按字节透传。
func TestNoDecompress(t *testing.T) {
	body := gz(t, "x")
	r := New(memFS(t, map[string][]byte{"a.gz": body}), &Options{NoDecompress: true})
	ids, got, err := collect(t, r, "a.gz")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.gz"}, ids)
	assert.Equal(t, string(body), got["a.gz"])
}

// TestCorruptGzipExt 扩展名为 .gz 但内容损坏：嗅探为 octet-stream 后按扩展名解压并报错。
func TestCorruptGzipExt(t *testing.T) {
	r := New(memFS(t, map[string][]byte{"bad.gz": {0x00, 0x01, 0x02, 0xff}}), nil)
	_, _, err := collect(t, r, "bad.gz")
	require.Error(t, err)
}

// TestIterateDashMix 混用 '-' 返回错误
func TestIterateDashMix(t *testing.T) {
	r := New(afero.NewMemMapFs(), nil)
	err := r.Iterate(context.Background(), []string{"-", "a"}, func(contract.FileID, io.ReadCloser) error { return nil })
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}

// TestIterateStdin roots 为空或为 "-" 时读取 STDIN
func TestIterateStdin(t *testing.T) {
	for _, roots := range [][]string{nil, {"-"}} {
		r := New(afero.NewMemMapFs(), nil)
		r.Stdin = strings.NewReader("hi\n")
		ids, got, err := collect(t, r, roots...)
		require.NoError(t, err)
		assert.Equal(t, []string{"stdin"}, ids)
		assert.Equal(t, "hi\n", got["stdin"])
	}
}

func TestIterateStdinGzip(t *testing.T) {
	r := New(afero.NewMemMapFs(), nil)
	r.Stdin = bytes.NewReader(gz(t, "packed\n"))
	_, got, err := collect(t, r, "-")
	require.NoError(t, err)
	assert.Equal(t, "packed\n", got["stdin"])
}

// TestIterateCtxCancel 上下文取消
func TestIterateCtxCancel(t *testing.T) {
	r := New(memFS(t, map[string][]byte{"a.txt": []byte("x")}), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Iterate(ctx, []string{"a.txt"}, func(contract.FileID, io.ReadCloser) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestIterateMissing(t *testing.T) {
	r := New(afero.NewMemMapFs(), nil)
	_, _, err := collect(t, r, "nope.txt")
	require.Error(t, err)
}

// TestYieldErrorStops yield 出错即停止。
func TestYieldErrorStops(t *testing.T) {
	r := New(memFS(t, map[string][]byte{"d/a.txt": []byte("a"), "d/b.txt": []byte("b")}), nil)
	n := 0
	err := r.Iterate(context.Background(), []string{"d"}, func(contract.FileID, io.ReadCloser) error {
		n++
		return io.ErrClosedPipe
	})
	require.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Equal(t, 1, n)
}
