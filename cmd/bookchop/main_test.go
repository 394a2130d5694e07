package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookchop/internal/diag"
)

const book = "Title: Test\n\n*** START OF THE PROJECT GUTENBERG EBOOK TEST ***\n\nCHAPTER I.\n\nIt is a truth.\n\nCHAPTER II.\n\nThe end.\n"

// setup 切换到临时目录（.env / 指标文件落在其中），日志写入内存。
func setup(t *testing.T) (afero.Fs, *bytes.Buffer) {
	t.Helper()
	chdirTest(t, t.TempDir())
	var logBuf bytes.Buffer
	old := newLogger
	newLogger = func(corrID, level string) *diag.Logger { return diag.NewLoggerTo(&logBuf, corrID, level) }
	t.Cleanup(func() { newLogger = old })
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, filepath.Join("books", "pg1.txt"), []byte(book), 0o644))
	return fsys, &logBuf
}

func runCLI(fsys afero.Fs, args ...string) (int, string, string) {
	var out, errb bytes.Buffer
	code := run(context.Background(), args, fsys, &out, &errb)
	return code, out.String(), errb.String()
}

// chop → 外部处理（此处模拟）→ reassemble
func TestChopThenReassemble(t *testing.T) {
	fsys, logBuf := setup(t)

	code, _, stderr := runCLI(fsys, "chop", "-o", "outputs", "-x", "1", "books/pg1.txt")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stderr, "[ok]")

	names, err := afero.Glob(fsys, filepath.Join("outputs", "pg1.txt_*.txt"))
	require.NoError(t, err)
	require.Len(t, names, 2)
	for i, n := range names {
		b, err := afero.ReadFile(fsys, n)
		require.NoError(t, err)
		body := "```\n" + string(b) + "```\nBEGIN REWRITE\nrewritten " + string(rune('A'+i)) + "\nEND REWRITE\n"
		require.NoError(t, afero.WriteFile(fsys, n+".out", []byte(body), 0o644))
	}

	code, _, stderr = runCLI(fsys, "reassemble", "-d", "outputs", "--title", "Test Book", filepath.Join("site", "pg1.book.html"))
	require.Equal(t, exitOK, code, stderr)
	html, err := afero.ReadFile(fsys, filepath.Join("site", "pg1.book.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<title>Test Book</title>")
	assert.Contains(t, string(html), `id="book_1">rewritten B`)
	assert.Contains(t, logBuf.String(), "reassemble done")
}

func TestUsageErrors(t *testing.T) {
	fsys, _ := setup(t)
	for _, args := range [][]string{
		{"reassemble"},
		{"reassemble", "a.html", "b.html"},
		{"chop", "--no-such-flag"},
		{"frobnicate"},
		{"init-config", "a", "b"},
	} {
		code, _, stderr := runCLI(fsys, args...)
		assert.Equal(t, exitUsage, code, "%v", args)
		assert.Contains(t, stderr, "Usage:", "%v", args)
	}
}

func TestConfigErrors(t *testing.T) {
	fsys, _ := setup(t)

	code, _, stderr := runCLI(fsys, "chop", "--config", "absent.json", "books/pg1.txt")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "配置解析失败")

	code, _, stderr = runCLI(fsys, "chop", "-c", "latex", "books/pg1.txt")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "配置校验失败")

	code, _, _ = runCLI(fsys, "chop", "-", "books/pg1.txt")
	assert.Equal(t, exitConfig, code)

	code, _, _ = runCLI(fsys, "reassemble", "--layout", "missing.tmpl", "x.book.html")
	assert.Equal(t, exitConfig, code)

	code, _, stderr = runCLI(fsys, "chop", "-s", "0", "books/pg1.txt")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "配置校验失败")

	t.Setenv("BOOKCHOP_CHOP_CHUNK_SIZE_WORDS", "lots")
	code, _, stderr = runCLI(fsys, "chop", "books/pg1.txt")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "环境变量解析失败")
}

func TestRuntimeErrors(t *testing.T) {
	fsys, _ := setup(t)

	code, _, stderr := runCLI(fsys, "chop", "books/absent.txt")
	assert.Equal(t, exitRuntime, code)
	assert.Contains(t, stderr, "运行失败")

	// 块目录不存在为致命错误
	code, _, _ = runCLI(fsys, "reassemble", "-d", "nowhere", "pg1.book.html")
	assert.Equal(t, exitRuntime, code)
}

// 诊断不致命；关闭状态提示时仍输出到 stderr。
func TestFindingsVisible(t *testing.T) {
	fsys, _ := setup(t)
	require.NoError(t, afero.WriteFile(fsys, "plain.txt", []byte("no marker\n"), 0o644))

	code, _, stderr := runCLI(fsys, "--status=false", "chop", "plain.txt")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stderr, "[warn] plain.txt |")
}

// 配置层级：文件 < ENV < CLI
func TestConfigLayering(t *testing.T) {
	fsys, _ := setup(t)
	require.NoError(t, afero.WriteFile(fsys, "bookchop.yaml", []byte("chop:\n  output_dir: from-file\n  min_words_to_emit: 1\n"), 0o644))

	code, _, stderr := runCLI(fsys, "chop", "books/pg1.txt")
	require.Equal(t, exitOK, code, stderr)
	ok, _ := afero.Exists(fsys, filepath.Join("from-file", "pg1.txt_000.txt"))
	assert.True(t, ok)

	t.Setenv("BOOKCHOP_CHOP_OUTPUT_DIR", "from-env")
	code, _, _ = runCLI(fsys, "chop", "books/pg1.txt")
	require.Equal(t, exitOK, code)
	ok, _ = afero.Exists(fsys, filepath.Join("from-env", "pg1.txt_000.txt"))
	assert.True(t, ok)

	code, _, _ = runCLI(fsys, "chop", "-o", "from-cli", "books/pg1.txt")
	require.Equal(t, exitOK, code)
	ok, _ = afero.Exists(fsys, filepath.Join("from-cli", "pg1.txt_000.txt"))
	assert.True(t, ok)
}

// init-config 生成的模板可直接用于 chop（内置改写模板包装块内容）。
func TestInitConfig(t *testing.T) {
	fsys, _ := setup(t)

	code, stdout, _ := runCLI(fsys, "init-config", "conf")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, filepath.Join("conf", "config.json"))

	code, stdout, stderr := runCLI(fsys, "init-config", "conf")
	require.Equal(t, exitOK, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "未覆盖")

	code, _, stderr = runCLI(fsys, "chop", "--config", filepath.Join("conf", "config.json"), "books/pg1.txt")
	require.Equal(t, exitOK, code, stderr)
	b, err := afero.ReadFile(fsys, filepath.Join("chunks", "pg1.txt_000.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "BEGIN REWRITE")
	assert.Contains(t, string(b), "It is a truth.")
}

func TestMetricsFile(t *testing.T) {
	fsys, _ := setup(t)
	code, _, stderr := runCLI(fsys, "--metrics-file", "bookchop.prom", "chop", "-o", "out", "books/pg1.txt")
	require.Equal(t, exitOK, code, stderr)
	b, err := os.ReadFile("bookchop.prom")
	require.NoError(t, err)
	assert.Contains(t, string(b), "bookchop_chunks_emitted_total")
}

// STDIN 输入：FileID 为 stdin。
func TestChopStdin(t *testing.T) {
	fsys, _ := setup(t)
	r, w, err := os.Pipe()
	require.NoError(t, err)
	old := os.Stdin
	os.Stdin = r
	t.Cleanup(func() { os.Stdin = old })
	go func() {
		_, _ = io.Copy(w, strings.NewReader(book))
		_ = w.Close()
	}()

	code, _, stderr := runCLI(fsys, "chop", "-o", "out", "-")
	require.Equal(t, exitOK, code, stderr)
	ok, _ := afero.Exists(fsys, filepath.Join("out", "stdin_000.txt"))
	assert.True(t, ok)
}

// chdirTest mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdirTest(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
