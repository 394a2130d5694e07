package testdata

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/DataDog/zstd"
	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "bookchop/internal/config"
	"bookchop/internal/pipeline"
)

const sample = "files/sample.txt"

func chopConfig(inputs []string, outDir string) cfgpkg.Config {
	cfg := cfgpkg.Defaults()
	size, minWords := 150, 40
	cfg.Chop.Inputs = inputs
	cfg.Chop.ChunkSizeWords = &size
	cfg.Chop.MinWordsToEmit = &minWords
	cfg.Chop.OutputDir = outDir
	cfg.Logging.Level = "error"
	return cfg
}

func runChop(t *testing.T, cfg cfgpkg.Config) pipeline.Report {
	t.Helper()
	comp, set, err := cfgpkg.AssembleChop(cfg, afero.NewOsFs())
	require.NoError(t, err)
	rep, err := pipeline.Chop(context.Background(), comp, set, nil, nil)
	require.NoError(t, err)
	return rep
}

// readChunks 按序号读取 base 的全部块文件。
func readChunks(t *testing.T, dir, base string) ([]string, []string) {
	t.Helper()
	names, err := filepath.Glob(filepath.Join(dir, base+"_*.txt"))
	require.NoError(t, err)
	sort.Strings(names)
	bodies := make([]string, len(names))
	for i, n := range names {
		b, err := os.ReadFile(n)
		require.NoError(t, err)
		bodies[i] = string(b)
	}
	return names, bodies
}

// afterBanner 返回起始标记行之后的全部输入。
func afterBanner(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(sample)
	require.NoError(t, err)
	_, rest, ok := strings.Cut(string(b), "A SAMPLE VILLAGE ***\n")
	require.True(t, ok)
	return rest
}

func TestE2EChopReassemble(t *testing.T) {
	dir := t.TempDir()
	chunkDir := filepath.Join(dir, "outputs")

	rep := runChop(t, chopConfig([]string{sample}, chunkDir))
	assert.Empty(t, rep.Findings)
	names, bodies := readChunks(t, chunkDir, "sample.txt")
	require.Len(t, names, rep.Chunks)
	require.Greater(t, rep.Chunks, 3)
	assert.Equal(t, afterBanner(t), strings.Join(bodies, ""), "coverage")
	for i, body := range bodies {
		assert.LessOrEqual(t, len(strings.Fields(body)), 150+70, "chunk %d", i)
	}

	// 模拟外部改写：原文置于围栏内，改写为大写。
	for i, n := range names {
		out := "```\n" + bodies[i] + "```\nBEGIN REWRITE\n" + strings.ToUpper(bodies[i]) + "END REWRITE\n"
		require.NoError(t, os.WriteFile(n+".out", []byte(out), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.prefix"), []byte("<h1>A Sample Village</h1>\n"), 0o644))

	cfg := cfgpkg.Defaults()
	cfg.Reassemble.ChunkDir = chunkDir
	cfg.Reassemble.PrefixDir = dir
	output := filepath.Join(dir, "site", "sample.book.html")
	rs, w, set, err := cfgpkg.AssembleReassemble(cfg, afero.NewOsFs(), output)
	require.NoError(t, err)
	assert.Equal(t, "sample", set.Book)

	rrep, err := pipeline.Reassemble(context.Background(), rs, w, set, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rrep.Findings)
	assert.Equal(t, len(names), rrep.Chunks)

	first, err := os.ReadFile(output)
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, "A Sample Village", doc.Find("h1").Text())
	assert.Equal(t, "sample", doc.Find("title").Text())
	assert.Equal(t, len(names), doc.Find("div.original_text").Length())
	assert.Equal(t, len(names), doc.Find("div.show_original").Length())
	doc.Find("div.original_text").Each(func(i int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		idx := strings.TrimPrefix(id, "orig_")
		rewrite := doc.Find("#book_" + idx)
		require.Equal(t, 1, rewrite.Length(), id)
		assert.Equal(t, strings.ToUpper(s.Text()), rewrite.Text(), id)
		assert.Equal(t, 1, doc.Find("#btn_"+idx).Length(), id)
	})

	// 重复合并逐字节一致
	_, err = pipeline.Reassemble(context.Background(), rs, w, set, nil, nil)
	require.NoError(t, err)
	second, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

// 压缩输入透明解压：gzip 与 zstd 产出与明文相同的块。
func TestE2ECompressedInputs(t *testing.T) {
	plain, err := os.ReadFile(sample)
	require.NoError(t, err)
	dir := t.TempDir()
	books := filepath.Join(dir, "books")
	require.NoError(t, os.MkdirAll(books, 0o755))

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err = zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(books, "a.txt.gz"), gz.Bytes(), 0o644))

	zst, err := zstd.Compress(nil, plain)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(books, "b.txt.zst"), zst, 0o644))

	want := filepath.Join(dir, "want")
	runChop(t, chopConfig([]string{sample}, want))
	_, wantBodies := readChunks(t, want, "sample.txt")

	got := filepath.Join(dir, "got")
	rep := runChop(t, chopConfig([]string{books}, got))
	assert.Equal(t, 2, rep.Files)
	_, aBodies := readChunks(t, got, "a.txt")
	_, bBodies := readChunks(t, got, "b.txt")
	assert.Equal(t, wantBodies, aBodies)
	assert.Equal(t, wantBodies, bBodies)
}

// 通配输入与 Markdown 方言。
func TestE2EGlobMarkdown(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes")
	require.NoError(t, os.MkdirAll(filepath.Join(notes, "deep"), 0o755))
	md := "# Guide\n\nIntro words here.\n\n## Part One\n\nAlpha beta gamma.\n\n## Part Two\n\nDelta epsilon.\n"
	require.NoError(t, os.WriteFile(filepath.Join(notes, "deep", "guide.md"), []byte(md), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(notes, "skip.txt"), []byte("ignored\n"), 0o644))

	out := filepath.Join(dir, "out")
	minWords := 0
	cfg := chopConfig([]string{filepath.Join(notes, "**", "*.md")}, out)
	cfg.Chop.MinWordsToEmit = &minWords
	cfg.Components.Policy = "markdown"
	rep := runChop(t, cfg)
	assert.Equal(t, 1, rep.Files)
	_, bodies := readChunks(t, out, "guide.md")
	assert.Equal(t, []string{
		"# Guide\n\nIntro words here.\n\n",
		"## Part One\n\nAlpha beta gamma.\n\n",
		"## Part Two\n\nDelta epsilon.\n",
	}, bodies)
}
