package contract

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeFileID 验证路径规范化逻辑。
func TestNormalizeFileID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"系统分隔符", filepath.Join("a", "b", "c"), "a/b/c"},
		{"父目录", "./x/../y", "y"},
		{"空串", "", "."},
		{"Windows路径", "C:\\Users\\test\\pg1342.txt", "C:/Users/test/pg1342.txt"},
		{"清理多余斜杠", "books//gutenberg///pg1342.txt", "books/gutenberg/pg1342.txt"},
		{"混合分隔符", "books\\..\\out/./chunks\\\\a.txt", "out/chunks/a.txt"},
		{"仅分隔符", "\\\\\\///", "/"},
		{"中文路径", "书籍\\傲慢与偏见.txt", "书籍/傲慢与偏见.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, FileID(tt.expected), NormalizeFileID(tt.input))
		})
	}
}

// TestFileIDBase 基名用于块文件命名。
func TestFileIDBase(t *testing.T) {
	assert.Equal(t, "pg1342.txt", FileID("books/pg1342.txt").Base())
	assert.Equal(t, "pg1342.txt.gz", FileID("books\\pg1342.txt.gz").Base())
	assert.Equal(t, "stdin", FileID("stdin").Base())
}

// TestChunkContent 拼接保持原样（不插入分隔符）。
func TestChunkContent(t *testing.T) {
	c := Chunk{Lines: []string{"CHAPTER I.\n", "\n", "Hello world."}}
	assert.Equal(t, "CHAPTER I.\n\nHello world.", c.Content())
	assert.Equal(t, "", Chunk{}.Content())
}

// TestMarkerString 覆盖三态名称。
func TestMarkerString(t *testing.T) {
	assert.Equal(t, "none", MarkNone.String())
	assert.Equal(t, "inclusive", MarkInclusive.String())
	assert.Equal(t, "exclusive", MarkExclusive.String())
	assert.Equal(t, "none", Marker(42).String())
}

// TestWordCounterFunc 函数适配器。
func TestWordCounterFunc(t *testing.T) {
	var c WordCounter = WordCounterFunc(func(line string) int { return len(line) })
	assert.Equal(t, 3, c.Count("abc"))
}
