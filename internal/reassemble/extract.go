package reassemble

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"bookchop/pkg/contract"
)

// 处理后块文件的标记约定：
// - 原文：第一对 "```" 行（trim 后相等）之间的内容；
// - 改写：最后一个含 BEGIN REWRITE 的行之后，直到含 END REWRITE 的行（不含）；
// - 两者均做段落规整：非空行之后的空行行首插入 <p>（不另起一行）。
const (
	Fence       = "```"
	BeginMarker = "BEGIN REWRITE"
	EndMarker   = "END REWRITE"
	ParaMarker  = "<p>"
)

var bookSuffix = regexp.MustCompile(`\.book(\.html)?$`)

// BookName 由参数推导书名：取基名并去掉 .book / .book.html 后缀。
func BookName(arg string) string {
	return bookSuffix.ReplaceAllString(contract.NormalizeFileID(arg).Base(), "")
}

// Discover 列出 dir 下以 book 开头、以 suffix 结尾的普通文件，按名字典序返回完整路径。
func Discover(fsys afero.Fs, dir, book, suffix string) ([]string, error) {
	infos, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() || !strings.HasPrefix(name, book) || !strings.HasSuffix(name, suffix) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// SplitLines 按 \n 切行并保留行尾（末行可无换行）。
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// ExtractOriginal 返回第一个代码围栏内的原文。
// 无开围栏：空串 + FindingNoOpenFence；无闭围栏：截至文末 + FindingNoCloseFence。
func ExtractOriginal(lines []string) (string, contract.FindingKind) {
	start := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == Fence {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return "", contract.FindingNoOpenFence
	}
	var p paragraphs
	for _, l := range lines[start:] {
		if strings.TrimSpace(l) == Fence {
			return p.String(), ""
		}
		p.add(l)
	}
	return p.String(), contract.FindingNoCloseFence
}

// ExtractRewrite 返回改写片段。多个 BEGIN REWRITE 时以最后一个为准。
// 无开始标记：空串 + FindingNoBeginMarker；无结束标记：截至文末 + FindingNoEndMarker。
func ExtractRewrite(lines []string) (string, contract.FindingKind) {
	start := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(lines[i], BeginMarker) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return "", contract.FindingNoBeginMarker
	}
	var p paragraphs
	for _, l := range lines[start:] {
		if strings.Contains(l, EndMarker) {
			return p.String(), ""
		}
		p.add(l)
	}
	return p.String(), contract.FindingNoEndMarker
}

// paragraphs 累积捕获行并插入段落标记。
type paragraphs struct {
	b    strings.Builder
	last string // 最近一次追加的捕获行（不含插入的标记）
	any  bool
}

func (p *paragraphs) add(line string) {
	if strings.TrimSpace(line) == "" && p.any && strings.TrimSpace(p.last) != "" {
		p.b.WriteString(ParaMarker)
	}
	p.b.WriteString(line)
	p.last = line
	p.any = true
}

func (p *paragraphs) String() string { return p.b.String() }
