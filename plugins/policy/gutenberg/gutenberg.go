package gutenberg

import (
	"regexp"
	"strings"

	"bookchop/pkg/contract"
)

// Options 为 Gutenberg 方言的可选配置；零值采用内置默认。
type Options struct {
	// Separator: 含该子串的行视为正文起始（排他）。默认 28 个 '-'。
	Separator string `json:"separator"`
	// Banners: 含任一子串的行视为正文起始（排他）。
	// 为 nil 时使用默认 ["START OF THE PROJECT GUTENBERG EBOOK"]；显式空切片表示关闭。
	Banners []string `json:"banners"`
	// ContentsLine: trim 后与之完全相等的行视为正文起始（排他）。默认 "Contents"。
	ContentsLine string `json:"contents_line"`
	// ChapterKeywords: 行首关键字（前一缓冲行为空行时开启新块）。
	// 为 nil 时使用默认 ["CHAPTER ", "Chapter "]。
	ChapterKeywords []string `json:"chapter_keywords"`
	// HeadingIndent: 页眉式标题的最小缩进列数；<=0 使用默认 14。
	HeadingIndent int `json:"heading_indent"`
}

const (
	defaultSeparator = "----------------------------"
	defaultIndent    = 14
)

var (
	defaultBanners  = []string{"START OF THE PROJECT GUTENBERG EBOOK"}
	defaultKeywords = []string{"CHAPTER ", "Chapter "}
	// 空白后紧跟小写字母：说明是正文句子而非标题。
	lowerAfterSpace = regexp.MustCompile(`\s[a-z]`)
)

// Policy 实现 Project Gutenberg 纯文本的边界判定。
type Policy struct {
	separator string
	banners   []string
	contents  string
	keywords  []string
	indent    string
}

var _ contract.BoundaryPolicy = (*Policy)(nil)

// New 创建 Gutenberg 策略。
func New(opts *Options) *Policy {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	p := &Policy{
		separator: o.Separator,
		banners:   o.Banners,
		contents:  o.ContentsLine,
		keywords:  o.ChapterKeywords,
	}
	if p.separator == "" {
		p.separator = defaultSeparator
	}
	if p.banners == nil {
		p.banners = defaultBanners
	}
	if p.contents == "" {
		p.contents = "Contents"
	}
	if p.keywords == nil {
		p.keywords = defaultKeywords
	}
	n := o.HeadingIndent
	if n <= 0 {
		n = defaultIndent
	}
	p.indent = strings.Repeat(" ", n)
	return p
}

// StartMarker: 分隔线、起始横幅或目录行，均为排他（该行本身丢弃）。
func (p *Policy) StartMarker(line string) contract.Marker {
	if strings.Contains(line, p.separator) {
		return contract.MarkExclusive
	}
	for _, b := range p.banners {
		if b != "" && strings.Contains(line, b) {
			return contract.MarkExclusive
		}
	}
	if strings.TrimSpace(line) == p.contents {
		return contract.MarkExclusive
	}
	return contract.MarkNone
}

// BlockStart: 章节关键字（要求前一缓冲行为空行）或深缩进的页眉式标题。
func (p *Policy) BlockStart(line string, buffer []string) bool {
	if len(buffer) > 0 && strings.TrimSpace(buffer[len(buffer)-1]) == "" {
		for _, kw := range p.keywords {
			if kw != "" && strings.HasPrefix(line, kw) {
				return true
			}
		}
	}
	// 形如 "                       CHAPTER I." 的居中标题
	if !strings.HasPrefix(line, p.indent) {
		return false
	}
	if strings.TrimSpace(line) == "" {
		return false
	}
	return !lowerAfterSpace.MatchString(line)
}

// CanEmit: 任意空行均可拆分（包含该行）。
func (p *Policy) CanEmit(line string) contract.Marker {
	if strings.TrimSpace(line) == "" {
		return contract.MarkInclusive
	}
	return contract.MarkNone
}
