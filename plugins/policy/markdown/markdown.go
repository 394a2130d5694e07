package markdown

import (
	"strings"

	"bookchop/pkg/contract"
)

// Options 为 Markdown 方言的可选配置。
type Options struct {
	// MaxLevel: 视为块起点的最深标题级别（1..6）；<=0 使用默认 2（即 # 与 ##）。
	MaxLevel int `json:"max_level"`
	// StartLine: 非空时，trim 后与之相等的行为起始标记（排他）；
	// 为空时首行即为起始（包含）。
	StartLine string `json:"start_line"`
}

// Policy 以 ATX 标题为块边界、空行为拆分点。
type Policy struct {
	maxLevel  int
	startLine string
}

var _ contract.BoundaryPolicy = (*Policy)(nil)

// New 创建 Markdown 策略。
func New(opts *Options) *Policy {
	p := &Policy{maxLevel: 2}
	if opts != nil {
		if opts.MaxLevel > 0 {
			p.maxLevel = opts.MaxLevel
		}
		if p.maxLevel > 6 {
			p.maxLevel = 6
		}
		p.startLine = strings.TrimSpace(opts.StartLine)
	}
	return p
}

func (p *Policy) StartMarker(line string) contract.Marker {
	if p.startLine == "" {
		return contract.MarkInclusive
	}
	if strings.TrimSpace(line) == p.startLine {
		return contract.MarkExclusive
	}
	return contract.MarkNone
}

// BlockStart: 标题级别 <= maxLevel，且位于文首或前一缓冲行为空行。
func (p *Policy) BlockStart(line string, buffer []string) bool {
	lv := headingLevel(line)
	if lv == 0 || lv > p.maxLevel {
		return false
	}
	return len(buffer) == 0 || strings.TrimSpace(buffer[len(buffer)-1]) == ""
}

func (p *Policy) CanEmit(line string) contract.Marker {
	if strings.TrimSpace(line) == "" {
		return contract.MarkInclusive
	}
	return contract.MarkNone
}

// headingLevel 返回 ATX 标题级别；非标题返回 0。
func headingLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n > 6 || n >= len(line) {
		return 0
	}
	if c := line[n]; c != ' ' && c != '\t' {
		return 0
	}
	return n
}
