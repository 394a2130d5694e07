package placeholder

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"bookchop/pkg/contract"
)

// Token 为模板中的内容占位符；所有出现处都会被替换。
const Token = "{CHOPPER_CONTENT}"

const fence = "```"

//go:embed rewrite.txt
var defaultRewriteTemplate string

// Options 模板来源二选一，InlineTemplate 优先：
// - 两者均为空时使用内置改写提示模板。
type Options struct {
	InlineTemplate string `json:"inline_template"`
	TemplatePath   string `json:"template_path"`
}

// Template 以占位符替换方式包装块内容。
// 运行期不做 I/O；模板在构造期加载。
type Template struct {
	src string
}

var _ contract.Template = (*Template)(nil)

// New 加载模板（构造期 I/O）；模板缺少占位符视为配置错误。
func New(opts *Options) (*Template, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	src := defaultRewriteTemplate
	if o.InlineTemplate != "" {
		src = o.InlineTemplate
	} else if o.TemplatePath != "" {
		b, err := os.ReadFile(o.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("template read: %w", err)
		}
		src = string(b)
	}
	if !strings.Contains(src, Token) {
		return nil, fmt.Errorf("%w: template has no %s placeholder", contract.ErrConfig, Token)
	}
	return &Template{src: src}, nil
}

// Wrap 原样替换占位符，不转义、不裁剪。
// 占位符后紧接围栏时，内容末尾缺少换行则补一个，保证围栏独占一行。
func (t *Template) Wrap(content string) string {
	segs := strings.Split(t.src, Token)
	var b strings.Builder
	b.WriteString(segs[0])
	for _, seg := range segs[1:] {
		b.WriteString(content)
		if content != "" && !strings.HasSuffix(content, "\n") && strings.HasPrefix(seg, fence) {
			b.WriteByte('\n')
		}
		b.WriteString(seg)
	}
	return b.String()
}
