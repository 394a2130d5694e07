package tiktoken

import (
	"fmt"

	tk "github.com/pkoukk/tiktoken-go"

	"bookchop/pkg/contract"
)

// Options 为 tiktoken 计数器配置。
type Options struct {
	// Encoding: 编码名，默认 cl100k_base。
	Encoding string `json:"encoding"`
}

// Counter 以模型 token 数近似“词数”，用于按下游模型预算切块。
// 注意：首次构造可能需要下载 BPE 词表（tiktoken-go 会缓存到 TIKTOKEN_CACHE_DIR）。
type Counter struct {
	enc *tk.Tiktoken
}

var _ contract.WordCounter = (*Counter)(nil)

// New 在构造期加载编码；失败直接返回错误。
func New(opts *Options) (*Counter, error) {
	name := "cl100k_base"
	if opts != nil && opts.Encoding != "" {
		name = opts.Encoding
	}
	enc, err := tk.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("tiktoken encoding %q: %w", name, err)
	}
	return &Counter{enc: enc}, nil
}

func (c *Counter) Count(line string) int {
	return len(c.enc.Encode(line, nil, nil))
}
