package fields

import (
	"strings"

	"bookchop/pkg/contract"
)

// Counter 按空白切分计数（近似词数，默认实现）。
type Counter struct{}

var _ contract.WordCounter = Counter{}

func New() Counter { return Counter{} }

func (Counter) Count(line string) int { return len(strings.Fields(line)) }
