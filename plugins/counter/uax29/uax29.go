package uax29

import (
	"unicode"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/words"

	"bookchop/pkg/contract"
)

// Counter 基于 Unicode 文本分词（UAX #29）计数；仅统计含字母或数字的片段，
// 空白与标点片段不计入。适合无空格分词的文本。
type Counter struct{}

var _ contract.WordCounter = Counter{}

func New() Counter { return Counter{} }

func (Counter) Count(line string) int {
	n := 0
	for _, seg := range words.SegmentAll([]byte(line)) {
		if wordlike(seg) {
			n++
		}
	}
	return n
}

func wordlike(seg []byte) bool {
	for len(seg) > 0 {
		r, size := utf8.DecodeRune(seg)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
		seg = seg[size:]
	}
	return false
}
