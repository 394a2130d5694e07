package contract

// BoundaryPolicy: 文档方言的边界判定策略。
// 约束：
//  1. 纯函数式判定，不做 I/O，不修改 buffer；
//  2. line 含原始换行符，实现自行决定是否 trim；
//  3. buffer 为自上次发射以来累积的行（只读视图）；
//  4. 切分算法只依赖本接口，新方言无需修改 chopper。
type BoundaryPolicy interface {
	// BlockStart: 当前行是否开启新块（如章节标题）；为真且缓冲非空时先冲刷再追加。
	BlockStart(line string, buffer []string) bool
	// CanEmit: 超长块内部的安全拆分点。
	CanEmit(line string) Marker
	// StartMarker: 正文起始标记；之前的行全部丢弃。
	StartMarker(line string) Marker
}

// WordCounter: 近似词数估算。
// 典型实现：按空白切分计数。
type WordCounter interface {
	Count(line string) int
}

// WordCounterFunc 允许以普通函数实现 WordCounter。
type WordCounterFunc func(line string) int

func (f WordCounterFunc) Count(line string) int { return f(line) }

// Template: 块内容包装器（例如拼接提示词）。
// 约束：纯计算，原样插入内容，不做清洗。
type Template interface {
	Wrap(content string) string
}
