package contract

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Marker: 边界判定结果（三态）。
// - MarkNone: 不是边界；
// - MarkInclusive: 是边界，且该行归属于边界一侧的内容（不丢弃）；
// - MarkExclusive: 是边界，起始标记行被丢弃；拆分点行归入下一段。
type Marker int

const (
	MarkNone Marker = iota
	MarkInclusive
	MarkExclusive
)

func (m Marker) String() string {
	switch m {
	case MarkInclusive:
		return "inclusive"
	case MarkExclusive:
		return "exclusive"
	default:
		return "none"
	}
}

// Chunk: 一次发射的输出单元（整缓冲或其子区间）。
// 约束：
// - Seq 自 0 起严格递增，跨子拆分与普通发射共享，不复用、不跳号；
// - Lines 为原始行（含换行符），不做任何改写；
// - Words 为近似词数（由 WordCounter 计算）。
type Chunk struct {
	FileID FileID
	Seq    int
	Lines  []string
	Words  int
}

// Content 返回拼接后的原始文本。
func (c Chunk) Content() string {
	n := 0
	for _, l := range c.Lines {
		n += len(l)
	}
	b := make([]byte, 0, n)
	for _, l := range c.Lines {
		b = append(b, l...)
	}
	return string(b)
}

// FindingKind: 可恢复诊断的分类。
type FindingKind string

const (
	FindingNoStartMarker FindingKind = "no_start_marker"
	FindingNoOpenFence   FindingKind = "no_open_fence"
	FindingNoCloseFence  FindingKind = "no_close_fence"
	FindingNoBeginMarker FindingKind = "no_begin_rewrite"
	FindingNoEndMarker   FindingKind = "no_end_rewrite"
	FindingNoChunkFiles  FindingKind = "no_chunk_files"
)

// Finding: 文件级诊断（非致命）。调用方负责记录与展示，不影响后续处理。
type Finding struct {
	File FileID
	Kind FindingKind
	Msg  string
}
