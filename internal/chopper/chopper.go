package chopper

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"bookchop/pkg/contract"
)

// - 流式累积：逐行读取；起始标记之前的行丢弃；之后每行原样进入缓冲并累计近似词数。
// - 块边界：策略判定 BlockStart 且缓冲非空时，先冲刷再追加当前行。
// - 冲刷：超限则按拆分点均衡重切；不足最小词数则保留缓冲与下一块合并；否则整块发射。
// - 流结束：强制冲刷一次（不受最小词数约束），保证内容不丢失。

// Options 为切块的尺寸参数。
type Options struct {
	// ChunkSizeWords: 单块目标上限（近似词数）；<=0 使用默认 1200。
	ChunkSizeWords int
	// MinWordsToEmit: 非强制冲刷时低于该词数则不发射；0 表示不抑制，<0 使用默认 100。
	MinWordsToEmit int
}

// DefaultOptions 返回默认尺寸参数。
func DefaultOptions() Options {
	return Options{ChunkSizeWords: 1200, MinWordsToEmit: 100}
}

// Stats 为单次运行的统计。
type Stats struct {
	// Started: 是否遇到起始标记；为 false 时整个输入被丢弃。
	Started   bool
	Lines     int
	Discarded int
	Chunks    int
	Words     int
	// Suppressed: 因不足最小词数而推迟发射的次数。
	Suppressed int
}

// Chopper 持有单次运行的全部可变状态（缓冲、词数、序号），不跨运行共享。
type Chopper struct {
	fileID  contract.FileID
	opts    Options
	policy  contract.BoundaryPolicy
	counter contract.WordCounter
	sink    contract.ChunkSink

	started bool
	buffer  []string
	counts  []int
	words   int
	seq     int
	stats   Stats
}

// New 创建切块器；policy/counter/sink 均为必需。
func New(fileID contract.FileID, opts Options, policy contract.BoundaryPolicy, counter contract.WordCounter, sink contract.ChunkSink) (*Chopper, error) {
	if policy == nil || counter == nil || sink == nil {
		return nil, fmt.Errorf("chopper: %w: policy, counter and sink are required", contract.ErrInvalidInput)
	}
	def := DefaultOptions()
	if opts.ChunkSizeWords <= 0 {
		opts.ChunkSizeWords = def.ChunkSizeWords
	}
	if opts.MinWordsToEmit < 0 {
		opts.MinWordsToEmit = def.MinWordsToEmit
	}
	return &Chopper{fileID: fileID, opts: opts, policy: policy, counter: counter, sink: sink}, nil
}

// Chop 读取整个流并在结束时强制冲刷。
// 行保留原始换行符（含 \r\n）；末行缺少换行时原样保留。
func (c *Chopper) Chop(ctx context.Context, r io.Reader) (Stats, error) {
	br := bufio.NewReader(r)
	for {
		if err := ctxErr(ctx); err != nil {
			return c.stats, err
		}
		line, err := br.ReadString('\n')
		if line != "" {
			if ferr := c.Feed(ctx, line); ferr != nil {
				return c.stats, ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return c.stats, err
		}
	}
	if err := c.Flush(ctx, true); err != nil {
		return c.stats, err
	}
	return c.stats, nil
}

// Feed 处理单行输入。
func (c *Chopper) Feed(ctx context.Context, line string) error {
	c.stats.Lines++
	if !c.started {
		m := c.policy.StartMarker(line)
		if m == contract.MarkNone {
			c.stats.Discarded++
			return nil
		}
		c.started = true
		c.stats.Started = true
		if m == contract.MarkExclusive {
			c.stats.Discarded++
			return nil
		}
	}
	if len(c.buffer) > 0 && c.policy.BlockStart(line, c.buffer) {
		if err := c.Flush(ctx, false); err != nil {
			return err
		}
	}
	n := c.counter.Count(line)
	c.buffer = append(c.buffer, line)
	c.counts = append(c.counts, n)
	c.words += n
	return nil
}

// Flush 按尺寸规则发射缓冲。force=true 时忽略最小词数（用于流结束）。
// 抑制发射时缓冲与词数保持不变，下一次冲刷看到合并后的内容。
func (c *Chopper) Flush(ctx context.Context, force bool) error {
	if len(c.buffer) == 0 {
		return nil
	}
	var err error
	switch {
	case c.words > c.opts.ChunkSizeWords:
		err = c.resplit(ctx)
	case c.words < c.opts.MinWordsToEmit && !force:
		c.stats.Suppressed++
		return nil
	default:
		err = c.emit(ctx, c.buffer, c.words)
	}
	if err != nil {
		return err
	}
	c.buffer = nil
	c.counts = nil
	c.words = 0
	return nil
}

// resplit 将超长缓冲均衡切为 ceil(words/size) 段左右，仅在 CanEmit 行处落刀；
// 余量总是最后发射（空余量跳过）。
func (c *Chopper) resplit(ctx context.Context) error {
	size := c.opts.ChunkSizeWords
	num := (c.words + size - 1) / size
	target := c.words / num

	tally, last := 0, 0
	for i, line := range c.buffer {
		tally += c.counts[i]
		if tally < target {
			continue
		}
		m := c.policy.CanEmit(line)
		if m == contract.MarkNone {
			continue
		}
		to := i + 1
		if m == contract.MarkExclusive {
			// 拆分点行归入下一段
			to = i
		}
		if to > last {
			if err := c.emit(ctx, c.buffer[last:to], sum(c.counts[last:to])); err != nil {
				return err
			}
			last = to
		}
		tally = 0
		if m == contract.MarkExclusive {
			tally = c.counts[i]
		}
	}
	if last < len(c.buffer) {
		return c.emit(ctx, c.buffer[last:], sum(c.counts[last:]))
	}
	return nil
}

func (c *Chopper) emit(ctx context.Context, lines []string, words int) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	out := make([]string, len(lines))
	copy(out, lines)
	ch := contract.Chunk{FileID: c.fileID, Seq: c.seq, Lines: out, Words: words}
	if err := c.sink.Emit(ctx, ch); err != nil {
		return fmt.Errorf("chopper emit %d: %w", c.seq, err)
	}
	c.seq++
	c.stats.Chunks++
	c.stats.Words += words
	return nil
}

func sum(xs []int) int {
	n := 0
	for _, x := range xs {
		n += x
	}
	return n
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
