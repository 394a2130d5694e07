package chopper

import (
	"context"
	"fmt"
	"strings"

	"bookchop/pkg/contract"
)

// ChunkName 返回块文件名：{basename}_{seq:03d}.txt（序号至少 3 位，超出不截断）。
func ChunkName(fileID contract.FileID, seq int) string {
	return fmt.Sprintf("%s_%03d.txt", fileID.Base(), seq)
}

// FileSink 将块包装后交给 Writer 持久化。
type FileSink struct {
	w   contract.Writer
	tpl contract.Template
	// OnEmit: 可选回调（写出成功后调用），用于日志/指标/终端提示。
	OnEmit func(name string, c contract.Chunk)
}

var _ contract.ChunkSink = (*FileSink)(nil)

// NewFileSink 创建文件发射器；tpl 为 nil 时原样写出。
func NewFileSink(w contract.Writer, tpl contract.Template) *FileSink {
	return &FileSink{w: w, tpl: tpl}
}

func (s *FileSink) Emit(ctx context.Context, c contract.Chunk) error {
	name := ChunkName(c.FileID, c.Seq)
	body := c.Content()
	if s.tpl != nil {
		body = s.tpl.Wrap(body)
	}
	if err := s.w.Write(ctx, contract.ArtifactID(name), strings.NewReader(body)); err != nil {
		return err
	}
	if s.OnEmit != nil {
		s.OnEmit(name, c)
	}
	return nil
}
