package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"bookchop/internal/chopper"
	"bookchop/internal/diag"
	"bookchop/internal/reassemble"
	"bookchop/pkg/contract"
)

// - 顺序执行：按 Reader 给出的顺序逐文件处理；每个文件独享一个 Chopper 状态。
// - 首错即停：任一文件的读/写错误返回，已写出的块不回滚。
// - 可恢复诊断（缺少起始标记、缺少改写标记）记录为 Finding，处理继续。

// Components 聚合切块运行所需的原子组件。
type Components struct {
	Reader  contract.Reader
	Writer  contract.Writer
	Policy  contract.BoundaryPolicy
	Counter contract.WordCounter
	// Template: 为 nil 时块内容原样写出。
	Template contract.Template
}

// Settings 切块运行期配置（最小必要）。
type Settings struct {
	// Inputs: 为空或仅含 "-" 时读取 STDIN。
	Inputs  []string
	Chopper chopper.Options
}

// Report 为一次运行的汇总。
type Report struct {
	Files    int
	Chunks   int
	Words    int
	Findings []contract.Finding
}

// Chop 执行 Reader → Chopper → FileSink(Template) → Writer。
func Chop(ctx context.Context, comp Components, set Settings, logger *diag.Logger, term *diag.Terminal) (Report, error) {
	var rep Report
	if err := sanity(comp, set); err != nil {
		return rep, fmt.Errorf("sanity: %w", err)
	}
	runStart := time.Now()
	term.RunStart("chop", len(set.Inputs))
	rtimer := logger.StartWithKV("pipeline", "chop start", "", diag.KV(
		"inputs", len(set.Inputs),
		"chunk_size_words", set.Chopper.ChunkSizeWords,
		"min_words_to_emit", set.Chopper.MinWordsToEmit,
	))

	err := comp.Reader.Iterate(ctx, set.Inputs, func(fileID contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		st, ferr := chopFile(ctx, comp, set, fileID, rc, logger, term)
		rep.Files++
		rep.Chunks += st.Chunks
		rep.Words += st.Words
		if ferr != nil {
			return ferr
		}
		if !st.Started {
			f := contract.Finding{File: fileID, Kind: contract.FindingNoStartMarker, Msg: "no start marker found; input discarded"}
			report(logger, term, "chopper", f)
			rep.Findings = append(rep.Findings, f)
		}
		return nil
	})
	if err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("pipeline", string(code), err.Error(), rtimer.Since(), "")
		diag.IncOp("pipeline", "error", "error")
		diag.IncError("pipeline", string(code))
		term.RunFinish(false, time.Since(runStart))
		return rep, err
	}
	rtimer.Finish("chop done", int64(rep.Chunks))
	diag.IncOp("pipeline", "finish", "success")
	term.RunFinish(true, time.Since(runStart))
	return rep, nil
}

func chopFile(ctx context.Context, comp Components, set Settings, fileID contract.FileID, r io.Reader, logger *diag.Logger, term *diag.Terminal) (chopper.Stats, error) {
	ftimer := logger.StartWith("chopper", "file start", string(fileID))
	term.FileStart(string(fileID))
	fileStart := time.Now()

	chunks, words := 0, 0
	sink := chopper.NewFileSink(comp.Writer, comp.Template)
	sink.OnEmit = func(name string, c contract.Chunk) {
		chunks++
		words += c.Words
		diag.AddChunks(1)
		logger.DebugStart("writer", "chunk written", name, diag.KV("seq", c.Seq, "words", c.Words, "lines", len(c.Lines)))
		term.FileProgress(chunks, words)
	}
	c, err := chopper.New(fileID, set.Chopper, comp.Policy, comp.Counter, sink)
	if err != nil {
		return chopper.Stats{}, err
	}
	st, err := c.Chop(ctx, r)
	if err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("chopper", string(code), err.Error(), ftimer.Since(), string(fileID))
		diag.IncOp("chopper", "error", "error")
		diag.IncError("chopper", string(code))
		term.FileFinish(false, st.Chunks, time.Since(fileStart))
		return st, fmt.Errorf("chop %s: %w", fileID, err)
	}
	ftimer.Finish("file done", int64(st.Chunks))
	diag.IncOp("chopper", "finish", "success")
	term.FileFinish(true, st.Chunks, time.Since(fileStart))
	return st, nil
}

// ReassembleSettings 合并运行期配置。
type ReassembleSettings struct {
	// Book: 书名（用于匹配块文件与 <book>.prefix）。
	Book string
	// Output: 合并结果的工件 ID（交给 Writer）。
	Output contract.ArtifactID
}

// Reassemble 执行 Discover → Assemble → Render → Writer。
// 标记缺失仅记录诊断；原文/改写数量不一致为致命错误。
func Reassemble(ctx context.Context, r *reassemble.Reassembler, w contract.Writer, set ReassembleSettings, logger *diag.Logger, term *diag.Terminal) (Report, error) {
	var rep Report
	if r == nil || w == nil {
		return rep, fmt.Errorf("sanity: %w: reassembler and writer are required", contract.ErrInvalidInput)
	}
	runStart := time.Now()
	term.RunStart("reassemble", 1)
	timer := logger.StartWithKV("reassemble", "reassemble start", string(set.Output), diag.KV("book", set.Book))
	fail := func(err error) (Report, error) {
		code := diag.Classify(err)
		logger.ErrorWith("reassemble", string(code), err.Error(), timer.Since(), string(set.Output))
		diag.IncOp("reassemble", "error", "error")
		diag.IncError("reassemble", string(code))
		term.FileFinish(false, rep.Files, time.Since(runStart))
		term.RunFinish(false, time.Since(runStart))
		return rep, err
	}

	term.FileStart(string(set.Output))
	files, err := r.Discover(set.Book)
	if err != nil {
		return fail(fmt.Errorf("discover: %w", err))
	}
	for _, f := range files {
		logger.DebugStart("reassemble", "processing", f, nil)
	}
	doc, findings, err := r.Assemble(ctx, set.Book, files)
	for _, f := range findings {
		report(logger, term, "reassemble", f)
	}
	rep.Findings = findings
	rep.Files = len(files)
	if err != nil {
		return fail(err)
	}

	var buf bytes.Buffer
	if err := r.Render(&buf, doc); err != nil {
		return fail(fmt.Errorf("render: %w", err))
	}
	if err := w.Write(ctx, set.Output, &buf); err != nil {
		return fail(fmt.Errorf("write %s: %w", set.Output, err))
	}
	rep.Chunks = len(doc.Originals)
	timer.Finish("reassemble done", int64(rep.Chunks))
	diag.IncOp("reassemble", "finish", "success")
	term.FileFinish(true, rep.Chunks, time.Since(runStart))
	term.RunFinish(true, time.Since(runStart))
	return rep, nil
}

// report 将 Finding 写入日志、终端与指标。
func report(logger *diag.Logger, term *diag.Terminal, comp string, f contract.Finding) {
	logger.Warn(comp, string(f.Kind), f.Msg, string(f.File))
	term.Warn(string(f.File), f.Msg)
	diag.IncFinding(string(f.Kind))
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Writer == nil || c.Policy == nil || c.Counter == nil {
		return fmt.Errorf("%w: reader, writer, policy and counter are required", contract.ErrInvalidInput)
	}
	if s.Chopper.ChunkSizeWords < 0 {
		return fmt.Errorf("%w: chunk_size_words must not be negative", contract.ErrInvalidInput)
	}
	return nil
}
