package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"pagesplit/internal/diag"
	"pagesplit/pkg/contract"
	"pagesplit/pkg/segmenter"
)

// - 单点并发：仅此层管理并发与背压；原子组件均为同步、无内部并发。
// - Reader/Decoder 串行（输入流按稳定顺序消费），分段/装配/写出按书目并发。
// - 首错取消：任一书目出错即取消整体；排空后返回首个错误。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader    contract.Reader
	Decoder   contract.Decoder
	Assembler contract.Assembler
	Writer    contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	// 输入根（输出由 Writer 的 options 决定）
	Inputs      []string
	Concurrency int
	// Segmentation: 引擎选项；Logger 为空时由 Run 注入 diag 出口。
	Segmentation contract.Options
	// Check: 写出前对段做只读校验，问题以 warn 记录，不中断运行。
	Check bool
}

// Run 执行完整流水线：Reader → Decoder → SegmentPages → Assembler → Writer。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) error {
	if err := sanity(comp, set); err != nil {
		return fmt.Errorf("sanity: %w", err)
	}
	conc := set.Concurrency
	if conc < 1 {
		conc = 1
	}
	opts := set.Segmentation
	if opts.Logger == nil {
		opts.Logger = logger.Sink("engine")
	}
	if err := segmenter.Validate(opts); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)

	rtimer := logger.Start("reader", "iterate")
	books := 0
	// decodeErr: 已在 decoder 阶段记录的错误，避免 reader 层重复记录
	var decodeErr error
	iterErr := comp.Reader.Iterate(gctx, set.Inputs, func(id contract.BookID, rc io.ReadCloser) error {
		defer rc.Close()
		if err := gctx.Err(); err != nil {
			return err
		}
		book := string(id)
		if t := diag.GetTerminal(); t != nil {
			t.BookStart(book)
		}
		start := time.Now()
		dtimer := logger.StartBook("decoder", "decode", book)
		pages, err := comp.Decoder.Decode(gctx, id, rc)
		if err != nil {
			finishBook(book, 0, 0, false, start)
			decodeErr = stageErr(logger, "decoder", "decode", book, dtimer, err)
			return decodeErr
		}
		dtimer.Finish("decode", int64(len(pages)))
		observe("decoder", "decode", dtimer)
		books++
		// SetLimit 下 Go 会阻塞，直到有空闲槽位（自然背压）
		g.Go(func() error {
			n, err := processBook(gctx, comp, set.Check, opts, logger, id, pages)
			finishBook(book, len(pages), n, err == nil, start)
			return err
		})
		return nil
	})
	werr := g.Wait()
	if werr != nil {
		return werr
	}
	if iterErr != nil {
		if decodeErr != nil && errors.Is(iterErr, decodeErr) {
			return decodeErr
		}
		code := diag.Classify(iterErr)
		logger.Error("reader", string(code), "iterate failed", nil)
		count("reader", "iterate", code)
		return fmt.Errorf("reader iterate: %w", iterErr)
	}
	rtimer.Finish("iterate", int64(books))
	observe("reader", "iterate", rtimer)
	return nil
}

// processBook 对单个书目执行分段、装配与写出；返回段数。
func processBook(ctx context.Context, comp Components, check bool, opts contract.Options, logger *diag.Logger, id contract.BookID, pages []contract.Page) (int, error) {
	book := string(id)
	stimer := logger.StartBook("segmenter", "segment", book)
	segs, err := segmenter.SegmentPages(pages, opts)
	if err != nil {
		return 0, stageErr(logger, "segmenter", "segment", book, stimer, err)
	}
	stimer.Finish("segment", int64(len(segs)))
	observe("segmenter", "segment", stimer)

	if check {
		lim := contract.Limits{MaxPages: opts.MaxPages, MaxContentLength: opts.MaxContentLength}
		for _, is := range contract.ValidateSegments(pages, segs, lim) {
			opts.Logger.Warnf("segment issue", "book_id", book, "index", is.Index, "code", string(is.Code), "detail", is.Detail)
			diag.IncOp("validator", "issue", string(is.Code))
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	atimer := logger.StartBook("assembler", "assemble", book)
	r, err := comp.Assembler.Assemble(ctx, id, segs)
	if err != nil {
		return 0, stageErr(logger, "assembler", "assemble", book, atimer, err)
	}
	atimer.Finish("assemble", int64(len(segs)))
	observe("assembler", "assemble", atimer)

	wtimer := logger.StartBook("writer", "write", book)
	if err := comp.Writer.Write(ctx, contract.ArtifactID(id), r); err != nil {
		return 0, stageErr(logger, "writer", "write", book, wtimer, err)
	}
	wtimer.Finish("write", 1)
	observe("writer", "write", wtimer)
	opts.Logger.Debugf("book done", "book_id", book, "pages", len(pages), "segments", len(segs))
	return len(segs), nil
}

// stageErr 记录阶段错误（日志 + 计数）并包装返回。
func stageErr(logger *diag.Logger, comp, stage, book string, t *diag.Timer, err error) error {
	code := diag.Classify(err)
	since := t.Since()
	logger.ErrorBook(comp, string(code), stage+" failed", &since, book)
	count(comp, stage, code)
	return fmt.Errorf("%s %s %s: %w", comp, stage, book, err)
}

func count(comp, stage string, code diag.Code) {
	diag.IncOp(comp, stage, "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func observe(comp, stage string, t *diag.Timer) {
	diag.IncOp(comp, stage, "success")
	diag.ObserveDuration(comp, stage, time.Since(t.Since()).Milliseconds())
}

func finishBook(book string, pages, segs int, ok bool, start time.Time) {
	if t := diag.GetTerminal(); t != nil {
		t.BookFinish(book, pages, segs, ok, time.Since(start))
	}
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Decoder == nil || c.Assembler == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	return nil
}
