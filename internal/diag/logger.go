package diag

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pagesplit/pkg/contract"
)

// 默认日志目录与轮转大小。
const (
	DefaultLogDir   = "logs"
	DefaultMaxBytes = 10 * 1024 * 1024
)

// Logger: 进程级结构化日志器，单行 JSON（zerolog）。
// 事件字段：comp、stage（start|finish|error）、code、dur_ms、count、book_id、kv。
// nil 接收者上的全部方法均为 no-op。
type Logger struct {
	corrID string
	zl     zerolog.Logger
	sink   *RotatingFile
}

// NewLogger 通过配置的 level 初始化，写入 logs/pagesplit-current.txt，10 MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	sink := NewRotatingFile(DefaultLogDir, DefaultMaxBytes)
	l := NewLoggerTo(sink, corrID, level)
	l.sink = sink
	return l
}

// NewLoggerTo 写入给定 writer（nil 时为 stderr）；写入经 zerolog.SyncWriter 串行化。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	if _, ok := w.(*RotatingFile); !ok {
		w = zerolog.SyncWriter(w)
	}
	zl := zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Str("corr_id", corrID).Logger()
	return &Logger{corrID: corrID, zl: zl}
}

// ParseLevel 解析级别名；未知值取 info。
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) event(lv zerolog.Level, comp, stage string) *zerolog.Event {
	if l == nil {
		return nil
	}
	return l.zl.WithLevel(lv).Str("comp", comp).Str("stage", stage)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.event(zerolog.InfoLevel, comp, "start").Msg(msg)
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartBook 记录带 book_id 的 start。
func (l *Logger) StartBook(comp, msg, book string) *Timer {
	l.event(zerolog.InfoLevel, comp, "start").Str("book_id", book).Msg(msg)
	return &Timer{l: l, comp: comp, book: book, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorBook(comp, code, msg, durSince, "")
}

// ErrorBook 记录带 book_id 的 error 事件。
func (l *Logger) ErrorBook(comp, code, msg string, durSince *time.Time, book string) {
	ev := l.event(zerolog.ErrorLevel, comp, "error").Str("code", code)
	if durSince != nil {
		ev = ev.Int64("dur_ms", time.Since(*durSince).Milliseconds())
	}
	if book != "" {
		ev = ev.Str("book_id", book)
	}
	ev.Msg(msg)
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.event(zerolog.InfoLevel, comp, "finish").Int64("dur_ms", time.Since(start).Milliseconds()).Int64("count", count).Msg(msg)
}

// Debug 输出调试事件（仅在 level<=debug 时生效）。
func (l *Logger) Debug(comp, msg string, kv map[string]string) {
	ev := l.event(zerolog.DebugLevel, comp, "start")
	if len(kv) > 0 {
		ev = ev.Interface("kv", kv)
	}
	ev.Msg(msg)
}

// Sink 将日志器适配为引擎日志出口；低于当前级别的方法置空，调用方零开销。
func (l *Logger) Sink(comp string) *contract.Logger {
	if l == nil {
		return nil
	}
	emit := func(lv zerolog.Level) func(string, ...any) {
		if lv < l.zl.GetLevel() || lv < zerolog.GlobalLevel() {
			return nil
		}
		return func(msg string, kv ...any) {
			ev := l.zl.WithLevel(lv).Str("comp", comp)
			if len(kv) > 0 {
				ev = ev.Fields(kv)
			}
			ev.Msg(msg)
		}
	}
	return &contract.Logger{
		Trace: emit(zerolog.TraceLevel),
		Debug: emit(zerolog.DebugLevel),
		Info:  emit(zerolog.InfoLevel),
		Warn:  emit(zerolog.WarnLevel),
		Error: emit(zerolog.ErrorLevel),
	}
}

// Close 关闭文件输出（若有）。
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l    *Logger
	comp string
	book string
	t0   time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	ev := t.l.event(zerolog.InfoLevel, t.comp, "finish").Int64("dur_ms", time.Since(t.t0).Milliseconds()).Int64("count", count)
	if t.book != "" {
		ev = ev.Str("book_id", t.book)
	}
	ev.Msg(msg)
}

// Since 返回计时起点（nil 时为零值）。
func (t *Timer) Since() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.t0
}
