package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pagesplit/pkg/contract"
)

// UT-DIAG-01: 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	if err := w.WriteLine([]byte("first line that is very long")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := w.WriteLine([]byte("second")); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("应存在轮转文件, got %d", len(files))
	}
	_ = w.Close()
}

// 当前文件名与时间戳文件同时存在
func TestRotatingFileRotateFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 10)
	defer w.Close()
	for i := 0; i < 5; i++ {
		if err := w.WriteLine([]byte("xxxxxxxxxxxxxxxxxx")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	hasCurrent, hasRotated := false, false
	for _, e := range ents {
		if e.Name() == currentName {
			hasCurrent = true
		}
		if strings.HasPrefix(e.Name(), "pagesplit-") && !strings.Contains(e.Name(), "current") {
			hasRotated = true
		}
	}
	if !hasCurrent || !hasRotated {
		t.Fatalf("expect both current and rotated files, got current=%v rotated=%v", hasCurrent, hasRotated)
	}
}

// 默认 maxBytes 与 rotate 在 f==nil 分支
func TestRotatingFileDefaultsAndRotateNoOpen(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 0)
	if w.maxBytes != DefaultMaxBytes {
		t.Fatalf("default maxBytes: %d", w.maxBytes)
	}
	if err := w.WriteLine([]byte("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.f.Close()
	w.f = nil
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	_ = w.Close()
}

// UT-DIAG-02: 错误分类
func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{nil, CodeUnknown},
		{context.Canceled, CodeCancel},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), CodeCancel},
		{&contract.PatternError{Pattern: "(", Err: errors.New("x")}, CodePattern},
		{contract.ErrInvalidRule, CodePattern},
		{contract.ErrInvalidConfig, CodeConfig},
		{fmt.Errorf("at 12: %w", contract.ErrRunawayMatch), CodeRunaway},
		{contract.ErrDecode, CodeDecode},
		{contract.ErrSeqInvalid, CodeInvariant},
		{contract.ErrPathInvalid, CodeInvariant},
		{&fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}, CodeIO},
		{errors.New("other"), CodeUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Fatalf("Classify(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("非 JSON 行 %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

// UT-DIAG-03: 事件字段
func TestLoggerEvents(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "corr", "debug")
	timer := l.StartBook("segmenter", "segment", "books/a.json")
	timer.Finish("ok", 7)
	start := time.Now().Add(-5 * time.Millisecond)
	l.ErrorBook("pipeline", string(CodePattern), "bad rule", &start, "books/a.json")
	l.Debug("config", "loaded", map[string]string{"k": "v"})

	lines := decodeLines(t, &buf)
	if len(lines) != 4 {
		t.Fatalf("expect 4 events, got %d", len(lines))
	}
	if lines[0]["stage"] != "start" || lines[0]["comp"] != "segmenter" || lines[0]["book_id"] != "books/a.json" || lines[0]["corr_id"] != "corr" {
		t.Fatalf("start event: %v", lines[0])
	}
	if lines[1]["stage"] != "finish" || lines[1]["count"] != float64(7) {
		t.Fatalf("finish event: %v", lines[1])
	}
	if lines[2]["level"] != "error" || lines[2]["code"] != "pattern" || lines[2]["dur_ms"] == nil {
		t.Fatalf("error event: %v", lines[2])
	}
	if kv, ok := lines[3]["kv"].(map[string]any); !ok || kv["k"] != "v" {
		t.Fatalf("debug kv: %v", lines[3])
	}
}

// 级别过滤
func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "c", "warn")
	l.Start("comp", "msg").Finish("ok", 1)
	l.Debug("comp", "msg", nil)
	if buf.Len() != 0 {
		t.Fatalf("info/debug 应被过滤: %q", buf.String())
	}
	l.Error("comp", "code", "msg", nil)
	if !strings.Contains(buf.String(), `"stage":"error"`) {
		t.Fatalf("error 应写出: %q", buf.String())
	}
	for in, want := range map[string]string{"trace": "trace", "DEBUG": "debug", " warn ": "warn", "error": "error", "x": "info"} {
		if got := ParseLevel(in).String(); got != want {
			t.Fatalf("ParseLevel(%q) = %s", in, got)
		}
	}
}

// nil 日志器与 nil 计时器为 no-op
func TestLoggerNil(t *testing.T) {
	var l *Logger
	l.Start("comp", "msg").Finish("ok", 1)
	l.Error("comp", "code", "msg", nil)
	l.InfoFinish("comp", "msg", time.Now(), 1)
	if l.Sink("engine") != nil {
		t.Fatalf("nil logger Sink 应为 nil")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	var tn *Timer
	tn.Finish("x", 0)
	(&Timer{}).Finish("x", 0)
	if !tn.Since().IsZero() {
		t.Fatalf("nil timer since")
	}
}

// UT-DIAG-04: 引擎日志出口适配
func TestSink(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "c", "info")
	s := l.Sink("engine")
	if s.Trace != nil || s.Debug != nil {
		t.Fatalf("低于 info 的出口应为空")
	}
	if s.TraceEnabled() {
		t.Fatalf("trace 不应启用")
	}
	s.Debugf("hidden")
	s.Infof("segment subdivided", "from", 3, "pieces", 2)
	s.Warnf("pass through", "from", 9)
	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expect 2 events, got %d: %q", len(lines), buf.String())
	}
	if lines[0]["comp"] != "engine" || lines[0]["from"] != float64(3) || lines[0]["pieces"] != float64(2) || lines[0]["message"] != "segment subdivided" {
		t.Fatalf("info event: %v", lines[0])
	}
	if lines[1]["level"] != "warn" {
		t.Fatalf("warn event: %v", lines[1])
	}
}

// 默认文件输出
func TestNewLoggerWritesFile(t *testing.T) {
	wd, _ := os.Getwd()
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)
	l := NewLogger("corr", "info")
	l.Start("comp", "msg").Finish("ok", 1)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, DefaultLogDir, currentName))
	if err != nil {
		t.Fatalf("log file not found: %v", err)
	}
	if !strings.Contains(string(b), `"comp":"comp"`) {
		t.Fatalf("log content: %q", b)
	}
}

// UT-DIAG-05: 指标计数与快照
func TestMetrics(t *testing.T) {
	ResetMetrics()
	IncOp("segmenter", "finish", "success")
	IncOp("segmenter", "finish", "success")
	IncError("segmenter", "pattern")
	ObserveDuration("segmenter", "finish", 5)
	ObserveDuration("segmenter", "finish", 7)
	m := Snapshot()
	if m.Ops["segmenter/finish/success"] != 2 || m.Errors["segmenter/pattern"] != 1 || m.DurationMS["segmenter/finish"] != 12 {
		t.Fatalf("snapshot: %+v", m)
	}
	if m.Flat()["op_total:segmenter/finish/success"] != "2" {
		t.Fatalf("flat: %v", m.Flat())
	}
	IncOp("x", "y", "z")
	if _, ok := m.Ops["x/y/z"]; ok {
		t.Fatalf("快照应为副本")
	}
	ResetMetrics()
	if len(Snapshot().Ops) != 0 {
		t.Fatalf("reset")
	}
}

// UT-DIAG-06: 终端（非 TTY）关键节点输出
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	if term.isTTY {
		t.Fatalf("expect non-tty")
	}
	term.RunStart(4, 2)
	term.BookStart("books/bukhari.json")
	term.BookFinish("books/bukhari.json", 120, 33, true, 5100*time.Millisecond)
	term.BookFinish("books/muslim.json", 10, 0, false, 200*time.Millisecond)
	term.RunFinish(false, 41300*time.Millisecond)

	out := sb.String()
	if strings.Contains(out, "\r") {
		t.Fatalf("non-tty should not contain carriage returns: %q", out)
	}
	for _, want := range []string{
		"[run] 并发=4 | 输入=2",
		"[book] bukhari.json",
		"[done] bukhari.json | 页 120 | 段 33 | 用时 5.1s",
		"[fail] muslim.json | 页 10 | 段 0 | 用时 200ms",
		"[fail] 全部完成 | 书目 2 | 段 33 | 失败 1 | 总用时 41.3s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

// UT-DIAG-07: 终端（TTY）进度节流与清尾
func TestTerminalTTYProgressThrottleAndClear(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true
	term.RunStart(2, 3)
	term.BookStart("/a/b/c/longfilename.json")
	first := sb.String()
	if !strings.Contains(first, "\r[book]") {
		t.Fatalf("progress should be inline with CR: %q", first)
	}
	term.BookStart("/a/b/other.json")
	if sb.String() != first {
		t.Fatalf("second progress should be throttled")
	}
	term.BookFinish("/a/b/c/longfilename.json", 3, 1, true, time.Second)
	final := sb.String()
	idx := strings.LastIndex(final, "[done]")
	if idx < 0 {
		t.Fatalf("missing done line: %q", final)
	}
	seg := final[:idx]
	cr := strings.LastIndex(seg, "\r")
	if cr < 0 || !strings.Contains(seg[cr+1:], " ") {
		t.Fatalf("clear tail should write spaces after CR: %q", seg)
	}
}

type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

// UT-DIAG-08: 写失败降级为禁用态
func TestTerminalDisableOnWriteError(t *testing.T) {
	term := NewTerminal(&flakyWriter{fail: true}, true)
	term.RunStart(1, 1)
	if term.enabled {
		t.Fatalf("terminal should be disabled after write error")
	}
	term.BookStart("a")
	term.BookFinish("a", 1, 1, true, 0)
	term.RunFinish(true, 0)

	var tn *Terminal
	tn.RunStart(1, 1)
	tn.BookStart("a")
	tn.BookFinish("a", 0, 0, true, 0)
	tn.RunFinish(true, 0)
}

// CI 环境视为非 TTY；全局终端存取
func TestTerminalEnvAndGlobal(t *testing.T) {
	t.Setenv("CI", "true")
	if NewTerminal(os.Stderr, true).isTTY {
		t.Fatalf("CI env should force non-tty")
	}
	SetTerminal(nil)
	if GetTerminal() != nil {
		t.Fatalf("expected nil terminal")
	}
	SetTerminal(NewTerminal(nil, false))
	if GetTerminal() == nil {
		t.Fatalf("expected non-nil terminal")
	}
	SetTerminal(nil)
}

// 工具函数
func TestHelpers(t *testing.T) {
	if got := shortenBase("/x/y/这是一个很长的文件名用于截断测试abcdefghijk.txt", 10); visLen(got) != 10 || !strings.HasSuffix(got, "…") {
		t.Fatalf("shortenBase: %q", got)
	}
	if shortenBase("x", 0) != "" {
		t.Fatalf("shortenBase max<=0 should be empty")
	}
	if safe("a\nb\rc") != "a b c" {
		t.Fatalf("safe replace failed")
	}
	if formatDur(0) != "0ms" || formatDur(1500*time.Millisecond) != "1.5s" {
		t.Fatalf("formatDur: %s %s", formatDur(0), formatDur(1500*time.Millisecond))
	}
	if NowUTC() == "" {
		t.Fatalf("应返回时间字符串")
	}
}
