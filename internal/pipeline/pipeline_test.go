package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"pagesplit/internal/diag"
	"pagesplit/pkg/contract"
	linear "pagesplit/plugins/assembler/linear"
	pjson "pagesplit/plugins/decoder/pagesjson"
	fsreader "pagesplit/plugins/reader/filesystem"
	wfs "pagesplit/plugins/writer/filesystem"
)

// 通用桩件 ----------------------------------------------------
type stubReader struct{ books map[string]string }

func (s stubReader) Iterate(ctx context.Context, roots []string, yield func(contract.BookID, io.ReadCloser) error) error {
	for _, id := range roots {
		if err := yield(contract.BookID(id), io.NopCloser(strings.NewReader(s.books[id]))); err != nil {
			return err
		}
	}
	return nil
}

type stubDecoder struct{}

// Decode 每行一页，ID 从 1 起
func (stubDecoder) Decode(ctx context.Context, id contract.BookID, r io.Reader) ([]contract.Page, error) {
	b, _ := io.ReadAll(r)
	if string(b) == "bad" {
		return nil, contract.ErrDecode
	}
	var pages []contract.Page
	for i, line := range strings.Split(string(b), "\n") {
		pages = append(pages, contract.Page{ID: i + 1, Content: line})
	}
	return pages, nil
}

type stubAssembler struct{}

func (stubAssembler) Assemble(ctx context.Context, id contract.BookID, segs []contract.Segment) (io.Reader, error) {
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.Content)
		sb.WriteString("|")
	}
	return strings.NewReader(sb.String()), nil
}

type stubWriter struct {
	mu   sync.Mutex
	out  map[string]string
	fail string
}

func (w *stubWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if string(id) == w.fail {
		return errors.New("disk full")
	}
	b, _ := io.ReadAll(r)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		w.out = map[string]string{}
	}
	w.out[string(id)] = string(b)
	return nil
}

func stubComp(books map[string]string, w *stubWriter) Components {
	return Components{Reader: stubReader{books: books}, Decoder: stubDecoder{}, Assembler: stubAssembler{}, Writer: w}
}

var chapterRule = contract.SplitRule{LineStartsWith: []string{"باب"}, Split: contract.SplitAt}

// UT-PIP-01: 多书目并发分段，输出按书目独立
func TestRunSegmentsBooks(t *testing.T) {
	books := map[string]string{
		"a": "مقدمة\nباب الأول\nنص\nباب الثاني",
		"b": "باب واحد",
		"c": "",
	}
	w := &stubWriter{}
	set := Settings{
		Inputs:       []string{"a", "b", "c"},
		Concurrency:  2,
		Segmentation: contract.Options{Rules: []contract.SplitRule{chapterRule}},
		Check:        true,
	}
	var logBuf bytes.Buffer
	logger := diag.NewLoggerTo(&logBuf, "c", "debug")
	if err := Run(context.Background(), stubComp(books, w), set, logger); err != nil {
		t.Fatalf("运行失败: %v", err)
	}
	want := map[string]string{
		"a": "مقدمة|باب الأول نص|باب الثاني|",
		"b": "باب واحد|",
		"c": "",
	}
	for id, v := range want {
		if w.out[id] != v {
			t.Fatalf("%s: got %q want %q", id, w.out[id], v)
		}
	}
	log := logBuf.String()
	for _, s := range []string{`"comp":"segmenter"`, `"comp":"engine"`, `"book_id":"a"`} {
		if !strings.Contains(log, s) {
			t.Fatalf("日志缺少 %s", s)
		}
	}
}

// UT-PIP-02: 解码失败即首错返回，不写出后续书目
func TestRunDecodeError(t *testing.T) {
	diag.ResetMetrics()
	w := &stubWriter{}
	set := Settings{Inputs: []string{"bad", "b"}, Concurrency: 1}
	err := Run(context.Background(), stubComp(map[string]string{"bad": "bad", "b": "x"}, w), set, nil)
	if !errors.Is(err, contract.ErrDecode) {
		t.Fatalf("应返回解码错误, got %v", err)
	}
	if _, ok := w.out["b"]; ok {
		t.Fatalf("首错后不应继续写出")
	}
	if diag.Snapshot().Errors["decoder/decode"] != 1 {
		t.Fatalf("解码错误未计数: %+v", diag.Snapshot().Errors)
	}
}

// UT-PIP-03: 写出失败向上透传
func TestRunWriterError(t *testing.T) {
	w := &stubWriter{fail: "b"}
	set := Settings{Inputs: []string{"a", "b"}, Concurrency: 2}
	err := Run(context.Background(), stubComp(map[string]string{"a": "x", "b": "y"}, w), set, nil)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("应返回写出错误, got %v", err)
	}
}

// UT-PIP-04: 非法引擎选项在读取前失败
func TestRunInvalidOptions(t *testing.T) {
	set := Settings{Inputs: []string{"a"}, Segmentation: contract.Options{MaxContentLength: 10}}
	err := Run(context.Background(), stubComp(nil, &stubWriter{}), set, nil)
	if !errors.Is(err, contract.ErrInvalidConfig) {
		t.Fatalf("应返回配置错误, got %v", err)
	}
	if err := Run(context.Background(), Components{}, set, nil); err == nil {
		t.Fatalf("缺少组件应失败")
	}
}

// UT-PIP-05: 上游取消
func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, stubComp(map[string]string{"a": "x"}, &stubWriter{}), Settings{Inputs: []string{"a"}}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("应返回取消错误, got %v", err)
	}
}

// UT-PIP-06: 真实插件端到端（fs reader → pagesjson → linear → fs writer）
func TestRunFilesystemPlugins(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	pages := []contract.Page{
		{ID: 1, Content: "باب الطهارة"},
		{ID: 2, Content: "نص الباب"},
		{ID: 5, Content: "باب الصلاة"},
	}
	raw, _ := json.Marshal(pages)
	if err := os.WriteFile(filepath.Join(in, "kitab.json"), raw, 0o644); err != nil {
		t.Fatal(err)
	}
	dec, _ := pjson.New(nil)
	asm, _ := linear.New(nil)
	w, err := wfs.New(&wfs.Options{OutputDir: out, Ext: ".jsonl"})
	if err != nil {
		t.Fatal(err)
	}
	comp := Components{Reader: fsreader.New(nil), Decoder: dec, Assembler: asm, Writer: w}
	set := Settings{Inputs: []string{in}, Concurrency: 1, Segmentation: contract.Options{Rules: []contract.SplitRule{chapterRule}}}
	if err := Run(context.Background(), comp, set, nil); err != nil {
		t.Fatalf("运行失败: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(out, "kitab.jsonl"))
	if err != nil {
		t.Fatalf("读取输出失败: %v", err)
	}
	want := `{"content":"باب الطهارة نص الباب","from":1,"to":2}` + "\n" +
		`{"content":"باب الصلاة","from":5}` + "\n"
	if string(b) != want {
		t.Fatalf("输出不符:\n%s", b)
	}
}
