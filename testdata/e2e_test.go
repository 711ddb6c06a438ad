package testdata

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	cfgpkg "pagesplit/internal/config"
	"pagesplit/internal/pipeline"
	"pagesplit/pkg/contract"
)

func baseConfig(input, outDir string) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{input}
	cfg.Logging.Level = "error"
	cfg.Options.Assembler = json.RawMessage(`{"format":"jsonl","meta":true,"debug":false}`)
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"atomic":false,"flat":true,"ext":".jsonl"}`, outDir))
	return cfg
}

func runPipeline(cfg cfgpkg.Config) error {
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return err
	}
	return pipeline.Run(context.Background(), comp, set, nil)
}

func readSegments(t *testing.T, path string) []contract.Segment {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	var segs []contract.Segment
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var s contract.Segment
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		segs = append(segs, s)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return segs
}

func readPages(t *testing.T, path string) []contract.Page {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	var pages []contract.Page
	if err := json.Unmarshal(raw, &pages); err != nil {
		t.Fatalf("decode input: %v", err)
	}
	return pages
}

func squash(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// 段内容（去空白）顺次拼接应等于页内容拼接：无丢失、无重复。
func assertCoverage(t *testing.T, pages []contract.Page, segs []contract.Segment) {
	t.Helper()
	var want, got strings.Builder
	for _, p := range pages {
		want.WriteString(squash(p.Content))
	}
	for _, s := range segs {
		got.WriteString(squash(s.Content))
	}
	if want.String() != got.String() {
		t.Fatalf("coverage mismatch\nwant: %s\ngot:  %s", want.String(), got.String())
	}
}

func TestE2EChapters(t *testing.T) {
	in := filepath.Join("files", "kitab.json")
	outDir := t.TempDir()
	if err := runPipeline(baseConfig(in, outDir)); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	segs := readSegments(t, filepath.Join(outDir, "kitab.jsonl"))
	pages := readPages(t, in)
	if len(segs) != 6 {
		t.Fatalf("segments = %d, want 6: %+v", len(segs), segs)
	}
	kinds := map[any]int{}
	for _, s := range segs {
		kinds[s.Meta["type"]]++
	}
	if kinds["book"] != 2 || kinds["chapter"] != 3 || kinds[nil] != 1 {
		t.Fatalf("meta kinds = %v", kinds)
	}
	if segs[2].From != 2 || segs[2].To == nil || *segs[2].To != 3 {
		t.Fatalf("cross-page chapter = %+v", segs[2])
	}
	if issues := contract.ValidateSegments(pages, segs, contract.Limits{MaxPages: contract.Int(1), MaxContentLength: 3000}); len(issues) != 0 {
		t.Fatalf("issues: %+v", issues)
	}
	assertCoverage(t, pages, segs)
}

func TestE2ELengthBudget(t *testing.T) {
	dir := t.TempDir()
	body := strings.Repeat("هذه جملة قصيرة في الباب. ", 40)
	pages := []contract.Page{
		{ID: 1, Content: "باب الطول\n" + body},
		{ID: 2, Content: body},
	}
	raw, _ := json.Marshal(pages)
	in := filepath.Join(dir, "tawil.json")
	if err := os.WriteFile(in, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")
	cfg := baseConfig(in, outDir)
	cfg.Segmentation.MaxContentLength = 120
	cfg.Check = true
	if err := runPipeline(cfg); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	segs := readSegments(t, filepath.Join(outDir, "tawil.jsonl"))
	if len(segs) < 2 {
		t.Fatalf("expected breakpoint splits, got %d", len(segs))
	}
	if issues := contract.ValidateSegments(pages, segs, contract.Limits{MaxPages: contract.Int(1), MaxContentLength: 120}); len(issues) != 0 {
		t.Fatalf("issues: %+v", issues)
	}
	assertCoverage(t, pages, segs)
}

func TestE2EPageText(t *testing.T) {
	in := filepath.Join("files", "risala.txt")
	outDir := t.TempDir()
	cfg := baseConfig(in, outDir)
	cfg.Components.Decoder = "pagetext"
	cfg.Options.Decoder = json.RawMessage(`{"first_id":1}`)
	if err := runPipeline(cfg); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	segs := readSegments(t, filepath.Join(outDir, "risala.jsonl"))
	if len(segs) != 2 {
		t.Fatalf("segments = %d, want 2: %+v", len(segs), segs)
	}
	if segs[0].From != 1 || segs[0].To == nil || *segs[0].To != 2 || segs[1].From != 2 {
		t.Fatalf("page attribution = %+v", segs)
	}
	if !strings.HasPrefix(segs[1].Content, "باب الإخلاص") {
		t.Fatalf("second segment = %q", segs[1].Content)
	}
}

func TestE2EInvalidPattern(t *testing.T) {
	outDir := t.TempDir()
	cfg := baseConfig(filepath.Join("files", "kitab.json"), outDir)
	cfg.Segmentation.Rules = []contract.SplitRule{{Regex: "(باب"}}
	err := runPipeline(cfg)
	if !errors.Is(err, contract.ErrInvalidPattern) {
		t.Fatalf("expect invalid pattern, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "kitab.jsonl")); err == nil {
		t.Fatalf("output file should not exist")
	}
}
