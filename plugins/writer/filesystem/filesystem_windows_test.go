//go:build windows

package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pagesplit/pkg/contract"
)

// TestTargetInvalidWindows 盘符绝对路径、UNC 与父级逃逸的书目 ID 被拒绝
func TestTargetInvalidWindows(t *testing.T) {
	flat := false
	w, _ := New(&Options{OutputDir: t.TempDir(), Flat: &flat, Ext: ".jsonl"})
	for _, id := range []string{`C:\books\kitab.json`, `\\srv\share\kitab.json`, `..\kitab.json`, ".."} {
		if _, err := w.dst.target(contract.ArtifactID(id)); err != contract.ErrPathInvalid {
			t.Fatalf("id %s expect invalid, got %v", id, err)
		}
	}
}

// TestWriteReplaceWindows 已存在的结果文件被 MoveFileEx 覆盖
func TestWriteReplaceWindows(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir, Ext: ".jsonl"})
	for _, v := range []string{"{\"from\":1}\n", "{\"from\":2}\n"} {
		if err := w.Write(context.Background(), `books\kitab.json`, strings.NewReader(v)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	b, err := os.ReadFile(filepath.Join(dir, "kitab.jsonl"))
	if err != nil || string(b) != "{\"from\":2}\n" {
		t.Fatalf("unexpected %v %q", err, string(b))
	}
}
