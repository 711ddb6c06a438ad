package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagesplit/pkg/contract"
)

func write(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func collect(t *testing.T, r *FileSystem, roots ...string) map[contract.BookID]string {
	t.Helper()
	out := map[contract.BookID]string{}
	err := r.Iterate(context.Background(), roots, func(id contract.BookID, rc io.ReadCloser) error {
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		out[id] = string(b)
		return nil
	})
	require.NoError(t, err)
	return out
}

// TestIterateSingleFile 单文件 root 不受扩展名过滤
func TestIterateSingleFile(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "book.bin")
	write(t, fp, "hello")
	got := collect(t, New(nil), fp)
	assert.Equal(t, map[contract.BookID]string{contract.NormalizeBookID(fp): "hello"}, got)
}

// TestIterateDirOrderAndFilter 目录递归按字典序，先子目录后文件，并按扩展名过滤
func TestIterateDirOrderAndFilter(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "b.json"), "b")
	write(t, filepath.Join(dir, "a.TXT"), "a")
	write(t, filepath.Join(dir, "skip.bin"), "x")
	write(t, filepath.Join(dir, "sub", "c.jsonl"), "c")
	write(t, filepath.Join(dir, ".git", "d.json"), "d")

	var order []string
	err := New(&Options{ExcludeDirNames: []string{".GIT"}}).Iterate(context.Background(), []string{dir}, func(id contract.BookID, rc io.ReadCloser) error {
		order = append(order, filepath.Base(string(id)))
		return rc.Close()
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c.jsonl", "a.TXT", "b.json"}, order)

	got := collect(t, New(&Options{AllowExts: []string{"bin"}}), dir)
	assert.Len(t, got, 1)
}

// TestIterateDashMix 混用 '-' 返回错误
func TestIterateDashMix(t *testing.T) {
	err := New(nil).Iterate(context.Background(), []string{"-", "a"}, func(contract.BookID, io.ReadCloser) error { return nil })
	assert.Error(t, err)
}

// TestIterateStdin roots 为空或仅 '-' 时读取 STDIN
func TestIterateStdin(t *testing.T) {
	for _, roots := range [][]string{nil, {"-"}} {
		old := os.Stdin
		pr, pw, err := os.Pipe()
		require.NoError(t, err)
		os.Stdin = pr
		go func() {
			_, _ = pw.Write([]byte("hi"))
			_ = pw.Close()
		}()
		got := collect(t, New(&Options{BufSize: 16}), roots...)
		os.Stdin = old
		assert.Equal(t, map[contract.BookID]string{"stdin": "hi"}, got)
	}
}

// TestIterateErrors 不存在的路径、yield 错误与已取消的 ctx
func TestIterateErrors(t *testing.T) {
	r := New(nil)
	err := r.Iterate(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, func(contract.BookID, io.ReadCloser) error { return nil })
	assert.True(t, errors.Is(err, os.ErrNotExist))

	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.json"), "a")
	boom := errors.New("boom")
	err = r.Iterate(context.Background(), []string{dir}, func(contract.BookID, io.ReadCloser) error { return boom })
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.Iterate(ctx, []string{dir}, func(contract.BookID, io.ReadCloser) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
