// Package filesystem 将每本书的分段结果落盘为一个文件。
// 书目 ID 映射为相对输出根目录的路径；默认原子替换，避免半写文件。
package filesystem

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pagesplit/pkg/contract"
)

const (
	defaultBufSize  = 64 * 1024
	defaultPermFile = 0o644
	defaultPermDir  = 0o755
	tmpPattern      = ".tmp-*"
)

// Options 对应配置中 writer.options。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `json:"output_dir"`
	// Atomic: 同目录临时文件 + 替换；nil 视为 true。
	Atomic *bool `json:"atomic,omitempty"`
	// Flat: 只保留书目文件名；nil 视为 true。
	Flat *bool `json:"flat,omitempty"`
	// Ext: 结果扩展名（如 ".jsonl"），替换书目原扩展名；空则沿用原名。
	Ext string `json:"ext,omitempty"`
	// PermFile/PermDir: 0 取默认 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲；<=0 取 64KiB。
	BufSize int `json:"buf_size,omitempty"`
}

// layout 决定书目 ID 到磁盘路径的映射。
type layout struct {
	root string
	flat bool
	ext  string
}

// FS 是 contract.Writer 的本地文件实现。
type FS struct {
	dst     layout
	atomic  bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

var _ contract.Writer = (*FS)(nil)

// New 校验选项并填充默认值。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, os.ErrInvalid
	}
	ext, err := normExt(opts.Ext)
	if err != nil {
		return nil, err
	}
	w := &FS{
		dst:     layout{root: opts.OutputDir, flat: orTrue(opts.Flat), ext: ext},
		atomic:  orTrue(opts.Atomic),
		permF:   orMode(opts.PermFile, defaultPermFile),
		permD:   orMode(opts.PermDir, defaultPermDir),
		bufSize: opts.BufSize,
	}
	if w.bufSize <= 0 {
		w.bufSize = defaultBufSize
	}
	return w, nil
}

func orTrue(p *bool) bool { return p == nil || *p }

func orMode(m, def os.FileMode) os.FileMode {
	if m == 0 {
		return def
	}
	return m
}

// normExt 补前导点；含路径分隔符视为非法。
func normExt(ext string) (string, error) {
	if ext == "" {
		return "", nil
	}
	if strings.ContainsAny(ext, `/\`) {
		return "", os.ErrInvalid
	}
	if ext[0] != '.' {
		ext = "." + ext
	}
	return ext, nil
}

// Write 把一本书的结果流写到 id 对应的文件。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.dst.target(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	src := &cancelReader{ctx: ctx, r: r}
	if w.atomic {
		return w.replace(dest, src)
	}
	return w.overwrite(dest, src)
}

// target: 扁平模式取文件名；否则拒绝绝对路径、卷名与父级逃逸。
func (l layout) target(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(string(id))
	if l.flat {
		rel = filepath.Base(rel)
		if rel == "." || rel == ".." || rel == string(filepath.Separator) {
			return "", contract.ErrPathInvalid
		}
	} else if !local(rel) {
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(l.root, l.rename(rel)), nil
}

func local(rel string) bool {
	switch {
	case rel == "." || rel == "..":
		return false
	case filepath.IsAbs(rel) || filepath.VolumeName(rel) != "":
		return false
	case strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return false
	}
	return true
}

// rename 替换末段扩展名；kitab.json -> kitab.jsonl，".txt" 这类纯扩展名文件追加。
func (l layout) rename(rel string) string {
	if l.ext == "" {
		return rel
	}
	old := filepath.Ext(rel)
	if old == "" || old == filepath.Base(rel) {
		return rel + l.ext
	}
	return strings.TrimSuffix(rel, old) + l.ext
}

func (w *FS) overwrite(dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	if err := w.copyTo(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// replace 先写同目录临时文件并 fsync，再整体替换 dest。
func (w *FS) replace(dest string, r io.Reader) (err error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(name)
		}
	}()
	_ = os.Chmod(name, w.permF)

	if err = w.copyTo(tmp, r); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err = osReplace(name, dest); err != nil {
		return err
	}
	_ = syncDir(dir)
	return nil
}

func (w *FS) copyTo(f *os.File, r io.Reader) error {
	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, r); err != nil {
		return err
	}
	return bw.Flush()
}

// cancelReader 每次 Read 前检查取消，长书写入中途可被中断。
type cancelReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *cancelReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
