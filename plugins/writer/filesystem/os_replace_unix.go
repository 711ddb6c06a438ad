//go:build !windows

package filesystem

import (
	"os"
)

// osReplace: POSIX rename 同目录内原子。
func osReplace(tmpPath, dest string) error {
	return os.Rename(tmpPath, dest)
}

// syncDir 持久化父目录项；失败不影响已完成的替换。
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
