//go:build !windows

package atomicfile

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncDir fsyncs the directory itself so the rename survives a crash, not
// just the file contents.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return unix.Fsync(int(d.Fd()))
}
