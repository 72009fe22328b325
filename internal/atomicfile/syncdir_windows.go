//go:build windows

package atomicfile

// syncDir is a no-op on Windows: NTFS does not expose a directory fsync
// primitive, and MoveFileEx-based renames are already durable w.r.t. the
// directory entry once the file rename call returns.
func syncDir(dir string) error {
	return nil
}
