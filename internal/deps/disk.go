package deps

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FreeSpace reports the bytes available to unprivileged writers on the
// filesystem containing path.
func FreeSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// EnsureFreeSpace fails when the filesystem holding path has fewer than
// required bytes available.
func EnsureFreeSpace(path string, required uint64) error {
	free, err := FreeSpace(path)
	if err != nil {
		return err
	}
	if free < required {
		return fmt.Errorf("insufficient disk space in %s: %d bytes free, %d required", path, free, required)
	}
	return nil
}
