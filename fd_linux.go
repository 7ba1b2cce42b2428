//go:build linux

package capturer

import "golang.org/x/sys/unix"

// dupTo duplicates oldfd onto newfd, closing whatever newfd referred to.
// Dup3 rather than Dup2 because the latter is unavailable on linux/arm64.
func dupTo(oldfd, newfd int) error {
	if oldfd == newfd {
		return nil
	}
	return unix.Dup3(oldfd, newfd, 0)
}

// pendingFd reports how many bytes are buffered for reading on fd, or 0 when
// that cannot be determined. TIOCINQ is linux's name for FIONREAD.
func pendingFd(fd int) int {
	n, err := unix.IoctlGetInt(fd, unix.TIOCINQ)
	if err != nil {
		return 0
	}
	return n
}
