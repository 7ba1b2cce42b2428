//go:build unix && !linux

package capturer

import "golang.org/x/sys/unix"

// dupTo duplicates oldfd onto newfd, closing whatever newfd referred to.
func dupTo(oldfd, newfd int) error {
	if oldfd == newfd {
		return nil
	}
	return unix.Dup2(oldfd, newfd)
}

// pendingFd reports how many bytes are buffered for reading on fd, or 0 when
// that cannot be determined.
func pendingFd(fd int) int {
	n, err := unix.IoctlGetInt(fd, unix.FIONREAD)
	if err != nil {
		return 0
	}
	return n
}
