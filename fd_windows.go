//go:build windows

package capturer

import "errors"

// Descriptor-level capture relies on dup2 semantics and pseudo terminals,
// neither of which this package supports on Windows.

func dupFd(fd int) (int, error) {
	return -1, errors.ErrUnsupported
}

func dupTo(oldfd, newfd int) error {
	return errors.ErrUnsupported
}

func pendingFd(fd int) int {
	return 0
}

func writeFd(fd int, p []byte) error {
	return errors.ErrUnsupported
}
