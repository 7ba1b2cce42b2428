//go:build unix

package capturer

import "golang.org/x/sys/unix"

// dupFd duplicates fd onto the lowest free descriptor and returns it.
func dupFd(fd int) (int, error) {
	return unix.Dup(fd)
}

// writeFd writes all of p to fd, retrying on short writes and EINTR.
func writeFd(fd int, p []byte) error {
	for len(p) > 0 {
		n, err := unix.Write(fd, p)
		if n > 0 {
			p = p[n:]
		}
		if err != nil && err != unix.EINTR {
			return err
		}
	}
	return nil
}
