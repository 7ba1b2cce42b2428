package capturer

import "fmt"

// Stream holds the redirect/restore bookkeeping for a single file
// descriptor. Redirecting mutates the process-wide descriptor table, so a
// Stream must be treated as a claim on that descriptor: at most one Stream
// may be mid-redirect for a given descriptor at any time.
type Stream struct {
	fd         int
	originalFd int
	redirected bool
}

// NewStream prepares fd for redirection by saving a duplicate of its current
// destination. The duplicate is owned by the Stream and is deliberately never
// closed: a Stream lives for the remainder of the process, and the duplicate
// is what Restore (and the live relay) point back at.
func NewStream(fd int) (*Stream, error) {
	originalFd, err := dupFd(fd)
	if err != nil {
		return nil, fmt.Errorf("duplicate descriptor %d: %w", fd, err)
	}
	return &Stream{fd: fd, originalFd: originalFd}, nil
}

// Fd returns the descriptor this Stream manages.
func (s *Stream) Fd() int { return s.fd }

// OriginalFd returns the saved duplicate of the descriptor's pre-capture
// destination.
func (s *Stream) OriginalFd() int { return s.originalFd }

// IsRedirected reports whether Redirect has been called without an
// intervening Restore.
func (s *Stream) IsRedirected() bool { return s.redirected }

// Redirect points the managed descriptor at wherever targetFd points, so all
// future writes to it (from this process and from subprocesses that inherit
// it) land there instead. Returns ErrAlreadyRedirected when called twice
// without an intervening Restore.
func (s *Stream) Redirect(targetFd int) error {
	if s.redirected {
		return fmt.Errorf("descriptor %d: %w", s.fd, ErrAlreadyRedirected)
	}
	if err := dupTo(targetFd, s.fd); err != nil {
		return fmt.Errorf("redirect descriptor %d to %d: %w", s.fd, targetFd, err)
	}
	s.redirected = true
	return nil
}

// Restore points the managed descriptor back at its pre-capture destination.
// Calling Restore on a stream that is not redirected is a no-op.
func (s *Stream) Restore() error {
	if !s.redirected {
		return nil
	}
	if err := dupTo(s.originalFd, s.fd); err != nil {
		return fmt.Errorf("restore descriptor %d: %w", s.fd, err)
	}
	s.redirected = false
	return nil
}
