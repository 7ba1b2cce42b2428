package capturer

import "bytes"

// OutputBuffer writes only whole lines to its target descriptor, holding back
// a trailing partial line until more output (or a flush) arrives. The merge
// stage uses one per captured stream so that lines from the two streams never
// interleave mid-line on the shared terminal.
type OutputBuffer struct {
	fd      int
	pending []byte
}

// NewOutputBuffer creates an OutputBuffer that writes complete lines to fd.
func NewOutputBuffer(fd int) *OutputBuffer {
	return &OutputBuffer{fd: fd}
}

// Add appends output to the buffer and immediately writes out every complete
// line, in arrival order. Only the trailing partial line (if any) stays
// buffered.
func (b *OutputBuffer) Add(output []byte) error {
	b.pending = append(b.pending, output...)
	i := bytes.LastIndexByte(b.pending, '\n')
	if i < 0 {
		return nil
	}
	if err := writeFd(b.fd, b.pending[:i+1]); err != nil {
		return err
	}
	b.pending = append(b.pending[:0], b.pending[i+1:]...)
	return nil
}

// Flush writes any buffered partial line, terminator or not. Called when the
// buffered stream reports end of output.
func (b *OutputBuffer) Flush() error {
	if len(b.pending) == 0 {
		return nil
	}
	if err := writeFd(b.fd, b.pending); err != nil {
		return err
	}
	b.pending = b.pending[:0]
	return nil
}
