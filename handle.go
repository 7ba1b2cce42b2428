package capturer

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// StreamHandle exposes the output captured by one pseudo terminal: the whole
// session in merged captures, or one of the stdout/stderr sub-handles of a
// split capture.
//
// Every accessor takes a partial flag. With partial false the capture is
// finished first (stopping the drain worker and restoring the descriptors),
// so the result is complete and stable. With partial true the accessor
// returns whatever has been captured so far without disturbing the capture;
// the tail may split a line, a multi-byte character or an escape sequence.
type StreamHandle struct {
	pt       *PseudoTerminal
	encoding string
}

// Handle returns a seekable read handle over the captured output, positioned
// at the start. The handle is shared with the session: concurrent readers
// must not interleave, and the session closes it when a new capture starts.
func (h *StreamHandle) Handle(partial bool) (io.ReadSeeker, error) {
	return h.pt.handle(partial)
}

// Bytes returns the captured output as raw bytes, exactly as emitted by the
// pseudo terminal.
func (h *StreamHandle) Bytes(partial bool) ([]byte, error) {
	return h.pt.bytes(partial)
}

// Lines returns the captured output decoded and split into lines. With
// interpreted true (the usual case) the carriage-return interpretation of
// Normalize is applied; otherwise the text is split on line feeds only.
func (h *StreamHandle) Lines(interpreted, partial bool) ([]string, error) {
	text, err := h.decoded(partial)
	if err != nil {
		return nil, err
	}
	if interpreted {
		return Normalize(text), nil
	}
	return splitLines(text), nil
}

// Text returns the captured output as a single decoded string. With
// interpreted true the carriage-return interpretation of Normalize is
// applied and lines are rejoined with line feeds.
func (h *StreamHandle) Text(interpreted, partial bool) (string, error) {
	text, err := h.decoded(partial)
	if err != nil {
		return "", err
	}
	if interpreted {
		return strings.Join(Normalize(text), "\n"), nil
	}
	return text, nil
}

// SaveToPath writes the captured output to a file, creating or truncating
// it.
func (h *StreamHandle) SaveToPath(path string, partial bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save captured output: %w", err)
	}
	if err := h.SaveToHandle(f, partial); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("save captured output: %w", err)
	}
	return nil
}

// SaveToHandle writes the captured output to w.
func (h *StreamHandle) SaveToHandle(w io.Writer, partial bool) error {
	r, err := h.pt.handle(partial)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copy captured output: %w", err)
	}
	return nil
}

func (h *StreamHandle) decoded(partial bool) (string, error) {
	data, err := h.pt.bytes(partial)
	if err != nil {
		return "", err
	}
	return decodeText(data, h.encoding)
}
