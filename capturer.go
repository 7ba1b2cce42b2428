package capturer

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTerminationDelay is how long FinishCapture waits before asking
	// the drain worker to stop, letting output still in flight through the
	// pseudo terminal arrive.
	DefaultTerminationDelay = 10 * time.Millisecond

	// DefaultChunkSize is the maximum number of bytes read from a pseudo
	// terminal per drain iteration.
	DefaultChunkSize = 1024

	// mergeQueueCapacity bounds how far a drain worker may run ahead of the
	// merge worker in split captures.
	mergeQueueCapacity = 64
)

// Options configures a capture session. The zero value is ready to use:
// merged capture, live relay enabled, UTF-8 decoding, default chunk size and
// termination delay, logging disabled.
type Options struct {
	// Split captures stdout and stderr through separate pseudo terminals,
	// exposing them via the Stdout and Stderr sub-handles. The default is
	// merged capture through a single pseudo terminal.
	Split bool

	// NoRelay disables showing captured output live on the real terminal.
	NoRelay bool

	// Encoding is the IANA name of the character encoding used to decode
	// captured output. Empty means DefaultEncoding.
	Encoding string

	// TerminationDelay overrides DefaultTerminationDelay. Negative disables
	// the delay entirely.
	TerminationDelay time.Duration

	// ChunkSize overrides DefaultChunkSize.
	ChunkSize int

	// Logger receives debug diagnostics from the capture workers. Nil
	// disables logging.
	Logger *slog.Logger
}

// CaptureOutput is a capture session over the standard output and error
// streams of the current process and its subprocesses.
//
// A session is re-enterable: after FinishCapture (or a non-partial read,
// which implies it) a new StartCapture begins a fresh capture, discarding the
// previously captured output.
//
// Methods are safe for use from multiple goroutines, but the descriptor
// redirection itself is process-wide: at most one session should capture a
// given descriptor at a time (nesting sessions is fine, overlapping them is
// not).
type CaptureOutput struct {
	opts       Options
	logger     *slog.Logger
	supervisor *Supervisor // owns the merge worker in split captures

	mu      sync.Mutex
	streams map[int]*Stream // by descriptor; reused across captures
	output  *StreamHandle   // merged capture
	stdout  *StreamHandle   // split capture
	stderr  *StreamHandle   // split capture
}

// New creates a capture session. Nothing is redirected until StartCapture.
func New(opts Options) *CaptureOutput {
	if opts.Encoding == "" {
		opts.Encoding = DefaultEncoding
	}
	if opts.TerminationDelay == 0 {
		opts.TerminationDelay = DefaultTerminationDelay
	} else if opts.TerminationDelay < 0 {
		opts.TerminationDelay = 0
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CaptureOutput{
		opts:       opts,
		logger:     logger,
		supervisor: NewSupervisor(logger),
		streams:    make(map[int]*Stream),
	}
}

// IsCapturing reports whether any managed descriptor is currently redirected.
func (c *CaptureOutput) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCapturingLocked()
}

func (c *CaptureOutput) isCapturingLocked() bool {
	for _, s := range c.streams {
		if s.IsRedirected() {
			return true
		}
	}
	return false
}

// streamFor returns the session's Stream for fd, creating it on first use.
// Streams persist across captures so the saved original descriptor stays
// stable for the life of the session.
func (c *CaptureOutput) streamFor(fd int) (*Stream, error) {
	if s, ok := c.streams[fd]; ok {
		return s, nil
	}
	s, err := NewStream(fd)
	if err != nil {
		return nil, err
	}
	c.streams[fd] = s
	return s, nil
}

// rolesToCapture resolves which descriptors must be redirected for each
// role. The runtime's current stdout/stderr objects are captured, and so is
// the OS-standard descriptor (1 or 2) when the two differ: in-process
// writers follow the runtime object while subprocesses always inherit the
// standard descriptor, and both have to funnel into the same pseudo
// terminal or output from one of them is silently lost.
func rolesToCapture() (stdoutFds, stderrFds []int) {
	stdoutFds = []int{int(os.Stdout.Fd())}
	if stdoutFds[0] != 1 {
		stdoutFds = append(stdoutFds, 1)
	}
	stderrFds = []int{int(os.Stderr.Fd())}
	if stderrFds[0] != 2 {
		stderrFds = append(stderrFds, 2)
	}
	return stdoutFds, stderrFds
}

// StartCapture allocates the pseudo terminal(s), redirects the standard
// descriptors onto them and starts the supervised drain worker(s), plus the
// merge worker for a split capture with live relay. Returns
// ErrAlreadyCapturing if any needed descriptor is already mid-capture.
//
// Streams are redirected strictly before any drain worker starts, so no
// early write can race the attachment. On failure nothing stays redirected.
func (c *CaptureOutput) StartCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stdoutFds, stderrFds := rolesToCapture()
	// A descriptor may resolve to both roles (e.g. the runtime's stdout
	// replaced by its stderr); it is claimed by the first role that sees it
	// so it is only redirected once.
	claimed := make(map[int]bool, len(stdoutFds)+len(stderrFds))
	var stdoutStreams, stderrStreams []*Stream
	for _, fd := range stdoutFds {
		if claimed[fd] {
			continue
		}
		claimed[fd] = true
		s, err := c.streamFor(fd)
		if err != nil {
			return err
		}
		stdoutStreams = append(stdoutStreams, s)
	}
	for _, fd := range stderrFds {
		if claimed[fd] {
			continue
		}
		claimed[fd] = true
		s, err := c.streamFor(fd)
		if err != nil {
			return err
		}
		stderrStreams = append(stderrStreams, s)
	}
	for _, s := range append(append([]*Stream(nil), stdoutStreams...), stderrStreams...) {
		if s.IsRedirected() {
			return fmt.Errorf("descriptor %d: %w", s.Fd(), ErrAlreadyCapturing)
		}
	}

	// Discard output retained from a previous capture.
	for _, h := range []*StreamHandle{c.output, c.stdout, c.stderr} {
		if h != nil {
			_ = h.pt.closeStore()
		}
	}
	c.output, c.stdout, c.stderr = nil, nil, nil

	var err error
	if c.opts.Split {
		err = c.startSplitLocked(stdoutStreams, stderrStreams)
	} else {
		err = c.startMergedLocked(stdoutStreams, stderrStreams)
	}
	return err
}

// startMergedLocked wires every stream of both roles into one pseudo
// terminal whose drain worker relays to the original stderr descriptor.
func (c *CaptureOutput) startMergedLocked(stdoutStreams, stderrStreams []*Stream) error {
	relayFd := -1
	if !c.opts.NoRelay {
		// The stderr role may be empty when its descriptors were all claimed
		// by the stdout role.
		relaySource := stderrStreams
		if len(relaySource) == 0 {
			relaySource = stdoutStreams
		}
		relayFd = relaySource[0].OriginalFd()
	}
	pt, err := newPseudoTerminal(c.opts.ChunkSize, c.opts.TerminationDelay, relayFd, nil, "", c.logger)
	if err != nil {
		return err
	}
	for _, s := range append(append([]*Stream(nil), stdoutStreams...), stderrStreams...) {
		if err := pt.attach(s); err != nil {
			pt.discard()
			return err
		}
	}
	if err := pt.startCapture(); err != nil {
		pt.discard()
		return err
	}
	c.output = &StreamHandle{pt: pt, encoding: c.opts.Encoding}
	c.logger.Debug("merged capture started", "relay", relayFd >= 0)
	return nil
}

// startSplitLocked wires each role into its own pseudo terminal. With relay
// enabled the two drain workers feed one queue consumed by the merge worker,
// which recombines the live view line by line.
func (c *CaptureOutput) startSplitLocked(stdoutStreams, stderrStreams []*Stream) error {
	var queue chan chunk
	var sinks map[string]*OutputBuffer
	var stdoutToken, stderrToken string
	if !c.opts.NoRelay {
		queue = make(chan chunk, mergeQueueCapacity)
		stdoutToken = "stdout-" + uuid.NewString()
		stderrToken = "stderr-" + uuid.NewString()
		stderrRelay := stdoutStreams
		if len(stderrStreams) > 0 {
			stderrRelay = stderrStreams
		}
		sinks = map[string]*OutputBuffer{
			stdoutToken: NewOutputBuffer(stdoutStreams[0].OriginalFd()),
			stderrToken: NewOutputBuffer(stderrRelay[0].OriginalFd()),
		}
	}

	stdoutPT, err := newPseudoTerminal(c.opts.ChunkSize, c.opts.TerminationDelay, -1, queue, stdoutToken, c.logger)
	if err != nil {
		return err
	}
	stderrPT, err := newPseudoTerminal(c.opts.ChunkSize, c.opts.TerminationDelay, -1, queue, stderrToken, c.logger)
	if err != nil {
		stdoutPT.discard()
		return err
	}
	discardBoth := func() {
		stdoutPT.discard()
		stderrPT.discard()
	}
	for _, s := range stdoutStreams {
		if err := stdoutPT.attach(s); err != nil {
			discardBoth()
			return err
		}
	}
	for _, s := range stderrStreams {
		if err := stderrPT.attach(s); err != nil {
			discardBoth()
			return err
		}
	}
	if err := stdoutPT.startCapture(); err != nil {
		discardBoth()
		return err
	}
	if err := stderrPT.startCapture(); err != nil {
		_ = stdoutPT.finishCapture()
		stderrPT.discard()
		return err
	}
	if queue != nil {
		c.supervisor.Start("merge", nil, mergeLoop(queue, sinks, c.logger))
	}
	c.stdout = &StreamHandle{pt: stdoutPT, encoding: c.opts.Encoding}
	c.stderr = &StreamHandle{pt: stderrPT, encoding: c.opts.Encoding}
	c.logger.Debug("split capture started", "relay", queue != nil)
	return nil
}

// mergeLoop consumes the shared queue, buffering each source so only whole
// lines reach that source's real descriptor. A chunk with empty data retires
// its source; the loop ends once every source has been retired, so the
// supervisor joins this worker without an interrupt.
func mergeLoop(queue <-chan chunk, sinks map[string]*OutputBuffer, logger *slog.Logger) func(ready func()) {
	return func(ready func()) {
		ready()
		for len(sinks) > 0 {
			ch := <-queue
			buf, ok := sinks[ch.token]
			if !ok {
				continue
			}
			if len(ch.data) == 0 {
				if err := buf.Flush(); err != nil {
					logger.Warn("flush merged output", "error", err)
				}
				delete(sinks, ch.token)
				continue
			}
			if err := buf.Add(ch.data); err != nil {
				logger.Warn("write merged output", "error", err)
			}
		}
	}
}

// FinishCapture stops every drain worker, restores the redirected
// descriptors and waits for the merge worker (if any) to consume the
// end-of-source sentinels and exit. Idempotent; captured output remains
// readable afterwards.
func (c *CaptureOutput) FinishCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, h := range []*StreamHandle{c.output, c.stdout, c.stderr} {
		if h == nil {
			continue
		}
		if err := h.pt.finishCapture(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.supervisor.StopAll()
	return firstErr
}

// merged returns the merged-capture handle, rejecting split sessions.
func (c *CaptureOutput) merged() (*StreamHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opts.Split {
		return nil, fmt.Errorf("merged-capture accessor on a split session: %w", ErrUnsupportedMode)
	}
	if c.output == nil {
		return nil, ErrCaptureNotStarted
	}
	return c.output, nil
}

// Stdout returns the sub-handle over captured stdout. Only valid on a split
// session that has started capturing.
func (c *CaptureOutput) Stdout() (*StreamHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opts.Split {
		return nil, fmt.Errorf("stdout sub-handle on a merged session: %w", ErrUnsupportedMode)
	}
	if c.stdout == nil {
		return nil, ErrCaptureNotStarted
	}
	return c.stdout, nil
}

// Stderr returns the sub-handle over captured stderr. Only valid on a split
// session that has started capturing.
func (c *CaptureOutput) Stderr() (*StreamHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opts.Split {
		return nil, fmt.Errorf("stderr sub-handle on a merged session: %w", ErrUnsupportedMode)
	}
	if c.stderr == nil {
		return nil, ErrCaptureNotStarted
	}
	return c.stderr, nil
}

// Bytes returns the captured output as raw bytes. With partial false (the
// usual case) capture is finished first; with partial true it returns
// whatever has accumulated so far, which may end mid-line or mid-character.
func (c *CaptureOutput) Bytes(partial bool) ([]byte, error) {
	h, err := c.merged()
	if err != nil {
		return nil, err
	}
	return h.Bytes(partial)
}

// Lines returns the captured output split into decoded lines. With
// interpreted true the carriage-return interpretation of Normalize is
// applied.
func (c *CaptureOutput) Lines(interpreted, partial bool) ([]string, error) {
	h, err := c.merged()
	if err != nil {
		return nil, err
	}
	return h.Lines(interpreted, partial)
}

// Text returns the captured output as a single decoded string. With
// interpreted true the carriage-return interpretation of Normalize is
// applied.
func (c *CaptureOutput) Text(interpreted, partial bool) (string, error) {
	h, err := c.merged()
	if err != nil {
		return "", err
	}
	return h.Text(interpreted, partial)
}

// Handle returns a seekable read handle over the captured output. The handle
// is shared with the session; concurrent readers must not interleave.
func (c *CaptureOutput) Handle(partial bool) (io.ReadSeeker, error) {
	h, err := c.merged()
	if err != nil {
		return nil, err
	}
	return h.Handle(partial)
}

// SaveToPath writes the captured output to a file, creating or truncating
// it.
func (c *CaptureOutput) SaveToPath(path string, partial bool) error {
	h, err := c.merged()
	if err != nil {
		return err
	}
	return h.SaveToPath(path, partial)
}

// SaveToHandle writes the captured output to w.
func (c *CaptureOutput) SaveToHandle(w io.Writer, partial bool) error {
	h, err := c.merged()
	if err != nil {
		return err
	}
	return h.SaveToHandle(w, partial)
}
