package capturer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
)

// chunk is one message on the merge queue: a run of bytes drained from the
// pseudo terminal identified by token. Empty data is the end-of-source
// sentinel; the queue is shared between sources, so end of output has to be
// signaled in-band rather than by closing the queue.
type chunk struct {
	token string
	data  []byte
}

// finalDrainWindow is how long the drain worker waits for further output
// after the stop request, before concluding that the pseudo terminal has
// gone quiet.
const finalDrainWindow = 2 * time.Millisecond

// wakeupByte is written to the slave side by the stop request to unblock the
// drain worker's read. Pseudo terminal masters do not reliably honor read
// deadlines, so the cancellation is delivered in-band and stripped back out
// of the captured output.
const wakeupByte = 0x00

type ptyState int

const (
	ptyIdle ptyState = iota
	ptyCapturing
	ptyFinished
)

// PseudoTerminal owns one pseudo terminal pair and the supervised drain
// worker that copies everything written to the slave side into an anonymous
// backing file, optionally relaying it verbatim to a real descriptor (merged
// capture) or enqueueing it tagged with a source token for the merge stage
// (split capture).
//
// The lifecycle is Idle -> Capturing -> Finished; Finished is terminal, but
// the captured output stays readable from the backing store.
type PseudoTerminal struct {
	chunkSize        int
	terminationDelay time.Duration
	relayFd          int // -1 disables the live relay
	queue            chan<- chunk
	token            string
	logger           *slog.Logger
	supervisor       *Supervisor

	mu      sync.Mutex
	state   ptyState
	master  *os.File
	slave   *os.File
	store   *backingStore
	streams []*Stream

	stopping atomic.Bool // set by the stop request before the wakeup write
	wokeUp   bool        // drain-worker-owned: wakeup byte already consumed
}

func newPseudoTerminal(chunkSize int, terminationDelay time.Duration, relayFd int, queue chan<- chunk, token string, logger *slog.Logger) (*PseudoTerminal, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("allocate pseudo terminal: %w", err)
	}
	store, err := newBackingStore()
	if err != nil {
		_ = master.Close()
		_ = slave.Close()
		return nil, err
	}
	return &PseudoTerminal{
		chunkSize:        chunkSize,
		terminationDelay: terminationDelay,
		relayFd:          relayFd,
		queue:            queue,
		token:            token,
		logger:           logger,
		supervisor:       NewSupervisor(logger),
		master:           master,
		slave:            slave,
		store:            store,
	}, nil
}

// attach redirects the stream onto the slave side of the pseudo terminal so
// its output is drained by this PseudoTerminal. Streams must be attached
// before startCapture; they are restored by finishCapture.
func (p *PseudoTerminal) attach(s *Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != ptyIdle {
		return fmt.Errorf("attach stream: %w", ErrAlreadyCapturing)
	}
	if err := s.Redirect(int(p.slave.Fd())); err != nil {
		return err
	}
	p.streams = append(p.streams, s)
	return nil
}

// startCapture spawns the drain worker and blocks until it is about to issue
// its first read. Without the handshake, output written immediately after
// startCapture could arrive before the worker is able to observe a stop
// request, hanging the shutdown sequence.
func (p *PseudoTerminal) startCapture() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != ptyIdle {
		return fmt.Errorf("pseudo terminal: %w", ErrAlreadyCapturing)
	}
	master, slave := p.master, p.slave
	interrupt := func() {
		p.stopping.Store(true)
		// Best effort; the wakeup write below is what guarantees the
		// blocking read returns.
		if err := master.SetReadDeadline(time.Now()); err != nil {
			p.logger.Debug("cancel drain read", "error", err)
		}
		if err := writeFd(int(slave.Fd()), []byte{wakeupByte}); err != nil {
			p.logger.Warn("wake drain worker", "error", err)
		}
	}
	p.supervisor.Start("pty-drain", interrupt, func(ready func()) {
		p.drainLoop(master, ready)
	})
	p.state = ptyCapturing
	return nil
}

// finishCapture stops the drain worker, closes the pseudo terminal pair and
// restores every attached stream. Idempotent; the backing store remains
// readable afterwards.
func (p *PseudoTerminal) finishCapture() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != ptyCapturing {
		return nil
	}
	// Give output still in flight through the kernel buffer a chance to
	// arrive before the stop request; the drain worker additionally runs a
	// final drain pass once its blocking read has been cancelled.
	time.Sleep(p.terminationDelay)
	p.supervisor.StopAll()

	var firstErr error
	for _, f := range []*os.File{p.master, p.slave} {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close pseudo terminal: %w", err)
		}
	}
	p.master, p.slave = nil, nil
	for _, s := range p.streams {
		if err := s.Restore(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.streams = nil
	p.state = ptyFinished
	return firstErr
}

// drainLoop runs on the supervised worker: blocking reads from the master
// side, each forwarded to the backing store and to the relay/merge sink. The
// loop ends when the read is unblocked by the stop request's wakeup byte or
// expired deadline, whichever lands first (or fails, e.g. once every slave
// descriptor is gone).
func (p *PseudoTerminal) drainLoop(master *os.File, ready func()) {
	if p.queue != nil {
		defer func() { p.queue <- chunk{token: p.token} }()
	}
	buf := make([]byte, p.chunkSize)
	ready()
	for {
		n, err := master.Read(buf)
		if n > 0 {
			data, stopped := p.stripWakeup(buf[:n])
			if len(data) > 0 {
				p.forward(data)
			}
			if stopped {
				p.finalDrain(master, buf)
				return
			}
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				p.finalDrain(master, buf)
			} else if !errors.Is(err, io.EOF) {
				p.logger.Debug("drain loop read ended", "error", err)
			}
			return
		}
		if n == 0 {
			// Reads on the master normally block; yield instead of spinning
			// if this platform ever returns an empty read.
			runtime.Gosched()
		}
	}
}

// stripWakeup removes the stop request's wakeup byte from a drained chunk,
// reporting whether it was found. Only a pending stop request makes the byte
// meaningful, so output drained before one is never altered.
func (p *PseudoTerminal) stripWakeup(data []byte) ([]byte, bool) {
	if p.wokeUp || !p.stopping.Load() {
		return data, false
	}
	i := bytes.IndexByte(data, wakeupByte)
	if i < 0 {
		return data, false
	}
	p.wokeUp = true
	copy(data[i:], data[i+1:])
	return data[:len(data)-1], true
}

// finalDrain copies output still buffered on the master side after the stop
// request, so output emitted just before the stop is not truncated. The pass
// is bounded: it ends once the pseudo terminal stays quiet for a full
// finalDrainWindow, or when the overall budget runs out against a writer
// that never goes quiet (that tail is dropped, like the rest of whatever the
// writer emits after the stop).
func (p *PseudoTerminal) finalDrain(master *os.File, buf []byte) {
	// Deadlines are unreliable on pty masters (and the stop request left an
	// expired one behind); clear it and only read when data is known to be
	// pending, so no read here can block.
	_ = master.SetReadDeadline(time.Time{})
	budget := 4 * p.terminationDelay
	if floor := 10 * finalDrainWindow; budget < floor {
		budget = floor
	}
	stopAt := time.Now().Add(budget)
	for {
		if pendingOutput(master) <= 0 {
			time.Sleep(finalDrainWindow)
			if pendingOutput(master) <= 0 {
				return
			}
		}
		if !time.Now().Before(stopAt) {
			return
		}
		n, err := master.Read(buf)
		if n > 0 {
			data, _ := p.stripWakeup(buf[:n])
			if len(data) > 0 {
				p.forward(data)
			}
		}
		if err != nil {
			return
		}
	}
}

// pendingOutput reports how many drained bytes the kernel still holds on the
// master side, without blocking or disturbing the file's deadline.
func pendingOutput(master *os.File) int {
	conn, err := master.SyscallConn()
	if err != nil {
		return 0
	}
	var n int
	_ = conn.Control(func(fd uintptr) { n = pendingFd(int(fd)) })
	return n
}

// forward fans one drained chunk out to the backing store (always), the
// relay descriptor (merged capture) and the merge queue (split capture).
func (p *PseudoTerminal) forward(data []byte) {
	if _, err := p.store.w.Write(data); err != nil {
		p.logger.Warn("write to backing store", "error", err)
	}
	if p.relayFd >= 0 {
		if err := writeFd(p.relayFd, data); err != nil {
			p.logger.Warn("relay captured output", "error", err)
		}
	}
	if p.queue != nil {
		owned := make([]byte, len(data))
		copy(owned, data)
		p.queue <- chunk{token: p.token, data: owned}
	}
}

// handle returns a seekable read handle over the backing store, positioned
// at the start. With partial false the capture is finished first, so the
// handle covers the complete output; with partial true the handle covers
// whatever has accumulated so far and may end mid-line or mid-character.
// The returned handle is shared: concurrent readers must not interleave.
func (p *PseudoTerminal) handle(partial bool) (io.ReadSeeker, error) {
	if !partial {
		if err := p.finishCapture(); err != nil {
			return nil, err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store == nil {
		return nil, ErrCaptureNotStarted
	}
	if _, err := p.store.r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind backing store: %w", err)
	}
	return p.store.r, nil
}

// bytes reads the captured output from the backing store. See handle for the
// meaning of partial.
func (p *PseudoTerminal) bytes(partial bool) ([]byte, error) {
	if !partial {
		if err := p.finishCapture(); err != nil {
			return nil, err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store == nil {
		return nil, ErrCaptureNotStarted
	}
	if _, err := p.store.r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind backing store: %w", err)
	}
	data, err := io.ReadAll(p.store.r)
	if err != nil {
		return nil, fmt.Errorf("read backing store: %w", err)
	}
	return data, nil
}

// discard tears down a pseudo terminal whose capture never started,
// restoring any streams attached so far and releasing every resource.
func (p *PseudoTerminal) discard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.master != nil {
		_ = p.master.Close()
		p.master = nil
	}
	if p.slave != nil {
		_ = p.slave.Close()
		p.slave = nil
	}
	for _, s := range p.streams {
		_ = s.Restore()
	}
	p.streams = nil
	if p.store != nil {
		_ = p.store.Close()
		p.store = nil
	}
	p.state = ptyFinished
}

// closeStore releases the backing store handles. Only used when the session
// discards a finished pseudo terminal on re-capture.
func (p *PseudoTerminal) closeStore() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store == nil {
		return nil
	}
	err := p.store.Close()
	p.store = nil
	return err
}
