package capturer

import (
	"io"
	"log/slog"
	"sync"
)

// worker tracks one supervised background goroutine.
type worker struct {
	name string
	// interrupt converts the worker's current blocking operation into a
	// single-shot cancellation (for the drain loop, a wakeup write that
	// unblocks its read). nil means the worker terminates on its own and
	// only needs to be joined.
	interrupt func()
	done      chan struct{}
}

func (w *worker) alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Supervisor starts background workers with a readiness handshake and stops
// them by delivering each live worker's interrupt and waiting for it to
// exit. Stopping a worker that has already exited is not an error.
type Supervisor struct {
	logger  *slog.Logger
	mu      sync.Mutex
	workers []*worker
}

// NewSupervisor creates a Supervisor. logger may be nil to disable logging.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{logger: logger}
}

// Start runs fn on a new goroutine and blocks until fn signals readiness by
// calling the ready callback. fn must call ready exactly once, before its
// first blocking operation; the handshake prevents output races where the
// caller proceeds before the worker is able to observe a stop request.
func (s *Supervisor) Start(name string, interrupt func(), fn func(ready func())) {
	w := &worker{name: name, interrupt: interrupt, done: make(chan struct{})}
	readyCh := make(chan struct{})
	var once sync.Once
	ready := func() { once.Do(func() { close(readyCh) }) }
	go func() {
		defer close(w.done)
		defer ready() // unblock Start even if fn exits without signaling
		fn(ready)
	}()
	<-readyCh
	s.mu.Lock()
	s.workers = append(s.workers, w)
	s.mu.Unlock()
	s.logger.Debug("worker started", "worker", name)
}

// StopAll interrupts every tracked worker still alive and waits for all of
// them to exit. Safe to call when no workers remain.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	workers := s.workers
	s.workers = nil
	s.mu.Unlock()
	for _, w := range workers {
		if w.alive() && w.interrupt != nil {
			w.interrupt()
		}
		<-w.done
		s.logger.Debug("worker stopped", "worker", w.name)
	}
}
