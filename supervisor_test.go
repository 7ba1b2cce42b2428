package capturer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSupervisorReadyHandshake(t *testing.T) {
	s := NewSupervisor(nil)
	var sawSetup atomic.Bool
	s.Start("worker", nil, func(ready func()) {
		sawSetup.Store(true)
		ready()
	})
	// Start must not return before the worker signaled readiness.
	require.True(t, sawSetup.Load())
	s.StopAll()
}

func TestSupervisorStopAllInterruptsAndJoins(t *testing.T) {
	s := NewSupervisor(nil)
	stop := make(chan struct{})
	var stopOnce sync.Once
	exited := make(chan struct{})
	s.Start("worker", func() { stopOnce.Do(func() { close(stop) }) }, func(ready func()) {
		defer close(exited)
		ready()
		<-stop
	})

	done := make(chan struct{})
	go func() {
		s.StopAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("StopAll did not return")
	}
	select {
	case <-exited:
	default:
		t.Fatal("StopAll returned before the worker exited")
	}

	// Safe to call with no workers remaining.
	s.StopAll()
}

func TestSupervisorStopAllWithExitedWorker(t *testing.T) {
	s := NewSupervisor(nil)
	exited := make(chan struct{})
	var interrupts atomic.Int32
	s.Start("worker", func() { interrupts.Add(1) }, func(ready func()) {
		defer close(exited)
		ready()
	})
	<-exited
	// Worker already gone; StopAll must treat it as stopped.
	s.StopAll()
	require.LessOrEqual(t, interrupts.Load(), int32(1))
}

func TestSupervisorStartWithoutExplicitReady(t *testing.T) {
	// A worker that returns without calling ready must still unblock Start.
	s := NewSupervisor(nil)
	done := make(chan struct{})
	go func() {
		s.Start("worker", nil, func(ready func()) {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return for a worker that exited without signaling readiness")
	}
	s.StopAll()
}
