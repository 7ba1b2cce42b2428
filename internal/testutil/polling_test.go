package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollSucceedsOnceConditionHolds(t *testing.T) {
	var n atomic.Int32
	err := Poll(context.Background(), func() bool {
		return n.Add(1) >= 3
	}, time.Second, time.Millisecond)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
}

func TestPollTimesOut(t *testing.T) {
	err := Poll(context.Background(), func() bool { return false },
		20*time.Millisecond, 5*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestPollRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Poll(ctx, func() bool { return false }, time.Second, time.Millisecond)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
