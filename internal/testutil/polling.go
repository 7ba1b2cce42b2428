// Package testutil provides polling utilities for testing asynchronous
// capture behavior with consistent timeouts, instead of hardcoded sleeps
// scattered throughout tests.
package testutil

import (
	"context"
	"fmt"
	"time"
)

// Poll repeatedly checks a condition until it becomes true or timeout
// expires. Returns an error if timeout expires before condition becomes true.
func Poll(ctx context.Context, condition func() bool, timeout time.Duration, interval time.Duration) error {
	start := time.Now()
	for {
		if condition() {
			return nil
		}

		if time.Since(start) >= timeout {
			return fmt.Errorf("timeout waiting for condition (threshold: %v)", timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
			// Continue polling
		}
	}
}
