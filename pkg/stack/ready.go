package stack

import (
	"context"
	"fmt"
	"net"
	"time"
)

// readyDialTimeout bounds each individual connection probe.
const readyDialTimeout = time.Second

// WaitReady polls addr with TCP dials until a connection succeeds or the
// deadline passes. This is the opt-in strengthening of the coordinator's
// grace-delay-only start: the baseline behavior never verifies the
// coordinator actually came up.
func WaitReady(ctx context.Context, addr string, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		d := net.Dialer{Timeout: readyDialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("coordinator not reachable at %s after %s: %w", addr, timeout, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
