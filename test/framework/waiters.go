package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/quarterdeck/captain/pkg/client"
	"github.com/quarterdeck/captain/pkg/types"
)

// Waiter polls conditions with a timeout.
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a Waiter with the given timeout and polling interval.
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{timeout: timeout, interval: interval}
}

// DefaultWaiter returns a waiter sized for in-process captains
// (5s timeout, 25ms interval).
func DefaultWaiter() *Waiter {
	return NewWaiter(5*time.Second, 25*time.Millisecond)
}

// WaitFor waits for the condition to become true.
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if condition() {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForChoreStatus waits until the chore reaches the given status.
func (w *Waiter) WaitForChoreStatus(ctx context.Context, c *client.Client, id int64, status types.ChoreStatus) error {
	return w.WaitFor(ctx, func() bool {
		chore, err := c.GetChore(id)
		return err == nil && chore.Status == status
	}, fmt.Sprintf("chore %d to become %s", id, status))
}

// WaitForSailorStatus waits until the named sailor reports the given
// derived status.
func (w *Waiter) WaitForSailorStatus(ctx context.Context, c *client.Client, name string, status types.SailorStatus) error {
	return w.WaitFor(ctx, func() bool {
		fleet, err := c.ListCrew()
		if err != nil {
			return false
		}
		for _, s := range fleet {
			if s.Name == name {
				return s.Status == status
			}
		}
		return false
	}, fmt.Sprintf("sailor %s to become %s", name, status))
}
