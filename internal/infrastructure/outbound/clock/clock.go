package clock

import (
	"context"
	"time"

	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
)

var _ ports.Clock = (*SystemClock)(nil)

// SystemClock implements ports.Clock on top of the wall clock. Expectation
// lifetimes are compared in UTC so that EndDate values decoded from epoch
// milliseconds and Created stamps share a location.
type SystemClock struct {
	now func() time.Time
}

// New creates a SystemClock.
func New() *SystemClock {
	return &SystemClock{now: time.Now}
}

func (c *SystemClock) Now() time.Time { return c.now().UTC() }

// SleepContext waits for d. A non-positive d returns immediately, reporting
// ctx.Err() if the context is already done.
func (c *SystemClock) SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
