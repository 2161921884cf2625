package signaling

import (
	"errors"
	"fmt"
	"time"
)

// Backoff is the reconnect schedule of the signaling channel. Attempt n
// waits BaseDelay*2^(n-1) for at most MaxAttempts attempts. MaxDelay caps
// Delay for attempts past MaxAttempts; Validate keeps it from cutting any
// scheduled attempt short.
type Backoff struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// Validate rejects schedules where the cap would cut an attempt short of
// BaseDelay*2^(n-1).
func (b Backoff) Validate() error {
	if b.BaseDelay <= 0 || b.MaxAttempts < 1 {
		return errors.New("backoff needs a positive base delay and at least one attempt")
	}
	if b.MaxAttempts > 31 {
		return fmt.Errorf("backoff allows at most 31 attempts, got %d", b.MaxAttempts)
	}
	if last := b.BaseDelay << (b.MaxAttempts - 1); last <= 0 || b.MaxDelay < last {
		return fmt.Errorf("backoff max delay %s is below the last attempt's delay %s", b.MaxDelay, last)
	}
	return nil
}

// Delay returns the wait before the given 1-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		return b.MaxDelay
	}
	d := b.BaseDelay << shift
	if d <= 0 || d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}
