// Package capture schedules and retries captures of approved charges.
package capture

import (
	"context"
	"time"
)

// Message is one pending capture. DeliveryCount is owned by the queue and
// counts receives, including the current one.
type Message struct {
	ID               int64
	ChargeExternalID string
	ReceiptHandle    string
	DeliveryCount    int
}

// Queue is an at-least-once store of capture messages. A received message is
// hidden until it is marked processed, rescheduled or its visibility lapses.
type Queue interface {
	Enqueue(ctx context.Context, chargeExternalID string) error
	Receive(ctx context.Context, max int) ([]Message, error)
	MarkProcessed(ctx context.Context, msg Message) error
	Reschedule(ctx context.Context, msg Message, delay time.Duration) error
}

// RetryPolicy bounds capture attempts with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries for roughly an hour.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 10, BaseDelay: 5 * time.Second, MaxDelay: 15 * time.Minute}

// Exhausted reports whether the attempt numbered attempt was the last allowed.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Backoff is the delay before the attempt after attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
