package application

import (
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const defaultReconnectInitial = 5 * time.Second

// reconnectBounds fills in a missing initial delay and keeps the cap at or
// above it.
func reconnectBounds(initial, limit time.Duration) (time.Duration, time.Duration) {
	if initial <= 0 {
		initial = defaultReconnectInitial
	}
	return initial, max(limit, initial)
}

// newReconnectPolicy retries stream sessions that delivered no events,
// doubling the delay from initial up to limit, without a retry cap. A session
// that delivered events ends the run, so the next run starts again at
// initial.
func newReconnectPolicy(initial, limit time.Duration, onScheduled func(delay time.Duration)) retrypolicy.RetryPolicy[int] {
	initial, limit = reconnectBounds(initial, limit)

	builder := retrypolicy.NewBuilder[int]().
		HandleIf(func(delivered int, _ error) bool {
			return delivered == 0
		}).
		WithBackoff(initial, limit).
		WithMaxRetries(-1)
	if onScheduled != nil {
		builder = builder.OnRetryScheduled(func(event failsafe.ExecutionScheduledEvent[int]) {
			onScheduled(event.Delay)
		})
	}
	return builder.Build()
}
