package ports

import (
	"context"

	"github.com/bnema/forum-agent/internal/domain"
)

// EventHandler receives decoded events one at a time, in arrival order.
type EventHandler func(ctx context.Context, event domain.Event)

// EventStream is one long-lived inbound connection. Stream blocks until the
// connection ends and reports whether any event was delivered.
type EventStream interface {
	Stream(ctx context.Context, handle EventHandler) (delivered int, err error)
	Close() error
}

// StreamObserver is notified about connection state transitions.
type StreamObserver interface {
	StreamConnected()
	StreamDisconnected(reason string)
	RecordError(msg string)
}
