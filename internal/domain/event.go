package domain

import "time"

type EventType string

const (
	EventConnected EventType = "connected"
	EventPong      EventType = "pong"
	EventReply     EventType = "reply"
	EventSubReply  EventType = "sub_reply"
	EventMention   EventType = "mention"
	EventNewThread EventType = "new_thread"
	EventFollow    EventType = "follow"
)

// NormalizeEventType folds the aliases the stream uses onto canonical types.
func NormalizeEventType(raw string) EventType {
	switch raw {
	case "heartbeat":
		return EventPong
	case "new_post":
		return EventNewThread
	default:
		return EventType(raw)
	}
}

// IsNotification reports whether the event type goes through the response gates.
func (t EventType) IsNotification() bool {
	switch t {
	case EventReply, EventSubReply, EventMention, EventNewThread:
		return true
	default:
		return false
	}
}

type Event struct {
	Type EventType
	// Name is the SSE "event:" field, empty when the frame did not carry one.
	Name         string
	ThreadID     *int64
	ReplyID      *int64
	FromUserID   *int64
	UserID       *int64
	ThreadTitle  string
	FromUsername string
	Author       string
	Content      string
	Message      string
	ReceivedAt   time.Time
}

// Label is the event name used in diagnostics.
func (e Event) Label() string {
	if e.Name != "" {
		return e.Name
	}
	if e.Type != "" {
		return string(e.Type)
	}
	return "message"
}

// ReplyTarget is where an outgoing reply lands: a sub-reply under ReplyID when
// set, otherwise a new floor in ThreadID.
type ReplyTarget struct {
	ThreadID int64
	ReplyID  *int64
}

func Int64(v int64) *int64 {
	return &v
}
