package domain

import "time"

// Diagnostics is a read-only snapshot of the service state.
type Diagnostics struct {
	Connected            bool       `json:"connected"`
	LastError            string     `json:"last_error"`
	SelfID               *int64     `json:"self_id,omitempty"`
	NextBrowseAt         *time.Time `json:"next_browse_at,omitempty"`
	NextPostAt           *time.Time `json:"next_post_at,omitempty"`
	ConnectAttempts      int        `json:"connect_attempts"`
	ConnectSuccesses     int        `json:"connect_successes"`
	Reconnects           int        `json:"reconnects"`
	LastEventType        string     `json:"last_event_type"`
	LastEventAt          *time.Time `json:"last_event_at,omitempty"`
	LastDisconnectReason string     `json:"last_disconnect_reason"`
	LastDisconnectAt     *time.Time `json:"last_disconnect_at,omitempty"`
	Tasks                []TaskInfo `json:"tasks"`
	JournalItems         int        `json:"journal_items"`
	PostingEnabled       bool       `json:"posting_enabled"`
}

type TaskKind string

const (
	TaskKindLoop TaskKind = "loop"
	TaskKindJob  TaskKind = "job"
)

type TaskInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      TaskKind  `json:"kind"`
	StartedAt time.Time `json:"started_at"`
}

// HasTask reports whether a task with the given name is still running.
func (d Diagnostics) HasTask(name string) bool {
	for _, task := range d.Tasks {
		if task.Name == name {
			return true
		}
	}
	return false
}
