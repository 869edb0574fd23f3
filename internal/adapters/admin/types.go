package admin

import (
	"time"

	"github.com/bnema/forum-agent/internal/domain"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
	Version string `json:"version,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// TriggerResponse answers a manual trigger. Done is only set when the caller
// asked to wait; Result only for post cycles.
type TriggerResponse struct {
	JobID  string             `json:"job_id"`
	Done   bool               `json:"done"`
	Error  string             `json:"error,omitempty"`
	Result *domain.PostResult `json:"result,omitempty"`
}

type JournalEntry struct {
	Kind      string            `json:"kind"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func NewJournalEntry(entry domain.JournalEntry) JournalEntry {
	return JournalEntry{
		Kind:      string(entry.Kind),
		Content:   entry.Content,
		Timestamp: entry.Timestamp,
		Metadata:  entry.Metadata,
	}
}

func (e JournalEntry) Domain() domain.JournalEntry {
	return domain.JournalEntry{
		Kind:      domain.JournalKind(e.Kind),
		Content:   e.Content,
		Timestamp: e.Timestamp,
		Metadata:  e.Metadata,
	}
}
