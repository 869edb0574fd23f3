package domain

import (
	"strconv"
	"time"
)

type JournalKind string

const (
	JournalMentioned JournalKind = "mentioned"
	JournalReplied   JournalKind = "replied"
	JournalNewThread JournalKind = "new_thread"
	JournalFollowed  JournalKind = "followed"
	JournalAutoReply JournalKind = "auto_reply"
	JournalBrowsed   JournalKind = "browsed"
	JournalCreated   JournalKind = "created"
	JournalDiary     JournalKind = "diary"
)

type JournalEntry struct {
	Kind      JournalKind
	Content   string
	Timestamp time.Time
	Metadata  map[string]string
}

// ThreadID returns the thread the entry refers to, if any.
func (e JournalEntry) ThreadID() (int64, bool) {
	raw, ok := e.Metadata["thread_id"]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
