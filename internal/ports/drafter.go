package ports

import (
	"context"

	"github.com/bnema/forum-agent/internal/domain"
)

type ReplyDraftRequest struct {
	Event      domain.Event
	ThreadText string
	Purpose    string
}

type ReplyDraft struct {
	ShouldRespond bool   `json:"should_reply"`
	Text          string `json:"content"`
	Diary         string `json:"diary"`
}

type BrowseRequest struct {
	Listing       string
	SkipThreadIDs []int64
}

type BrowseChoice struct {
	Action      string `json:"action"`
	ThreadID    *int64 `json:"thread_id"`
	ThreadTitle string `json:"thread_title"`
	Diary       string `json:"diary"`
}

const BrowseActionReply = "reply_thread"

type ThreadDraftRequest struct {
	Categories    []string
	RecentContext string
}

type ThreadDraft struct {
	ShouldPost bool   `json:"should_post"`
	Category   string `json:"category"`
	Title      string `json:"title"`
	Body       string `json:"content"`
	Reason     string `json:"reason"`
}

// Drafter decides whether and what to write. Implementations bound every
// call with a timeout and report it as domain.ErrDraftTimeout.
type Drafter interface {
	DraftReply(ctx context.Context, req ReplyDraftRequest) (ReplyDraft, error)
	ChooseThread(ctx context.Context, req BrowseRequest) (BrowseChoice, error)
	DraftThread(ctx context.Context, req ThreadDraftRequest) (ThreadDraft, error)
}
