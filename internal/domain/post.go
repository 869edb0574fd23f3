package domain

type PostStatus string

const (
	PostStatusPosted  PostStatus = "posted"
	PostStatusSkipped PostStatus = "skipped"
	PostStatusError   PostStatus = "error"
)

// PostResult describes the outcome of one proactive post cycle.
type PostResult struct {
	Status    PostStatus `json:"status"`
	Reason    string     `json:"reason"`
	ContentID *int64     `json:"content_id,omitempty"`
	Title     string     `json:"title,omitempty"`
	Category  string     `json:"category,omitempty"`
	DryRun    bool       `json:"dry_run,omitempty"`
}

func Skipped(reason string) PostResult {
	return PostResult{Status: PostStatusSkipped, Reason: reason}
}

func Failed(reason string) PostResult {
	return PostResult{Status: PostStatusError, Reason: reason}
}
