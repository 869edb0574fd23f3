package ports

import (
	"context"

	"github.com/bnema/forum-agent/internal/domain"
)

// ForumClient is the REST boundary. Upstream failures surface as
// *domain.APIError.
type ForumClient interface {
	ReadContent(ctx context.Context, threadID int64, page int) (string, error)
	ListContent(ctx context.Context, filter domain.ListFilter) ([]domain.ThreadRef, error)
	BrowseContent(ctx context.Context, filter domain.ListFilter) (string, error)
	PublishReply(ctx context.Context, target domain.ReplyTarget, text string) (domain.Published, error)
	PublishThread(ctx context.Context, title, body, category string) (domain.Published, error)
	TokenConfigured(ctx context.Context) bool
	Close() error
}
