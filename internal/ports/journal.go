package ports

import (
	"context"
	"time"

	"github.com/bnema/forum-agent/internal/domain"
)

type Journal interface {
	Append(ctx context.Context, entry domain.JournalEntry) error
	// Recent returns entries newest first, optionally filtered by kind.
	Recent(ctx context.Context, kind domain.JournalKind, limit int) ([]domain.JournalEntry, error)
	ThreadIDsSince(ctx context.Context, since time.Time) ([]int64, error)
	Len(ctx context.Context) (int, error)
}
