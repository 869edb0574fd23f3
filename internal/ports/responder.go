package ports

import (
	"context"

	"github.com/bnema/forum-agent/internal/domain"
)

// Responder performs the units of work the supervisor schedules.
type Responder interface {
	HandleNotification(ctx context.Context, event domain.Event) error
	RunBrowseCycle(ctx context.Context) error
	RunPostCycle(ctx context.Context, force bool) (domain.PostResult, error)
}

// Spawner launches tracked background jobs.
type Spawner interface {
	Spawn(name string, kind domain.TaskKind, fn func(ctx context.Context) error) (string, error)
}
