package out

import (
	"context"

	"taskmesh/internal/modules/tasks/domain"
	"taskmesh/internal/platform/wire"
)

// LogStore persists the serialized operation log. Load on an empty store
// returns a zero snapshot and no error.
type LogStore interface {
	Load(ctx context.Context) (domain.Snapshot, error)
	Save(ctx context.Context, snap domain.Snapshot) error
}

// TaskProjector mirrors the materialized view into a queryable store. The
// projection is derived state and is rebuilt wholesale after every change.
type TaskProjector interface {
	Replace(ctx context.Context, tasks []domain.Task) error
}

type ActivityStore interface {
	Append(ctx context.Context, event domain.ActivityEvent) error
	Tail(ctx context.Context, limit int) ([]domain.ActivityEvent, error)
}

// Network is the outbound half of the peer fabric as the sync coordinator
// sees it: fan a wire envelope out to every open session, and wait for a
// specific session's channel to come up before pushing a snapshot at it.
type Network interface {
	Broadcast(ctx context.Context, env wire.Envelope) error
	AwaitChannel(ctx context.Context, sessionID string) error
}
