package scheduler

import (
	"context"

	"assetflow/internal/domain"
)

// Handler does the work of one task type and returns a JSON-serializable
// summary.
type Handler interface {
	Handle(ctx context.Context, cfg domain.Configuration) (any, error)
}

type HandlerFunc func(ctx context.Context, cfg domain.Configuration) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, cfg domain.Configuration) (any, error) {
	return f(ctx, cfg)
}

// ExecutionRecorder persists finalized executions. It is implemented by the
// orchestration layer so the registry never depends on it directly.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, exec domain.Execution) error
}
