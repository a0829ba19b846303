package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"assetflow/internal/domain"
)

type ExecutionStore interface {
	RecordExecution(ctx context.Context, e domain.Execution) error
	SetNextExecution(ctx context.Context, id string, next *time.Time) error
}

// Recorder persists the executions handed over by the scheduler registry.
type Recorder struct {
	store ExecutionStore

	mu   sync.RWMutex
	next func(id string) (time.Time, bool)
}

func NewRecorder(store ExecutionStore) *Recorder {
	return &Recorder{store: store}
}

// TrackNextRun makes the recorder store the task's upcoming fire time, as
// reported by next, after every execution.
func (r *Recorder) TrackNextRun(next func(id string) (time.Time, bool)) {
	r.mu.Lock()
	r.next = next
	r.mu.Unlock()
}

func (r *Recorder) RecordExecution(ctx context.Context, e domain.Execution) error {
	if err := r.store.RecordExecution(ctx, e); err != nil {
		return err
	}
	r.mu.RLock()
	next := r.next
	r.mu.RUnlock()
	if next == nil {
		return nil
	}
	if at, ok := next(e.TaskID); ok {
		if err := r.store.SetNextExecution(ctx, e.TaskID, &at); err != nil {
			log.Warn().Err(err).Str("task_id", e.TaskID).Msg("failed to persist next execution time")
		}
	}
	return nil
}
