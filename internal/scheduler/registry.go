package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"assetflow/internal/clock"
	"assetflow/internal/domain"
)

var (
	ErrAlreadyRunning = errors.New("task run already in flight")
	ErrStopped        = errors.New("scheduler stopped")
)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

type Option func(*Registry)

func WithClock(c clock.Clock) Option { return func(r *Registry) { r.clock = c } }

// WithLocation evaluates cron expressions in loc instead of the local zone.
func WithLocation(loc *time.Location) Option {
	return func(r *Registry) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithExecutionTimeout bounds each handler run. Zero means no limit.
func WithExecutionTimeout(d time.Duration) Option { return func(r *Registry) { r.timeout = d } }

type entry struct {
	task  domain.Task
	sched cron.Schedule
	next  time.Time
	timer clock.Timer
}

// Registry owns the live timers of registered tasks and runs their handlers.
//
// Each task has its own timer. Runs of the same task are serialized by an
// in-flight flag: a tick that lands while the previous run is still going is
// skipped. Runs of different tasks proceed concurrently.
type Registry struct {
	recorder ExecutionRecorder
	clock    clock.Clock
	loc      *time.Location
	timeout  time.Duration

	hmu      sync.RWMutex
	handlers map[domain.TaskType]Handler

	mu      sync.Mutex
	entries map[string]*entry
	stopped bool
	wg      sync.WaitGroup

	imu      sync.Mutex
	inflight map[string]struct{}
}

func NewRegistry(recorder ExecutionRecorder, handlers map[domain.TaskType]Handler, opts ...Option) *Registry {
	r := &Registry{
		recorder: recorder,
		clock:    clock.Real{},
		loc:      time.Local,
		handlers: make(map[domain.TaskType]Handler, len(handlers)),
		entries:  make(map[string]*entry),
		inflight: make(map[string]struct{}),
	}
	for t, h := range handlers {
		r.handlers[t] = h
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle maps a task type to h, replacing any previous handler.
func (r *Registry) Handle(t domain.TaskType, h Handler) {
	r.hmu.Lock()
	r.handlers[t] = h
	r.hmu.Unlock()
}

func (r *Registry) handler(t domain.TaskType) (Handler, bool) {
	r.hmu.RLock()
	defer r.hmu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// RegisterTask arms a timer for task, replacing any timer already armed for
// its id. It fails with domain.ErrInvalidSchedule if the cron expression does
// not parse.
func (r *Registry) RegisterTask(task domain.Task) error {
	sched, err := ParseSchedule(task.CronExpression)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	if old, ok := r.entries[task.ID]; ok {
		old.stop()
	}
	e := &entry{task: task, sched: sched}
	r.entries[task.ID] = e
	r.armLocked(e)

	log.Info().
		Str("task_id", task.ID).
		Str("task_name", task.Name).
		Str("cron", task.CronExpression).
		Time("next_run", e.next).
		Msg("task registered")
	return nil
}

// UnregisterTask cancels future ticks of id. A run already in flight is left
// to finish. Unknown ids are ignored.
func (r *Registry) UnregisterTask(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		e.stop()
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if ok {
		log.Info().Str("task_id", id).Msg("task unregistered")
	}
}

func (r *Registry) IsRegistered(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// NextRun reports when id fires next.
func (r *Registry) NextRun(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.next.IsZero() {
		return time.Time{}, false
	}
	return e.next, true
}

// Registered returns the ids with an armed timer, sorted.
func (r *Registry) Registered() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// ExecuteTask runs task once outside its schedule. Handler failures are
// recorded in the returned execution, not returned as errors. The error is
// ErrAlreadyRunning when a run of the same task is in flight, or a recorder
// failure.
func (r *Registry) ExecuteTask(ctx context.Context, task domain.Task) (domain.Execution, error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return domain.Execution{}, ErrStopped
	}
	r.wg.Add(1)
	r.mu.Unlock()
	defer r.wg.Done()

	return r.execute(ctx, task, TriggerManual)
}

// Stop disarms every timer and waits for in-flight runs or ctx.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	for id, e := range r.entries {
		e.stop()
		delete(r.entries, id)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) stop() {
	if e.timer != nil {
		e.timer.Stop()
	}
}

func (r *Registry) armLocked(e *entry) {
	now := r.clock.Now()
	e.next = e.sched.Next(now.In(r.loc))
	if e.next.IsZero() {
		e.timer = nil
		log.Warn().Str("task_id", e.task.ID).Str("cron", e.task.CronExpression).Msg("schedule never fires")
		return
	}
	e.timer = r.clock.AfterFunc(e.next.Sub(now), func() { r.tick(e) })
}

func (r *Registry) tick(e *entry) {
	r.mu.Lock()
	if r.stopped || r.entries[e.task.ID] != e {
		// unregistered or replaced after the timer fired
		r.mu.Unlock()
		return
	}
	// Arm the next tick before running so an overrun is visible to the guard.
	r.armLocked(e)
	task := e.task
	r.wg.Add(1)
	r.mu.Unlock()
	defer r.wg.Done()

	if _, err := r.execute(context.Background(), task, TriggerSchedule); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		log.Error().Err(err).Str("task_id", task.ID).Msg("scheduled run not recorded")
	}
}

func (r *Registry) acquire(id string) bool {
	r.imu.Lock()
	defer r.imu.Unlock()
	if _, busy := r.inflight[id]; busy {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *Registry) release(id string) {
	r.imu.Lock()
	delete(r.inflight, id)
	r.imu.Unlock()
}

func (r *Registry) execute(ctx context.Context, task domain.Task, trigger string) (domain.Execution, error) {
	if !r.acquire(task.ID) {
		log.Warn().
			Str("task_id", task.ID).
			Str("task_name", task.Name).
			Str("trigger", trigger).
			Msg("previous run still in flight, skipping")
		return domain.Execution{}, ErrAlreadyRunning
	}
	defer r.release(task.ID)

	started := r.clock.Now()
	output, runErr := r.run(ctx, task)
	completed := r.clock.Now()

	exec := domain.Execution{
		ID:          "exe_" + uuid.NewString(),
		TaskID:      task.ID,
		StartedAt:   started,
		CompletedAt: &completed,
		CreatedAt:   completed,
		Metadata: map[string]any{
			"durationMs": completed.Sub(started).Milliseconds(),
			"taskType":   string(task.Type),
			"trigger":    trigger,
		},
	}
	if runErr == nil && output != nil {
		b, err := json.Marshal(output)
		if err != nil {
			runErr = fmt.Errorf("%w: encode output: %v", domain.ErrHandlerFailed, err)
		} else {
			exec.Output = string(b)
		}
	}
	if runErr != nil {
		exec.Status = domain.ExecutionFailed
		exec.ErrorMessage = runErr.Error()
		log.Error().
			Err(runErr).
			Str("task_id", task.ID).
			Str("task_type", string(task.Type)).
			Str("trigger", trigger).
			Dur("took", completed.Sub(started)).
			Msg("task run failed")
	} else {
		exec.Status = domain.ExecutionSuccess
		log.Info().
			Str("task_id", task.ID).
			Str("task_type", string(task.Type)).
			Str("trigger", trigger).
			Dur("took", completed.Sub(started)).
			Msg("task run succeeded")
	}

	if err := r.recorder.RecordExecution(context.WithoutCancel(ctx), exec); err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Str("execution_id", exec.ID).Msg("failed to record execution")
		return exec, fmt.Errorf("record execution: %w", err)
	}
	return exec, nil
}

func (r *Registry) run(ctx context.Context, task domain.Task) (out any, err error) {
	h, ok := r.handler(task.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTaskType, task.Type)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = fmt.Errorf("%w: panic: %v", domain.ErrHandlerFailed, p)
		}
	}()
	return h.Handle(ctx, task.Configuration)
}
