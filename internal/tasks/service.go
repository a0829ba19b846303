// Package tasks keeps persisted task definitions and the scheduler's live
// timers consistent with each other.
package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"assetflow/internal/domain"
	"assetflow/internal/scheduler"
)

type Store interface {
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
	ListLiveTasks(ctx context.Context) ([]domain.Task, error)
	UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	ToggleTaskEnabled(ctx context.Context, id string) (domain.Task, error)
	SetNextExecution(ctx context.Context, id string, next *time.Time) error
	DeleteTask(ctx context.Context, id string) error
	ListExecutions(ctx context.Context, taskID string, limit int) ([]domain.Execution, error)
}

// Scheduler is the part of *scheduler.Registry the service drives.
type Scheduler interface {
	RegisterTask(task domain.Task) error
	UnregisterTask(id string)
	NextRun(id string) (time.Time, bool)
	ExecuteTask(ctx context.Context, task domain.Task) (domain.Execution, error)
}

type TaskInput struct {
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	Type           domain.TaskType      `json:"type"`
	Status         domain.TaskStatus    `json:"status"`
	CronExpression string               `json:"cronExpression"`
	Configuration  domain.Configuration `json:"configuration"`
	IsEnabled      *bool                `json:"isEnabled"`
}

// Patch holds the fields of an update. Nil fields are left unchanged.
type Patch struct {
	Name           *string               `json:"name"`
	Description    *string               `json:"description"`
	Type           *domain.TaskType      `json:"type"`
	Status         *domain.TaskStatus    `json:"status"`
	CronExpression *string               `json:"cronExpression"`
	Configuration  *domain.Configuration `json:"configuration"`
	IsEnabled      *bool                 `json:"isEnabled"`
}

type Option func(*Service)

// WithHistoryLimit caps the executions attached by FindAll and FindOne.
// Zero attaches the full history.
func WithHistoryLimit(n int) Option { return func(s *Service) { s.historyLimit = n } }

type Service struct {
	store Store
	sched Scheduler

	historyLimit int

	// mu serializes admin mutations so a row and its timer change together.
	mu sync.Mutex
}

func NewService(store Store, sched Scheduler, opts ...Option) *Service {
	s := &Service{store: store, sched: sched}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms a timer for every persisted live task. Rows whose schedule no
// longer parses are logged and skipped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.store.ListLiveTasks(ctx)
	if err != nil {
		return fmt.Errorf("list live tasks: %w", err)
	}
	armed := 0
	for _, t := range live {
		if err := s.sched.RegisterTask(t); err != nil {
			log.Warn().Err(err).Str("task_id", t.ID).Str("cron", t.CronExpression).Msg("skipping task at startup")
			continue
		}
		s.syncNext(ctx, t.ID)
		armed++
	}
	log.Info().Int("tasks", armed).Int("skipped", len(live)-armed).Msg("scheduler started")
	return nil
}

func (s *Service) Create(ctx context.Context, in TaskInput) (domain.Task, error) {
	t := domain.Task{
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		Type:           in.Type,
		Status:         in.Status,
		CronExpression: strings.TrimSpace(in.CronExpression),
		Configuration:  in.Configuration,
		IsEnabled:      true,
	}
	if t.Status == "" {
		t.Status = domain.TaskActive
	}
	if in.IsEnabled != nil {
		t.IsEnabled = *in.IsEnabled
	}
	if err := validate(t); err != nil {
		return domain.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.store.CreateTask(ctx, t)
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	if err := s.applyLiveness(ctx, created); err != nil {
		return domain.Task{}, err
	}
	log.Info().Str("task_id", created.ID).Str("task_type", string(created.Type)).Msg("task created")
	return s.overlay(created), nil
}

func (s *Service) FindAll(ctx context.Context) ([]domain.Task, error) {
	all, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]domain.Task, 0, len(all))
	for _, t := range all {
		if t.Executions, err = s.store.ListExecutions(ctx, t.ID, s.historyLimit); err != nil {
			return nil, fmt.Errorf("list executions of %s: %w", t.ID, err)
		}
		out = append(out, s.overlay(t))
	}
	return out, nil
}

func (s *Service) FindOne(ctx context.Context, id string) (domain.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Executions, err = s.store.ListExecutions(ctx, id, s.historyLimit); err != nil {
		return domain.Task{}, fmt.Errorf("list executions of %s: %w", id, err)
	}
	return s.overlay(t), nil
}

// Update merges p onto the stored task. The timer is always disarmed and
// re-armed only when the merged task is live.
func (s *Service) Update(ctx context.Context, id string, p Patch) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	p.apply(&t)
	if err := validate(t); err != nil {
		return domain.Task{}, err
	}

	updated, err := s.store.UpdateTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.applyLiveness(ctx, updated); err != nil {
		return domain.Task{}, err
	}
	log.Info().Str("task_id", id).Bool("live", updated.Live()).Msg("task updated")
	return s.overlay(updated), nil
}

// Remove disarms and deletes the task. Its execution history is kept.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sched.UnregisterTask(id)
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	log.Info().Str("task_id", id).Msg("task removed")
	return nil
}

// ToggleStatus flips isEnabled and re-evaluates liveness.
func (s *Service) ToggleStatus(ctx context.Context, id string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.store.ToggleTaskEnabled(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.applyLiveness(ctx, t); err != nil {
		return domain.Task{}, err
	}
	log.Info().Str("task_id", id).Bool("enabled", t.IsEnabled).Msg("task toggled")
	return s.overlay(t), nil
}

func (s *Service) GetTaskExecutions(ctx context.Context, id string) ([]domain.Execution, error) {
	if _, err := s.store.GetTask(ctx, id); err != nil {
		return nil, err
	}
	execs, err := s.store.ListExecutions(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("list executions of %s: %w", id, err)
	}
	if execs == nil {
		execs = []domain.Execution{}
	}
	return execs, nil
}

// RunNow fires the task once, outside its schedule, whether or not it is live.
func (s *Service) RunNow(ctx context.Context, id string) (domain.Execution, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return domain.Execution{}, err
	}
	return s.sched.ExecuteTask(ctx, t)
}

func (s *Service) applyLiveness(ctx context.Context, t domain.Task) error {
	s.sched.UnregisterTask(t.ID)
	if t.Live() {
		if err := s.sched.RegisterTask(t); err != nil {
			return fmt.Errorf("register task %s: %w", t.ID, err)
		}
	}
	s.syncNext(ctx, t.ID)
	return nil
}

// syncNext persists the armed fire time so listings survive a restart.
func (s *Service) syncNext(ctx context.Context, id string) {
	var next *time.Time
	if at, ok := s.sched.NextRun(id); ok {
		next = &at
	}
	if err := s.store.SetNextExecution(ctx, id, next); err != nil {
		log.Warn().Err(err).Str("task_id", id).Msg("failed to persist next execution time")
	}
}

func (s *Service) overlay(t domain.Task) domain.Task {
	if at, ok := s.sched.NextRun(t.ID); ok {
		t.NextExecutionAt = &at
	} else {
		t.NextExecutionAt = nil
	}
	return t
}

func (p Patch) apply(t *domain.Task) {
	if p.Name != nil {
		t.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.CronExpression != nil {
		t.CronExpression = strings.TrimSpace(*p.CronExpression)
	}
	if p.Configuration != nil {
		t.Configuration = *p.Configuration
	}
	if p.IsEnabled != nil {
		t.IsEnabled = *p.IsEnabled
	}
}

func validate(t domain.Task) error {
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: unknown task type %q", domain.ErrInvalidInput, t.Type)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, t.Status)
	}
	return scheduler.ValidateCronExpression(t.CronExpression)
}
