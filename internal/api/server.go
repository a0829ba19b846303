package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"assetflow/internal/clock"
	"assetflow/internal/domain"
	"assetflow/internal/handlers/lowstock"
	"assetflow/internal/handlers/overdue"
	"assetflow/internal/scheduler"
	"assetflow/internal/tasks"
)

// TaskService is the orchestration surface the admin API drives.
type TaskService interface {
	Create(ctx context.Context, in tasks.TaskInput) (domain.Task, error)
	FindAll(ctx context.Context) ([]domain.Task, error)
	FindOne(ctx context.Context, id string) (domain.Task, error)
	Update(ctx context.Context, id string, p tasks.Patch) (domain.Task, error)
	Remove(ctx context.Context, id string) error
	ToggleStatus(ctx context.Context, id string) (domain.Task, error)
	GetTaskExecutions(ctx context.Context, id string) ([]domain.Execution, error)
	RunNow(ctx context.Context, id string) (domain.Execution, error)
}

// RecordStore gives the API direct access to the domain records.
type RecordStore interface {
	ListMaintenanceDue(ctx context.Context, from, to time.Time, priorities []domain.Priority) ([]domain.MaintenanceItem, error)
	GetMaintenanceItem(ctx context.Context, id string) (domain.MaintenanceItem, error)
	CompleteMaintenance(ctx context.Context, id string, at time.Time) error
	GetInventoryItem(ctx context.Context, id string) (domain.InventoryItem, error)
	UpdateStock(ctx context.Context, id string, stock int) error
}

type Deps struct {
	Tasks    TaskService
	Records  RecordStore
	Overdue  *overdue.Detector
	LowStock *lowstock.Detector
	Handlers map[domain.TaskType]scheduler.Handler
	// Registered lists the task ids with an armed timer.
	Registered func() []string
	Clock      clock.Clock
}

type Server struct {
	r    *chi.Mux
	deps Deps
}

func NewServer(deps Deps) http.Handler {
	return NewServerWithDebug(deps, false)
}

func NewServerWithDebug(deps Deps, enableDebug bool) http.Handler {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, deps: deps}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", s.listTasks)
		r.Post("/", s.createTask)
		r.Get("/{id}", s.getTask)
		r.Put("/{id}", s.updateTask)
		r.Delete("/{id}", s.deleteTask)
		r.Post("/{id}/toggle", s.toggleTask)
		r.Post("/{id}/run", s.runTask)
		r.Get("/{id}/executions", s.taskExecutions)
	})
	r.Post("/api/handlers/{type}/run", s.runHandler)

	r.Get("/api/assets/overdue", s.overdueAssets)
	r.Get("/api/maintenance/upcoming", s.upcomingMaintenance)
	r.Post("/api/maintenance/{id}/complete", s.completeMaintenance)
	r.Get("/api/inventory/low-stock", s.lowStock)
	r.Put("/api/inventory/{id}/stock", s.updateStock)

	// Debug routes (pprof)
	if enableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
		r.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
		r.Handle("/debug/pprof/block", pprof.Handler("block"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	registered := 0
	if s.deps.Registered != nil {
		registered = len(s.deps.Registered())
	}
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "assetflow_up 1\nassetflow_tasks_registered %d\n", registered)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Tasks.FindAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var in tasks.TaskInput
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.deps.Tasks.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Tasks.FindOne(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var p tasks.Patch
	if err := decode(r, &p); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.deps.Tasks.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Tasks.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Tasks.ToggleStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) runTask(w http.ResponseWriter, r *http.Request) {
	exec, err := s.deps.Tasks.RunNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) taskExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := s.deps.Tasks.GetTaskExecutions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

// runHandler invokes a handler with the posted configuration. Nothing is
// recorded against any task.
func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	typ := domain.TaskType(chi.URLParam(r, "type"))
	h, ok := s.deps.Handlers[typ]
	if !ok {
		writeError(w, fmt.Errorf("handler %s: %w", typ, domain.ErrNotFound))
		return
	}
	var cfg domain.Configuration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	out, err := h.Handle(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) overdueAssets(w http.ResponseWriter, r *http.Request) {
	grace, err := intParam(r, "graceDays", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	cfg := domain.Configuration{"gracePeriodDays": grace}
	if statuses := r.URL.Query()["status"]; len(statuses) > 0 {
		cfg["includeStatuses"] = statuses
	}
	c, err := overdue.ParseConfig(cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	assets, err := s.deps.Overdue.Find(r.Context(), c, s.deps.Clock.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	if assets == nil {
		assets = []domain.Asset{}
	}
	writeJSON(w, http.StatusOK, assets)
}

func (s *Server) upcomingMaintenance(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 7)
	if err != nil {
		writeError(w, err)
		return
	}
	now := s.deps.Clock.Now()
	items, err := s.deps.Records.ListMaintenanceDue(r.Context(), now, now.AddDate(0, 0, days), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []domain.MaintenanceItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) completeMaintenance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Records.CompleteMaintenance(r.Context(), id, s.deps.Clock.Now()); err != nil {
		writeError(w, err)
		return
	}
	item, err := s.deps.Records.GetMaintenanceItem(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) lowStock(w http.ResponseWriter, r *http.Request) {
	c := lowstock.Config{Categories: r.URL.Query()["category"]}
	summary, err := s.deps.LowStock.Summary(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"criticalItems": summary.Critical,
		"lowStockItems": summary.Low,
		"totalAffected": len(summary.Critical) + len(summary.Low),
	})
}

type stockReq struct {
	CurrentStock *int `json:"currentStock"`
}

func (s *Server) updateStock(w http.ResponseWriter, r *http.Request) {
	var req stockReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CurrentStock == nil || *req.CurrentStock < 0 {
		writeError(w, fmt.Errorf("%w: currentStock must be a non-negative integer", domain.ErrInvalidInput))
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.deps.Records.UpdateStock(r.Context(), id, *req.CurrentStock); err != nil {
		writeError(w, err)
		return
	}
	item, err := s.deps.Records.GetInventoryItem(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, name)
	}
	return n, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSchedule), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", code).Msg("request failed")
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
