package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"assetflow/internal/clock"
	"assetflow/internal/domain"
	"assetflow/internal/handlers/lowstock"
	"assetflow/internal/handlers/overdue"
	"assetflow/internal/notify/notifytest"
	"assetflow/internal/scheduler"
	"assetflow/internal/store"
	"assetflow/internal/tasks"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	srv   *httptest.Server
	store *store.SQLite
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := store.NewSQLite(db)

	fc := clock.NewFake(now)
	gw := &notifytest.Gateway{}
	od := overdue.New(st, gw, fc)
	ls := lowstock.New(st, gw)
	handlers := map[domain.TaskType]scheduler.Handler{
		domain.TaskOverdueAssetDetection: od,
		domain.TaskLowStockDetection:     ls,
	}
	reg := scheduler.NewRegistry(tasks.NewRecorder(st), handlers, scheduler.WithClock(fc), scheduler.WithLocation(time.UTC))
	t.Cleanup(func() { reg.Stop(context.Background()) })

	srv := httptest.NewServer(NewServer(Deps{
		Tasks:      tasks.NewService(st, reg),
		Records:    st,
		Overdue:    od,
		LowStock:   ls,
		Handlers:   handlers,
		Registered: reg.Registered,
		Clock:      fc,
	}))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: st}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("content-type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/health", nil)
	if code != http.StatusOK || string(body) != "ok" {
		t.Fatalf("health = %d %q", code, body)
	}
}

func TestTaskLifecycle(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/tasks", map[string]any{
		"name":           "stock check",
		"type":           "low_stock_detection",
		"cronExpression": "*/5 * * * *",
		"configuration":  map[string]any{"notifyUsers": []string{"ops"}},
	})
	if code != http.StatusCreated {
		t.Fatalf("create = %d %s", code, body)
	}
	var task domain.Task
	if err := json.Unmarshal(body, &task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ID == "" || !task.IsEnabled || task.NextExecutionAt == nil {
		t.Fatalf("created task = %+v", task)
	}

	code, body = f.do(t, http.MethodGet, "/metrics", nil)
	if code != http.StatusOK || !strings.Contains(string(body), "assetflow_tasks_registered 1") {
		t.Fatalf("metrics = %d %s", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/toggle", nil)
	if code != http.StatusOK || !strings.Contains(string(body), `"isEnabled":false`) {
		t.Fatalf("toggle = %d %s", code, body)
	}

	code, body = f.do(t, http.MethodPut, "/api/tasks/"+task.ID, map[string]any{"name": "renamed"})
	if code != http.StatusOK || !strings.Contains(string(body), `"name":"renamed"`) {
		t.Fatalf("update = %d %s", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/run", nil)
	if code != http.StatusOK || !strings.Contains(string(body), `"status":"success"`) {
		t.Fatalf("run = %d %s", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/api/tasks/"+task.ID+"/executions", nil)
	var execs []domain.Execution
	if code != http.StatusOK || json.Unmarshal(body, &execs) != nil || len(execs) != 1 {
		t.Fatalf("executions = %d %s", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/api/tasks", nil)
	var all []domain.Task
	if code != http.StatusOK || json.Unmarshal(body, &all) != nil || len(all) != 1 || all[0].ExecutionCount != 1 {
		t.Fatalf("list = %d %s", code, body)
	}

	if code, _ = f.do(t, http.MethodDelete, "/api/tasks/"+task.ID, nil); code != http.StatusNoContent {
		t.Fatalf("delete = %d", code)
	}
	if code, _ = f.do(t, http.MethodGet, "/api/tasks/"+task.ID, nil); code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", code)
	}
}

func TestTaskErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodPost, "/api/tasks", map[string]any{"name": "x", "type": "custom", "cronExpression": "bogus"}, http.StatusBadRequest},
		{http.MethodPost, "/api/tasks", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/tasks/tsk_missing", nil, http.StatusNotFound},
		{http.MethodPut, "/api/tasks/tsk_missing", map[string]any{"name": "x"}, http.StatusNotFound},
		{http.MethodDelete, "/api/tasks/tsk_missing", nil, http.StatusNotFound},
		{http.MethodPost, "/api/tasks/tsk_missing/toggle", nil, http.StatusNotFound},
		{http.MethodGet, "/api/tasks/tsk_missing/executions", nil, http.StatusNotFound},
		{http.MethodPost, "/api/handlers/custom/run", nil, http.StatusNotFound},
		{http.MethodGet, "/api/assets/overdue?graceDays=abc", nil, http.StatusBadRequest},
		{http.MethodPut, "/api/inventory/inv_missing/stock", map[string]any{"currentStock": 3}, http.StatusNotFound},
		{http.MethodPut, "/api/inventory/inv_missing/stock", map[string]any{"currentStock": -3}, http.StatusBadRequest},
		{http.MethodPost, "/api/maintenance/mnt_missing/complete", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		if code, body := f.do(t, tt.method, tt.path, tt.body); code != tt.want {
			t.Fatalf("%s %s = %d %s, want %d", tt.method, tt.path, code, body, tt.want)
		}
	}
}

func TestDomainQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := now.Add(-3 * 24 * time.Hour)
	if err := f.store.UpsertAsset(ctx, domain.Asset{ID: "ast_1", Name: "laptop", Status: domain.AssetActive, DueDate: &due}); err != nil {
		t.Fatalf("seed asset: %v", err)
	}
	if err := f.store.UpsertMaintenanceItem(ctx, domain.MaintenanceItem{
		ID: "mnt_1", AssetID: "ast_1", Title: "battery check", ScheduledDate: now.Add(48 * time.Hour),
		Priority: domain.PriorityLow, IsActive: true,
	}); err != nil {
		t.Fatalf("seed maintenance: %v", err)
	}
	if err := f.store.UpsertInventoryItem(ctx, domain.InventoryItem{
		ID: "inv_1", Name: "chargers", SKU: "CHG-1", Category: "it",
		CurrentStock: 20, MinimumThreshold: 10, CriticalThreshold: 5, IsActive: true,
	}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	for grace, want := range map[int]int{0: 1, 2: 1, 3: 0} {
		code, body := f.do(t, http.MethodGet, fmt.Sprintf("/api/assets/overdue?graceDays=%d", grace), nil)
		var assets []domain.Asset
		if code != http.StatusOK || json.Unmarshal(body, &assets) != nil || len(assets) != want {
			t.Fatalf("overdue grace=%d = %d %s, want %d assets", grace, code, body, want)
		}
	}

	code, body := f.do(t, http.MethodGet, "/api/maintenance/upcoming?days=1", nil)
	if code != http.StatusOK || string(bytes.TrimSpace(body)) != "[]" {
		t.Fatalf("upcoming 1d = %d %s", code, body)
	}
	code, body = f.do(t, http.MethodGet, "/api/maintenance/upcoming?days=3", nil)
	if code != http.StatusOK || !strings.Contains(string(body), "mnt_1") {
		t.Fatalf("upcoming 3d = %d %s", code, body)
	}
	code, body = f.do(t, http.MethodPost, "/api/maintenance/mnt_1/complete", nil)
	if code != http.StatusOK || !strings.Contains(string(body), `"isCompleted":true`) {
		t.Fatalf("complete = %d %s", code, body)
	}

	code, body = f.do(t, http.MethodPut, "/api/inventory/inv_1/stock", map[string]any{"currentStock": 4})
	if code != http.StatusOK {
		t.Fatalf("stock = %d %s", code, body)
	}
	code, body = f.do(t, http.MethodGet, "/api/inventory/low-stock", nil)
	if code != http.StatusOK || !strings.Contains(string(body), `"totalAffected":1`) {
		t.Fatalf("low-stock = %d %s", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/api/handlers/low_stock_detection/run", map[string]any{"notifyUsers": []string{"ops"}})
	if code != http.StatusOK || !strings.Contains(string(body), `"notificationsSent":1`) {
		t.Fatalf("handler run = %d %s", code, body)
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("task x: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bad", domain.ErrInvalidSchedule), http.StatusBadRequest},
		{fmt.Errorf("%w: bad", domain.ErrInvalidInput), http.StatusBadRequest},
		{scheduler.ErrAlreadyRunning, http.StatusConflict},
		{scheduler.ErrStopped, http.StatusServiceUnavailable},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
