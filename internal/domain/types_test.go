package domain

import "testing"

func TestTaskLive(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		enabled bool
		status  TaskStatus
		want    bool
	}{
		{"enabled active", true, TaskActive, true},
		{"disabled active", false, TaskActive, false},
		{"enabled paused", true, TaskPaused, false},
		{"enabled inactive", true, TaskInactive, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Task{IsEnabled: tt.enabled, Status: tt.status}.Live()
			if got != tt.want {
				t.Fatalf("Live() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigurationDecode(t *testing.T) {
	t.Parallel()
	cfg := Configuration{
		"gracePeriodDays": float64(3),
		"notifyUsers":     []any{"ops", "lead"},
	}
	var dst struct {
		GracePeriodDays int      `json:"gracePeriodDays"`
		NotifyUsers     []string `json:"notifyUsers"`
	}
	if err := cfg.Decode(&dst); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dst.GracePeriodDays != 3 {
		t.Fatalf("gracePeriodDays = %d, want 3", dst.GracePeriodDays)
	}
	if len(dst.NotifyUsers) != 2 || dst.NotifyUsers[1] != "lead" {
		t.Fatalf("notifyUsers = %v", dst.NotifyUsers)
	}
}

func TestConfigurationDecodeEmpty(t *testing.T) {
	t.Parallel()
	dst := struct{ A int }{A: 7}
	if err := Configuration(nil).Decode(&dst); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dst.A != 7 {
		t.Fatalf("empty configuration should leave defaults untouched, got %d", dst.A)
	}
}
