package domain

import (
	"encoding/json"
	"time"
)

type TaskType string

const (
	TaskOverdueAssetDetection TaskType = "overdue_asset_detection"
	TaskMaintenanceReminder   TaskType = "maintenance_reminder"
	TaskLowStockDetection     TaskType = "low_stock_detection"
	TaskCustom                TaskType = "custom"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskOverdueAssetDetection, TaskMaintenanceReminder, TaskLowStockDetection, TaskCustom:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskActive   TaskStatus = "active"
	TaskInactive TaskStatus = "inactive"
	TaskPaused   TaskStatus = "paused"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskActive, TaskInactive, TaskPaused:
		return true
	}
	return false
}

// Configuration is the opaque handler configuration stored with a task.
type Configuration map[string]any

// Decode copies the configuration into a typed struct through JSON.
func (c Configuration) Decode(dst any) error {
	if len(c) == 0 {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

type Task struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	Type            TaskType      `json:"type"`
	Status          TaskStatus    `json:"status"`
	CronExpression  string        `json:"cronExpression"`
	Configuration   Configuration `json:"configuration"`
	LastExecutedAt  *time.Time    `json:"lastExecutedAt,omitempty"`
	NextExecutionAt *time.Time    `json:"nextExecutionAt,omitempty"`
	ExecutionCount  int64         `json:"executionCount"`
	FailureCount    int64         `json:"failureCount"`
	IsEnabled       bool          `json:"isEnabled"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`

	// Executions is populated by reads that include history.
	Executions []Execution `json:"executions,omitempty"`
}

// Live reports whether the task should have an armed timer.
func (t Task) Live() bool {
	return t.IsEnabled && t.Status == TaskActive
}

type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

type Execution struct {
	ID           string          `json:"id"`
	TaskID       string          `json:"taskId"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"startedAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	Output       string          `json:"output,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}
