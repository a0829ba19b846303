package domain

import "time"

type AssetStatus string

const (
	AssetActive      AssetStatus = "active"
	AssetInactive    AssetStatus = "inactive"
	AssetMaintenance AssetStatus = "maintenance"
	AssetRetired     AssetStatus = "retired"
)

type Asset struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Status     AssetStatus    `json:"status"`
	DueDate    *time.Time     `json:"dueDate,omitempty"`
	AssignedTo string         `json:"assignedTo,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type MaintenanceItem struct {
	ID            string     `json:"id"`
	AssetID       string     `json:"assetId"`
	Title         string     `json:"title"`
	ScheduledDate time.Time  `json:"scheduledDate"`
	Priority      Priority   `json:"priority"`
	AssignedTo    string     `json:"assignedTo,omitempty"`
	IsCompleted   bool       `json:"isCompleted"`
	IsActive      bool       `json:"isActive"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

type InventoryItem struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	SKU               string `json:"sku,omitempty"`
	Category          string `json:"category,omitempty"`
	CurrentStock      int    `json:"currentStock"`
	MinimumThreshold  int    `json:"minimumThreshold"`
	CriticalThreshold int    `json:"criticalThreshold"`
	IsActive          bool   `json:"isActive"`
}

// LowStockSummary is the combined payload of a low-stock notification.
type LowStockSummary struct {
	Critical []InventoryItem `json:"critical"`
	Low      []InventoryItem `json:"low"`
}
